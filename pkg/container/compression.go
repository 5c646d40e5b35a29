package container

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// compressChunk encodes raw with codec. It returns raw unchanged when the
// codec is CodecNone or compression does not shrink the chunk.
func compressChunk(raw []byte, codec Codec) ([]byte, error) {
	if codec != CodecLZ4 || len(raw) == 0 {
		return raw, nil
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= len(raw) {
		// Incompressible
		return raw, nil
	}
	return compressed[:n], nil
}

// decompressChunk reverses compressChunk for a chunk described by ce.
func decompressChunk(stored []byte, ce ChunkEntry) ([]byte, error) {
	if ce.Size == ce.RawSize {
		return stored, nil
	}

	raw := make([]byte, ce.RawSize)
	n, err := lz4.UncompressBlock(stored, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptChunk, err)
	}
	if uint32(n) != ce.RawSize {
		return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorruptChunk, n, ce.RawSize)
	}
	return raw, nil
}
