// Package container implements the single-file, event-addressable data
// container the labeler reads frames from and writes segmentation masks to.
//
// A container holds four parallel datasets, modelled on the CXI layout:
//
//	n_peaks  int32   (N)                  event-count array, contiguous
//	data     float32 (N, H, W)            raw frames, chunked per event
//	mask     uint8   (N, H, W) | (H, W)   bad-pixel mask, per event or shared
//	segmask  int32   (N, H, W)            segmentation, contiguous
//
// Chunked datasets store one chunk per event, optionally lz4-compressed.
// The segmentation dataset is always contiguous with a fixed stride so a
// single event can be rewritten in place.
package container

import (
	"errors"
	"strings"
)

const (
	// MagicNumber identifies container files (ASCII: "PLCX")
	MagicNumber = 0x58434c50
	// Version is the current file format version
	Version = 1
)

// Dataset names.
const (
	DatasetPeakCounts   = "n_peaks"
	DatasetData         = "data"
	DatasetMask         = "mask"
	DatasetSegmentation = "segmask"
)

// DType identifies the element type of a dataset.
type DType uint8

const (
	DTypeInt32   DType = 1
	DTypeFloat32 DType = 2
	DTypeUint8   DType = 3
)

// Size returns the element width in bytes.
func (d DType) Size() int {
	switch d {
	case DTypeInt32, DTypeFloat32:
		return 4
	case DTypeUint8:
		return 1
	default:
		return 0
	}
}

// Layout selects how a dataset's bytes are arranged in the file.
type Layout uint8

const (
	// LayoutContiguous stores the dataset as one block.
	LayoutContiguous Layout = 0
	// LayoutChunked stores one chunk per event behind a chunk table.
	LayoutChunked Layout = 1
)

// Codec is the per-chunk compression of a chunked dataset.
type Codec uint8

const (
	// CodecNone stores chunks raw.
	CodecNone Codec = 0
	// CodecLZ4 stores chunks as lz4 blocks when that makes them smaller.
	CodecLZ4 Codec = 1
)

var (
	ErrInvalidMagic    = errors.New("invalid magic number")
	ErrInvalidVersion  = errors.New("unsupported version")
	ErrMissingDataset  = errors.New("missing dataset")
	ErrShapeMismatch   = errors.New("shape mismatch")
	ErrClosed          = errors.New("container is closed")
	ErrEventOutOfRange = errors.New("event out of range")
	ErrCorruptChunk    = errors.New("corrupt chunk")
)

// FileHeader is the 32-byte header at the start of every container.
type FileHeader struct {
	Magic       uint32
	Version     uint32
	Rows        uint32
	Cols        uint32
	NumDatasets uint32
	Reserved    [12]byte
}

// DatasetEntry is one 56-byte record of the dataset directory that follows
// the header.
type DatasetEntry struct {
	Name     [16]byte
	DType    DType
	Layout   Layout
	Codec    Codec
	NDims    uint8
	Padding1 [4]byte
	Dims     [3]uint32
	Padding2 [4]byte
	// Offset is the data start for contiguous datasets and the chunk table
	// start for chunked ones.
	Offset uint64
	// Size is the byte length of the contiguous block or of the chunk table.
	Size uint64
}

// ChunkEntry locates one event's chunk of a chunked dataset.
// A chunk whose Size equals RawSize is stored uncompressed.
type ChunkEntry struct {
	Offset  uint64
	Size    uint32
	RawSize uint32
}

const (
	headerSize = 32
	entrySize  = 56
	chunkSize  = 16
)

// DatasetName returns the entry's name without padding.
func (e DatasetEntry) DatasetName() string {
	return strings.TrimRight(string(e.Name[:]), "\x00")
}

// eventStride returns the byte length of one event's slice of the dataset.
func (e DatasetEntry) eventStride() int64 {
	n := int64(e.DType.Size())
	for i := 1; i < int(e.NDims); i++ {
		n *= int64(e.Dims[i])
	}
	return n
}

func newEntry(name string, dt DType, layout Layout, codec Codec, dims ...int) DatasetEntry {
	e := DatasetEntry{DType: dt, Layout: layout, Codec: codec, NDims: uint8(len(dims))}
	copy(e.Name[:], name)
	for i, d := range dims {
		e.Dims[i] = uint32(d)
	}
	return e
}
