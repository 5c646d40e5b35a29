package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"

	"peaklabeler/internal/fsutil"
)

// Spec describes the contents of a container to be written by Create.
type Spec struct {
	// Rows and Cols are the frame dimensions shared by every dataset
	Rows int
	Cols int

	// Images holds one Rows*Cols frame per event; its length defines N
	Images [][]float32

	// Masks holds either a single shared bad-pixel mask or one per event.
	// A value of 1 marks an invalid pixel.
	Masks [][]uint8

	// Segmentation holds one plane per event. Nil means all background.
	Segmentation [][]int32

	// PeakCounts is the n_peaks array. Nil means zero peaks for every event.
	PeakCounts []int32

	// Codec compresses the chunked datasets
	Codec Codec

	// Omit lists datasets to leave out of the file
	Omit []string
}

// Events returns the number of events the spec describes.
func (s *Spec) Events() int {
	return len(s.Images)
}

// Validate checks that every array matches the declared shape.
func (s *Spec) Validate() error {
	if s.Rows <= 0 || s.Cols <= 0 {
		return fmt.Errorf("%w: frame shape %dx%d", ErrShapeMismatch, s.Rows, s.Cols)
	}
	n, px := s.Events(), s.Rows*s.Cols
	for i, img := range s.Images {
		if len(img) != px {
			return fmt.Errorf("%w: image %d has %d pixels, want %d", ErrShapeMismatch, i, len(img), px)
		}
	}
	if len(s.Masks) != 1 && len(s.Masks) != n {
		return fmt.Errorf("%w: %d masks for %d events", ErrShapeMismatch, len(s.Masks), n)
	}
	for i, m := range s.Masks {
		if len(m) != px {
			return fmt.Errorf("%w: mask %d has %d pixels, want %d", ErrShapeMismatch, i, len(m), px)
		}
	}
	if s.Segmentation != nil {
		if len(s.Segmentation) != n {
			return fmt.Errorf("%w: %d segmentation planes for %d events", ErrShapeMismatch, len(s.Segmentation), n)
		}
		for i, p := range s.Segmentation {
			if len(p) != px {
				return fmt.Errorf("%w: segmentation %d has %d pixels, want %d", ErrShapeMismatch, i, len(p), px)
			}
		}
	}
	if s.PeakCounts != nil && len(s.PeakCounts) != n {
		return fmt.Errorf("%w: %d peak counts for %d events", ErrShapeMismatch, len(s.PeakCounts), n)
	}
	return nil
}

type pendingDataset struct {
	entry  DatasetEntry
	table  []ChunkEntry
	blocks [][]byte
}

// Create writes a new container described by spec to path, replacing any
// existing file atomically.
func Create(path string, spec *Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	pending, err := spec.datasets()
	if err != nil {
		return err
	}

	// Assign offsets: header, directory, then each dataset's table and blocks.
	cursor := uint64(headerSize + len(pending)*entrySize)
	for _, p := range pending {
		if p.entry.Layout == LayoutChunked {
			p.entry.Offset = cursor
			p.entry.Size = uint64(len(p.table) * chunkSize)
			cursor += p.entry.Size
			for i, b := range p.blocks {
				p.table[i].Offset = cursor
				cursor += uint64(len(b))
			}
			continue
		}
		p.entry.Offset = cursor
		p.entry.Size = uint64(len(p.blocks[0]))
		cursor += p.entry.Size
	}

	header := FileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		Rows:        uint32(spec.Rows),
		Cols:        uint32(spec.Cols),
		NumDatasets: uint32(len(pending)),
	}

	return fsutil.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
			return err
		}
		for _, p := range pending {
			if err := binary.Write(w, binary.LittleEndian, &p.entry); err != nil {
				return err
			}
		}
		for _, p := range pending {
			if p.entry.Layout == LayoutChunked {
				if err := binary.Write(w, binary.LittleEndian, p.table); err != nil {
					return err
				}
			}
			for _, b := range p.blocks {
				if _, err := w.Write(b); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Spec) datasets() ([]*pendingDataset, error) {
	n, px := s.Events(), s.Rows*s.Cols
	var out []*pendingDataset

	if !slices.Contains(s.Omit, DatasetPeakCounts) {
		counts := s.PeakCounts
		if counts == nil {
			counts = make([]int32, n)
		}
		out = append(out, &pendingDataset{
			entry:  newEntry(DatasetPeakCounts, DTypeInt32, LayoutContiguous, CodecNone, n),
			blocks: [][]byte{encodeInt32s(counts)},
		})
	}

	if !slices.Contains(s.Omit, DatasetData) {
		raw := make([][]byte, n)
		for i, img := range s.Images {
			raw[i] = encodeFloat32s(img)
		}
		p, err := chunked(newEntry(DatasetData, DTypeFloat32, LayoutChunked, s.Codec, n, s.Rows, s.Cols), raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	if !slices.Contains(s.Omit, DatasetMask) {
		if len(s.Masks) == 1 && n != 1 {
			out = append(out, &pendingDataset{
				entry:  newEntry(DatasetMask, DTypeUint8, LayoutContiguous, CodecNone, s.Rows, s.Cols),
				blocks: [][]byte{slices.Clone(s.Masks[0])},
			})
		} else {
			p, err := chunked(newEntry(DatasetMask, DTypeUint8, LayoutChunked, s.Codec, n, s.Rows, s.Cols), s.Masks)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}

	if !slices.Contains(s.Omit, DatasetSegmentation) {
		block := make([]byte, 0, n*px*4)
		for i := 0; i < n; i++ {
			if s.Segmentation != nil {
				block = append(block, encodeInt32s(s.Segmentation[i])...)
			} else {
				block = append(block, make([]byte, px*4)...)
			}
		}
		out = append(out, &pendingDataset{
			entry:  newEntry(DatasetSegmentation, DTypeInt32, LayoutContiguous, CodecNone, n, s.Rows, s.Cols),
			blocks: [][]byte{block},
		})
	}

	return out, nil
}

func chunked(entry DatasetEntry, raw [][]byte) (*pendingDataset, error) {
	p := &pendingDataset{
		entry:  entry,
		table:  make([]ChunkEntry, len(raw)),
		blocks: make([][]byte, len(raw)),
	}
	for i, r := range raw {
		stored, err := compressChunk(r, entry.Codec)
		if err != nil {
			return nil, fmt.Errorf("compressing %s chunk %d: %w", entry.DatasetName(), i, err)
		}
		p.blocks[i] = stored
		p.table[i] = ChunkEntry{Size: uint32(len(stored)), RawSize: uint32(len(r))}
	}
	return p, nil
}

func encodeFloat32s(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func encodeInt32s(v []int32) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(x))
	}
	return out
}
