package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"peaklabeler/internal/models"
)

// Container is an open read/write handle on one container file.
// It is not safe for concurrent use.
type Container struct {
	path     string
	f        *os.File
	open     bool
	rows     int
	cols     int
	events   int
	datasets map[string]DatasetEntry
	chunks   map[string][]ChunkEntry
}

var requiredDatasets = []string{DatasetPeakCounts, DatasetData, DatasetMask, DatasetSegmentation}

// Open opens the container at path for reading and writing and validates
// its directory.
func Open(path string) (*Container, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	c := &Container{
		path:     path,
		f:        f,
		open:     true,
		datasets: make(map[string]DatasetEntry),
		chunks:   make(map[string][]ChunkEntry),
	}
	if err := c.readDirectory(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c *Container) readDirectory() error {
	r := io.NewSectionReader(c.f, 0, math.MaxInt64)

	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if header.Magic != MagicNumber {
		return fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return fmt.Errorf("%w: got %d", ErrInvalidVersion, header.Version)
	}
	c.rows, c.cols = int(header.Rows), int(header.Cols)

	for i := 0; i < int(header.NumDatasets); i++ {
		var e DatasetEntry
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			return fmt.Errorf("reading dataset entry %d: %w", i, err)
		}
		c.datasets[e.DatasetName()] = e
	}

	for _, name := range requiredDatasets {
		if _, ok := c.datasets[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingDataset, name)
		}
	}

	c.events = int(c.datasets[DatasetPeakCounts].Dims[0])

	if err := c.checkShapes(); err != nil {
		return err
	}

	for name, e := range c.datasets {
		if e.Layout != LayoutChunked {
			continue
		}
		table := make([]ChunkEntry, e.Dims[0])
		tr := io.NewSectionReader(c.f, int64(e.Offset), int64(e.Size))
		if err := binary.Read(tr, binary.LittleEndian, table); err != nil {
			return fmt.Errorf("reading %s chunk table: %w", name, err)
		}
		stride := uint32(e.eventStride())
		for i, ce := range table {
			if ce.RawSize != stride {
				return fmt.Errorf("%w: %s chunk %d holds %d bytes, want %d", ErrCorruptChunk, name, i, ce.RawSize, stride)
			}
		}
		c.chunks[name] = table
	}
	return nil
}

var datasetTypes = map[string]DType{
	DatasetPeakCounts:   DTypeInt32,
	DatasetData:         DTypeFloat32,
	DatasetMask:         DTypeUint8,
	DatasetSegmentation: DTypeInt32,
}

// checkShapes validates element types, dimensions, layouts and block sizes
// so that every later read decodes exactly one plane.
func (c *Container) checkShapes() error {
	for _, name := range requiredDatasets {
		if got, want := c.datasets[name].DType, datasetTypes[name]; got != want {
			return fmt.Errorf("%w: %s has dtype %d, want %d", ErrShapeMismatch, name, got, want)
		}
	}

	p := c.datasets[DatasetPeakCounts]
	if p.NDims != 1 || p.Layout != LayoutContiguous || p.Size != uint64(c.events)*4 {
		return fmt.Errorf("%w: %s must be a contiguous (%d) array", ErrShapeMismatch, DatasetPeakCounts, c.events)
	}

	for _, name := range []string{DatasetData, DatasetSegmentation} {
		e := c.datasets[name]
		if e.NDims != 3 || int(e.Dims[0]) != c.events || int(e.Dims[1]) != c.rows || int(e.Dims[2]) != c.cols {
			return fmt.Errorf("%w: %s is %d-D %v, want (%d, %d, %d)", ErrShapeMismatch, name, e.NDims, e.Dims, c.events, c.rows, c.cols)
		}
	}
	if c.datasets[DatasetSegmentation].Layout != LayoutContiguous {
		return fmt.Errorf("%w: %s must be contiguous", ErrShapeMismatch, DatasetSegmentation)
	}

	m := c.datasets[DatasetMask]
	switch m.NDims {
	case 2:
		if int(m.Dims[0]) != c.rows || int(m.Dims[1]) != c.cols {
			return fmt.Errorf("%w: shared mask is %v", ErrShapeMismatch, m.Dims[:2])
		}
		// A chunk table is indexed by event, so a shared mask has none.
		if m.Layout != LayoutContiguous {
			return fmt.Errorf("%w: shared mask must be contiguous", ErrShapeMismatch)
		}
		if m.Size != uint64(c.rows*c.cols) {
			return fmt.Errorf("%w: shared mask holds %d bytes, want %d", ErrShapeMismatch, m.Size, c.rows*c.cols)
		}
	case 3:
		if int(m.Dims[0]) != c.events || int(m.Dims[1]) != c.rows || int(m.Dims[2]) != c.cols {
			return fmt.Errorf("%w: mask is %v", ErrShapeMismatch, m.Dims[:3])
		}
	default:
		return fmt.Errorf("%w: mask has %d dimensions", ErrShapeMismatch, m.NDims)
	}

	for _, name := range []string{DatasetData, DatasetMask, DatasetSegmentation} {
		e := c.datasets[name]
		if e.NDims != 3 || e.Layout != LayoutContiguous {
			continue
		}
		if want := uint64(c.events) * uint64(e.eventStride()); e.Size != want {
			return fmt.Errorf("%w: %s holds %d bytes, want %d", ErrShapeMismatch, name, e.Size, want)
		}
	}
	return nil
}

// Path returns the file path the container was opened from.
func (c *Container) Path() string { return c.path }

// IsOpen reports whether the container still accepts I/O.
func (c *Container) IsOpen() bool { return c.open }

// EventCount returns the number of events, the length of n_peaks.
func (c *Container) EventCount() int { return c.events }

// Shape returns the frame dimensions.
func (c *Container) Shape() (rows, cols int) { return c.rows, c.cols }

// MaskShared reports whether a single 2-D bad-pixel mask covers every event.
func (c *Container) MaskShared() bool {
	return c.datasets[DatasetMask].NDims == 2
}

// PeakCounts returns the n_peaks array.
func (c *Container) PeakCounts() ([]int32, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	e := c.datasets[DatasetPeakCounts]
	buf := make([]byte, e.Size)
	if _, err := c.f.ReadAt(buf, int64(e.Offset)); err != nil {
		return nil, err
	}
	return decodeInt32s(buf)
}

// ReadImage returns the raw frame of event as a rows x cols matrix.
func (c *Container) ReadImage(event int) (*mat.Dense, error) {
	raw, err := c.readEvent(DatasetData, event)
	if err != nil {
		return nil, err
	}
	data := make([]float64, c.rows*c.cols)
	for i := range data {
		data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	return mat.NewDense(c.rows, c.cols, data), nil
}

// ReadMask returns the bad-pixel mask for event, 1 marking an invalid pixel.
// For a shared mask the same plane is returned for every event.
func (c *Container) ReadMask(event int) ([]uint8, error) {
	return c.readEvent(DatasetMask, event)
}

// ReadSegmentation returns the stored segmentation plane of event.
func (c *Container) ReadSegmentation(event int) (*models.LabelPlane, error) {
	raw, err := c.readEvent(DatasetSegmentation, event)
	if err != nil {
		return nil, err
	}
	p := models.NewLabelPlane(c.rows, c.cols)
	for i := range p.Data {
		p.Data[i] = models.Label(int32(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	return p, nil
}

// WriteSegmentation overwrites the segmentation plane of event in place.
// The write is not durable until Sync.
func (c *Container) WriteSegmentation(event int, plane *models.LabelPlane) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.checkEvent(event); err != nil {
		return err
	}
	if plane.Rows != c.rows || plane.Cols != c.cols {
		return fmt.Errorf("%w: plane is %dx%d, container is %dx%d", ErrShapeMismatch, plane.Rows, plane.Cols, c.rows, c.cols)
	}

	e := c.datasets[DatasetSegmentation]
	buf := make([]byte, len(plane.Data)*4)
	for i, v := range plane.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(int32(v)))
	}
	_, err := c.f.WriteAt(buf, int64(e.Offset)+int64(event)*e.eventStride())
	return err
}

// Sync commits written data to stable storage.
func (c *Container) Sync() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.f.Sync()
}

// Close releases the file handle. Closing a closed container is a no-op.
func (c *Container) Close() error {
	if !c.open {
		return nil
	}
	c.open = false
	return c.f.Close()
}

func (c *Container) checkOpen() error {
	if !c.open {
		return fmt.Errorf("%w: %s", ErrClosed, c.path)
	}
	return nil
}

func (c *Container) checkEvent(event int) error {
	if event < 0 || event >= c.events {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrEventOutOfRange, event, c.events)
	}
	return nil
}

// readEvent returns the raw bytes of one event's slice of a dataset. A 2-D
// dataset is shared by all events and returned whole.
func (c *Container) readEvent(name string, event int) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if err := c.checkEvent(event); err != nil {
		return nil, err
	}

	e := c.datasets[name]
	if e.Layout == LayoutChunked {
		ce := c.chunks[name][event]
		stored := make([]byte, ce.Size)
		if _, err := c.f.ReadAt(stored, int64(ce.Offset)); err != nil {
			return nil, fmt.Errorf("reading %s chunk %d: %w", name, event, err)
		}
		raw, err := decompressChunk(stored, ce)
		if err != nil {
			return nil, err
		}
		if int64(len(raw)) != e.eventStride() {
			return nil, fmt.Errorf("%w: %s chunk %d decoded to %d bytes, want %d", ErrCorruptChunk, name, event, len(raw), e.eventStride())
		}
		return raw, nil
	}

	if e.NDims == 2 {
		buf := make([]byte, e.Size)
		if _, err := c.f.ReadAt(buf, int64(e.Offset)); err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		return buf, nil
	}

	stride := e.eventStride()
	buf := make([]byte, stride)
	if _, err := c.f.ReadAt(buf, int64(e.Offset)+int64(event)*stride); err != nil {
		return nil, fmt.Errorf("reading %s event %d: %w", name, event, err)
	}
	return buf, nil
}

func decodeInt32s(b []byte) ([]int32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: int32 array of %d bytes", ErrShapeMismatch, len(b))
	}
	out := make([]int32, len(b)/4)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("decoding int32 array: %w", err)
	}
	return out, nil
}
