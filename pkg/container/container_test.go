package container

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peaklabeler/internal/models"
)

func smallSpec(events int, sharedMask bool, codec Codec) *Spec {
	rows, cols := 3, 4
	spec := &Spec{Rows: rows, Cols: cols, Codec: codec}
	for e := 0; e < events; e++ {
		img := make([]float32, rows*cols)
		for i := range img {
			img[i] = float32(e*100 + i)
		}
		spec.Images = append(spec.Images, img)
		spec.PeakCounts = append(spec.PeakCounts, int32(e))
	}
	if sharedMask {
		m := make([]uint8, rows*cols)
		m[0] = 1
		spec.Masks = [][]uint8{m}
	} else {
		for e := 0; e < events; e++ {
			m := make([]uint8, rows*cols)
			m[e] = 1
			spec.Masks = append(spec.Masks, m)
		}
	}
	return spec
}

func createTemp(t *testing.T, spec *Spec) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.plcx")
	require.NoError(t, Create(path, spec))
	return path
}

func TestCreateOpen(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecLZ4} {
		spec := smallSpec(3, false, codec)
		c, err := Open(createTemp(t, spec))
		require.NoError(t, err)
		defer c.Close()

		assert.Equal(t, 3, c.EventCount())
		rows, cols := c.Shape()
		assert.Equal(t, 3, rows)
		assert.Equal(t, 4, cols)
		assert.False(t, c.MaskShared())

		img, err := c.ReadImage(2)
		require.NoError(t, err)
		assert.Equal(t, 200.0, img.At(0, 0))
		assert.Equal(t, 211.0, img.At(2, 3))

		mask, err := c.ReadMask(1)
		require.NoError(t, err)
		assert.Equal(t, uint8(0), mask[0])
		assert.Equal(t, uint8(1), mask[1])

		counts, err := c.PeakCounts()
		require.NoError(t, err)
		assert.Equal(t, []int32{0, 1, 2}, counts)

		seg, err := c.ReadSegmentation(0)
		require.NoError(t, err)
		assert.Equal(t, 12, seg.Count(models.Background))
	}
}

func TestSharedMask(t *testing.T) {
	c, err := Open(createTemp(t, smallSpec(2, true, CodecLZ4)))
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.MaskShared())
	for e := 0; e < 2; e++ {
		mask, err := c.ReadMask(e)
		require.NoError(t, err)
		assert.Equal(t, uint8(1), mask[0])
		assert.Equal(t, uint8(0), mask[1])
	}
}

func TestWriteSegmentationInPlace(t *testing.T) {
	path := createTemp(t, smallSpec(3, true, CodecLZ4))
	c, err := Open(path)
	require.NoError(t, err)

	plane := models.NewLabelPlane(3, 4)
	plane.Set(1, 2, 3)
	plane.Set(2, 3, -1)
	require.NoError(t, c.WriteSegmentation(1, plane))
	require.NoError(t, c.Sync())
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()

	got, err := c.ReadSegmentation(1)
	require.NoError(t, err)
	assert.True(t, plane.Equal(got))

	// Neighbouring events are untouched.
	other, err := c.ReadSegmentation(2)
	require.NoError(t, err)
	assert.Equal(t, 12, other.Count(models.Background))
	img, err := c.ReadImage(2)
	require.NoError(t, err)
	assert.Equal(t, 200.0, img.At(0, 0))
}

func TestWriteSegmentationShapeMismatch(t *testing.T) {
	c, err := Open(createTemp(t, smallSpec(1, true, CodecNone)))
	require.NoError(t, err)
	defer c.Close()

	err = c.WriteSegmentation(0, models.NewLabelPlane(4, 4))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestClosedContainerFailsLoudly(t *testing.T) {
	c, err := Open(createTemp(t, smallSpec(2, true, CodecNone)))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "second close is a no-op")
	assert.False(t, c.IsOpen())

	_, err = c.ReadImage(0)
	assert.ErrorIs(t, err, ErrClosed)
	err = c.WriteSegmentation(0, models.NewLabelPlane(3, 4))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Sync(), ErrClosed)
}

func TestEventOutOfRange(t *testing.T) {
	c, err := Open(createTemp(t, smallSpec(2, true, CodecNone)))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ReadImage(2)
	assert.ErrorIs(t, err, ErrEventOutOfRange)
	_, err = c.ReadSegmentation(-1)
	assert.ErrorIs(t, err, ErrEventOutOfRange)
}

func TestOpenMissingDataset(t *testing.T) {
	spec := smallSpec(2, true, CodecNone)
	spec.Omit = []string{DatasetPeakCounts}

	_, err := Open(createTemp(t, spec))
	assert.ErrorIs(t, err, ErrMissingDataset)
}

func TestOpenInvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.plcx")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestSpecValidate(t *testing.T) {
	spec := smallSpec(2, false, CodecNone)
	spec.Masks = spec.Masks[:0]
	assert.ErrorIs(t, spec.Validate(), ErrShapeMismatch)

	spec = smallSpec(2, true, CodecNone)
	spec.Images[1] = spec.Images[1][:5]
	assert.ErrorIs(t, spec.Validate(), ErrShapeMismatch)
}

func TestSyntheticSpecDeterministic(t *testing.T) {
	a := SyntheticSpec(16, 16, 2, 7)
	b := SyntheticSpec(16, 16, 2, 7)
	require.NoError(t, a.Validate())
	assert.Equal(t, a.Images, b.Images)
	assert.Equal(t, a.PeakCounts, b.PeakCounts)

	c, err := Open(createTemp(t, a))
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.MaskShared())
	assert.Equal(t, 2, c.EventCount())
}

// patchFile overwrites the bytes of path starting at off.
func patchFile(t *testing.T, path string, off int64, b []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteAt(b, off)
	require.NoError(t, err)
}

// entryOffset is the file offset of the i-th directory entry. Create writes
// n_peaks, data, mask and segmask in that order.
func entryOffset(i int) int64 {
	return headerSize + int64(i)*entrySize
}

func TestOpenRejectsWrongDType(t *testing.T) {
	tests := []struct {
		name  string
		entry int
		dtype DType
	}{
		{"n_peaks as float32", 0, DTypeFloat32},
		{"data as int32", 1, DTypeInt32},
		{"mask as float32", 2, DTypeFloat32},
		{"segmask as uint8", 3, DTypeUint8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTemp(t, smallSpec(2, true, CodecLZ4))
			patchFile(t, path, entryOffset(tt.entry)+16, []byte{byte(tt.dtype)})

			_, err := Open(path)
			assert.ErrorIs(t, err, ErrShapeMismatch)
		})
	}
}

func TestOpenRejectsChunkedSharedMask(t *testing.T) {
	path := createTemp(t, smallSpec(2, true, CodecNone))
	patchFile(t, path, entryOffset(2)+17, []byte{byte(LayoutChunked)})

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestOpenRejectsChunkSizeMismatch(t *testing.T) {
	path := createTemp(t, smallSpec(3, false, CodecNone))
	c, err := Open(path)
	require.NoError(t, err)
	table := int64(c.datasets[DatasetData].Offset)
	require.NoError(t, c.Close())

	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, 7)
	patchFile(t, path, table+chunkSize+12, raw)

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrCorruptChunk)
}

func TestReadEventRejectsShortChunk(t *testing.T) {
	c, err := Open(createTemp(t, smallSpec(2, false, CodecNone)))
	require.NoError(t, err)
	defer c.Close()

	c.chunks[DatasetData][1].Size = 8
	c.chunks[DatasetData][1].RawSize = 8

	_, err = c.ReadImage(1)
	assert.ErrorIs(t, err, ErrCorruptChunk)
	_, err = c.ReadImage(0)
	assert.NoError(t, err)
}

func TestDecodeInt32s(t *testing.T) {
	got, err := decodeInt32s([]byte{1, 0, 0, 0, 0xff, 0xff, 0xff, 0xff})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, -1}, got)

	_, err = decodeInt32s([]byte{1, 0, 0})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
