package cache

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"peaklabeler/internal/models"
	"peaklabeler/pkg/container"
	"peaklabeler/pkg/dataset"
)

func buildIndex(t *testing.T, sharedMask bool) *dataset.Index {
	t.Helper()
	rows, cols, events := 2, 3, 2
	spec := &container.Spec{Rows: rows, Cols: cols, Codec: container.CodecLZ4}
	for e := 0; e < events; e++ {
		img := make([]float32, rows*cols)
		for i := range img {
			img[i] = float32(10*(e+1) + i)
		}
		spec.Images = append(spec.Images, img)
		seg := make([]int32, rows*cols)
		seg[e] = 1
		spec.Segmentation = append(spec.Segmentation, seg)
	}
	if sharedMask {
		spec.Masks = [][]uint8{{1, 0, 0, 0, 0, 1}}
	} else {
		spec.Masks = [][]uint8{{1, 0, 0, 0, 0, 0}, {0, 0, 0, 0, 0, 1}}
	}

	path := filepath.Join(t.TempDir(), "c.plcx")
	require.NoError(t, container.Create(path, spec))
	idx, err := dataset.Build([]string{path}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestGet_AppliesSharedMask(t *testing.T) {
	c := New(buildIndex(t, true), Options{FillValue: -1})

	s, err := c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Index)
	assert.Equal(t, -1.0, s.Image.At(0, 0))
	assert.Equal(t, 21.0, s.Image.At(0, 1))
	assert.Equal(t, -1.0, s.Image.At(1, 2))
	assert.Equal(t, models.Label(1), s.Overlay.At(0, 1))

	ch, h, w := s.Shape()
	assert.Equal(t, []int{1, 2, 3}, []int{ch, h, w})
}

func TestGet_AppliesPerEventMask(t *testing.T) {
	c := New(buildIndex(t, false), Options{})

	s0, err := c.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s0.Image.At(0, 0))
	assert.Equal(t, 15.0, s0.Image.At(1, 2))

	s1, err := c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 20.0, s1.Image.At(0, 0))
	assert.Equal(t, 0.0, s1.Image.At(1, 2))
}

func TestGet_IdempotentBetweenEdits(t *testing.T) {
	c := New(buildIndex(t, true), Options{})

	a, err := c.Get(0)
	require.NoError(t, err)
	img := mat.DenseCopyOf(a.Image)
	overlay := a.Overlay.Clone()

	b, err := c.Get(0)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.True(t, mat.Equal(img, b.Image))
	assert.True(t, overlay.Equal(b.Overlay))
	assert.Equal(t, 1, c.Len())
}

func TestGet_OutOfRange(t *testing.T) {
	c := New(buildIndex(t, true), Options{})

	_, err := c.Get(2)
	assert.ErrorIs(t, err, dataset.ErrOutOfRange)
	assert.Zero(t, c.Len())
}

func TestInvalidate(t *testing.T) {
	c := New(buildIndex(t, true), Options{})

	a, err := c.Get(0)
	require.NoError(t, err)
	a.Overlay.Set(1, 1, 3)
	cached, ok := c.Peek(0)
	require.True(t, ok)
	require.Same(t, a, cached)

	c.Invalidate()
	_, ok = c.Peek(0)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Generation())

	b, err := c.Get(0)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, models.Background, b.Overlay.At(1, 1), "unflushed edit is discarded")
}

func TestAfterGet_RunsOnHitAndMiss(t *testing.T) {
	var calls []int
	c := New(buildIndex(t, true), Options{AfterGet: func(i int) error {
		calls = append(calls, i)
		return nil
	}})

	_, err := c.Get(0)
	require.NoError(t, err)
	_, err = c.Get(0)
	require.NoError(t, err)
	_, err = c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1}, calls)

	boom := errors.New("boom")
	c = New(buildIndex(t, true), Options{AfterGet: func(int) error { return boom }})
	_, err = c.Get(0)
	assert.ErrorIs(t, err, boom)
}

func TestApplyMask_NaNFill(t *testing.T) {
	img := mat.NewDense(1, 3, []float64{1, 2, 3})
	ApplyMask(img, []uint8{0, 1, 0}, math.NaN())

	assert.Equal(t, 1.0, img.At(0, 0))
	assert.True(t, math.IsNaN(img.At(0, 1)))
	assert.Equal(t, 3.0, img.At(0, 2))
}
