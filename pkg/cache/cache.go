// Package cache materializes (image, overlay) samples on demand and keeps
// them until the next wholesale invalidation.
package cache

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"peaklabeler/internal/models"
	"peaklabeler/pkg/container"
	"peaklabeler/pkg/dataset"
)

// Options configures a Cache.
type Options struct {
	// FillValue replaces every pixel the bad-pixel mask marks invalid
	FillValue float64

	// AfterGet runs after every Get, hit or miss, once the sample has been
	// materialized. An error from it fails the Get.
	AfterGet func(i int) error
}

// Cache maps sample indices to their materialized samples. Returned samples
// are shared: edits to their overlay are visible to later Gets until the
// cache is invalidated.
type Cache struct {
	index      *dataset.Index
	opts       Options
	entries    map[int]*models.Sample
	generation uint64
}

// New creates an empty cache over index.
func New(index *dataset.Index, opts Options) *Cache {
	return &Cache{
		index:   index,
		opts:    opts,
		entries: make(map[int]*models.Sample),
	}
}

// Get returns the sample for index i, loading it on a miss.
func (c *Cache) Get(i int) (*models.Sample, error) {
	s, ok := c.entries[i]
	if !ok {
		ref, err := c.index.Resolve(i)
		if err != nil {
			return nil, err
		}
		img, overlay, err := Load(c.index.Container(ref.Container), ref.Event, c.opts.FillValue)
		if err != nil {
			return nil, fmt.Errorf("loading sample %d (%s event %d): %w", i, ref.Path, ref.Event, err)
		}
		s = &models.Sample{Index: i, Image: img, Overlay: overlay}
		c.entries[i] = s
	}

	if c.opts.AfterGet != nil {
		if err := c.opts.AfterGet(i); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Peek returns the cached sample for i without loading it or running
// AfterGet.
func (c *Cache) Peek(i int) (*models.Sample, bool) {
	s, ok := c.entries[i]
	return s, ok
}

// Len returns the number of cached samples.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Generation counts invalidations. A sample obtained under an older
// generation is no longer the cached copy.
func (c *Cache) Generation() uint64 {
	return c.generation
}

// Invalidate drops every cached sample.
func (c *Cache) Invalidate() {
	c.entries = make(map[int]*models.Sample)
	c.generation++
}

// Load reads the frame, bad-pixel mask and segmentation of one event and
// returns the masked frame and the segmentation plane. A shared 2-D mask
// applies to every event.
func Load(c *container.Container, event int, fill float64) (*mat.Dense, *models.LabelPlane, error) {
	img, err := c.ReadImage(event)
	if err != nil {
		return nil, nil, err
	}
	mask, err := c.ReadMask(event)
	if err != nil {
		return nil, nil, err
	}
	ApplyMask(img, mask, fill)

	overlay, err := c.ReadSegmentation(event)
	if err != nil {
		return nil, nil, err
	}
	return img, overlay, nil
}

// ApplyMask replaces the pixels of img that mask marks bad with fill. The
// stored mask is inverted into a validity mask first (1 - mask), so only
// pixels with validity zero are filled.
func ApplyMask(img *mat.Dense, mask []uint8, fill float64) {
	_, cols := img.Dims()
	img.Apply(func(x, y int, v float64) float64 {
		valid := 1 - int(mask[x*cols+y])
		if valid == 0 {
			return fill
		}
		return v
	}, img)
}
