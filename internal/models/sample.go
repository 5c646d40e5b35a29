// Package models holds the in-memory shapes shared by the loader, the editor
// and the persistence layer.
package models

import (
	"gonum.org/v1/gonum/mat"
)

// Label is an integer segmentation value. Zero is the background label.
type Label int32

// Background is the label every cleared pixel receives.
const Background Label = 0

// LabelPlane is the mutable (1, H, W) segmentation overlay of one sample.
// The leading channel axis is implicit. x indexes rows and y indexes columns,
// matching how the detector frames are addressed.
type LabelPlane struct {
	// Rows is the extent of the x axis
	Rows int

	// Cols is the extent of the y axis
	Cols int

	// Data holds the labels in row-major order
	Data []Label
}

// NewLabelPlane allocates an all-background plane.
func NewLabelPlane(rows, cols int) *LabelPlane {
	return &LabelPlane{
		Rows: rows,
		Cols: cols,
		Data: make([]Label, rows*cols),
	}
}

// At returns the label at (x, y). The coordinates must be in bounds.
func (p *LabelPlane) At(x, y int) Label {
	return p.Data[x*p.Cols+y]
}

// Set stores v at (x, y). The coordinates must be in bounds.
func (p *LabelPlane) Set(x, y int, v Label) {
	p.Data[x*p.Cols+y] = v
}

// Clamp pulls (x, y) into [0, Rows-1] x [0, Cols-1].
func (p *LabelPlane) Clamp(x, y int) (int, int) {
	return clamp(x, p.Rows-1), clamp(y, p.Cols-1)
}

// Clone returns a deep copy of the plane.
func (p *LabelPlane) Clone() *LabelPlane {
	out := &LabelPlane{Rows: p.Rows, Cols: p.Cols, Data: make([]Label, len(p.Data))}
	copy(out.Data, p.Data)
	return out
}

// Equal reports whether both planes have the same shape and contents.
func (p *LabelPlane) Equal(o *LabelPlane) bool {
	if o == nil || p.Rows != o.Rows || p.Cols != o.Cols {
		return false
	}
	for i, v := range p.Data {
		if o.Data[i] != v {
			return false
		}
	}
	return true
}

// Count returns how many pixels carry label v.
func (p *LabelPlane) Count(v Label) int {
	n := 0
	for _, l := range p.Data {
		if l == v {
			n++
		}
	}
	return n
}

// Sample is one materialized (image, overlay) pair.
type Sample struct {
	// Index is the flattened sample id this pair was loaded for
	Index int

	// Image is the validity-masked frame, rows x cols
	Image *mat.Dense

	// Overlay is the editable segmentation plane
	Overlay *LabelPlane
}

// Shape returns the (channels, height, width) of the sample. Channels is always 1.
func (s *Sample) Shape() (int, int, int) {
	return 1, s.Overlay.Rows, s.Overlay.Cols
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
