package overlay

import (
	"slices"

	"peaklabeler/internal/models"
	"peaklabeler/pkg/geometry"
)

// Path accumulates polygon vertices one gesture at a time until Commit.
type Path struct {
	vertices []geometry.Point
}

// Add appends a vertex.
func (p *Path) Add(pt geometry.Point) {
	p.vertices = append(p.vertices, pt)
}

// Undo drops the most recent vertex. It reports false when there was none.
func (p *Path) Undo() bool {
	if len(p.vertices) == 0 {
		return false
	}
	p.vertices = p.vertices[:len(p.vertices)-1]
	return true
}

// Len returns the number of pending vertices.
func (p *Path) Len() int { return len(p.vertices) }

// Vertices returns a copy of the pending vertices.
func (p *Path) Vertices() []geometry.Point {
	return slices.Clone(p.vertices)
}

// Reset drops every pending vertex.
func (p *Path) Reset() { p.vertices = nil }

// Commit closes the pending polygon, rasterizes it over plane and applies
// mode with the active label. The pending vertices are always cleared; a
// degenerate polygon changes nothing. It returns the number of changed pixels.
func (p *Path) Commit(plane *models.LabelPlane, mode Mode, active models.Label) int {
	vertices := p.vertices
	p.vertices = nil

	m := geometry.Rasterize(vertices, plane.Rows, plane.Cols)
	if m.IsEmpty() {
		return 0
	}
	return Apply(plane, m, mode, active)
}
