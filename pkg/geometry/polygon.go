// Package geometry turns free-form gestures into pixel sets.
package geometry

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// Point is a gesture position in plane coordinates. X runs along rows and Y
// along columns; pixel (i, j) covers [i, i+1) x [j, j+1).
type Point struct {
	X, Y float64
}

// PointInPolygon tests if a point is inside a polygon using ray casting.
func PointInPolygon(p Point, polygon []Point) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := polygon[i], polygon[j]

		// Check if ray from p going right intersects edge pi-pj
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}

	return inside
}

// ClosePath drops repeated consecutive vertices and appends the first vertex
// to the end. It returns nil when fewer than 3 distinct vertices remain.
func ClosePath(vertices []Point) []Point {
	path := make([]Point, 0, len(vertices)+1)
	distinct := make(map[Point]struct{}, len(vertices))
	for _, v := range vertices {
		distinct[v] = struct{}{}
		if len(path) > 0 && path[len(path)-1] == v {
			continue
		}
		path = append(path, v)
	}
	if len(distinct) < 3 {
		return nil
	}
	if path[len(path)-1] != path[0] {
		path = append(path, path[0])
	}
	return path
}

// Rasterize returns the pixels of a rows x cols plane selected by the closed
// polygon. Every grid cell of the polygon's bounding box whose center falls
// inside is sampled, including cells beyond the plane; each sampled center
// is shifted back by half a pixel, rounded to its cell and clamped into the
// plane, so a polygon hanging over an edge selects border pixels. The scan
// is limited to the plane plus one plane size on every side. Degenerate
// polygons yield an empty membership.
func Rasterize(vertices []Point, rows, cols int) *Membership {
	m := NewMembership(rows, cols)
	path := ClosePath(vertices)
	if path == nil || rows <= 0 || cols <= 0 {
		return m
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range path {
		minX, maxX = math.Min(minX, v.X), math.Max(maxX, v.X)
		minY, maxY = math.Min(minY, v.Y), math.Max(maxY, v.Y)
	}

	iLo, iHi := scanRange(minX, maxX, rows)
	jLo, jHi := scanRange(minY, maxY, cols)
	for i := iLo; i < iHi; i++ {
		for j := jLo; j < jHi; j++ {
			center := Point{X: float64(i) + 0.5, Y: float64(j) + 0.5}
			if !PointInPolygon(center, path) {
				continue
			}
			m.Add(clampIndex(math.Round(center.X-0.5), rows), clampIndex(math.Round(center.Y-0.5), cols))
		}
	}
	return m
}

// scanRange returns the half-open cell range [lo, hi) covering [min, max]
// on an axis of the given size, limited to [-size, 2*size).
func scanRange(min, max float64, size int) (lo, hi int) {
	limLo, limHi := float64(-size), float64(2*size)
	lo = int(math.Max(math.Floor(min), limLo))
	hi = int(math.Min(math.Ceil(max), limHi))
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func clampIndex(v float64, size int) int {
	if v < 0 {
		return 0
	}
	if v > float64(size-1) {
		return size - 1
	}
	return int(v)
}

// Membership is a set of pixels of a rows x cols plane, stored as a roaring
// bitmap of row-major cell ids.
type Membership struct {
	rows, cols int
	bits       *roaring.Bitmap
}

// NewMembership creates an empty set for a rows x cols plane.
func NewMembership(rows, cols int) *Membership {
	return &Membership{rows: rows, cols: cols, bits: roaring.New()}
}

// Add inserts pixel (x, y).
func (m *Membership) Add(x, y int) {
	m.bits.Add(uint32(x*m.cols + y))
}

// Contains reports whether pixel (x, y) is a member.
func (m *Membership) Contains(x, y int) bool {
	if x < 0 || y < 0 || x >= m.rows || y >= m.cols {
		return false
	}
	return m.bits.Contains(uint32(x*m.cols + y))
}

// Cardinality returns the number of member pixels.
func (m *Membership) Cardinality() int {
	return int(m.bits.GetCardinality())
}

// IsEmpty reports whether no pixel is a member.
func (m *Membership) IsEmpty() bool {
	return m.bits.IsEmpty()
}

// Each calls fn for every member pixel in row-major order.
func (m *Membership) Each(fn func(x, y int)) {
	it := m.bits.Iterator()
	for it.HasNext() {
		id := int(it.Next())
		fn(id/m.cols, id%m.cols)
	}
}
