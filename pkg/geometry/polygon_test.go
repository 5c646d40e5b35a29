package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func square(x0, y0, x1, y1 float64) []Point {
	return []Point{{x0, y0}, {x0, y1}, {x1, y1}, {x1, y0}}
}

func TestPointInPolygon(t *testing.T) {
	poly := square(0, 0, 4, 4)
	assert.True(t, PointInPolygon(Point{2, 2}, poly))
	assert.False(t, PointInPolygon(Point{5, 2}, poly))
	assert.False(t, PointInPolygon(Point{2, 2}, poly[:2]))
}

func TestClosePath(t *testing.T) {
	tests := []struct {
		name     string
		vertices []Point
		wantLen  int
	}{
		{"empty", nil, 0},
		{"two points", []Point{{0, 0}, {1, 1}}, 0},
		{"repeated vertex", []Point{{0, 0}, {1, 1}, {1, 1}, {0, 0}}, 0},
		{"triangle", []Point{{0, 0}, {0, 2}, {2, 0}}, 4},
		{"already closed", []Point{{0, 0}, {0, 2}, {2, 0}, {0, 0}}, 4},
		{"consecutive duplicates", []Point{{0, 0}, {0, 2}, {0, 2}, {2, 0}}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClosePath(tt.vertices)
			assert.Len(t, got, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, got[0], got[len(got)-1])
			}
		})
	}
}

func TestRasterize_Square(t *testing.T) {
	m := Rasterize(square(1, 2, 4, 5), 8, 8)

	assert.Equal(t, 9, m.Cardinality())
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			want := x >= 1 && x <= 3 && y >= 2 && y <= 4
			assert.Equal(t, want, m.Contains(x, y), "pixel (%d, %d)", x, y)
		}
	}
}

func TestRasterize_Triangle(t *testing.T) {
	m := Rasterize([]Point{{0, 0}, {0, 4.2}, {4.2, 0}}, 6, 6)

	// Centers below the hypotenuse x + y = 4.2.
	assert.True(t, m.Contains(0, 0))
	assert.True(t, m.Contains(1, 2))
	assert.True(t, m.Contains(0, 3))
	assert.False(t, m.Contains(2, 2))
	assert.False(t, m.Contains(3, 3))
	assert.Equal(t, 10, m.Cardinality())
}

func TestRasterize_ClampsToPlane(t *testing.T) {
	m := Rasterize(square(-3, -3, 2, 2), 4, 4)

	assert.Equal(t, 4, m.Cardinality())
	assert.True(t, m.Contains(0, 0))
	assert.True(t, m.Contains(1, 1))
	assert.False(t, m.Contains(2, 2))
}

func TestRasterize_OverhangSelectsBorder(t *testing.T) {
	// No in-plane pixel center is inside, yet the cells above row 0 map
	// onto it.
	m := Rasterize(square(-3, -3, 0.4, 2), 4, 5)

	assert.Equal(t, 2, m.Cardinality())
	assert.True(t, m.Contains(0, 0))
	assert.True(t, m.Contains(0, 1))
	assert.False(t, m.Contains(0, 2))
	assert.False(t, m.Contains(1, 0))
}

func TestRasterize_OutsidePlane(t *testing.T) {
	// Beyond the bottom-right corner, within one plane size.
	m := Rasterize(square(5, 6, 7, 8), 4, 4)
	assert.Equal(t, 1, m.Cardinality())
	assert.True(t, m.Contains(3, 3))

	// Past the bottom edge, spanning columns 1 and 2.
	m = Rasterize(square(4.2, 1, 6, 3), 4, 4)
	assert.Equal(t, 2, m.Cardinality())
	assert.True(t, m.Contains(3, 1))
	assert.True(t, m.Contains(3, 2))

	// Further than one plane size away the scan never reaches it.
	assert.True(t, Rasterize(square(10, 10, 12, 12), 4, 4).IsEmpty())
}

func TestRasterize_HugeCoordinatesStayBounded(t *testing.T) {
	m := Rasterize(square(-1e9, -1e9, 1e9, 1e9), 3, 3)
	assert.Equal(t, 9, m.Cardinality())
}

func TestRasterize_Degenerate(t *testing.T) {
	assert.True(t, Rasterize([]Point{{0, 0}, {3, 3}}, 4, 4).IsEmpty())
	assert.True(t, Rasterize([]Point{{0, 0}, {3, 3}, {0, 0}}, 4, 4).IsEmpty())
	assert.True(t, Rasterize([]Point{{0, 0}, {1, 1}, {2, 2}}, 4, 4).IsEmpty(), "collinear")
}

func TestMembershipEach(t *testing.T) {
	m := NewMembership(2, 3)
	m.Add(1, 2)
	m.Add(0, 1)
	m.Add(0, 1)

	assert.Equal(t, 2, m.Cardinality())
	assert.True(t, m.Contains(1, 2))
	assert.False(t, m.Contains(1, 1))

	var visited [][2]int
	m.Each(func(x, y int) { visited = append(visited, [2]int{x, y}) })
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, visited)
	assert.False(t, m.Contains(-1, 0))
}
