// Package overlay implements the label-editing gestures on a segmentation
// plane: point toggles, rectangular range toggles and polygon paint/erase.
//
// Coordinates outside the plane are clamped, never rejected.
package overlay

import (
	"peaklabeler/internal/models"
	"peaklabeler/pkg/geometry"
)

// Mode selects what a committed polygon does to its pixels.
type Mode int

const (
	// ModePaint sets member pixels to the active label.
	ModePaint Mode = iota
	// ModeErase sets member pixels to background.
	ModeErase
)

func (m Mode) String() string {
	switch m {
	case ModePaint:
		return "paint"
	case ModeErase:
		return "erase"
	default:
		return "unknown"
	}
}

// TogglePoint flips pixel (x, y) between active and background.
func TogglePoint(p *models.LabelPlane, x, y int, active models.Label) {
	if p.Rows == 0 || p.Cols == 0 {
		return
	}
	x, y = p.Clamp(x, y)
	if p.At(x, y) == active {
		p.Set(x, y, models.Background)
		return
	}
	p.Set(x, y, active)
}

// ToggleRange flips the inclusive rectangle spanned by (x0, y0) and (x1, y1)
// as a whole: an all-background rectangle becomes active, anything else is
// cleared to background. It reports whether the rectangle was painted.
func ToggleRange(p *models.LabelPlane, x0, y0, x1, y1 int, active models.Label) bool {
	if p.Rows == 0 || p.Cols == 0 {
		return false
	}
	x0, y0 = p.Clamp(x0, y0)
	x1, y1 = p.Clamp(x1, y1)
	xb, xe := min(x0, x1), max(x0, x1)
	yb, ye := min(y0, y1), max(y0, y1)

	empty := true
	for x := xb; x <= xe && empty; x++ {
		for y := yb; y <= ye; y++ {
			if p.At(x, y) != models.Background {
				empty = false
				break
			}
		}
	}

	fill := models.Background
	if empty {
		fill = active
	}
	for x := xb; x <= xe; x++ {
		for y := yb; y <= ye; y++ {
			p.Set(x, y, fill)
		}
	}
	return empty
}

// Apply writes the polygon membership m into p and returns how many pixels
// changed. Pixels outside m are never touched.
func Apply(p *models.LabelPlane, m *geometry.Membership, mode Mode, active models.Label) int {
	value := active
	if mode == ModeErase {
		value = models.Background
	}

	changed := 0
	m.Each(func(x, y int) {
		if p.At(x, y) != value {
			p.Set(x, y, value)
			changed++
		}
	})
	return changed
}
