// Package layers holds the label registry: which integer labels exist, how
// they are shown and which one new edits apply.
package layers

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"peaklabeler/internal/models"
)

var (
	// ErrUnknownLabel is returned when a label id is not in the registry.
	ErrUnknownLabel = errors.New("unknown label")
	// ErrInvalidModel is returned by Validate for a broken registry.
	ErrInvalidModel = errors.New("invalid layer model")
)

// Layer is the display metadata of one label.
type Layer struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

// Model is the label registry. Order is back-to-front paint precedence.
type Model struct {
	Layers map[models.Label]Layer `yaml:"layers"`
	Order  []models.Label         `yaml:"order"`
	Active models.Label           `yaml:"active"`
}

// Default returns the registry used for peak finding data.
func Default() *Model {
	return &Model{
		Layers: map[models.Label]Layer{
			0: {Name: "background", Color: "#FFFFFF"},
			1: {Name: "peak", Color: "#FF0000"},
			2: {Name: "do not pred", Color: "#0000FF"},
			3: {Name: "bad pixel", Color: "#00FF00"},
		},
		Order:  []models.Label{0, 1, 2, 3},
		Active: 1,
	}
}

// Validate checks that the background label exists, the active label is
// registered, every color parses and Order is a permutation of the ids.
func (m *Model) Validate() error {
	if _, ok := m.Layers[models.Background]; !ok {
		return fmt.Errorf("%w: background label %d missing", ErrInvalidModel, models.Background)
	}
	if _, ok := m.Layers[m.Active]; !ok {
		return fmt.Errorf("%w: active label %d not registered", ErrInvalidModel, m.Active)
	}
	for id, l := range m.Layers {
		if _, err := ParseHexColor(l.Color); err != nil {
			return fmt.Errorf("%w: label %d: %v", ErrInvalidModel, id, err)
		}
	}
	if len(m.Order) != len(m.Layers) {
		return fmt.Errorf("%w: order has %d ids, registry has %d", ErrInvalidModel, len(m.Order), len(m.Layers))
	}
	seen := make(map[models.Label]bool, len(m.Order))
	for _, id := range m.Order {
		if _, ok := m.Layers[id]; !ok || seen[id] {
			return fmt.Errorf("%w: order is not a permutation of the registry", ErrInvalidModel)
		}
		seen[id] = true
	}
	return nil
}

// SetActive makes id the label new edits apply.
func (m *Model) SetActive(id models.Label) error {
	if _, ok := m.Layers[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownLabel, id)
	}
	m.Active = id
	return nil
}

// Has reports whether id is registered.
func (m *Model) Has(id models.Label) bool {
	_, ok := m.Layers[id]
	return ok
}

// Clone returns a deep copy.
func (m *Model) Clone() *Model {
	out := &Model{
		Layers: make(map[models.Label]Layer, len(m.Layers)),
		Order:  slices.Clone(m.Order),
		Active: m.Active,
	}
	for id, l := range m.Layers {
		out.Layers[id] = l
	}
	return out
}

// RGB is an 8-bit color.
type RGB struct {
	R, G, B uint8
}

// ParseHexColor parses "#RRGGBB" (the leading '#' is optional).
func ParseHexColor(s string) (RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return RGB{}, fmt.Errorf("color %q is not #RRGGBB", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("color %q: %w", s, err)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}
