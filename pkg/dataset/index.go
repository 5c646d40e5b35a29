// Package dataset flattens many containers and their per-container events
// into one addressable sequence of samples.
package dataset

import (
	"errors"
	"fmt"
	"path/filepath"

	"peaklabeler/pkg/container"
)

var (
	// ErrOutOfRange is returned for a sample index outside [0, Len()).
	ErrOutOfRange = errors.New("sample index out of range")
	// ErrNoContainers is returned when Build receives no paths.
	ErrNoContainers = errors.New("no containers")
)

// Ref identifies where one sample lives.
type Ref struct {
	// Container is the ordinal of the container in deduplicated list order
	Container int

	// Path is the container's file path
	Path string

	// Event is the container-local event offset
	Event int
}

// Opener opens a container by path. container.Open satisfies it.
type Opener func(path string) (*container.Container, error)

// Index is the immutable flattened sample sequence.
type Index struct {
	refs       []Ref
	containers []*container.Container
}

// Build opens each distinct path once, in first-occurrence order, and
// appends one Ref per event. Paths are compared after filepath.Clean. If
// any container fails to open the ones already opened are closed again and
// no index is returned.
func Build(paths []string, open Opener) (*Index, error) {
	if len(paths) == 0 {
		return nil, ErrNoContainers
	}
	if open == nil {
		open = container.Open
	}

	idx := &Index{}
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		key := filepath.Clean(path)
		if seen[key] {
			continue
		}
		seen[key] = true

		c, err := open(path)
		if err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("opening container %s: %w", path, err)
		}

		id := len(idx.containers)
		idx.containers = append(idx.containers, c)
		for e := 0; e < c.EventCount(); e++ {
			idx.refs = append(idx.refs, Ref{Container: id, Path: path, Event: e})
		}
	}
	return idx, nil
}

// Len returns the number of samples.
func (x *Index) Len() int {
	return len(x.refs)
}

// Resolve maps a sample index to its container and event.
func (x *Index) Resolve(i int) (Ref, error) {
	if i < 0 || i >= len(x.refs) {
		return Ref{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, len(x.refs))
	}
	return x.refs[i], nil
}

// Container returns the open handle for a container ordinal.
func (x *Index) Container(id int) *container.Container {
	return x.containers[id]
}

// Containers returns the handles in deduplicated list order.
func (x *Index) Containers() []*container.Container {
	return x.containers
}

// Close closes every container still open. Closing twice is a no-op.
// The first close error is returned after all containers were attempted.
func (x *Index) Close() error {
	var first error
	for _, c := range x.containers {
		if !c.IsOpen() {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
