// Package labeler is the label-editing engine. It ties the dataset index,
// the sample cache, the per-sample generator states and the overlay edits
// together behind the operations a front end calls.
//
// An Engine is single-threaded: every call runs to completion before the
// next one is accepted, and it is not safe for concurrent use.
package labeler

import (
	"math"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"peaklabeler/internal/models"
	"peaklabeler/pkg/cache"
	"peaklabeler/pkg/config"
	"peaklabeler/pkg/dataset"
	"peaklabeler/pkg/geometry"
	"peaklabeler/pkg/layers"
	"peaklabeler/pkg/overlay"
	"peaklabeler/pkg/rng"
	"peaklabeler/pkg/session"
)

// Options tunes engine construction. The zero value is usable.
type Options struct {
	// Logger receives structured logs. Nil discards them.
	Logger *Logger

	// Opener opens containers. Nil means container.Open.
	Opener dataset.Opener

	// Now stamps new sessions. Nil means time.Now.
	Now func() time.Time
}

// Engine is the label-editing engine.
type Engine struct {
	log      *Logger
	username string

	index  *dataset.Index
	cache  *cache.Cache
	random *rng.Controller
	layers *layers.Model

	sessionID string
	timestamp string

	// working slot: the sample edits apply to and the cache generation it
	// was materialized under
	current int
	work    *models.Sample
	workGen uint64

	path  overlay.Path
	dirty *roaring.Bitmap

	closed bool
}

// New builds the dataset index from cfg, seeds the generators and creates
// the cache. On failure every container opened so far is closed again and
// a *ConfigurationError is returned.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	log := opts.Logger
	if log == nil {
		log = NoopLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{cause: err}
	}

	index, err := dataset.Build(cfg.Containers, opts.Opener)
	if err != nil {
		return nil, &ConfigurationError{cause: err}
	}

	e := &Engine{
		username:  cfg.Username,
		index:     index,
		random:    rng.New(cfg.Seed),
		layers:    cfg.LayerModel(),
		sessionID: session.NewID(),
		timestamp: session.Timestamp(now()),
		dirty:     roaring.New(),
	}
	e.log = log.WithSession(e.sessionID)
	e.cache = cache.New(index, cache.Options{
		FillValue: cfg.FillValue,
		AfterGet:  e.random.Touch,
	})

	e.log.LogOpen(len(index.Containers()), index.Len())
	return e, nil
}

// IndexCount returns the number of addressable samples.
func (e *Engine) IndexCount() int {
	return e.index.Len()
}

// Current returns the index edits apply to.
func (e *Engine) Current() int {
	return e.current
}

// SessionID returns the id of the running session.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Timestamp returns when the running session started.
func (e *Engine) Timestamp() string {
	return e.timestamp
}

// Resolve maps a sample index to its container and event.
func (e *Engine) Resolve(i int) (dataset.Ref, error) {
	if err := e.checkIndex(i); err != nil {
		return dataset.Ref{}, err
	}
	return e.index.Resolve(i)
}

// GetSample returns the (image, overlay) pair of index i. The pair is the
// cached copy; calling GetSample again without an intervening edit or flush
// returns identical data.
func (e *Engine) GetSample(i int) (*models.Sample, error) {
	if err := e.checkIndex(i); err != nil {
		return nil, err
	}
	s, err := e.cache.Get(i)
	if err != nil {
		return nil, translateError(err)
	}
	return s, nil
}

// Inspect loads index i with invalid pixels set to NaN. The result bypasses
// the cache and is never edited.
func (e *Engine) Inspect(i int) (*models.Sample, error) {
	ref, err := e.Resolve(i)
	if err != nil {
		return nil, err
	}
	img, plane, err := cache.Load(e.index.Container(ref.Container), ref.Event, math.NaN())
	if err != nil {
		return nil, translateError(err)
	}
	return &models.Sample{Index: i, Image: img, Overlay: plane}, nil
}

// Goto makes i the current sample and materializes it. Pending polygon
// vertices are dropped.
func (e *Engine) Goto(i int) (*models.Sample, error) {
	s, err := e.GetSample(i)
	if err != nil {
		return nil, err
	}
	if i != e.current {
		e.path.Reset()
	}
	e.current = i
	e.work = s
	e.workGen = e.cache.Generation()
	return s, nil
}

// Next moves to the following sample, wrapping to the first.
func (e *Engine) Next() (*models.Sample, error) {
	n := e.IndexCount()
	if n == 0 {
		return nil, &IndexOutOfRangeError{Index: e.current + 1, Len: 0}
	}
	return e.Goto((e.current + 1) % n)
}

// Prev moves to the preceding sample, wrapping to the last.
func (e *Engine) Prev() (*models.Sample, error) {
	n := e.IndexCount()
	if n == 0 {
		return nil, &IndexOutOfRangeError{Index: e.current - 1, Len: 0}
	}
	return e.Goto((e.current - 1 + n) % n)
}

// ensureCurrent returns the working sample, re-materializing it when the
// cache was invalidated after it was loaded. Edits must never land in an
// evicted copy.
func (e *Engine) ensureCurrent() (*models.Sample, error) {
	if e.work != nil && e.workGen == e.cache.Generation() {
		return e.work, nil
	}
	return e.Goto(e.current)
}

// TogglePoint flips pixel (x, y) of the current overlay between the active
// label and background. Coordinates are clamped.
func (e *Engine) TogglePoint(x, y int) error {
	s, err := e.ensureCurrent()
	if err != nil {
		return err
	}
	overlay.TogglePoint(s.Overlay, x, y, e.layers.Active)
	e.markDirty()
	return nil
}

// ToggleRange flips the inclusive rectangle spanned by (x0, y0) and
// (x1, y1): an all-background rectangle is painted with the active label,
// any other rectangle is cleared. It reports whether the rectangle was
// painted.
func (e *Engine) ToggleRange(x0, y0, x1, y1 int) (bool, error) {
	s, err := e.ensureCurrent()
	if err != nil {
		return false, err
	}
	painted := overlay.ToggleRange(s.Overlay, x0, y0, x1, y1, e.layers.Active)
	if s.Overlay.Rows > 0 && s.Overlay.Cols > 0 {
		e.markDirty()
	}
	return painted, nil
}

// AddVertex appends a vertex to the pending polygon.
func (e *Engine) AddVertex(x, y float64) {
	e.path.Add(geometry.Point{X: x, Y: y})
}

// UndoVertex drops the most recent pending vertex. It reports false when
// there was none.
func (e *Engine) UndoVertex() bool {
	return e.path.Undo()
}

// Vertices returns the pending polygon.
func (e *Engine) Vertices() []geometry.Point {
	return e.path.Vertices()
}

// CommitPolygon closes the pending polygon and paints or erases the pixels
// it covers on the current overlay. The pending vertices are cleared even
// when the polygon is degenerate. It returns the number of changed pixels.
func (e *Engine) CommitPolygon(mode overlay.Mode) (int, error) {
	s, err := e.ensureCurrent()
	if err != nil {
		e.path.Reset()
		return 0, err
	}
	changed := e.path.Commit(s.Overlay, mode, e.layers.Active)
	if changed > 0 {
		e.markDirty()
	}
	return changed, nil
}

// ActiveLabel returns the label new edits apply.
func (e *Engine) ActiveLabel() models.Label {
	return e.layers.Active
}

// SetActiveLabel changes the label new edits apply. Unknown ids are
// rejected with layers.ErrUnknownLabel.
func (e *Engine) SetActiveLabel(id models.Label) error {
	return e.layers.SetActive(id)
}

// Layers returns a copy of the label registry.
func (e *Engine) Layers() *layers.Model {
	return e.layers.Clone()
}

// Dirty returns the indices with unflushed edits in ascending order.
func (e *Engine) Dirty() []int {
	out := make([]int, 0, e.dirty.GetCardinality())
	it := e.dirty.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

// Random exposes the generators for stochastic steps applied to the
// current sample.
func (e *Engine) Random() *rng.Controller {
	return e.random
}

func (e *Engine) markDirty() {
	e.dirty.Add(uint32(e.current))
}

func (e *Engine) checkIndex(i int) error {
	if n := e.index.Len(); i < 0 || i >= n {
		return &IndexOutOfRangeError{Index: i, Len: n}
	}
	return nil
}
