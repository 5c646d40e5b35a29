package labeler

import (
	"errors"
	"path/filepath"

	"peaklabeler/internal/models"
	"peaklabeler/pkg/session"
)

// Flush writes the overlay of index i to its container's segmentation
// dataset, syncs the container and invalidates the cache. If the write or
// sync fails a *PersistenceError is returned and nothing in memory changes.
//
// Invalidation is wholesale: unflushed edits on other indices are dropped,
// and a warning names them.
func (e *Engine) Flush(i int) error {
	ref, err := e.Resolve(i)
	if err != nil {
		return err
	}
	c := e.index.Container(ref.Container)

	var plane *models.LabelPlane
	if s, ok := e.cache.Peek(i); ok {
		plane = s.Overlay
	} else {
		// Nothing edited in memory: rewrite what is stored.
		plane, err = c.ReadSegmentation(ref.Event)
		if err != nil {
			e.log.LogFlush(i, ref.Path, ref.Event, err)
			return &PersistenceError{Op: "flush", Path: ref.Path, cause: err}
		}
	}

	if err := c.WriteSegmentation(ref.Event, plane); err != nil {
		e.log.LogFlush(i, ref.Path, ref.Event, err)
		return &PersistenceError{Op: "flush", Path: ref.Path, cause: err}
	}
	if err := c.Sync(); err != nil {
		e.log.LogFlush(i, ref.Path, ref.Event, err)
		return &PersistenceError{Op: "flush", Path: ref.Path, cause: err}
	}
	e.log.LogFlush(i, ref.Path, ref.Event, nil)

	e.dirty.Remove(uint32(i))
	discarded := e.dirty.ToArray()
	e.dirty.Clear()

	e.cache.Invalidate()
	e.work = nil
	e.log.LogInvalidate(e.cache.Generation(), discarded)
	return nil
}

// FlushCurrent flushes the current sample.
func (e *Engine) FlushCurrent() error {
	return e.Flush(e.current)
}

// Snapshot captures the session state: label registry, generator states,
// current index and session timestamp.
func (e *Engine) Snapshot() (*session.Snapshot, error) {
	random, err := e.random.Snapshot()
	if err != nil {
		return nil, err
	}
	return &session.Snapshot{
		SessionID: e.sessionID,
		Username:  e.username,
		Timestamp: e.timestamp,
		Index:     e.current,
		Layers:    e.layers.Clone(),
		Random:    random,
	}, nil
}

// SaveSession writes the session snapshot to path. An empty path saves to
// the session's default file name in the working directory. It returns the
// path written. No dataset is touched.
func (e *Engine) SaveSession(path string) (string, error) {
	if path == "" {
		path = session.DefaultFileName(e.timestamp)
	}
	snap, err := e.Snapshot()
	if err == nil {
		err = session.Save(path, snap)
	}
	e.log.LogSession("save", path, err)
	if err != nil {
		return "", &PersistenceError{Op: "save session", Path: path, cause: err}
	}
	return path, nil
}

// LoadSession replaces the label registry, generator states, current index
// and session identity with the snapshot at path. On any failure a
// *PersistenceError is returned and the engine is unchanged.
func (e *Engine) LoadSession(path string) error {
	err := e.loadSession(path)
	e.log.LogSession("load", path, err)
	if err != nil {
		return &PersistenceError{Op: "load session", Path: path, cause: err}
	}
	return nil
}

func (e *Engine) loadSession(path string) error {
	snap, err := session.Load(path)
	if err != nil {
		return err
	}
	if snap.Index >= e.index.Len() {
		return &IndexOutOfRangeError{Index: snap.Index, Len: e.index.Len()}
	}

	// RestoreSnapshot validates every state before it mutates anything, so
	// it is the only step that can fail and it runs first.
	if err := e.random.RestoreSnapshot(snap.Random); err != nil {
		return errors.Join(session.ErrMalformed, err)
	}

	e.layers = snap.Layers
	if e.current != snap.Index {
		e.path.Reset()
	}
	e.current = snap.Index
	e.work = nil
	if snap.SessionID != "" {
		e.sessionID = snap.SessionID
	}
	e.timestamp = snap.Timestamp
	return nil
}

// Close closes every container that is still open. Closing twice is a
// no-op.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for _, c := range e.index.Containers() {
		if !c.IsOpen() {
			continue
		}
		err := c.Close()
		e.log.LogClose(filepath.Clean(c.Path()), err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	e.cache.Invalidate()
	e.work = nil
	return errors.Join(errs...)
}
