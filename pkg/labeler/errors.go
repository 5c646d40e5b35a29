package labeler

import (
	"errors"
	"fmt"

	"peaklabeler/pkg/config"
	"peaklabeler/pkg/container"
	"peaklabeler/pkg/dataset"
	"peaklabeler/pkg/session"
)

var (
	// ErrConfiguration marks a failure to construct the engine: a malformed
	// manifest, an unreadable container or a container missing a dataset.
	ErrConfiguration = errors.New("configuration error")
	// ErrIndexOutOfRange marks a sample index outside [0, IndexCount()).
	ErrIndexOutOfRange = errors.New("sample index out of range")
	// ErrPersistence marks a failed flush or session save/load.
	ErrPersistence = errors.New("persistence error")
)

// ConfigurationError is returned by New. No engine is returned with it.
//
// The original underlying error can be accessed via errors.Unwrap.
type ConfigurationError struct {
	Path  string
	cause error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration error: %v", e.cause)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Path, e.cause)
}

func (e *ConfigurationError) Unwrap() error { return e.cause }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// IndexOutOfRangeError rejects a sample index. Engine state is unaffected.
type IndexOutOfRangeError struct {
	Index int
	Len   int
	cause error
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("sample index %d out of range [0, %d)", e.Index, e.Len)
}

func (e *IndexOutOfRangeError) Unwrap() error { return e.cause }

func (e *IndexOutOfRangeError) Is(target error) bool { return target == ErrIndexOutOfRange }

// PersistenceError reports a failed write-back or session operation. It is
// recoverable: nothing in memory was changed and the call may be retried.
//
// The original underlying error can be accessed via errors.Unwrap.
type PersistenceError struct {
	Op    string
	Path  string
	cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.cause)
}

func (e *PersistenceError) Unwrap() error { return e.cause }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// translateError maps errors from the lower packages into the engine's
// taxonomy. Errors that already belong to it pass through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrIndexOutOfRange) || errors.Is(err, ErrPersistence) {
		return err
	}

	if errors.Is(err, dataset.ErrOutOfRange) || errors.Is(err, container.ErrEventOutOfRange) {
		return fmt.Errorf("%w: %w", ErrIndexOutOfRange, err)
	}

	// Construction and layout problems.
	if errors.Is(err, config.ErrInvalid) ||
		errors.Is(err, dataset.ErrNoContainers) ||
		errors.Is(err, container.ErrMissingDataset) ||
		errors.Is(err, container.ErrInvalidMagic) ||
		errors.Is(err, container.ErrInvalidVersion) ||
		errors.Is(err, container.ErrShapeMismatch) {
		return &ConfigurationError{cause: err}
	}

	// Storage that went away under us.
	if errors.Is(err, container.ErrClosed) || errors.Is(err, container.ErrCorruptChunk) || errors.Is(err, session.ErrMalformed) {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return err
}
