package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is the only stage-independent failure of Run.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrCancelled            = errors.New("cancelled")
	// ErrSkippedByUser marks an upload slot cancelled on its own; the item
	// counts as a failed upload, not a cancelled one.
	ErrSkippedByUser    = errors.New("skipped by user")
	ErrTransientNetwork = errors.New("transient network failure")
	ErrRunInProgress    = errors.New("batch already running")
)

// StageError is a failure recorded on an item's outcome.
type StageError struct {
	Stage Stage
	Item  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Item, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// isCancellation reports whether err means the item was abandoned rather than failed.
func isCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) && !errors.Is(err, ErrSkippedByUser)
}
