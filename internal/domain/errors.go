package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionRunning = errors.New("a trial is already running")
	ErrNoReport       = errors.New("no report has been generated")
	ErrUnknownFormat  = errors.New("unknown export format")
)

// ValidationError reports invalid input to Start. No state is changed
// when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IOError reports a failed report export. The report stays in memory so
// the caller can retry with another path.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying filesystem error
func (e *IOError) Unwrap() error {
	return e.Err
}
