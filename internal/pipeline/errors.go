package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStyle is returned for style names outside the enumeration.
	ErrUnknownStyle = errors.New("unknown style")
	// ErrUnknownBackend is returned when no backend is registered under a name.
	ErrUnknownBackend = errors.New("unknown backend")
)

// StageError wraps a failure, or a recovered panic, inside one pipeline stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ParamError reports a transform parameter outside its allowed range.
type ParamError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}
