package session

import "errors"

var (
	// ErrNoSource is returned when an action or render needs an uploaded image.
	ErrNoSource = errors.New("no source image")
	// ErrNoRender is returned when the trace step is requested before any render succeeded.
	ErrNoRender = errors.New("no processed image")
	// ErrNotFound is returned for unknown or expired session IDs.
	ErrNotFound = errors.New("session not found")
)
