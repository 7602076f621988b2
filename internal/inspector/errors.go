package inspector

import "errors"

// Sentinel errors for the inspector package.
var (
	// ErrAlreadyAttached is returned when Connect is called while a frontend is attached.
	ErrAlreadyAttached = errors.New("inspector listener already setup")

	// ErrNotAttached is returned when Dispatch or Disconnect is called without an attached frontend.
	ErrNotAttached = errors.New("inspector is not connected")

	// ErrInvalidArgument is returned when Connect is given a nil sink.
	ErrInvalidArgument = errors.New("message callback must be specified")

	// ErrInvalidMessage is returned when a dispatched message is not well-formed text.
	ErrInvalidMessage = errors.New("inspector message must be a string")
)
