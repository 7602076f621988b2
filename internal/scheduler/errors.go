package scheduler

import "errors"

// Sentinel errors for the scheduler package.
var (
	// ErrClosed is returned when tasks are posted to a closed loop.
	ErrClosed = errors.New("scheduler loop is closed")

	// ErrNilTask is returned when a nil task is posted.
	ErrNilTask = errors.New("task is nil")
)
