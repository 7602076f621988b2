package luabind

import "errors"

var (
	// ErrModuleNotAvailable is raised by require for modules outside the whitelist.
	ErrModuleNotAvailable = errors.New("module is not available")

	// ErrInvalidDelay is raised by timer.after for a negative delay.
	ErrInvalidDelay = errors.New("timer delay must be non-negative")
)
