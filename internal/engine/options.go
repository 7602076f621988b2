package engine

import (
	"io"

	"github.com/rs/zerolog"
)

// Option configures an Engine during creation.
type Option func(*Engine)

// WithLogger sets the engine's logger. Components inherit it.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithContextName sets the execution context name shown by frontends.
func WithContextName(name string) Option {
	return func(e *Engine) {
		e.contextName = name
	}
}

// WithLibraries sets the Lua standard libraries opened in the state.
func WithLibraries(libs ...string) Option {
	return func(e *Engine) {
		e.libraries = libs
	}
}

// WithBreakOnStart stops on the first line of every script once a frontend
// has the Debugger domain enabled.
func WithBreakOnStart() Option {
	return func(e *Engine) {
		e.breakOnStart = true
	}
}

// WithOutput redirects the script's print output to w.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) {
		e.output = w
	}
}
