package inspector

import (
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// ContextGroupID is the inspector core context group covered by a session.
// The engine exposes a single execution context, so the value is fixed.
const ContextGroupID = 1

// MessageSink receives outbound protocol messages on behalf of a frontend.
type MessageSink interface {
	// Send delivers one protocol message to the frontend.
	Send(message string)
}

// PollingSink is a MessageSink that can also report, while execution is
// paused, whether the frontend still has inbound traffic to deliver.
type PollingSink interface {
	MessageSink

	// HasPendingInboundMessage reports whether the pause loop should keep
	// servicing the frontend. It must not block indefinitely.
	HasPendingInboundMessage() bool
}

// ChannelCallbacks is implemented by the inspector side of a core connection.
// The core calls it for every protocol message it emits.
type ChannelCallbacks interface {
	SendResponse(callID int, message string)
	SendNotification(message string)
	FlushNotifications()
}

// Connection is a live connection into the inspector core.
type Connection interface {
	// Dispatch delivers an inbound protocol message to the core.
	Dispatch(message string)

	// Close releases the connection. The core must not use the
	// connection's callbacks afterwards.
	Close()
}

// Core is the engine's inspector core.
type Core interface {
	// Connect opens a connection for the given context group.
	Connect(contextGroupID int, callbacks ChannelCallbacks, state string) Connection

	// ExceptionThrown reports an uncaught exception to connected frontends.
	// The core drops the report when no connection wants it.
	ExceptionThrown(report ExceptionReport)
}

// Client is the callback surface the core uses to suspend execution.
// Inspector implements it.
type Client interface {
	RunMessageLoopOnPause(contextGroupID int)
	QuitMessageLoopOnPause()
}

// Scheduler is the host's cooperative task scheduler.
type Scheduler interface {
	// DrainReadyTasks runs every task that is runnable now and returns
	// the number of tasks run. It never blocks waiting for new work.
	DrainReadyTasks() int
}

// CoreFactory builds the inspector core for a client.
type CoreFactory func(client Client) Core

// Inspector owns the single debugging session of an engine context.
type Inspector struct {
	core    Core
	sched   Scheduler
	logger  zerolog.Logger
	channel *channel
	pause   pauseState
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithLogger sets the logger used for session lifecycle events.
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Inspector) {
		i.logger = logger
	}
}

// New creates an inspector whose core is built by newCore. The scheduler is
// drained while execution is paused.
func New(newCore CoreFactory, sched Scheduler, opts ...Option) *Inspector {
	i := &Inspector{
		sched:  sched,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.core = newCore(i)
	return i
}

// IsAttached reports whether a frontend session is attached.
func (i *Inspector) IsAttached() bool {
	return i.channel != nil
}

// Connect attaches a frontend. The sink receives every message the core
// emits until Disconnect is called.
func (i *Inspector) Connect(sink MessageSink) error {
	if isNilSink(sink) {
		return fmt.Errorf("connect: %w", ErrInvalidArgument)
	}
	if i.channel != nil {
		return fmt.Errorf("connect: %w", ErrAlreadyAttached)
	}

	i.channel = newChannel(i.core, sink)

	i.logger.Info().
		Bool("pollable", i.channel.poller != nil).
		Msg("frontend attached")
	return nil
}

// isNilSink also catches a nil pointer or func stored in the interface.
func isNilSink(sink MessageSink) bool {
	if sink == nil {
		return true
	}
	v := reflect.ValueOf(sink)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Chan, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// Dispatch delivers one inbound protocol message to the core. Messages are
// processed in the order Dispatch is called.
func (i *Inspector) Dispatch(message string) error {
	if i.channel == nil {
		return fmt.Errorf("dispatch: %w", ErrNotAttached)
	}
	if !utf8.ValidString(message) {
		return fmt.Errorf("dispatch: %w", ErrInvalidMessage)
	}

	i.logger.Debug().Int("bytes", len(message)).Msg("inbound message")
	i.channel.dispatch(message)
	return nil
}

// Disconnect detaches the frontend. Any active pause is told to terminate
// before the connection is released.
func (i *Inspector) Disconnect() error {
	if i.channel == nil {
		return fmt.Errorf("disconnect: %w", ErrNotAttached)
	}

	i.QuitMessageLoopOnPause()
	ch := i.channel
	i.channel = nil
	ch.destroy()

	i.logger.Info().Bool("paused", i.pause.active).Msg("frontend detached")
	return nil
}
