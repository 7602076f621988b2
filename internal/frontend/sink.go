package frontend

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/dshills/luaspect/internal/inspector"
	"github.com/dshills/luaspect/internal/scheduler"
)

// DefaultPollInterval bounds how long a paused engine waits for frontend
// traffic before checking for termination again.
const DefaultPollInterval = 50 * time.Millisecond

// Session is the inspector session a frontend attaches to. *inspector.Inspector
// satisfies it. Its methods are only called from the engine goroutine.
type Session interface {
	Connect(sink inspector.MessageSink) error
	Dispatch(message string) error
	Disconnect() error
}

// Poster schedules work on the engine goroutine. *scheduler.Loop satisfies it.
type Poster interface {
	Post(task scheduler.Task) error
}

// CallbackSink delivers outbound messages to a function. It is push-only, so
// a paused engine does not wait on it.
type CallbackSink func(message string)

// Send implements inspector.MessageSink.
func (f CallbackSink) Send(message string) {
	f(message)
}

// Option configures remote sinks and the server.
type Option func(*options)

type options struct {
	logger       zerolog.Logger
	pollInterval time.Duration
}

func defaultOptions() options {
	return options{
		logger:       zerolog.Nop(),
		pollInterval: DefaultPollInterval,
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPollInterval sets the bounded wait used by HasPendingInboundMessage.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// remote is the engine-facing half shared by stream and WebSocket sinks.
type remote struct {
	opts    options
	session Session
	poster  Poster

	inbound   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// connected is only touched on the engine goroutine.
	connected bool
}

func newRemote(opts []Option) remote {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return remote{
		opts:    o,
		inbound: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// attach posts the connect task for sink. Messages delivered afterwards are
// dispatched in order behind it.
func (r *remote) attach(session Session, poster Poster, sink inspector.MessageSink, onFail func()) error {
	r.session = session
	r.poster = poster
	return poster.Post(func() {
		if err := session.Connect(sink); err != nil {
			r.opts.logger.Warn().Err(err).Msg("frontend rejected")
			onFail()
			return
		}
		r.connected = true
		r.opts.logger.Info().Msg("frontend attached")
	})
}

// deliver posts one inbound message to the engine.
func (r *remote) deliver(message string) error {
	if e := r.opts.logger.Debug(); e.Enabled() {
		head := gjson.GetMany(message, "id", "method")
		e.Int64("id", head[0].Int()).Str("method", head[1].String()).Msg("inbound message")
	}

	err := r.poster.Post(func() {
		if !r.connected {
			return
		}
		if err := r.session.Dispatch(message); err != nil {
			r.opts.logger.Debug().Err(err).Msg("inbound message dropped")
		}
	})
	select {
	case r.inbound <- struct{}{}:
	default:
	}
	return err
}

// detach posts the disconnect task and then marks the frontend gone. Done
// closes only once the disconnect is queued, so a frontend attaching after
// Done is always connected behind it.
func (r *remote) detach() {
	r.closeOnce.Do(func() {
		defer close(r.done)
		if r.poster == nil {
			return
		}
		_ = r.poster.Post(func() {
			if !r.connected {
				return
			}
			r.connected = false
			if err := r.session.Disconnect(); err != nil {
				r.opts.logger.Debug().Err(err).Msg("disconnect after frontend closed")
			}
			r.opts.logger.Info().Msg("frontend detached")
		})
	})
}

// HasPendingInboundMessage implements inspector.PollingSink. It waits up to
// the poll interval for traffic and reports whether the frontend is still
// connected.
func (r *remote) HasPendingInboundMessage() bool {
	if r.isClosed() {
		return false
	}

	timer := time.NewTimer(r.opts.pollInterval)
	defer timer.Stop()

	select {
	case <-r.done:
		return false
	case <-r.inbound:
		return true
	case <-timer.C:
	}

	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Done is closed once the frontend has gone away.
func (r *remote) Done() <-chan struct{} {
	return r.done
}

func (r *remote) isClosed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
