package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaspect/internal/inspector"
	"github.com/dshills/luaspect/internal/luabind"
	"github.com/dshills/luaspect/internal/luacore"
	"github.com/dshills/luaspect/internal/scheduler"
)

// startPrologue is prepended to scripts run with break-on-start. It shares
// line 1 with the script so reported line numbers are unchanged.
const startPrologue = "debugger() "

// Engine runs Lua scripts with an inspector session available.
//
// Engine is not safe for concurrent use. Other goroutines interact with it
// by posting tasks to Loop().
type Engine struct {
	L      *lua.LState
	loop   *scheduler.Loop
	core   *luacore.Core
	insp   *inspector.Inspector
	logger zerolog.Logger

	contextName  string
	libraries    []string
	breakOnStart bool
	output       io.Writer

	released bool
	uncaught *ScriptError
	closed   bool
}

// New creates an engine with a fresh Lua state.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.loop = scheduler.New(scheduler.WithPanicHandler(e.onTaskPanic))
	e.L = luabind.NewState(
		luabind.WithLibraries(e.libraries...),
		luabind.WithOutput(e.output),
		luabind.WithModule(luabind.InspectorModuleName, luabind.InspectorModule(e)),
		luabind.WithModule(luabind.TimerModuleName, luabind.TimerModule(e)),
	)
	e.insp = inspector.New(func(client inspector.Client) inspector.Core {
		e.core = luacore.New(e.L, client,
			luacore.WithLogger(e.logger.With().Str("component", "core").Logger()),
			luacore.WithContextName(e.contextName),
			luacore.WithRunIfWaiting(func() { e.released = true }),
		)
		return e.core
	}, e.loop, inspector.WithLogger(e.logger.With().Str("component", "inspector").Logger()))

	return e
}

// Loop returns the host task loop. Post is safe from any goroutine.
func (e *Engine) Loop() *scheduler.Loop {
	return e.loop
}

// Inspector returns the engine's inspector session.
func (e *Engine) Inspector() *inspector.Inspector {
	return e.insp
}

// Connect attaches a frontend sink to the inspector session.
func (e *Engine) Connect(sink inspector.MessageSink) error {
	if e.closed {
		return ErrClosed
	}
	return e.insp.Connect(sink)
}

// Dispatch delivers a frontend message to the inspector session.
func (e *Engine) Dispatch(message string) error {
	if e.closed {
		return ErrClosed
	}
	return e.insp.Dispatch(message)
}

// Disconnect detaches the current frontend.
func (e *Engine) Disconnect() error {
	if e.closed {
		return ErrClosed
	}
	return e.insp.Disconnect()
}

// IsAttached reports whether a frontend is attached.
func (e *Engine) IsAttached() bool {
	return !e.closed && e.insp.IsAttached()
}

// SetArgs sets the global arg table: arg[0] is the script, arg[1..] its
// arguments.
func (e *Engine) SetArgs(script string, args []string) {
	tbl := e.L.NewTable()
	tbl.RawSetInt(0, lua.LString(script))
	for i, a := range args {
		tbl.RawSetInt(i+1, lua.LString(a))
	}
	e.L.SetGlobal("arg", tbl)
}

// RunFile runs the Lua script at path.
func (e *Engine) RunFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return e.RunString(ctx, path, string(data))
}

// RunString compiles source under the chunk name name and runs it. An
// uncaught error is reported to the frontend and returned as *ScriptError.
func (e *Engine) RunString(ctx context.Context, name, source string) error {
	if e.closed {
		return ErrClosed
	}
	defer e.bindContext(ctx)()

	code := source
	if strings.HasPrefix(code, "#") {
		code = "--" + code
	}
	if e.breakOnStart {
		code = startPrologue + code
	}

	fn, err := e.L.Load(strings.NewReader(code), name)
	if err != nil {
		serr := &ScriptError{
			Script:  name,
			Message: err.Error(),
			Value:   lua.LString(err.Error()),
			Syntax:  true,
		}
		e.insp.FatalException(serr.Value, &inspector.Message{
			Text:         serr.Message,
			ResourceName: name,
		})
		return serr
	}

	e.core.RegisterScript(name, source)
	e.logger.Debug().Str("script", name).Msg("running script")

	if serr := e.call(fn); serr != nil {
		return serr
	}
	return nil
}

// Run runs timers and posted tasks until none remain, ctx is cancelled, or a
// timer callback raises an uncaught error.
func (e *Engine) Run(ctx context.Context) error {
	if e.closed {
		return ErrClosed
	}
	defer e.bindContext(ctx)()

	err := e.loop.RunUntil(ctx, func() bool {
		return e.uncaught != nil || e.loop.Pending() == 0
	})
	if e.uncaught != nil {
		serr := e.uncaught
		e.uncaught = nil
		return serr
	}
	return err
}

// WaitForFrontend runs the loop until an attached frontend sends
// Runtime.runIfWaitingForDebugger or ctx is cancelled.
func (e *Engine) WaitForFrontend(ctx context.Context) error {
	if e.closed {
		return ErrClosed
	}
	e.released = false
	e.logger.Info().Msg("waiting for debugger")
	return e.loop.RunUntil(ctx, func() bool { return e.released })
}

// After implements luabind.TimerHost.
func (e *Engine) After(d time.Duration, fn *lua.LFunction) (scheduler.TimerID, error) {
	return e.loop.PostDelayed(d, func() {
		e.runTimer(fn)
	})
}

// CancelTimer implements luabind.TimerHost.
func (e *Engine) CancelTimer(id scheduler.TimerID) bool {
	return e.loop.Cancel(id)
}

// Close disconnects any frontend and releases the Lua state.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	if e.insp.IsAttached() {
		if err := e.insp.Disconnect(); err != nil {
			e.logger.Debug().Err(err).Msg("disconnect on close")
		}
	}
	e.closed = true
	e.loop.Close()
	e.L.Close()
	return nil
}

func (e *Engine) runTimer(fn *lua.LFunction) {
	if e.closed || e.uncaught != nil {
		return
	}
	e.core.CheckPendingBreak()
	if serr := e.call(fn); serr != nil {
		e.uncaught = serr
	}
}

// call runs fn with an error handler that captures the Lua stack before it
// unwinds.
func (e *Engine) call(fn *lua.LFunction) *ScriptError {
	var frames inspector.StackTrace
	handler := e.L.NewFunction(func(L *lua.LState) int {
		frames = e.core.CaptureStack(L)
		L.Push(L.Get(1))
		return 1
	})

	e.L.Push(fn)
	err := e.L.PCall(0, 0, handler)
	if err == nil {
		return nil
	}
	return e.uncaughtError(err, frames)
}

// uncaughtError reports err to the frontend and converts it to *ScriptError.
func (e *Engine) uncaughtError(err error, frames inspector.StackTrace) *ScriptError {
	value := lua.LValue(lua.LString(err.Error()))
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		value = apiErr.Object
	}

	text := value.String()
	msg := &inspector.Message{
		Text:       text,
		StackTrace: frames,
	}
	serr := &ScriptError{
		Message:    text,
		Value:      value,
		StackTrace: frames,
	}
	if top, ok := frames.Top(); ok {
		msg.ResourceName = top.URL
		msg.Line = top.Line
		msg.ScriptID = top.ScriptID
		serr.Script = top.URL
	}

	e.logger.Debug().Str("error", text).Msg("uncaught lua error")
	e.insp.FatalException(value, msg)
	return serr
}

// bindContext makes ctx cancellation interrupt running Lua code.
func (e *Engine) bindContext(ctx context.Context) func() {
	if ctx == nil || ctx.Done() == nil {
		return func() {}
	}
	e.L.SetContext(ctx)
	return func() { e.L.RemoveContext() }
}

func (e *Engine) onTaskPanic(v any, stack []byte) {
	e.logger.Error().
		Str("panic", fmt.Sprint(v)).
		Str("stack", string(stack)).
		Msg("host task panicked")
}
