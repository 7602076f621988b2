package luacore

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaspect/internal/inspector"
)

// DefaultContextName names the execution context when none is configured.
const DefaultContextName = "luaspect main context"

// ExecutionContextID is the protocol id of the engine's only execution context.
const ExecutionContextID = 1

// Pause reasons reported in Debugger.paused.
const (
	ReasonDebugCommand = "debugCommand"
	ReasonOther        = "other"
)

// Core is the inspector core for one Lua state.
type Core struct {
	L      *lua.LState
	client inspector.Client
	logger zerolog.Logger

	contextName string
	uniqueID    string

	scripts  *scriptRegistry
	sessions []*session
	methods  map[string]methodHandler

	paused         bool
	pendingBreak   bool
	exceptionSeq   int
	onRunIfWaiting func()
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the core's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Core) {
		c.logger = logger
	}
}

// WithContextName sets the human readable execution context name.
func WithContextName(name string) Option {
	return func(c *Core) {
		if name != "" {
			c.contextName = name
		}
	}
}

// WithRunIfWaiting sets the callback for Runtime.runIfWaitingForDebugger.
func WithRunIfWaiting(fn func()) Option {
	return func(c *Core) {
		c.onRunIfWaiting = fn
	}
}

// New creates the core for L and installs the debugger() builtin.
func New(L *lua.LState, client inspector.Client, opts ...Option) *Core {
	c := &Core{
		L:           L,
		client:      client,
		logger:      zerolog.Nop(),
		contextName: DefaultContextName,
		uniqueID:    uuid.NewString(),
		scripts:     newScriptRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.methods = c.defaultMethods()

	L.SetGlobal("debugger", L.NewFunction(c.luaDebugger))
	return c
}

// Factory returns an inspector.CoreFactory that builds a Core for L.
func Factory(L *lua.LState, opts ...Option) inspector.CoreFactory {
	return func(client inspector.Client) inspector.Core {
		return New(L, client, opts...)
	}
}

// Connect implements inspector.Core.
func (c *Core) Connect(contextGroupID int, callbacks inspector.ChannelCallbacks, state string) inspector.Connection {
	s := &session{
		core:      c,
		callbacks: callbacks,
		groupID:   contextGroupID,
	}
	c.sessions = append(c.sessions, s)
	c.logger.Debug().Int("contextGroup", contextGroupID).Msg("core connection opened")
	return s
}

// UniqueID returns the unique id of the execution context.
func (c *Core) UniqueID() string {
	return c.uniqueID
}

// IsPaused reports whether execution is stopped in a Break call.
func (c *Core) IsPaused() bool {
	return c.paused
}

// RegisterScript records a script the engine is about to run and announces
// it to connections with the Debugger domain enabled.
func (c *Core) RegisterScript(url, source string) int {
	script := c.scripts.add(url, source)
	msg := scriptParsedNotification(script)
	for _, s := range c.sessions {
		if s.debuggerEnabled {
			s.notify(msg)
		}
	}
	return script.ID
}

// ScriptID returns the id of the script registered under url, or 0.
func (c *Core) ScriptID(url string) int {
	return c.scripts.idFor(url)
}

// Break stops execution at the current Lua position until a frontend resumes
// it. It does nothing when no connection has the Debugger domain enabled or
// when execution is already paused.
func (c *Core) Break(reason string) {
	c.breakIn(c.L, reason)
}

func (c *Core) breakIn(L *lua.LState, reason string) {
	c.pendingBreak = false
	if c.paused {
		return
	}

	targets := c.debuggerSessions()
	if len(targets) == 0 {
		return
	}

	paused := pausedNotification(c.CaptureStack(L), reason)
	for _, s := range targets {
		s.notify(paused)
	}

	c.paused = true
	c.client.RunMessageLoopOnPause(inspector.ContextGroupID)
	c.paused = false

	resumed := notification("Debugger.resumed", "{}")
	for _, s := range c.debuggerSessions() {
		s.notify(resumed)
	}
}

// RequestBreak arms a break that is taken at the next CheckPendingBreak or
// debugger() call.
func (c *Core) RequestBreak() {
	c.pendingBreak = true
}

// CheckPendingBreak takes an armed break. Hosts call it at task boundaries.
func (c *Core) CheckPendingBreak() {
	if c.pendingBreak {
		c.Break(ReasonOther)
	}
}

// ExceptionThrown implements inspector.Core. The report is dropped when no
// connection has the Runtime domain enabled.
func (c *Core) ExceptionThrown(report inspector.ExceptionReport) {
	var targets []*session
	for _, s := range c.sessions {
		if s.runtimeEnabled {
			targets = append(targets, s)
		}
	}
	if len(targets) == 0 {
		c.logger.Debug().Str("text", report.Text).Msg("exception not reported, no runtime listeners")
		return
	}

	c.exceptionSeq++
	msg := exceptionThrownNotification(c.exceptionSeq, report)
	for _, s := range targets {
		s.notify(msg)
	}
}

func (c *Core) debuggerSessions() []*session {
	var out []*session
	for _, s := range c.sessions {
		if s.debuggerEnabled {
			out = append(out, s)
		}
	}
	return out
}

func (c *Core) removeSession(s *session) {
	for i, existing := range c.sessions {
		if existing == s {
			c.sessions = append(c.sessions[:i], c.sessions[i+1:]...)
			break
		}
	}
	c.logger.Debug().Int("contextGroup", s.groupID).Msg("core connection closed")
}

// luaDebugger implements the debugger() builtin.
func (c *Core) luaDebugger(L *lua.LState) int {
	c.breakIn(L, ReasonDebugCommand)
	return 0
}
