package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaspect/internal/frontend"
)

// recordingSink collects outbound protocol messages.
type recordingSink struct {
	messages []string
}

func (s *recordingSink) Send(message string) {
	s.messages = append(s.messages, message)
}

func (s *recordingSink) methods() []string {
	var out []string
	for _, m := range s.messages {
		if method := gjson.Get(m, "method"); method.Exists() {
			out = append(out, method.String())
		}
	}
	return out
}

func (s *recordingSink) find(method string) (gjson.Result, bool) {
	for _, m := range s.messages {
		if gjson.Get(m, "method").String() == method {
			return gjson.Parse(m), true
		}
	}
	return gjson.Result{}, false
}

// resumingSink is a pollable frontend that resumes execution on its first
// poll while paused.
type resumingSink struct {
	recordingSink
	e     *Engine
	polls int
}

func (s *resumingSink) HasPendingInboundMessage() bool {
	s.polls++
	if s.polls == 1 {
		_ = s.e.Loop().Post(func() {
			_ = s.e.Dispatch(`{"id":99,"method":"Debugger.resume"}`)
		})
	}
	return true
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := New(opts...)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func mustDispatch(t *testing.T, e *Engine, message string) {
	t.Helper()
	if err := e.Dispatch(message); err != nil {
		t.Fatalf("Dispatch(%s): %v", message, err)
	}
}

// ============================================================================
// Script execution
// ============================================================================

func TestRunString(t *testing.T) {
	e := newTestEngine(t)

	if err := e.RunString(context.Background(), "ok.lua", "answer = 6 * 7"); err != nil {
		t.Fatalf("RunString: %v", err)
	}
	if got := e.L.GetGlobal("answer"); got != lua.LNumber(42) {
		t.Errorf("answer = %v", got)
	}
}

func TestRunStringShebang(t *testing.T) {
	e := newTestEngine(t)

	err := e.RunString(context.Background(), "bang.lua", "#!/usr/bin/env luaspect\nx = 1\nerror('line three')")
	var serr *ScriptError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *ScriptError", err)
	}
	if !strings.Contains(serr.Message, "bang.lua:3:") {
		t.Errorf("line numbers shifted: %q", serr.Message)
	}
}

func TestRunFile(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "main.lua")
	if err := os.WriteFile(path, []byte("loaded = true"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := e.RunFile(context.Background(), path); err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if e.L.GetGlobal("loaded") != lua.LTrue {
		t.Error("script did not run")
	}

	if err := e.RunFile(context.Background(), filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRuntimeError(t *testing.T) {
	e := newTestEngine(t)
	src := "local function fail()\n  error('boom')\nend\nfail()\n"

	err := e.RunString(context.Background(), "fail.lua", src)

	var serr *ScriptError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *ScriptError", err)
	}
	if serr.Syntax {
		t.Error("runtime error marked as syntax error")
	}
	if serr.Script != "fail.lua" {
		t.Errorf("Script = %q", serr.Script)
	}
	if !strings.Contains(serr.Message, "fail.lua:2: boom") {
		t.Errorf("Message = %q", serr.Message)
	}
	if len(serr.StackTrace) != 2 || serr.StackTrace[0].Line != 2 || serr.StackTrace[1].Line != 4 {
		t.Errorf("StackTrace = %+v", serr.StackTrace)
	}
	if tb := serr.Traceback(); !strings.Contains(tb, "stack traceback:\n\tfail.lua:2") {
		t.Errorf("Traceback = %q", tb)
	}
}

func TestSyntaxError(t *testing.T) {
	e := newTestEngine(t)

	err := e.RunString(context.Background(), "bad.lua", "local = 1")

	var serr *ScriptError
	if !errors.As(err, &serr) || !serr.Syntax {
		t.Fatalf("err = %v, want syntax *ScriptError", err)
	}
}

func TestRunStringCancelled(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := e.RunString(ctx, "spin.lua", "while true do end")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

// ============================================================================
// Timers
// ============================================================================

func TestTimers(t *testing.T) {
	e := newTestEngine(t)

	err := e.RunString(context.Background(), "timers.lua", `
		local timer = require("timer")
		order = {}
		timer.after(20, function() order[#order + 1] = "late" end)
		timer.after(0, function() order[#order + 1] = "early" end)
		local id = timer.after(5, function() order[#order + 1] = "cancelled" end)
		timer.cancel(id)
	`)
	if err != nil {
		t.Fatalf("RunString: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	order := e.L.GetGlobal("order").(*lua.LTable)
	if order.Len() != 2 || order.RawGetInt(1).String() != "early" || order.RawGetInt(2).String() != "late" {
		t.Errorf("order has %d entries", order.Len())
	}
}

func TestTimerErrorStopsRun(t *testing.T) {
	e := newTestEngine(t)

	err := e.RunString(context.Background(), "timers.lua", `
		local timer = require("timer")
		timer.after(0, function() error("from timer") end)
		timer.after(10, function() reached = true end)
	`)
	if err != nil {
		t.Fatalf("RunString: %v", err)
	}

	err = e.Run(context.Background())
	var serr *ScriptError
	if !errors.As(err, &serr) || !strings.Contains(serr.Message, "from timer") {
		t.Fatalf("Run = %v", err)
	}
	if e.L.GetGlobal("reached") == lua.LTrue {
		t.Error("Run continued after uncaught timer error")
	}
}

// ============================================================================
// Inspector integration
// ============================================================================

func TestExceptionReportedToFrontend(t *testing.T) {
	e := newTestEngine(t)
	sink := &recordingSink{}
	if err := e.Connect(sink); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mustDispatch(t, e, `{"id":1,"method":"Runtime.enable"}`)

	_ = e.RunString(context.Background(), "main.lua", "local x = nil\n\nerror('kaboom')\n")

	msg, ok := sink.find("Runtime.exceptionThrown")
	if !ok {
		t.Fatalf("no exception notification in %v", sink.methods())
	}
	details := msg.Get("params.exceptionDetails")
	if details.Get("text").String() != "Uncaught" {
		t.Errorf("text = %q", details.Get("text").String())
	}
	if details.Get("url").String() != "main.lua" {
		t.Errorf("url = %q", details.Get("url").String())
	}
	if details.Get("lineNumber").Int() != 2 {
		t.Errorf("lineNumber = %d, want 2", details.Get("lineNumber").Int())
	}
	// The top frame already names the script.
	if details.Get("scriptId").Exists() {
		t.Errorf("scriptId = %s, want omitted", details.Get("scriptId").Raw)
	}
	if !strings.Contains(details.Get("exception.description").String(), "kaboom") {
		t.Errorf("exception = %s", details.Get("exception").Raw)
	}
}

func TestExceptionWithoutFrontend(t *testing.T) {
	e := newTestEngine(t)

	err := e.RunString(context.Background(), "main.lua", "error('alone')")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDebuggerStatementWithPushOnlySink(t *testing.T) {
	e := newTestEngine(t)
	sink := &recordingSink{}
	if err := e.Connect(frontend.CallbackSink(sink.Send)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mustDispatch(t, e, `{"id":1,"method":"Debugger.enable"}`)

	if err := e.RunString(context.Background(), "main.lua", "debugger()\ndone = true"); err != nil {
		t.Fatalf("RunString: %v", err)
	}

	// Nothing can arrive on a push-only sink, so the pause ends at once.
	methods := strings.Join(sink.methods(), ",")
	if methods != "Debugger.scriptParsed,Debugger.paused,Debugger.resumed" {
		t.Errorf("methods = %s", methods)
	}
	if e.L.GetGlobal("done") != lua.LTrue {
		t.Error("script did not continue")
	}
}

func TestDebuggerStatementResumedByFrontend(t *testing.T) {
	e := newTestEngine(t)
	sink := &resumingSink{e: e}
	if err := e.Connect(sink); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mustDispatch(t, e, `{"id":1,"method":"Debugger.enable"}`)

	src := "local n = 1\nlocal function f()\n  debugger()\n  n = n + 1\nend\nf()\nresult = n\n"
	if err := e.RunString(context.Background(), "pause.lua", src); err != nil {
		t.Fatalf("RunString: %v", err)
	}

	if sink.polls < 1 {
		t.Errorf("polls = %d", sink.polls)
	}
	if e.L.GetGlobal("result") != lua.LNumber(2) {
		t.Errorf("result = %v", e.L.GetGlobal("result"))
	}
	if e.Inspector().IsPaused() {
		t.Error("still paused")
	}

	paused, ok := sink.find("Debugger.paused")
	if !ok {
		t.Fatalf("no pause in %v", sink.methods())
	}
	frames := paused.Get("params.callFrames").Array()
	if len(frames) != 2 {
		t.Fatalf("callFrames = %s", paused.Get("params.callFrames").Raw)
	}
	if frames[0].Get("location.lineNumber").Int() != 2 || frames[1].Get("location.lineNumber").Int() != 5 {
		t.Errorf("callFrames = %s", paused.Get("params.callFrames").Raw)
	}
	if frames[1].Get("functionName").String() != "(main chunk)" {
		t.Errorf("functionName = %q", frames[1].Get("functionName").String())
	}
}

func TestBreakOnStart(t *testing.T) {
	e := newTestEngine(t, WithBreakOnStart())
	sink := &resumingSink{e: e}
	if err := e.Connect(sink); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mustDispatch(t, e, `{"id":1,"method":"Debugger.enable"}`)

	if err := e.RunString(context.Background(), "start.lua", "x = 1\ny = 2\nerror('line 3')"); err == nil {
		t.Fatal("expected error")
	} else if !strings.Contains(err.Error(), "start.lua:3:") {
		t.Errorf("line numbers shifted: %v", err)
	}

	paused, ok := sink.find("Debugger.paused")
	if !ok {
		t.Fatalf("no pause in %v", sink.methods())
	}
	if paused.Get("params.callFrames.0.location.lineNumber").Int() != 0 {
		t.Errorf("paused at %s", paused.Get("params.callFrames.0.location").Raw)
	}
}

func TestWaitForFrontend(t *testing.T) {
	e := newTestEngine(t)
	sink := &recordingSink{}

	go func() {
		_ = e.Loop().Post(func() {
			_ = e.Connect(sink)
		})
		_ = e.Loop().Post(func() {
			_ = e.Dispatch(`{"id":1,"method":"Runtime.runIfWaitingForDebugger"}`)
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.WaitForFrontend(ctx); err != nil {
		t.Fatalf("WaitForFrontend: %v", err)
	}
	if !e.IsAttached() {
		t.Error("expected attached frontend")
	}
}

func TestWaitForFrontendCancelled(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := e.WaitForFrontend(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestLuaInspectorModule(t *testing.T) {
	e := newTestEngine(t)

	err := e.RunString(context.Background(), "self.lua", `
		local inspector = require("inspector")
		replies = {}
		inspector.connect(function(msg) replies[#replies + 1] = msg end)
		inspector.dispatch('{"id":7,"method":"Runtime.enable"}')
		inspector.disconnect()
	`)
	if err != nil {
		t.Fatalf("RunString: %v", err)
	}

	replies := e.L.GetGlobal("replies").(*lua.LTable)
	if replies.Len() != 2 {
		t.Fatalf("replies = %d", replies.Len())
	}
	if gjson.Get(replies.RawGetInt(1).String(), "method").String() != "Runtime.executionContextCreated" {
		t.Errorf("first reply = %s", replies.RawGetInt(1).String())
	}
	if gjson.Get(replies.RawGetInt(2).String(), "id").Int() != 7 {
		t.Errorf("second reply = %s", replies.RawGetInt(2).String())
	}
	if e.IsAttached() {
		t.Error("still attached after disconnect")
	}
}

func TestClose(t *testing.T) {
	e := New()
	if err := e.Connect(&recordingSink{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if e.IsAttached() {
		t.Error("attached after close")
	}
	if err := e.RunString(context.Background(), "x.lua", ""); !errors.Is(err, ErrClosed) {
		t.Errorf("RunString after close = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOutputAndArgs(t *testing.T) {
	var out strings.Builder
	e := newTestEngine(t, WithOutput(&out))
	e.SetArgs("args.lua", []string{"one", "two"})

	if err := e.RunString(context.Background(), "args.lua", `print(arg[0], #arg, arg[2])`); err != nil {
		t.Fatalf("RunString: %v", err)
	}
	if got := out.String(); got != "args.lua\t2\ttwo\n" {
		t.Errorf("output = %q", got)
	}
}
