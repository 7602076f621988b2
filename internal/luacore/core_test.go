package luacore

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaspect/internal/inspector"
)

// fakeClient implements inspector.Client for testing.
type fakeClient struct {
	pauses  int
	quits   int
	onPause func()
}

func (c *fakeClient) RunMessageLoopOnPause(contextGroupID int) {
	c.pauses++
	if c.onPause != nil {
		c.onPause()
	}
}

func (c *fakeClient) QuitMessageLoopOnPause() {
	c.quits++
}

// recorder implements inspector.ChannelCallbacks for testing.
type recorder struct {
	responses     []string
	notifications []string
}

func (r *recorder) SendResponse(callID int, message string) {
	r.responses = append(r.responses, message)
}

func (r *recorder) SendNotification(message string) {
	r.notifications = append(r.notifications, message)
}

func (r *recorder) FlushNotifications() {}

func (r *recorder) methods() []string {
	var out []string
	for _, n := range r.notifications {
		out = append(out, gjson.Get(n, "method").String())
	}
	return out
}

func (r *recorder) lastResponse() gjson.Result {
	if len(r.responses) == 0 {
		return gjson.Result{}
	}
	return gjson.Parse(r.responses[len(r.responses)-1])
}

func newTestCore(t *testing.T) (*Core, *fakeClient, *lua.LState) {
	t.Helper()
	L := lua.NewState()
	t.Cleanup(L.Close)
	client := &fakeClient{}
	return New(L, client), client, L
}

func TestDispatchMalformedJSON(t *testing.T) {
	core, _, _ := newTestCore(t)
	rec := &recorder{}
	conn := core.Connect(inspector.ContextGroupID, rec, "")

	conn.Dispatch("{not json")

	resp := rec.lastResponse()
	if got := resp.Get("error.code").Int(); got != CodeParseError {
		t.Errorf("error.code = %d, want %d", got, CodeParseError)
	}
	if got := resp.Get("id").Int(); got != 0 {
		t.Errorf("id = %d, want 0", got)
	}
}

func TestDispatchInvalidRequest(t *testing.T) {
	core, _, _ := newTestCore(t)
	rec := &recorder{}
	conn := core.Connect(inspector.ContextGroupID, rec, "")

	tests := []struct {
		name    string
		message string
		wantID  int64
	}{
		{"missing id", `{"method":"Runtime.enable"}`, 0},
		{"fractional id", `{"id":1.5,"method":"Runtime.enable"}`, 0},
		{"missing method", `{"id":4}`, 4},
		{"numeric method", `{"id":5,"method":6}`, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn.Dispatch(tt.message)
			resp := rec.lastResponse()
			if got := resp.Get("error.code").Int(); got != CodeInvalidRequest {
				t.Errorf("error.code = %d, want %d", got, CodeInvalidRequest)
			}
			if got := resp.Get("id").Int(); got != tt.wantID {
				t.Errorf("id = %d, want %d", got, tt.wantID)
			}
		})
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	core, _, _ := newTestCore(t)
	rec := &recorder{}
	conn := core.Connect(inspector.ContextGroupID, rec, "")

	conn.Dispatch(`{"id":9,"method":"Profiler.start"}`)

	resp := rec.lastResponse()
	if got := resp.Get("error.code").Int(); got != CodeMethodNotFound {
		t.Errorf("error.code = %d, want %d", got, CodeMethodNotFound)
	}
	if got := resp.Get("error.message").String(); !strings.Contains(got, "Profiler.start") {
		t.Errorf("error.message = %q, want method name", got)
	}
}

func TestRuntimeEnable(t *testing.T) {
	core, _, _ := newTestCore(t)
	rec := &recorder{}
	conn := core.Connect(inspector.ContextGroupID, rec, "")

	conn.Dispatch(`{"id":1,"method":"Runtime.enable"}`)
	conn.Dispatch(`{"id":2,"method":"Runtime.enable"}`)

	if len(rec.notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(rec.notifications))
	}
	ctx := gjson.Get(rec.notifications[0], "params.context")
	if ctx.Get("id").Int() != ExecutionContextID {
		t.Errorf("context.id = %d", ctx.Get("id").Int())
	}
	if ctx.Get("name").String() != DefaultContextName {
		t.Errorf("context.name = %q", ctx.Get("name").String())
	}
	if ctx.Get("uniqueId").String() != core.UniqueID() {
		t.Errorf("context.uniqueId = %q, want %q", ctx.Get("uniqueId").String(), core.UniqueID())
	}
	if len(rec.responses) != 2 || rec.lastResponse().Get("id").Int() != 2 {
		t.Errorf("responses = %v", rec.responses)
	}
}

func TestDebuggerEnableReplaysScripts(t *testing.T) {
	core, _, _ := newTestCore(t)
	core.RegisterScript("first.lua", "local a = 1\nreturn a\n")
	core.RegisterScript("second.lua", "return 2")

	rec := &recorder{}
	conn := core.Connect(inspector.ContextGroupID, rec, "")
	conn.Dispatch(`{"id":1,"method":"Debugger.enable"}`)

	if len(rec.notifications) != 2 {
		t.Fatalf("notifications = %v", rec.methods())
	}
	first := gjson.Get(rec.notifications[0], "params")
	if first.Get("url").String() != "first.lua" || first.Get("scriptId").String() != "1" {
		t.Errorf("first script = %s", first.Raw)
	}
	if first.Get("endLine").Int() != 2 {
		t.Errorf("endLine = %d, want 2", first.Get("endLine").Int())
	}
	if rec.lastResponse().Get("result.debuggerId").String() == "" {
		t.Error("expected debuggerId in result")
	}

	// Scripts registered later are announced live.
	core.RegisterScript("third.lua", "return 3")
	if got := gjson.Get(rec.notifications[2], "params.scriptId").String(); got != "3" {
		t.Errorf("live scriptId = %q, want 3", got)
	}
}

func TestBreakWithoutDebuggerIsNoop(t *testing.T) {
	core, client, _ := newTestCore(t)
	core.Connect(inspector.ContextGroupID, &recorder{}, "")

	core.Break(ReasonOther)

	if client.pauses != 0 {
		t.Errorf("pauses = %d, want 0", client.pauses)
	}
}

func TestDebuggerStatementPausesAndResumes(t *testing.T) {
	core, client, L := newTestCore(t)
	rec := &recorder{}
	conn := core.Connect(inspector.ContextGroupID, rec, "")
	conn.Dispatch(`{"id":1,"method":"Debugger.enable"}`)

	var pausedDuringLoop bool
	client.onPause = func() {
		pausedDuringLoop = core.IsPaused()
		conn.Dispatch(`{"id":2,"method":"Debugger.resume"}`)
	}

	core.RegisterScript("pause.lua", "")
	fn, err := L.Load(strings.NewReader("local x = 1\ndebugger()\nreturn x"), "pause.lua")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	L.Push(fn)
	if err := L.PCall(0, 0, nil); err != nil {
		t.Fatalf("PCall: %v", err)
	}

	if client.pauses != 1 || client.quits != 1 {
		t.Errorf("pauses = %d, quits = %d", client.pauses, client.quits)
	}
	if !pausedDuringLoop {
		t.Error("core should report paused inside the loop")
	}
	if core.IsPaused() {
		t.Error("core still paused after resume")
	}

	methods := rec.methods()
	if len(methods) != 3 || methods[1] != "Debugger.paused" || methods[2] != "Debugger.resumed" {
		t.Fatalf("notifications = %v", methods)
	}
	paused := gjson.Get(rec.notifications[1], "params")
	if paused.Get("reason").String() != ReasonDebugCommand {
		t.Errorf("reason = %q", paused.Get("reason").String())
	}
	top := paused.Get("callFrames.0")
	if top.Get("url").String() != "pause.lua" {
		t.Errorf("top url = %q", top.Get("url").String())
	}
	if top.Get("location.lineNumber").Int() != 1 {
		t.Errorf("top lineNumber = %d, want 1", top.Get("location.lineNumber").Int())
	}
	if top.Get("location.scriptId").String() != "1" {
		t.Errorf("top scriptId = %q", top.Get("location.scriptId").String())
	}
}

func TestDebuggerPauseArmsBreak(t *testing.T) {
	core, client, _ := newTestCore(t)
	rec := &recorder{}
	conn := core.Connect(inspector.ContextGroupID, rec, "")

	conn.Dispatch(`{"id":1,"method":"Debugger.pause"}`)
	if rec.lastResponse().Get("error.code").Int() != CodeServerError {
		t.Errorf("pause before enable = %s", rec.lastResponse().Raw)
	}

	conn.Dispatch(`{"id":2,"method":"Debugger.enable"}`)
	conn.Dispatch(`{"id":3,"method":"Debugger.pause"}`)
	if client.pauses != 0 {
		t.Fatal("pause must not stop synchronously")
	}

	core.CheckPendingBreak()
	if client.pauses != 1 {
		t.Errorf("pauses = %d, want 1", client.pauses)
	}

	core.CheckPendingBreak()
	if client.pauses != 1 {
		t.Errorf("break taken twice, pauses = %d", client.pauses)
	}
}

func TestResumeWhenNotPaused(t *testing.T) {
	core, client, _ := newTestCore(t)
	rec := &recorder{}
	conn := core.Connect(inspector.ContextGroupID, rec, "")

	conn.Dispatch(`{"id":1,"method":"Debugger.resume"}`)

	if rec.lastResponse().Get("error").Exists() == false {
		t.Errorf("expected error response, got %s", rec.lastResponse().Raw)
	}
	if client.quits != 0 {
		t.Errorf("quits = %d, want 0", client.quits)
	}
}

func TestDebuggerDisableWhilePausedQuits(t *testing.T) {
	core, client, _ := newTestCore(t)
	rec := &recorder{}
	conn := core.Connect(inspector.ContextGroupID, rec, "")
	conn.Dispatch(`{"id":1,"method":"Debugger.enable"}`)

	client.onPause = func() {
		conn.Dispatch(`{"id":2,"method":"Debugger.disable"}`)
	}
	core.Break(ReasonOther)

	if client.quits != 1 {
		t.Errorf("quits = %d, want 1", client.quits)
	}
}

func TestRunIfWaitingForDebugger(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	released := 0
	core := New(L, &fakeClient{}, WithRunIfWaiting(func() { released++ }))
	conn := core.Connect(inspector.ContextGroupID, &recorder{}, "")

	conn.Dispatch(`{"id":1,"method":"Runtime.runIfWaitingForDebugger"}`)

	if released != 1 {
		t.Errorf("released = %d, want 1", released)
	}
}

func TestClosedSessionIsSilent(t *testing.T) {
	core, _, _ := newTestCore(t)
	rec := &recorder{}
	conn := core.Connect(inspector.ContextGroupID, rec, "")
	conn.Close()

	conn.Dispatch(`{"id":1,"method":"Runtime.enable"}`)
	core.RegisterScript("late.lua", "")

	if len(rec.responses) != 0 || len(rec.notifications) != 0 {
		t.Errorf("closed session produced output: %v %v", rec.responses, rec.notifications)
	}
}

func TestExceptionThrown(t *testing.T) {
	core, _, _ := newTestCore(t)
	rec := &recorder{}
	conn := core.Connect(inspector.ContextGroupID, rec, "")

	report := inspector.ExceptionReport{
		Detail:    inspector.UncaughtDetail,
		Exception: lua.LString("boom"),
		Text:      "main.lua:3: boom",
		URL:       "main.lua",
		Line:      3,
		ScriptID:  0,
		StackTrace: inspector.StackTrace{
			{FunctionName: "(main chunk)", URL: "main.lua", Line: 3, ScriptID: 1},
		},
	}

	// Without Runtime enabled the report is dropped.
	core.ExceptionThrown(report)
	if len(rec.notifications) != 0 {
		t.Fatalf("unexpected notifications %v", rec.methods())
	}

	conn.Dispatch(`{"id":1,"method":"Runtime.enable"}`)
	core.ExceptionThrown(report)

	methods := rec.methods()
	if len(methods) != 2 || methods[1] != "Runtime.exceptionThrown" {
		t.Fatalf("notifications = %v", methods)
	}
	details := gjson.Get(rec.notifications[1], "params.exceptionDetails")
	if details.Get("text").String() != "Uncaught" {
		t.Errorf("text = %q", details.Get("text").String())
	}
	if details.Get("lineNumber").Int() != 2 {
		t.Errorf("lineNumber = %d, want 2", details.Get("lineNumber").Int())
	}
	if details.Get("scriptId").Exists() {
		t.Error("scriptId 0 must be omitted")
	}
	if details.Get("exception.type").String() != "string" || details.Get("exception.value").String() != "boom" {
		t.Errorf("exception = %s", details.Get("exception").Raw)
	}
	if details.Get("exception.description").String() != report.Text {
		t.Errorf("description = %q", details.Get("exception.description").String())
	}
	if details.Get("stackTrace.callFrames.0.scriptId").String() != "1" {
		t.Errorf("stack = %s", details.Get("stackTrace").Raw)
	}
	if details.Get("exceptionId").Int() != 1 {
		t.Errorf("exceptionId = %d", details.Get("exceptionId").Int())
	}
}

func TestCaptureStackFromErrorHandler(t *testing.T) {
	core, _, L := newTestCore(t)
	core.RegisterScript("nested.lua", "")

	src := "local function inner()\n  error('bad')\nend\nlocal function outer()\n  inner()\nend\nouter()\n"
	fn, err := L.Load(strings.NewReader(src), "nested.lua")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var frames inspector.StackTrace
	handler := L.NewFunction(func(L *lua.LState) int {
		frames = core.CaptureStack(L)
		L.Push(L.Get(1))
		return 1
	})

	L.Push(fn)
	if err := L.PCall(0, 0, handler); err == nil {
		t.Fatal("expected error")
	}

	if len(frames) < 3 {
		t.Fatalf("frames = %+v", frames)
	}
	if frames[0].Line != 2 || frames[0].URL != "nested.lua" {
		t.Errorf("top frame = %+v", frames[0])
	}
	if frames[0].ScriptID != 1 {
		t.Errorf("top ScriptID = %d, want 1", frames[0].ScriptID)
	}
	last := frames[len(frames)-1]
	if last.FunctionName != "(main chunk)" || last.Line != 7 {
		t.Errorf("bottom frame = %+v", last)
	}
}
