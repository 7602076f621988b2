package luacore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/sjson"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaspect/internal/inspector"
)

// notification wraps raw params into a protocol notification.
func notification(method, params string) string {
	out, _ := sjson.Set("", "method", method)
	out, _ = sjson.SetRaw(out, "params", params)
	return out
}

func executionContextCreatedNotification(name, uniqueID string) string {
	params, _ := sjson.Set("", "context.id", ExecutionContextID)
	params, _ = sjson.Set(params, "context.origin", "")
	params, _ = sjson.Set(params, "context.name", name)
	params, _ = sjson.Set(params, "context.uniqueId", uniqueID)
	params, _ = sjson.Set(params, "context.auxData.isDefault", true)
	return notification("Runtime.executionContextCreated", params)
}

func scriptParsedNotification(script *Script) string {
	params, _ := sjson.Set("", "scriptId", strconv.Itoa(script.ID))
	params, _ = sjson.Set(params, "url", script.URL)
	params, _ = sjson.Set(params, "startLine", 0)
	params, _ = sjson.Set(params, "startColumn", 0)
	params, _ = sjson.Set(params, "endLine", script.EndLine)
	params, _ = sjson.Set(params, "endColumn", 0)
	params, _ = sjson.Set(params, "executionContextId", ExecutionContextID)
	params, _ = sjson.Set(params, "length", len(script.Source))
	return notification("Debugger.scriptParsed", params)
}

func pausedNotification(frames inspector.StackTrace, reason string) string {
	params, _ := sjson.SetRaw("", "callFrames", "[]")
	for i, f := range frames {
		frame, _ := sjson.Set("", "callFrameId", strconv.Itoa(i))
		frame, _ = sjson.Set(frame, "functionName", f.FunctionName)
		frame, _ = sjson.SetRaw(frame, "location", location(f))
		frame, _ = sjson.Set(frame, "url", f.URL)
		frame, _ = sjson.SetRaw(frame, "scopeChain", "[]")
		frame, _ = sjson.Set(frame, "this.type", "undefined")
		params, _ = sjson.SetRaw(params, "callFrames.-1", frame)
	}
	params, _ = sjson.Set(params, "reason", reason)
	params, _ = sjson.SetRaw(params, "hitBreakpoints", "[]")
	return notification("Debugger.paused", params)
}

func exceptionThrownNotification(exceptionID int, report inspector.ExceptionReport) string {
	details, _ := sjson.Set("", "exceptionId", exceptionID)
	details, _ = sjson.Set(details, "text", report.Detail)
	details, _ = sjson.Set(details, "lineNumber", zeroBased(report.Line))
	details, _ = sjson.Set(details, "columnNumber", zeroBased(report.Column))
	if report.ScriptID != 0 {
		details, _ = sjson.Set(details, "scriptId", strconv.Itoa(report.ScriptID))
	}
	details, _ = sjson.Set(details, "url", report.URL)
	if len(report.StackTrace) > 0 {
		details, _ = sjson.SetRaw(details, "stackTrace", stackTrace(report.StackTrace))
	}
	details, _ = sjson.SetRaw(details, "exception", remoteObject(report.Exception, report.Text))
	details, _ = sjson.Set(details, "executionContextId", ExecutionContextID)

	params, _ := sjson.Set("", "timestamp", float64(time.Now().UnixNano())/float64(time.Millisecond))
	params, _ = sjson.SetRaw(params, "exceptionDetails", details)
	return notification("Runtime.exceptionThrown", params)
}

func stackTrace(frames inspector.StackTrace) string {
	out, _ := sjson.SetRaw("", "callFrames", "[]")
	for _, f := range frames {
		frame, _ := sjson.Set("", "functionName", f.FunctionName)
		frame, _ = sjson.Set(frame, "scriptId", strconv.Itoa(f.ScriptID))
		frame, _ = sjson.Set(frame, "url", f.URL)
		frame, _ = sjson.Set(frame, "lineNumber", zeroBased(f.Line))
		frame, _ = sjson.Set(frame, "columnNumber", zeroBased(f.Column))
		out, _ = sjson.SetRaw(out, "callFrames.-1", frame)
	}
	return out
}

func location(f inspector.StackFrame) string {
	out, _ := sjson.Set("", "scriptId", strconv.Itoa(f.ScriptID))
	out, _ = sjson.Set(out, "lineNumber", zeroBased(f.Line))
	out, _ = sjson.Set(out, "columnNumber", zeroBased(f.Column))
	return out
}

// remoteObject describes an exception value. description falls back to the
// value's own string form.
func remoteObject(v any, description string) string {
	typ, value, hasValue := describe(v)

	out, _ := sjson.Set("", "type", typ)
	if hasValue {
		out, _ = sjson.Set(out, "value", value)
	}
	if description == "" && v != nil {
		description = fmt.Sprint(v)
	}
	if description != "" {
		out, _ = sjson.Set(out, "description", description)
	}
	return out
}

// describe maps Lua and Go values onto protocol remote object types.
func describe(v any) (typ string, value any, hasValue bool) {
	switch val := v.(type) {
	case nil:
		return "undefined", nil, false
	case lua.LString:
		return "string", string(val), true
	case lua.LNumber:
		return "number", float64(val), true
	case lua.LBool:
		return "boolean", bool(val), true
	case *lua.LNilType:
		return "undefined", nil, false
	case *lua.LFunction:
		return "function", nil, false
	case lua.LValue:
		return "object", nil, false
	case string:
		return "string", val, true
	case float64, int, int64:
		return "number", val, true
	case bool:
		return "boolean", val, true
	case error:
		return "object", nil, false
	default:
		return "object", nil, false
	}
}

// zeroBased converts a 1-based Lua line to a protocol line number.
func zeroBased(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}
