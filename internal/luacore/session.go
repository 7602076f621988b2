package luacore

import (
	"errors"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/luaspect/internal/inspector"
)

// methodHandler handles one protocol method and returns the raw JSON result.
type methodHandler func(s *session, params gjson.Result) (string, error)

// session is one core connection.
type session struct {
	core      *Core
	callbacks inspector.ChannelCallbacks
	groupID   int
	closed    bool

	runtimeEnabled  bool
	debuggerEnabled bool
}

// Dispatch implements inspector.Connection.
func (s *session) Dispatch(message string) {
	if s.closed {
		return
	}

	if !gjson.Valid(message) {
		s.respondError(0, &ProtocolError{Code: CodeParseError, Message: "Message must be a valid JSON"})
		return
	}

	msg := gjson.Parse(message)
	id := msg.Get("id")
	if id.Type != gjson.Number || float64(id.Int()) != id.Num {
		s.respondError(0, &ProtocolError{Code: CodeInvalidRequest, Message: "Message must have integer 'id' property"})
		return
	}
	callID := int(id.Int())

	method := msg.Get("method")
	if method.Type != gjson.String {
		s.respondError(callID, &ProtocolError{Code: CodeInvalidRequest, Message: "Message must have string 'method' property"})
		return
	}

	handler, ok := s.core.methods[method.Str]
	if !ok {
		s.respondError(callID, errMethodNotFound(method.Str))
		return
	}

	result, err := handler(s, msg.Get("params"))

	// Handlers that pause can return after the frontend went away.
	if s.closed {
		return
	}

	if err != nil {
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			perr = &ProtocolError{Code: CodeServerError, Message: err.Error()}
		}
		s.respondError(callID, perr)
		return
	}
	s.respond(callID, result)
}

// Close implements inspector.Connection.
func (s *session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.core.removeSession(s)
}

func (s *session) notify(message string) {
	if s.closed {
		return
	}
	s.callbacks.SendNotification(message)
}

func (s *session) respond(callID int, result string) {
	if result == "" {
		result = "{}"
	}
	out, _ := sjson.Set("", "id", callID)
	out, _ = sjson.SetRaw(out, "result", result)
	s.callbacks.SendResponse(callID, out)
}

func (s *session) respondError(callID int, perr *ProtocolError) {
	out, _ := sjson.Set("", "id", callID)
	out, _ = sjson.Set(out, "error.code", perr.Code)
	out, _ = sjson.Set(out, "error.message", perr.Message)
	s.callbacks.SendResponse(callID, out)
}

// defaultMethods returns the methods understood by the core.
func (c *Core) defaultMethods() map[string]methodHandler {
	return map[string]methodHandler{
		"Runtime.enable":                  (*session).runtimeEnable,
		"Runtime.disable":                 (*session).runtimeDisable,
		"Runtime.runIfWaitingForDebugger": (*session).runIfWaitingForDebugger,
		"Debugger.enable":                 (*session).debuggerEnable,
		"Debugger.disable":                (*session).debuggerDisable,
		"Debugger.pause":                  (*session).debuggerPause,
		"Debugger.resume":                 (*session).debuggerResume,
	}
}

func (s *session) runtimeEnable(params gjson.Result) (string, error) {
	if !s.runtimeEnabled {
		s.runtimeEnabled = true
		s.notify(executionContextCreatedNotification(s.core.contextName, s.core.uniqueID))
	}
	return "{}", nil
}

func (s *session) runtimeDisable(params gjson.Result) (string, error) {
	s.runtimeEnabled = false
	return "{}", nil
}

func (s *session) runIfWaitingForDebugger(params gjson.Result) (string, error) {
	if s.core.onRunIfWaiting != nil {
		s.core.onRunIfWaiting()
	}
	return "{}", nil
}

func (s *session) debuggerEnable(params gjson.Result) (string, error) {
	if !s.debuggerEnabled {
		s.debuggerEnabled = true
		for _, script := range s.core.scripts.all() {
			s.notify(scriptParsedNotification(script))
		}
	}
	out, _ := sjson.Set("", "debuggerId", uuid.NewString())
	return out, nil
}

func (s *session) debuggerDisable(params gjson.Result) (string, error) {
	s.debuggerEnabled = false
	if s.core.paused && len(s.core.debuggerSessions()) == 0 {
		s.core.client.QuitMessageLoopOnPause()
	}
	return "{}", nil
}

func (s *session) debuggerPause(params gjson.Result) (string, error) {
	if !s.debuggerEnabled {
		return "", &ProtocolError{Code: CodeServerError, Message: "Debugger agent is not enabled"}
	}
	s.core.RequestBreak()
	return "{}", nil
}

func (s *session) debuggerResume(params gjson.Result) (string, error) {
	if !s.core.paused {
		return "", &ProtocolError{Code: CodeServerError, Message: "Can only perform operation while paused."}
	}
	s.core.client.QuitMessageLoopOnPause()
	return "{}", nil
}
