package inspector

import (
	"fmt"
	"reflect"
)

// UncaughtDetail is the label attached to fatal exception reports.
const UncaughtDetail = "Uncaught"

// StackFrame is one frame of a captured call stack.
type StackFrame struct {
	FunctionName string
	URL          string
	Line         int
	Column       int
	ScriptID     int
}

// StackTrace is a call stack, innermost frame first.
type StackTrace []StackFrame

// Top returns the innermost frame.
func (s StackTrace) Top() (StackFrame, bool) {
	if len(s) == 0 {
		return StackFrame{}, false
	}
	return s[0], true
}

// Message is the engine's diagnostic for an uncaught exception.
// Text and ResourceName are engine values; anything that is not a string
// is reported as empty text.
type Message struct {
	Text         any
	ResourceName any
	Line         int
	Column       int
	ScriptID     int
	StackTrace   StackTrace
}

// ExceptionReport is the exception notification handed to the core.
type ExceptionReport struct {
	Detail     string
	Exception  any
	Text       string
	URL        string
	Line       int
	Column     int
	StackTrace StackTrace
	ScriptID   int
}

// NewExceptionReport builds the report for an uncaught exception. The script
// id is cleared when the innermost frame already carries it.
func NewExceptionReport(exception any, msg *Message) ExceptionReport {
	if msg == nil {
		msg = &Message{}
	}

	scriptID := msg.ScriptID
	if top, ok := msg.StackTrace.Top(); ok && top.ScriptID == scriptID {
		scriptID = 0
	}

	return ExceptionReport{
		Detail:     UncaughtDetail,
		Exception:  exception,
		Text:       ToProtocolString(msg.Text),
		URL:        ToProtocolString(msg.ResourceName),
		Line:       msg.Line,
		Column:     msg.Column,
		StackTrace: msg.StackTrace,
		ScriptID:   scriptID,
	}
}

// ToProtocolString converts an engine value to protocol text. Values whose
// underlying kind is not string, including nil, become "".
func ToProtocolString(v any) string {
	if v == nil {
		return ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return ""
	}
	return rv.String()
}

// FatalException reports an uncaught exception to the attached frontend, if
// any. It never panics; a failure inside the core drops the notification.
func (i *Inspector) FatalException(exception any, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Warn().
				Str("panic", fmt.Sprint(r)).
				Msg("exception notification dropped")
		}
	}()

	report := NewExceptionReport(exception, msg)
	i.core.ExceptionThrown(report)
}
