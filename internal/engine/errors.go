package engine

import (
	"errors"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaspect/internal/inspector"
)

// Errors returned by engine operations.
var (
	// ErrClosed indicates an operation on a closed engine.
	ErrClosed = errors.New("engine is closed")
)

// ScriptError is an uncaught Lua error.
type ScriptError struct {
	// Script is the chunk name the error escaped from.
	Script string

	// Message is the error text, including Lua's position prefix.
	Message string

	// Value is the raised Lua value.
	Value lua.LValue

	// StackTrace holds the Lua frames at the raise point, innermost first.
	StackTrace inspector.StackTrace

	// Syntax is true when the script failed to compile.
	Syntax bool
}

func (e *ScriptError) Error() string {
	return e.Message
}

// Traceback renders the error and its stack in the usual Lua layout.
func (e *ScriptError) Traceback() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.StackTrace) == 0 {
		return b.String()
	}
	b.WriteString("\nstack traceback:")
	for _, f := range e.StackTrace {
		b.WriteString("\n\t")
		b.WriteString(f.URL)
		b.WriteString(":")
		b.WriteString(strconv.Itoa(f.Line))
		if f.FunctionName != "" {
			b.WriteString(": in ")
			b.WriteString(f.FunctionName)
		}
	}
	return b.String()
}
