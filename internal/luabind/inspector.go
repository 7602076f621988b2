package luabind

import (
	"errors"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaspect/internal/frontend"
	"github.com/dshills/luaspect/internal/inspector"
)

// InspectorModuleName is the require name of the inspector module.
const InspectorModuleName = "inspector"

// Session is the inspector session scripts attach to.
type Session interface {
	frontend.Session
	IsAttached() bool
}

// InspectorModule returns a loader for the inspector module bound to session.
func InspectorModule(session Session) lua.LGFunction {
	b := &inspectorBinding{session: session}
	return func(L *lua.LState) int {
		mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
			"connect":    b.connect,
			"dispatch":   b.dispatch,
			"disconnect": b.disconnect,
			"isAttached": b.isAttached,
		})
		L.Push(mod)
		return 1
	}
}

type inspectorBinding struct {
	session Session
}

// connect(fn) attaches a session whose outbound messages are passed to fn.
func (b *inspectorBinding) connect(L *lua.LState) int {
	fn, ok := L.Get(1).(*lua.LFunction)
	if !ok {
		raise(L, inspector.ErrInvalidArgument)
		return 0
	}

	sink := frontend.CallbackSink(func(message string) {
		L.Push(fn)
		L.Push(lua.LString(message))
		L.Call(1, 0)
	})
	if err := b.session.Connect(sink); err != nil {
		raise(L, err)
	}
	return 0
}

// dispatch(msg) sends one protocol message to the session.
func (b *inspectorBinding) dispatch(L *lua.LState) int {
	if !b.session.IsAttached() {
		raise(L, inspector.ErrNotAttached)
		return 0
	}
	message, ok := MessageString(L.Get(1))
	if !ok {
		raise(L, inspector.ErrInvalidMessage)
		return 0
	}
	if err := b.session.Dispatch(message); err != nil {
		raise(L, err)
	}
	return 0
}

// disconnect() ends the session.
func (b *inspectorBinding) disconnect(L *lua.LState) int {
	if err := b.session.Disconnect(); err != nil {
		raise(L, err)
	}
	return 0
}

func (b *inspectorBinding) isAttached(L *lua.LState) int {
	L.Push(lua.LBool(b.session.IsAttached()))
	return 1
}

// MessageString returns v as a protocol message. Only Lua strings qualify.
func MessageString(v lua.LValue) (string, bool) {
	if v.Type() != lua.LTString {
		return "", false
	}
	return inspector.ToProtocolString(v), true
}

// raise reports err to the calling script using the innermost sentinel's text.
func raise(L *lua.LState, err error) {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	L.RaiseError("%s", err.Error())
}
