// Package luabind installs the Lua-facing surface of the debugger.
//
// NewState creates a sandboxed Lua state with a restricted standard library
// and a whitelisting require. The preloadable modules are:
//
//	inspector   connect(fn), dispatch(msg), disconnect(), isAttached()
//	timer       after(ms, fn) -> id, cancel(id)
//
// The inspector module lets a script act as its own frontend. Its sink is
// push-only, so a pause entered while only this module is attached returns
// immediately instead of waiting for traffic.
package luabind
