// Package luacore implements a minimal inspector core for gopher-lua.
//
// The core owns the engine's single execution context and the script
// registry. It speaks just enough of the remote-debugging protocol to run a
// session: enabling the Runtime and Debugger domains, pausing and resuming
// execution, and reporting uncaught exceptions. Everything else is answered
// with a method-not-found error.
//
// # Pausing
//
// Lua code pauses by calling the debugger() builtin. When a connection has
// the Debugger domain enabled, the core emits Debugger.paused with the
// current Lua call frames and hands control to the client's pause loop until
// Debugger.resume arrives or the frontend disconnects.
//
// # Messages
//
// Inbound messages are parsed with gjson and outbound messages are built
// with sjson, so the core never round-trips protocol traffic through Go
// structs.
package luacore
