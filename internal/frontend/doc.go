// Package frontend connects debugger frontends to an inspector session.
//
// A frontend is anything that speaks the JSON protocol: an in-process
// callback, a byte stream using Content-Length framing, or a WebSocket
// client attached through Server.
//
//	┌──────────────┐  reader goroutine  ┌──────────────┐
//	│   frontend   │ ────── Post ─────▶ │ engine loop  │
//	│ (ws/stream)  │                    │  Dispatch()  │
//	│              │ ◀───── Send ────── │  Inspector   │
//	└──────────────┘                    └──────────────┘
//
// Inbound messages never touch the inspector from the reader goroutine.
// They are posted to the engine's scheduler so that every inspector call
// happens on the thread that runs Lua, including while execution is paused.
//
// Remote sinks implement inspector.PollingSink. HasPendingInboundMessage
// waits up to a poll interval for traffic and reports whether the frontend
// is still connected, which keeps a paused engine draining posted messages
// until it is resumed or the frontend goes away.
package frontend
