// Package inspector bridges a script engine's inspector core to a single
// debugging frontend.
//
// The package is organized around three pieces that all run on the engine
// goroutine:
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                         Inspector                               │
//	│  - Session state machine: Idle → Attached → Idle                │
//	│  - Pause loop: pumps the host scheduler while paused            │
//	│  - Fatal exception reporting                                    │
//	└─────────────────────────────────────────────────────────────────┘
//	                              │
//	                              ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│                          channel                                │
//	│  - Owns the live connection into the inspector core             │
//	│  - Delivers every core-emitted message to the MessageSink       │
//	└─────────────────────────────────────────────────────────────────┘
//
// # Sessions
//
// At most one frontend is attached at a time. Connect fails with
// ErrAlreadyAttached while a session exists, and Dispatch and Disconnect fail
// with ErrNotAttached when none does.
//
// # Pausing
//
// When the core requests a synchronous pause, RunMessageLoopOnPause keeps
// draining the host scheduler for as long as the sink reports pending inbound
// traffic. QuitMessageLoopOnPause ends the loop at its next poll. Nested pause
// requests return immediately and are served by the outer loop.
//
// # Concurrency
//
// Nothing in this package is safe for concurrent use. Transports that read on
// their own goroutines must hand inbound messages to the engine goroutine
// through the host scheduler.
package inspector
