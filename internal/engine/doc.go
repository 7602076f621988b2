// Package engine hosts a Lua program under the inspector.
//
// An Engine owns everything that must run on one goroutine: the Lua state,
// the host task loop, the inspector core for Lua and the single inspector
// session. Frontends on other goroutines reach it only by posting tasks to
// Loop().
//
// # Basic Usage
//
//	e := engine.New(engine.WithLogger(logger))
//	defer e.Close()
//
//	if err := e.RunFile(ctx, "main.lua"); err != nil {
//		return err // *ScriptError for uncaught Lua errors
//	}
//	return e.Run(ctx) // pending timers
//
// # Debugging
//
// Attach a frontend with frontend.NewServer(e, e.Loop(), ...), then call
// WaitForFrontend to block until the frontend sends
// Runtime.runIfWaitingForDebugger. WithBreakOnStart stops on the first line
// of every script run afterwards.
//
// # Uncaught Errors
//
// An error escaping a script or a timer callback is reported to the attached
// frontend as Runtime.exceptionThrown and returned as *ScriptError. An
// uncaught error in a timer callback stops Run.
package engine
