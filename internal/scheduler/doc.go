// Package scheduler provides the host's cooperative task loop.
//
// A Loop has exactly one consumer goroutine, the engine goroutine, which runs
// tasks through DrainReadyTasks, RunUntil or Run. Any goroutine may post
// tasks; network transports use this to hand inbound traffic to the engine.
//
// # Draining
//
// DrainReadyTasks runs every task that is ready at the time of the call,
// including timers that have come due and tasks posted by the tasks it runs.
// It never waits for new work, which makes it safe to call from inside a
// debugger pause.
//
// # Panic Recovery
//
// A panicking task does not take the loop down. The panic is reported to the
// configured PanicHandler and the loop continues with the next task.
//
// # Usage
//
//	loop := scheduler.New()
//	loop.PostDelayed(10*time.Millisecond, func() { fmt.Println("tick") })
//	if err := loop.Run(ctx); err != nil {
//	    // ctx was cancelled
//	}
package scheduler
