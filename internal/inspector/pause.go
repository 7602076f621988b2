package inspector

// pauseState tracks the single pause loop of an inspector.
type pauseState struct {
	active               bool
	terminationRequested bool
}

// RunMessageLoop runs the pause loop for the engine's context group.
func (i *Inspector) RunMessageLoop() {
	i.RunMessageLoopOnPause(ContextGroupID)
}

// RunMessageLoopOnPause blocks script execution while the attached frontend
// has inbound traffic, draining the host scheduler between polls so timers
// and I/O callbacks keep running. It returns when QuitMessageLoopOnPause is
// called or the sink stops reporting pending messages.
//
// Calling it without an attached frontend is a programming error and panics.
// A call made while a loop is already running returns immediately.
func (i *Inspector) RunMessageLoopOnPause(contextGroupID int) {
	if i.channel == nil {
		panic("inspector: pause requested without an attached frontend")
	}
	if i.pause.active {
		return
	}

	i.pause.terminationRequested = false
	i.pause.active = true
	i.logger.Debug().Int("contextGroup", contextGroupID).Msg("paused")

	for !i.pause.terminationRequested && i.pollPending() {
		i.sched.DrainReadyTasks()
	}

	i.pause.terminationRequested = false
	i.pause.active = false
	i.logger.Debug().Int("contextGroup", contextGroupID).Msg("resumed")
}

// QuitMessageLoopOnPause makes the active pause loop exit at its next poll.
// Work already running inside the current drain is not interrupted.
func (i *Inspector) QuitMessageLoopOnPause() {
	i.pause.terminationRequested = true
}

// IsPaused reports whether a pause loop is running.
func (i *Inspector) IsPaused() bool {
	return i.pause.active
}

// pollPending checks the sink of the current channel. Disconnect clears the
// channel only after requesting termination, so a nil channel here means the
// loop is already on its way out.
func (i *Inspector) pollPending() bool {
	if i.channel == nil {
		return false
	}
	return i.channel.pollPending()
}
