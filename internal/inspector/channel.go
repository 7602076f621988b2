package inspector

// channel connects one frontend sink to the inspector core.
type channel struct {
	conn   Connection
	sink   MessageSink
	poller PollingSink // nil for push-only sinks
}

// newChannel opens a core connection with an empty initial state.
func newChannel(core Core, sink MessageSink) *channel {
	c := &channel{sink: sink}
	if p, ok := sink.(PollingSink); ok {
		c.poller = p
	}
	c.conn = core.Connect(ContextGroupID, c, "")
	return c
}

// SendResponse implements ChannelCallbacks.
func (c *channel) SendResponse(callID int, message string) {
	c.send(message)
}

// SendNotification implements ChannelCallbacks.
func (c *channel) SendNotification(message string) {
	c.send(message)
}

// FlushNotifications implements ChannelCallbacks. Messages are never batched.
func (c *channel) FlushNotifications() {}

func (c *channel) send(message string) {
	c.sink.Send(message)
}

func (c *channel) dispatch(message string) {
	c.conn.Dispatch(message)
}

func (c *channel) pollPending() bool {
	if c.poller == nil {
		return false
	}
	return c.poller.HasPendingInboundMessage()
}

func (c *channel) destroy() {
	c.conn.Close()
}
