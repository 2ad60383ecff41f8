package metrics

import "sync/atomic"

// Connections is a process-wide counter of live WebSocket sessions. It is
// created once at startup and injected into the components that need it,
// rather than living as package-level mutable state.
type Connections struct {
	active atomic.Int64
	total  atomic.Int64
}

// NewConnections creates a zeroed counter.
func NewConnections() *Connections {
	return &Connections{}
}

// Opened records a new session and returns the active count after it.
func (c *Connections) Opened() int64 {
	c.total.Add(1)
	return c.active.Add(1)
}

// Closed records a finished session and returns the active count after it.
func (c *Connections) Closed() int64 {
	return c.active.Add(-1)
}

// Active returns the number of currently open sessions.
func (c *Connections) Active() int64 {
	return c.active.Load()
}

// Total returns the number of sessions opened since startup.
func (c *Connections) Total() int64 {
	return c.total.Load()
}
