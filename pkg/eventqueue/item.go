package eventqueue

import "github.com/agentmesh/a2a-core/pkg/a2a"

/*
Item is the unit carried through the queue pipeline. Replicated marks
events mirrored in from another instance, which must not trigger the
replication hook again.
*/
type Item struct {
	Event      a2a.Event
	Replicated bool
}

// DequeueStatus tells a consumer why Dequeue returned.
type DequeueStatus int

const (
	// DequeueOK means an item was returned.
	DequeueOK DequeueStatus = iota
	// DequeueTimeout means the wait elapsed with the queue still open.
	DequeueTimeout
	// DequeueClosed means the queue is closed and drained.
	DequeueClosed
)
