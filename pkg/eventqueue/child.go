package eventqueue

import (
	"sync"
	"time"

	"github.com/agentmesh/a2a-core/pkg/a2a"
)

// DefaultChildCapacity bounds each subscriber's local FIFO. A subscriber
// that falls this far behind the pipeline is force-closed.
const DefaultChildCapacity = 256

/*
ChildQueue is one subscriber's private view of a MainQueue. Writes always
go through the parent; the child only buffers what the central processor
fans out to it. Graceful close lets a consumer drain what is already
buffered, immediate close discards it.
*/
type ChildQueue struct {
	parent *MainQueue
	items  chan Item
	done   chan struct{}

	mu      sync.Mutex
	closing bool

	closeOnce sync.Once
}

func newChildQueue(parent *MainQueue, capacity int) *ChildQueue {
	if capacity <= 0 {
		capacity = DefaultChildCapacity
	}

	return &ChildQueue{
		parent: parent,
		items:  make(chan Item, capacity),
		done:   make(chan struct{}),
	}
}

/*
EnqueueEvent delegates to the parent MainQueue. Children never accept
direct writes; every event funnels through the central processor so all
subscribers observe the same order.
*/
func (c *ChildQueue) EnqueueEvent(event a2a.Event) error {
	return c.parent.EnqueueEvent(event)
}

/*
Dequeue returns the next buffered item, waiting up to timeout. After a
graceful close it keeps returning buffered items until the FIFO is
drained, then reports DequeueClosed.
*/
func (c *ChildQueue) Dequeue(timeout time.Duration) (Item, DequeueStatus) {
	select {
	case item := <-c.items:
		return item, DequeueOK
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-c.items:
		return item, DequeueOK
	case <-c.done:
		// Drain races the close signal; buffered items win.
		select {
		case item := <-c.items:
			return item, DequeueOK
		default:
			return Item{}, DequeueClosed
		}
	case <-timer.C:
		return Item{}, DequeueTimeout
	}
}

// offer is the processor-side write. It reports false on overflow so the
// parent can cut this subscriber loose without stalling the others.
func (c *ChildQueue) offer(item Item) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		// Already closed, drop silently. Not an overflow.
		return true
	}

	select {
	case c.items <- item:
		return true
	default:
		return false
	}
}

func (c *ChildQueue) Size() int {
	return len(c.items)
}

func (c *ChildQueue) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closing
}

/*
Close shuts the child down. Immediate discards anything still buffered;
graceful leaves it for the consumer to drain. When notifyParent is set
the parent runs its reference-counting step, which may close the whole
MainQueue.
*/
func (c *ChildQueue) Close(immediate, notifyParent bool) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true

		if immediate {
			for drained := false; !drained; {
				select {
				case <-c.items:
				default:
					drained = true
				}
			}
		}
		c.mu.Unlock()

		close(c.done)

		if notifyParent && c.parent != nil {
			c.parent.childClosing(c, immediate)
		}
	})
}
