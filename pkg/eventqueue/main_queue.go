package eventqueue

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
)

const (
	// DefaultMainCapacity is the per-task semaphore size. An executor
	// with this many unprocessed events blocks until the processor
	// catches up.
	DefaultMainCapacity = 256

	// SubscriberWait bounds AwaitSubscriber for producers that must not
	// emit before a consumer is attached.
	SubscriberWait = 10 * time.Second
)

/*
TaskStateProvider reports whether a task has reached a final state. The
MainQueue consults it when its last child detaches to decide between
shutting down and staying open for late resubscribers.
*/
type TaskStateProvider func(taskID string) bool

/*
MainQueue is the single write path for one task's events. Every enqueue
acquires a semaphore permit and submits to the shared MainEventBus; the
central processor releases the permit after persistence and fan-out.
*/
type MainQueue struct {
	taskID        string
	bus           *MainEventBus
	stateProvider TaskStateProvider

	// enqueueHook mirrors accepted events to a replication target.
	enqueueHook func(Item)
	// onClosed fires once when the queue shuts down, letting the
	// QueueManager detach it.
	onClosed func(taskID string)

	permits  chan struct{}
	childCap int

	mu       sync.Mutex
	children []*ChildQueue
	closed   bool

	subscriberOnce sync.Once
	subscriber     chan struct{}

	closedOnce sync.Once
}

// MainQueueOption customizes a MainQueue at construction.
type MainQueueOption func(*MainQueue)

func WithCapacity(n int) MainQueueOption {
	return func(q *MainQueue) {
		if n > 0 {
			q.permits = make(chan struct{}, n)
		}
	}
}

func WithChildCapacity(n int) MainQueueOption {
	return func(q *MainQueue) {
		q.childCap = n
	}
}

func WithStateProvider(provider TaskStateProvider) MainQueueOption {
	return func(q *MainQueue) {
		q.stateProvider = provider
	}
}

func WithEnqueueHook(hook func(Item)) MainQueueOption {
	return func(q *MainQueue) {
		q.enqueueHook = hook
	}
}

func WithCloseCallback(callback func(taskID string)) MainQueueOption {
	return func(q *MainQueue) {
		q.onClosed = callback
	}
}

func NewMainQueue(taskID string, bus *MainEventBus, opts ...MainQueueOption) *MainQueue {
	queue := &MainQueue{
		taskID:     taskID,
		bus:        bus,
		permits:    make(chan struct{}, DefaultMainCapacity),
		childCap:   DefaultChildCapacity,
		subscriber: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(queue)
	}

	return queue
}

func (q *MainQueue) TaskID() string {
	return q.taskID
}

/*
EnqueueEvent submits an event into the pipeline. A closed queue still
admits events so late replicated events and termination markers are never
lost, but the capacity semaphore always applies.
*/
func (q *MainQueue) EnqueueEvent(event a2a.Event) error {
	return q.EnqueueItem(Item{Event: event})
}

func (q *MainQueue) EnqueueItem(item Item) error {
	if item.Event == nil {
		return errors.ErrInternal.WithMessagef("cannot enqueue a nil event")
	}

	q.permits <- struct{}{}
	q.bus.put(busEntry{taskID: q.taskID, queue: q, item: item})

	if q.enqueueHook != nil && !item.Replicated {
		q.enqueueHook(item)
	}

	return nil
}

// releasePermit is called by the processor exactly once per entry, after
// persistence and fan-out. This is the sole backpressure release.
func (q *MainQueue) releasePermit() {
	select {
	case <-q.permits:
	default:
		log.Error("permit release without matching acquire", "task", q.taskID)
	}
}

/*
Tap registers a new ChildQueue. Events enqueued before the tap are not
replayed. Tapping a closed queue returns a child that reports closed on
the first dequeue.
*/
func (q *MainQueue) Tap() *ChildQueue {
	child := newChildQueue(q, q.childCap)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		child.Close(true, false)
		return child
	}

	children := make([]*ChildQueue, len(q.children), len(q.children)+1)
	copy(children, q.children)
	q.children = append(children, child)
	q.mu.Unlock()

	q.subscriberOnce.Do(func() { close(q.subscriber) })

	return child
}

/*
AwaitSubscriber blocks until at least one child has tapped the queue,
bounded by SubscriberWait. Producers use it to avoid emitting into the
void when the consumer attaches asynchronously.
*/
func (q *MainQueue) AwaitSubscriber() error {
	select {
	case <-q.subscriber:
		return nil
	case <-time.After(SubscriberWait):
		return errors.ErrInternal.WithMessagef("no subscriber attached to task %s", q.taskID)
	}
}

// distribute fans one item out to every current child. A child that
// cannot accept it is closed immediately so it cannot stall the rest.
func (q *MainQueue) distribute(item Item) {
	q.mu.Lock()
	children := q.children
	q.mu.Unlock()

	for _, child := range children {
		if !child.offer(item) {
			log.Warn("dropping slow subscriber", "task", q.taskID, "buffered", child.Size())
			child.Close(true, false)
			q.dropChild(child)
		}
	}
}

// dropChild removes an overflowed child without the immediate-close
// escalation of childClosing; the other subscribers stay attached.
func (q *MainQueue) dropChild(child *ChildQueue) {
	remaining := q.removeChild(child)

	if remaining == 0 && q.stateProvider != nil && q.stateProvider(q.taskID) {
		q.Close(false)
	}
}

func (q *MainQueue) ChildCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.children)
}

func (q *MainQueue) Size() int {
	return len(q.permits)
}

func (q *MainQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.closed
}

/*
childClosing is the reference-counting step. An immediate child close
tears the whole queue down. Otherwise the queue stays open while children
remain, and when the last one detaches it only closes if the task is
already finalized; an unfinalized task keeps the queue alive for late
resubscribers.
*/
func (q *MainQueue) childClosing(child *ChildQueue, immediate bool) {
	remaining := q.removeChild(child)

	if immediate {
		q.Close(true)
		return
	}

	if remaining > 0 {
		return
	}

	if q.stateProvider != nil && q.stateProvider(q.taskID) {
		q.Close(false)
	}
}

// removeChild detaches a child from the copy-on-write list and returns
// how many remain.
func (q *MainQueue) removeChild(child *ChildQueue) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, existing := range q.children {
		if existing == child {
			children := make([]*ChildQueue, 0, len(q.children)-1)
			children = append(children, q.children[:i]...)
			children = append(children, q.children[i+1:]...)
			q.children = children
			break
		}
	}

	return len(q.children)
}

/*
Close shuts the queue down and closes every remaining child with the same
immediacy. Enqueues submitted after close are still admitted (see
EnqueueEvent); the processor simply finds no children to deliver to.
*/
func (q *MainQueue) Close(immediate bool) {
	q.closedOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		children := q.children
		q.children = nil
		q.mu.Unlock()

		for _, child := range children {
			child.Close(immediate, false)
		}

		if q.onClosed != nil {
			q.onClosed(q.taskID)
		}
	})
}
