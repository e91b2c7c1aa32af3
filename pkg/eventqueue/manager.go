package eventqueue

import (
	"sync"
)

/*
Manager maps task ids to their MainQueues. CreateOrTap is atomic: when
two callers race to create the queue for a task, the loser discards its
freshly built queue and taps the winner, so a task never has two write
paths.
*/
type Manager struct {
	bus    *MainEventBus
	opts   []MainQueueOption
	queues sync.Map // taskID -> *MainQueue
}

func NewManager(bus *MainEventBus, opts ...MainQueueOption) *Manager {
	return &Manager{bus: bus, opts: opts}
}

/*
CreateOrTap returns a fresh ChildQueue on the task's MainQueue, creating
the MainQueue when the task has none yet.
*/
func (m *Manager) CreateOrTap(taskID string) *ChildQueue {
	if existing, ok := m.queues.Load(taskID); ok {
		return existing.(*MainQueue).Tap()
	}

	opts := make([]MainQueueOption, 0, len(m.opts)+1)
	opts = append(opts, m.opts...)
	opts = append(opts, WithCloseCallback(m.detach))

	built := NewMainQueue(taskID, m.bus, opts...)

	actual, loaded := m.queues.LoadOrStore(taskID, built)
	if loaded {
		// Lost the race; the built queue was never exposed.
		return actual.(*MainQueue).Tap()
	}

	return built.Tap()
}

// Get returns the MainQueue without tapping, for enqueue-only callers.
func (m *Manager) Get(taskID string) *MainQueue {
	if queue, ok := m.queues.Load(taskID); ok {
		return queue.(*MainQueue)
	}

	return nil
}

// Tap attaches a subscriber to an existing queue, nil when the task has
// no live queue.
func (m *Manager) Tap(taskID string) *ChildQueue {
	if queue, ok := m.queues.Load(taskID); ok {
		return queue.(*MainQueue).Tap()
	}

	return nil
}

/*
Close detaches and closes the task's MainQueue. Children drain gracefully.
*/
func (m *Manager) Close(taskID string) {
	if queue, ok := m.queues.LoadAndDelete(taskID); ok {
		queue.(*MainQueue).Close(false)
	}
}

// detach is the MainQueue close callback; it only removes the map entry.
func (m *Manager) detach(taskID string) {
	m.queues.Delete(taskID)
}
