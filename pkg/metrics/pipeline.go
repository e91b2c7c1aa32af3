package metrics

import (
	"sync"

	"github.com/agentmesh/a2a-core/pkg/a2a"
)

// PipelineMetrics counts what the event pipeline does: events accepted
// at the queue mouth, events distributed after persistence, internal
// error substitutions, and finalized tasks.
type PipelineMetrics struct {
	mu sync.RWMutex

	EnqueuedEvents    int64
	DistributedEvents int64
	Substitutions     int64
	FinalizedTasks    int64
}

func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{}
}

// RecordEnqueued counts an event accepted at a queue mouth.
func (m *PipelineMetrics) RecordEnqueued() {
	m.mu.Lock()
	m.EnqueuedEvents++
	m.mu.Unlock()
}

// Observer adapts the metrics to the processor's observer hook.
func (m *PipelineMetrics) Observer() func(taskID string, event a2a.Event) {
	return func(taskID string, event a2a.Event) {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.DistributedEvents++
		if _, ok := event.(*a2a.InternalErrorEvent); ok {
			m.Substitutions++
		}
		if a2a.IsFinalEvent(event) {
			m.FinalizedTasks++
		}
	}
}

// GetMetrics returns a snapshot of the current metrics
func (m *PipelineMetrics) GetMetrics() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]any{
		"enqueued_events":    m.EnqueuedEvents,
		"distributed_events": m.DistributedEvents,
		"substitutions":      m.Substitutions,
		"finalized_tasks":    m.FinalizedTasks,
	}
}
