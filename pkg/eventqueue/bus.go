package eventqueue

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/state"
)

// DefaultBusCapacity sizes the shared bus channel. Per-task semaphores
// bound what any one task can park here.
const DefaultBusCapacity = 1024

type busEntry struct {
	taskID string
	queue  *MainQueue
	item   Item
}

/*
MainEventBus is the single FIFO every MainQueue submits into. One channel
for the whole process gives a total order of persistence attempts, which
is what makes persist-before-visibility cheap to guarantee.
*/
type MainEventBus struct {
	entries chan busEntry
}

func NewMainEventBus(capacity int) *MainEventBus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}

	return &MainEventBus{entries: make(chan busEntry, capacity)}
}

func (b *MainEventBus) put(entry busEntry) {
	b.entries <- entry
}

/*
PushNotifier delivers task snapshots to registered webhooks. The
processor invokes it asynchronously after each successful persist.
*/
type PushNotifier interface {
	NotifyTask(ctx context.Context, task *a2a.Task)
}

/*
Processor is the single consumer of the MainEventBus. For each entry it
persists through the TaskManager, substitutes an internal-error event
when persistence fails, kicks off push notifications, fans out to the
task's children, and finally releases the producer's semaphore permit.
*/
type Processor struct {
	bus     *MainEventBus
	manager *state.TaskManager

	notifier PushNotifier

	// observer sees every distributed event; onTaskFinalized fires when
	// a distributed event terminates the task's stream.
	observer        func(taskID string, event a2a.Event)
	onTaskFinalized func(taskID string)

	wg sync.WaitGroup
}

type ProcessorOption func(*Processor)

func WithPushNotifier(notifier PushNotifier) ProcessorOption {
	return func(p *Processor) {
		p.notifier = notifier
	}
}

func WithObserver(observer func(taskID string, event a2a.Event)) ProcessorOption {
	return func(p *Processor) {
		p.observer = observer
	}
}

func WithFinalizedCallback(callback func(taskID string)) ProcessorOption {
	return func(p *Processor) {
		p.onTaskFinalized = callback
	}
}

func NewProcessor(bus *MainEventBus, manager *state.TaskManager, opts ...ProcessorOption) *Processor {
	processor := &Processor{bus: bus, manager: manager}

	for _, opt := range opts {
		opt(processor)
	}

	return processor
}

/*
Start launches the consumer goroutine. It drains until the context is
canceled; Wait blocks until the goroutine exits.
*/
func (p *Processor) Start(ctx context.Context) {
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case entry := <-p.bus.entries:
				p.process(ctx, entry)
			}
		}
	}()
}

func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) process(ctx context.Context, entry busEntry) {
	// The permit must come back no matter what happens below.
	defer entry.queue.releasePermit()

	distributed := entry.item

	task, err := p.manager.Apply(ctx, entry.item.Event)
	if err != nil {
		log.Error("failed to persist event", "task", entry.taskID, "error", err)
		distributed = Item{
			Event: &a2a.InternalErrorEvent{
				TaskID:    entry.taskID,
				ContextID: a2a.EventContextID(entry.item.Event),
				Message:   "failed to persist event: " + err.Error(),
			},
			Replicated: entry.item.Replicated,
		}
	} else if p.notifier != nil && task != nil {
		go p.notifier.NotifyTask(ctx, task)
	}

	entry.queue.distribute(distributed)

	if p.observer != nil {
		p.observer(entry.taskID, distributed.Event)
	}

	if p.onTaskFinalized != nil && a2a.IsFinalEvent(distributed.Event) {
		p.onTaskFinalized(entry.taskID)
	}
}
