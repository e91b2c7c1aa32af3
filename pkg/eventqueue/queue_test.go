package eventqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
	"github.com/agentmesh/a2a-core/pkg/state"
	"github.com/agentmesh/a2a-core/pkg/stores"
)

// flakyStore fails Save on configured call numbers, counting from 1.
type flakyStore struct {
	*stores.InMemoryTaskStore

	mu     sync.Mutex
	saves  int
	failOn map[int]bool
}

func newFlakyStore(failOn ...int) *flakyStore {
	fails := make(map[int]bool, len(failOn))
	for _, n := range failOn {
		fails[n] = true
	}

	return &flakyStore{InMemoryTaskStore: stores.NewInMemoryTaskStore(), failOn: fails}
}

func (s *flakyStore) Save(ctx context.Context, task *a2a.Task) error {
	s.mu.Lock()
	s.saves++
	fail := s.failOn[s.saves]
	s.mu.Unlock()

	if fail {
		return errors.NewPersistenceError("save", task.ID, errors.StoreErrorTransient, assertionError("injected save failure"))
	}

	return s.InMemoryTaskStore.Save(ctx, task)
}

type assertionError string

func (e assertionError) Error() string { return string(e) }

func startPipeline(t *testing.T, store stores.TaskStore, busOpts ...ProcessorOption) (*MainEventBus, *state.TaskManager, context.CancelFunc) {
	t.Helper()

	bus := NewMainEventBus(0)
	manager := state.NewTaskManager(store)
	processor := NewProcessor(bus, manager, busOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	processor.Start(ctx)
	t.Cleanup(func() {
		cancel()
		processor.Wait()
	})

	return bus, manager, cancel
}

func working(taskID string) *a2a.TaskStatusUpdateEvent {
	return &a2a.TaskStatusUpdateEvent{
		TaskID: taskID,
		Status: a2a.TaskStatus{State: a2a.TaskStateWorking},
	}
}

func completed(taskID string) *a2a.TaskStatusUpdateEvent {
	return &a2a.TaskStatusUpdateEvent{
		TaskID: taskID,
		Status: a2a.TaskStatus{State: a2a.TaskStateCompleted},
		Final:  true,
	}
}

func TestPersistBeforeVisibility(t *testing.T) {
	store := stores.NewInMemoryTaskStore()
	bus, _, _ := startPipeline(t, store)

	queue := NewMainQueue("t1", bus)
	child := queue.Tap()

	// One event in flight at a time, so the store must hold exactly the
	// fold of the event just made visible.
	require.NoError(t, queue.EnqueueEvent(a2a.NewTask("t1", "c1")))

	item, status := child.Dequeue(time.Second)
	require.Equal(t, DequeueOK, status)
	assert.Equal(t, a2a.EventKindTask, item.Event.EventKind())

	task, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateSubmitted, task.Status.State)

	require.NoError(t, queue.EnqueueEvent(working("t1")))

	item, status = child.Dequeue(time.Second)
	require.Equal(t, DequeueOK, status)
	assert.Equal(t, a2a.EventKindStatusUpdate, item.Event.EventKind())

	task, err = store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateWorking, task.Status.State)
}

func TestPerTaskFIFO(t *testing.T) {
	bus, _, _ := startPipeline(t, stores.NewInMemoryTaskStore())

	queue := NewMainQueue("t1", bus)
	child := queue.Tap()

	require.NoError(t, queue.EnqueueEvent(a2a.NewTask("t1", "c1")))
	for i := 0; i < 5; i++ {
		require.NoError(t, queue.EnqueueEvent(working("t1")))
	}
	require.NoError(t, queue.EnqueueEvent(completed("t1")))

	kinds := make([]a2a.EventKind, 0, 7)
	for i := 0; i < 7; i++ {
		item, status := child.Dequeue(time.Second)
		require.Equal(t, DequeueOK, status)
		kinds = append(kinds, item.Event.EventKind())
	}

	assert.Equal(t, a2a.EventKindTask, kinds[0])
	for i := 1; i < 7; i++ {
		assert.Equal(t, a2a.EventKindStatusUpdate, kinds[i])
	}
}

func TestBackpressureBlocksAtCapacity(t *testing.T) {
	// No processor is draining, so permits are never released.
	bus := NewMainEventBus(0)
	queue := NewMainQueue("t1", bus, WithCapacity(2))

	require.NoError(t, queue.EnqueueEvent(working("t1")))
	require.NoError(t, queue.EnqueueEvent(working("t1")))

	blocked := make(chan struct{})
	go func() {
		_ = queue.EnqueueEvent(working("t1"))
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("third enqueue should block until a permit is released")
	case <-time.After(100 * time.Millisecond):
	}

	queue.releasePermit()

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("enqueue did not resume after permit release")
	}
}

func TestFanOutIsolation(t *testing.T) {
	bus := NewMainEventBus(0)
	queue := NewMainQueue("t1", bus, WithChildCapacity(1))

	slow := queue.Tap()
	fast := queue.Tap()

	queue.distribute(Item{Event: working("t1")})

	// The fast subscriber keeps up, the slow one never reads.
	_, status := fast.Dequeue(time.Second)
	require.Equal(t, DequeueOK, status)

	queue.distribute(Item{Event: completed("t1")})

	assert.True(t, slow.IsClosed())
	assert.False(t, queue.IsClosed())
	assert.Equal(t, 1, queue.ChildCount())

	item, status := fast.Dequeue(time.Second)
	require.Equal(t, DequeueOK, status)
	assert.Equal(t, a2a.EventKindStatusUpdate, item.Event.EventKind())
}

func TestReferenceCounting(t *testing.T) {
	finalized := false
	bus := NewMainEventBus(0)
	queue := NewMainQueue("t1", bus, WithStateProvider(func(string) bool {
		return finalized
	}))

	first := queue.Tap()
	first.Close(false, true)

	// Task not finalized: the queue stays open for late resubscribers.
	assert.False(t, queue.IsClosed())

	second := queue.Tap()
	finalized = true
	second.Close(false, true)

	assert.True(t, queue.IsClosed())
}

func TestImmediateChildCloseTearsDownQueue(t *testing.T) {
	bus := NewMainEventBus(0)
	queue := NewMainQueue("t1", bus)

	a := queue.Tap()
	b := queue.Tap()

	a.Close(true, true)

	assert.True(t, queue.IsClosed())
	assert.True(t, b.IsClosed())
}

func TestGracefulChildCloseDrains(t *testing.T) {
	bus := NewMainEventBus(0)
	queue := NewMainQueue("t1", bus)

	child := queue.Tap()
	queue.distribute(Item{Event: working("t1")})
	queue.distribute(Item{Event: completed("t1")})

	child.Close(false, false)

	_, status := child.Dequeue(time.Millisecond)
	assert.Equal(t, DequeueOK, status)
	_, status = child.Dequeue(time.Millisecond)
	assert.Equal(t, DequeueOK, status)
	_, status = child.Dequeue(time.Millisecond)
	assert.Equal(t, DequeueClosed, status)
}

func TestImmediateChildCloseDiscards(t *testing.T) {
	bus := NewMainEventBus(0)
	queue := NewMainQueue("t1", bus)

	child := queue.Tap()
	queue.distribute(Item{Event: working("t1")})

	child.Close(true, false)

	_, status := child.Dequeue(time.Millisecond)
	assert.Equal(t, DequeueClosed, status)
}

func TestTapDoesNotReplay(t *testing.T) {
	bus, _, _ := startPipeline(t, stores.NewInMemoryTaskStore())

	queue := NewMainQueue("t1", bus)
	early := queue.Tap()

	require.NoError(t, queue.EnqueueEvent(a2a.NewTask("t1", "c1")))
	require.NoError(t, queue.EnqueueEvent(working("t1")))

	// Wait until the early subscriber has seen both events, so the tap
	// below is strictly after WORKING was distributed.
	for i := 0; i < 2; i++ {
		_, status := early.Dequeue(time.Second)
		require.Equal(t, DequeueOK, status)
	}

	late := queue.Tap()
	require.NoError(t, queue.EnqueueEvent(completed("t1")))

	item, status := late.Dequeue(time.Second)
	require.Equal(t, DequeueOK, status)
	update, ok := item.Event.(*a2a.TaskStatusUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, a2a.TaskStateCompleted, update.Status.State)

	item, status = early.Dequeue(time.Second)
	require.Equal(t, DequeueOK, status)
	update, ok = item.Event.(*a2a.TaskStatusUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, a2a.TaskStateCompleted, update.Status.State)
}

func TestPersistFailureSubstitution(t *testing.T) {
	// Save 1 is the snapshot, save 2 (WORKING) fails, save 3 succeeds.
	store := newFlakyStore(2)
	bus, _, _ := startPipeline(t, store)

	queue := NewMainQueue("t1", bus)
	child := queue.Tap()

	// One event in flight at a time, so the store checks below see
	// exactly the persistence outcome of the dequeued event.
	require.NoError(t, queue.EnqueueEvent(a2a.NewTask("t1", "c1")))

	item, status := child.Dequeue(time.Second)
	require.Equal(t, DequeueOK, status)
	assert.Equal(t, a2a.EventKindTask, item.Event.EventKind())

	require.NoError(t, queue.EnqueueEvent(working("t1")))

	item, status = child.Dequeue(time.Second)
	require.Equal(t, DequeueOK, status)
	require.Equal(t, a2a.EventKindInternalError, item.Event.EventKind())

	// The failed WORKING event must not have touched the store.
	task, err := store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateSubmitted, task.Status.State)

	require.NoError(t, queue.EnqueueEvent(completed("t1")))

	item, status = child.Dequeue(time.Second)
	require.Equal(t, DequeueOK, status)
	assert.Equal(t, a2a.EventKindStatusUpdate, item.Event.EventKind())

	task, err = store.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
}

func TestProcessorReleasesPermitOnFailure(t *testing.T) {
	store := newFlakyStore(1, 2, 3, 4)
	bus, _, _ := startPipeline(t, store)

	queue := NewMainQueue("t1", bus, WithCapacity(2))
	child := queue.Tap()

	// With two permits, four enqueues only complete if the processor
	// releases permits for failed persists too.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			_ = queue.EnqueueEvent(working("t1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueues stalled, permits were not released")
	}

	for i := 0; i < 4; i++ {
		item, status := child.Dequeue(time.Second)
		require.Equal(t, DequeueOK, status)
		assert.Equal(t, a2a.EventKindInternalError, item.Event.EventKind())
	}
}

func TestFinalizedCallback(t *testing.T) {
	finalized := make(chan string, 1)
	bus, _, _ := startPipeline(t, stores.NewInMemoryTaskStore(),
		WithFinalizedCallback(func(taskID string) {
			finalized <- taskID
		}))

	queue := NewMainQueue("t1", bus)
	_ = queue.Tap()

	require.NoError(t, queue.EnqueueEvent(a2a.NewTask("t1", "c1")))
	require.NoError(t, queue.EnqueueEvent(completed("t1")))

	select {
	case taskID := <-finalized:
		assert.Equal(t, "t1", taskID)
	case <-time.After(time.Second):
		t.Fatal("finalized callback never fired")
	}
}

func TestAwaitSubscriber(t *testing.T) {
	bus := NewMainEventBus(0)
	queue := NewMainQueue("t1", bus)

	ready := make(chan error, 1)
	go func() {
		ready <- queue.AwaitSubscriber()
	}()

	time.Sleep(20 * time.Millisecond)
	queue.Tap()

	select {
	case err := <-ready:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("AwaitSubscriber did not observe the tap")
	}
}

func TestManagerCreateOrTap(t *testing.T) {
	bus := NewMainEventBus(0)
	manager := NewManager(bus)

	child := manager.CreateOrTap("t1")
	require.NotNil(t, child)
	require.NotNil(t, manager.Get("t1"))

	// Second call taps the same queue.
	again := manager.CreateOrTap("t1")
	require.NotNil(t, again)
	assert.Equal(t, 2, manager.Get("t1").ChildCount())

	assert.Nil(t, manager.Tap("t2"))
	assert.Nil(t, manager.Get("t2"))
}

func TestManagerCloseDetaches(t *testing.T) {
	bus := NewMainEventBus(0)
	manager := NewManager(bus)

	child := manager.CreateOrTap("t1")
	manager.Close("t1")

	assert.Nil(t, manager.Get("t1"))

	_, status := child.Dequeue(time.Millisecond)
	assert.Equal(t, DequeueClosed, status)
}

func TestManagerDetachesOnQueueShutdown(t *testing.T) {
	bus := NewMainEventBus(0)
	manager := NewManager(bus, WithStateProvider(func(string) bool { return true }))

	child := manager.CreateOrTap("t1")
	child.Close(false, true)

	assert.Nil(t, manager.Get("t1"))
}

func TestManagerConcurrentCreateOrTap(t *testing.T) {
	bus := NewMainEventBus(0)
	manager := NewManager(bus)

	var wg sync.WaitGroup
	children := make([]*ChildQueue, 8)
	for i := range children {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			children[i] = manager.CreateOrTap("t1")
		}(i)
	}
	wg.Wait()

	queue := manager.Get("t1")
	require.NotNil(t, queue)
	assert.Equal(t, 8, queue.ChildCount())
}
