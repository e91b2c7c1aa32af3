package service

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
	"github.com/agentmesh/a2a-core/pkg/eventqueue"
	"github.com/agentmesh/a2a-core/pkg/state"
	"github.com/agentmesh/a2a-core/pkg/stores"
)

const (
	// dequeuePoll is the bounded wait per Dequeue call in consume loops.
	dequeuePoll = 500 * time.Millisecond

	// cancelWait bounds how long OnCancelTask waits for the executor's
	// canceled status to be persisted before returning the task as-is.
	cancelWait = 5 * time.Second
)

/*
RequestHandler implements the transport-independent operation surface.
Every transport adapter (JSON-RPC, REST, gRPC) funnels into one instance,
so protocol semantics live here and the adapters stay thin.
*/
type RequestHandler struct {
	card         a2a.AgentCard
	extendedCard *a2a.AgentCard

	tasks       stores.TaskStore
	pushConfigs stores.PushConfigStore
	manager     *state.TaskManager
	queues      *eventqueue.Manager
	executor    AgentExecutor

	// cancels maps taskID to the running executor's cancel func.
	cancels sync.Map
}

type HandlerOption func(*RequestHandler)

func WithExtendedCard(card *a2a.AgentCard) HandlerOption {
	return func(h *RequestHandler) {
		h.extendedCard = card
	}
}

func NewRequestHandler(
	card a2a.AgentCard,
	tasks stores.TaskStore,
	pushConfigs stores.PushConfigStore,
	manager *state.TaskManager,
	queues *eventqueue.Manager,
	executor AgentExecutor,
	opts ...HandlerOption,
) *RequestHandler {
	handler := &RequestHandler{
		card:        card,
		tasks:       tasks,
		pushConfigs: pushConfigs,
		manager:     manager,
		queues:      queues,
		executor:    executor,
	}

	for _, opt := range opts {
		opt(handler)
	}

	return handler
}

/*
ValidateCall enforces the protocol version and required-extension rules
before any operation runs. Transports call it once per request.
*/
func (h *RequestHandler) ValidateCall(call *ServerCallContext) error {
	if call == nil {
		return nil
	}

	if call.Version != "" && call.Version != ProtocolVersion {
		return errors.ErrVersionNotSupported.WithMessagef(
			"protocol version %s not supported, server speaks %s", call.Version, ProtocolVersion)
	}

	requested := make(map[string]bool, len(call.Extensions))
	for _, uri := range call.Extensions {
		requested[uri] = true
	}

	for _, ext := range h.card.Capabilities.Extensions {
		if ext.Required && !requested[ext.URI] {
			return errors.ErrExtensionSupportRequired.WithMessagef(
				"extension %s is required by this agent", ext.URI)
		}
	}

	for _, uri := range call.Extensions {
		for _, ext := range h.card.Capabilities.Extensions {
			if ext.URI == uri {
				call.ActivateExtension(uri)
			}
		}
	}

	return nil
}

// AgentCard returns the public card.
func (h *RequestHandler) AgentCard() a2a.AgentCard {
	return h.card
}

/*
ExtendedAgentCard returns the richer card served to authenticated
callers.
*/
func (h *RequestHandler) ExtendedAgentCard(call *ServerCallContext) (*a2a.AgentCard, error) {
	if !h.card.SupportsAuthenticatedExtendedCard || h.extendedCard == nil {
		return nil, errors.ErrExtendedCardNotConfigured.WithMessagef("no extended card configured")
	}

	if !call.Authenticated() {
		return nil, errors.ErrAuthentication.WithMessagef("extended card requires authentication")
	}

	return h.extendedCard, nil
}

// resolveRequest normalizes ids and loads the canonical task, rejecting
// sends that target an already-finalized task.
func (h *RequestHandler) resolveRequest(ctx context.Context, params a2a.MessageSendParams, call *ServerCallContext) (*RequestContext, error) {
	if params.Message == nil {
		return nil, errors.ErrInvalidParams.WithMessagef("message is required")
	}

	if err := params.Message.Validate(); err != nil {
		return nil, err
	}

	reqCtx := &RequestContext{
		TaskID:    params.Message.TaskID,
		ContextID: params.Message.ContextID,
		Params:    params,
		Call:      call,
	}

	if reqCtx.TaskID == "" {
		reqCtx.TaskID = uuid.NewString()
	}
	if reqCtx.ContextID == "" {
		reqCtx.ContextID = uuid.NewString()
	}
	params.Message.TaskID = reqCtx.TaskID
	params.Message.ContextID = reqCtx.ContextID

	task, err := h.manager.Current(ctx, reqCtx.TaskID)
	if err != nil {
		return nil, err
	}

	if task != nil {
		if task.Status.State.IsFinal() {
			return nil, errors.ErrInvalidParams.WithMessagef(
				"task %s is already in final state %s", reqCtx.TaskID, task.Status.State)
		}
		reqCtx.ContextID = task.ContextID
		reqCtx.Task = task
	}

	return reqCtx, nil
}

// startExecutor launches the agent on its own goroutine with a cancel
// handle the cancel operation can fire later.
func (h *RequestHandler) startExecutor(reqCtx *RequestContext, queue *eventqueue.MainQueue) {
	// The executor outlives the request context; only OnCancelTask or
	// its own completion stops it.
	execCtx, cancel := context.WithCancel(context.Background())
	h.cancels.Store(reqCtx.TaskID, cancel)

	go func() {
		defer cancel()
		defer h.cancels.Delete(reqCtx.TaskID)

		if err := h.executor.Execute(execCtx, reqCtx, queue); err != nil {
			log.Error("executor failed", "task", reqCtx.TaskID, "error", err)
		}
	}()
}

func (h *RequestHandler) savePushConfigFromSend(ctx context.Context, taskID string, params a2a.MessageSendParams) error {
	if params.Configuration == nil || params.Configuration.PushNotificationConfig == nil {
		return nil
	}

	if !h.card.Capabilities.PushNotifications {
		return errors.ErrPushNotificationNotSupported.WithMessagef("agent does not support push notifications")
	}

	_, err := h.pushConfigs.Save(ctx, taskID, params.Configuration.PushNotificationConfig)
	return err
}

/*
OnMessageSend is the blocking send. It taps the task's queue, starts the
executor, and consumes events until the task reaches a terminal point,
then returns the canonical task (or the agent's direct message reply).
*/
func (h *RequestHandler) OnMessageSend(ctx context.Context, params a2a.MessageSendParams, call *ServerCallContext) (a2a.Event, error) {
	if err := h.ValidateCall(call); err != nil {
		return nil, err
	}

	reqCtx, err := h.resolveRequest(ctx, params, call)
	if err != nil {
		return nil, err
	}

	if err := h.savePushConfigFromSend(ctx, reqCtx.TaskID, params); err != nil {
		return nil, err
	}

	child := h.queues.CreateOrTap(reqCtx.TaskID)
	defer child.Close(false, true)

	queue := h.queues.Get(reqCtx.TaskID)
	h.startExecutor(reqCtx, queue)

	blocking := true
	if params.Configuration != nil && params.Configuration.Blocking != nil {
		blocking = *params.Configuration.Blocking
	}

	for {
		item, status := child.Dequeue(dequeuePoll)

		switch status {
		case eventqueue.DequeueClosed:
			return h.currentOrError(ctx, reqCtx.TaskID)
		case eventqueue.DequeueTimeout:
			if ctx.Err() != nil {
				return nil, errors.ErrInternal.WithMessagef("request canceled: %v", ctx.Err())
			}
			continue
		}

		switch ev := item.Event.(type) {
		case *a2a.Message:
			// A direct message reply ends a send without a task record.
			return ev, nil
		case *a2a.InternalErrorEvent:
			return nil, errors.ErrInternal.WithMessagef("%s", ev.Message)
		}

		if a2a.IsFinalEvent(item.Event) {
			return h.currentOrError(ctx, reqCtx.TaskID)
		}

		if !blocking {
			// Non-blocking send returns as soon as the task exists.
			return h.currentOrError(ctx, reqCtx.TaskID)
		}
	}
}

func (h *RequestHandler) currentOrError(ctx context.Context, taskID string) (a2a.Event, error) {
	task, err := h.manager.Current(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, errors.ErrTaskNotFound.WithMessagef("task %s not found", taskID)
	}

	return task, nil
}

/*
OnMessageSendStream starts the executor and returns a live event stream.
The stream terminates on the task's final event or when ctx is canceled.
*/
func (h *RequestHandler) OnMessageSendStream(ctx context.Context, params a2a.MessageSendParams, call *ServerCallContext) (<-chan a2a.Event, error) {
	if err := h.ValidateCall(call); err != nil {
		return nil, err
	}

	if !h.card.Capabilities.Streaming {
		return nil, errors.ErrUnsupportedOperation.WithMessagef("agent does not support streaming")
	}

	reqCtx, err := h.resolveRequest(ctx, params, call)
	if err != nil {
		return nil, err
	}

	if err := h.savePushConfigFromSend(ctx, reqCtx.TaskID, params); err != nil {
		return nil, err
	}

	child := h.queues.CreateOrTap(reqCtx.TaskID)
	queue := h.queues.Get(reqCtx.TaskID)
	h.startExecutor(reqCtx, queue)

	return Bridge(ctx, child, call), nil
}

/*
OnSubscribeToTask attaches to a running task's stream. Nothing is
replayed; the subscriber sees only events distributed after the tap. A
finalized task yields its snapshot and a completed stream.
*/
func (h *RequestHandler) OnSubscribeToTask(ctx context.Context, params a2a.TaskIDParams, call *ServerCallContext) (<-chan a2a.Event, error) {
	if err := h.ValidateCall(call); err != nil {
		return nil, err
	}

	if !h.card.Capabilities.Streaming {
		return nil, errors.ErrUnsupportedOperation.WithMessagef("agent does not support streaming")
	}

	task, err := h.manager.Current(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, errors.ErrTaskNotFound.WithMessagef("task %s not found", params.ID)
	}

	if task.Status.State.IsFinal() {
		// Nothing further will ever arrive; deliver the snapshot and end.
		out := make(chan a2a.Event, 1)
		out <- task
		close(out)
		return out, nil
	}

	child := h.queues.CreateOrTap(params.ID)

	return Bridge(ctx, child, call), nil
}

/*
OnCancelTask signals the executor and waits, bounded, for the canceled
state to be persisted. Final states reject with TaskNotCancelable and no
side effects.
*/
func (h *RequestHandler) OnCancelTask(ctx context.Context, params a2a.TaskIDParams, call *ServerCallContext) (*a2a.Task, error) {
	if err := h.ValidateCall(call); err != nil {
		return nil, err
	}

	task, err := h.tasks.Get(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	if !task.Status.State.IsCancelable() {
		return nil, errors.ErrTaskNotCancelable.WithMessagef(
			"task %s is in state %s and cannot be canceled", task.ID, task.Status.State)
	}

	// Watch for the terminal write before signaling, so it cannot slip by.
	child := h.queues.CreateOrTap(params.ID)
	defer child.Close(false, true)

	if cancel, ok := h.cancels.Load(params.ID); ok {
		cancel.(context.CancelFunc)()
	}

	queue := h.queues.Get(params.ID)
	if queue != nil {
		reqCtx := &RequestContext{TaskID: task.ID, ContextID: task.ContextID, Task: task, Call: call}
		if err := h.executor.Cancel(ctx, reqCtx, queue); err != nil {
			log.Error("executor cancel failed", "task", task.ID, "error", err)
		}
	}

	deadline := time.Now().Add(cancelWait)
	for time.Now().Before(deadline) {
		item, status := child.Dequeue(dequeuePoll)
		if status == eventqueue.DequeueClosed {
			break
		}
		if status == eventqueue.DequeueOK && a2a.IsFinalEvent(item.Event) {
			break
		}
	}

	return h.tasks.Get(ctx, params.ID)
}

// OnGetTask returns the canonical task, optionally capping history.
func (h *RequestHandler) OnGetTask(ctx context.Context, params a2a.TaskQueryParams, call *ServerCallContext) (*a2a.Task, error) {
	if err := h.ValidateCall(call); err != nil {
		return nil, err
	}

	task, err := h.tasks.Get(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	if params.HistoryLength != nil {
		task.TrimHistory(*params.HistoryLength)
	}

	return task, nil
}

// OnListTasks pages through the store with the given filters.
func (h *RequestHandler) OnListTasks(ctx context.Context, params a2a.TaskListParams, call *ServerCallContext) (*a2a.TaskList, error) {
	if err := h.ValidateCall(call); err != nil {
		return nil, err
	}

	return h.tasks.List(ctx, params)
}

func (h *RequestHandler) requirePushSupport() error {
	if !h.card.Capabilities.PushNotifications {
		return errors.ErrPushNotificationNotSupported.WithMessagef("agent does not support push notifications")
	}
	return nil
}

func (h *RequestHandler) OnSetTaskPushConfig(ctx context.Context, params a2a.TaskPushNotificationConfig, call *ServerCallContext) (*a2a.TaskPushNotificationConfig, error) {
	if err := h.ValidateCall(call); err != nil {
		return nil, err
	}
	if err := h.requirePushSupport(); err != nil {
		return nil, err
	}

	if _, err := h.tasks.Get(ctx, params.TaskID); err != nil {
		return nil, err
	}

	saved, err := h.pushConfigs.Save(ctx, params.TaskID, &params.PushNotificationConfig)
	if err != nil {
		return nil, err
	}

	return &a2a.TaskPushNotificationConfig{TaskID: params.TaskID, PushNotificationConfig: *saved}, nil
}

func (h *RequestHandler) OnGetTaskPushConfig(ctx context.Context, params a2a.GetTaskPushConfigParams, call *ServerCallContext) (*a2a.TaskPushNotificationConfig, error) {
	if err := h.ValidateCall(call); err != nil {
		return nil, err
	}
	if err := h.requirePushSupport(); err != nil {
		return nil, err
	}

	config, err := h.pushConfigs.Get(ctx, params.TaskID, params.ConfigID)
	if err != nil {
		return nil, err
	}

	return &a2a.TaskPushNotificationConfig{TaskID: params.TaskID, PushNotificationConfig: *config}, nil
}

func (h *RequestHandler) OnListTaskPushConfig(ctx context.Context, params a2a.ListTaskPushConfigParams, call *ServerCallContext) ([]*a2a.TaskPushNotificationConfig, error) {
	if err := h.ValidateCall(call); err != nil {
		return nil, err
	}
	if err := h.requirePushSupport(); err != nil {
		return nil, err
	}

	configs, err := h.pushConfigs.List(ctx, params.TaskID)
	if err != nil {
		return nil, err
	}

	out := make([]*a2a.TaskPushNotificationConfig, 0, len(configs))
	for _, config := range configs {
		out = append(out, &a2a.TaskPushNotificationConfig{
			TaskID:                 params.TaskID,
			PushNotificationConfig: *config,
		})
	}

	return out, nil
}

func (h *RequestHandler) OnDeleteTaskPushConfig(ctx context.Context, params a2a.DeleteTaskPushConfigParams, call *ServerCallContext) error {
	if err := h.ValidateCall(call); err != nil {
		return err
	}
	if err := h.requirePushSupport(); err != nil {
		return err
	}

	return h.pushConfigs.Delete(ctx, params.TaskID, params.ConfigID)
}
