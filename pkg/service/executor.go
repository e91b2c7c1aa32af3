package service

import (
	"context"
	"time"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/eventqueue"
	"github.com/agentmesh/a2a-core/pkg/utils"
)

/*
RequestContext is everything an executor gets to see about the request
that woke it up: the resolved task and context ids, the incoming message,
the task's canonical state if it already exists, and the per-call server
context.
*/
type RequestContext struct {
	TaskID    string
	ContextID string
	Params    a2a.MessageSendParams
	Task      *a2a.Task
	Call      *ServerCallContext
}

// Message returns the user message that triggered the request.
func (r *RequestContext) Message() *a2a.Message {
	return r.Params.Message
}

/*
AgentExecutor is the extension point for agent logic. Execute runs in its
own goroutine and reports progress exclusively by enqueueing events on
the task's queue; its return error is logged, never sent to clients.
Cancel asks the executor to wind the task down; it is expected to enqueue
a canceled status update.
*/
type AgentExecutor interface {
	Execute(ctx context.Context, reqCtx *RequestContext, queue *eventqueue.MainQueue) error
	Cancel(ctx context.Context, reqCtx *RequestContext, queue *eventqueue.MainQueue) error
}

/*
EchoExecutor is the default executor: it echoes the user's text back as
an artifact and completes. Useful for smoke tests and as a wiring
reference for real agents.
*/
type EchoExecutor struct {
	// WorkDelay inserts a pause between WORKING and the echo, so
	// streaming behavior is observable.
	WorkDelay time.Duration
}

func (e *EchoExecutor) Execute(ctx context.Context, reqCtx *RequestContext, queue *eventqueue.MainQueue) error {
	task := reqCtx.Task
	if task == nil {
		task = a2a.NewTask(reqCtx.TaskID, reqCtx.ContextID)
		task.History = append(task.History, *reqCtx.Params.Message)
		if err := queue.EnqueueEvent(task); err != nil {
			return err
		}
	}

	if err := queue.EnqueueEvent(&a2a.TaskStatusUpdateEvent{
		TaskID:    reqCtx.TaskID,
		ContextID: reqCtx.ContextID,
		Status:    a2a.TaskStatus{State: a2a.TaskStateWorking, Timestamp: utils.Ptr(time.Now().UTC())},
	}); err != nil {
		return err
	}

	if e.WorkDelay > 0 {
		select {
		case <-time.After(e.WorkDelay):
		case <-ctx.Done():
		}
	}

	if ctx.Err() != nil {
		return queue.EnqueueEvent(&a2a.TaskStatusUpdateEvent{
			TaskID:    reqCtx.TaskID,
			ContextID: reqCtx.ContextID,
			Status:    a2a.TaskStatus{State: a2a.TaskStateCanceled, Timestamp: utils.Ptr(time.Now().UTC())},
			Final:     true,
		})
	}

	if err := queue.EnqueueEvent(&a2a.TaskArtifactUpdateEvent{
		TaskID:    reqCtx.TaskID,
		ContextID: reqCtx.ContextID,
		Artifact: a2a.Artifact{
			ArtifactID: "echo",
			Name:       utils.Ptr("echo"),
			Parts:      []a2a.Part{a2a.TextPart(reqCtx.Params.Message.TextContent())},
		},
		LastChunk: true,
	}); err != nil {
		return err
	}

	return queue.EnqueueEvent(&a2a.TaskStatusUpdateEvent{
		TaskID:    reqCtx.TaskID,
		ContextID: reqCtx.ContextID,
		Status:    a2a.TaskStatus{State: a2a.TaskStateCompleted, Timestamp: utils.Ptr(time.Now().UTC())},
		Final:     true,
	})
}

func (e *EchoExecutor) Cancel(ctx context.Context, reqCtx *RequestContext, queue *eventqueue.MainQueue) error {
	return queue.EnqueueEvent(&a2a.TaskStatusUpdateEvent{
		TaskID:    reqCtx.TaskID,
		ContextID: reqCtx.ContextID,
		Status:    a2a.TaskStatus{State: a2a.TaskStateCanceled, Timestamp: utils.Ptr(time.Now().UTC())},
		Final:     true,
	})
}
