package a2a

import (
	"encoding/json"
	"fmt"
)

// EventKind discriminates the event union on the wire.
type EventKind string

const (
	EventKindTask           EventKind = "task"
	EventKindMessage        EventKind = "message"
	EventKindStatusUpdate   EventKind = "status-update"
	EventKindArtifactUpdate EventKind = "artifact-update"
	EventKindInternalError  EventKind = "internal-error"
)

/*
Event is the sum type flowing through the pipeline: a full task snapshot, a
status update, an artifact update, a free-standing message, or the synthetic
internal-error substitute emitted when persistence fails.
*/
type Event interface {
	EventKind() EventKind
}

func (t *Task) EventKind() EventKind    { return EventKindTask }
func (m *Message) EventKind() EventKind { return EventKindMessage }

/*
TaskStatusUpdateEvent is sent when the agent wishes to inform subscribers of
a status transition. Final marks the last event of the task's stream.
*/
type TaskStatusUpdateEvent struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId,omitempty"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (e *TaskStatusUpdateEvent) EventKind() EventKind { return EventKindStatusUpdate }

/*
TaskArtifactUpdateEvent is emitted when a new or updated artifact chunk is
available for a task. Append concatenates parts onto an existing artifact;
LastChunk is informational for subscribers and does not alter folding.
*/
type TaskArtifactUpdateEvent struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId,omitempty"`
	Artifact  Artifact       `json:"artifact"`
	Append    bool           `json:"append,omitempty"`
	LastChunk bool           `json:"lastChunk,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (e *TaskArtifactUpdateEvent) EventKind() EventKind { return EventKindArtifactUpdate }

/*
InternalErrorEvent is delivered to subscribers in place of an event whose
persistence failed, preserving per-task ordering while keeping streams alive.
It is produced only by the pipeline, never by executors.
*/
type InternalErrorEvent struct {
	TaskID    string `json:"taskId,omitempty"`
	ContextID string `json:"contextId,omitempty"`
	Message   string `json:"message"`
}

func (e *InternalErrorEvent) EventKind() EventKind { return EventKindInternalError }

func (e *InternalErrorEvent) Error() string {
	return fmt.Sprintf("internal error for task %s: %s", e.TaskID, e.Message)
}

/*
EventTaskID returns the task id the event belongs to, or "" for messages not
bound to a task.
*/
func EventTaskID(ev Event) string {
	switch v := ev.(type) {
	case *Task:
		return v.ID
	case *Message:
		return v.TaskID
	case *TaskStatusUpdateEvent:
		return v.TaskID
	case *TaskArtifactUpdateEvent:
		return v.TaskID
	case *InternalErrorEvent:
		return v.TaskID
	}
	return ""
}

/*
EventContextID returns the context id carried by the event, if any.
*/
func EventContextID(ev Event) string {
	switch v := ev.(type) {
	case *Task:
		return v.ContextID
	case *Message:
		return v.ContextID
	case *TaskStatusUpdateEvent:
		return v.ContextID
	case *TaskArtifactUpdateEvent:
		return v.ContextID
	case *InternalErrorEvent:
		return v.ContextID
	}
	return ""
}

/*
IsFinalEvent reports whether the event terminates a task's stream: a status
update flagged final or a task snapshot in a final state. Internal-error
substitutes are not final; subscribers stay attached for later events.
*/
func IsFinalEvent(ev Event) bool {
	switch v := ev.(type) {
	case *TaskStatusUpdateEvent:
		return v.Final || v.Status.State.IsFinal()
	case *Task:
		return v.Status.State.IsFinal()
	}
	return false
}

// envelope is the wire shape of an event: the payload flattened next to a
// kind discriminator.
type envelope struct {
	Kind EventKind `json:"kind"`
}

/*
MarshalEvent serializes an event with its kind discriminator inlined, the
shape every transport (SSE, REST, gRPC JSON codec) agrees on.
*/
func MarshalEvent(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}

	kind, err := json.Marshal(ev.EventKind())
	if err != nil {
		return nil, err
	}
	fields["kind"] = kind

	return json.Marshal(fields)
}

/*
UnmarshalEvent parses a wire event by its kind discriminator.
*/
func UnmarshalEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	var ev Event
	switch env.Kind {
	case EventKindTask:
		ev = &Task{}
	case EventKindMessage:
		ev = &Message{}
	case EventKindStatusUpdate:
		ev = &TaskStatusUpdateEvent{}
	case EventKindArtifactUpdate:
		ev = &TaskArtifactUpdateEvent{}
	case EventKindInternalError:
		ev = &InternalErrorEvent{}
	default:
		return nil, fmt.Errorf("unknown event kind: %q", env.Kind)
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, err
	}

	return ev, nil
}
