package errors

import "fmt"

// StoreErrorKind tags a storage failure for operator diagnostics. The
// pipeline treats every kind as failure-to-persist; only logs differ.
type StoreErrorKind string

const (
	StoreErrorTransient     StoreErrorKind = "transient"
	StoreErrorPermanent     StoreErrorKind = "permanent"
	StoreErrorSerialization StoreErrorKind = "serialization"
)

/*
TaskStoreError is the base error for TaskStore and PushConfigStore failures.
It carries the task id when available so operators can correlate logs.
*/
type TaskStoreError struct {
	Kind   StoreErrorKind
	TaskID string
	Op     string
	Err    error
}

func (e *TaskStoreError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("task store %s (%s, task %s): %v", e.Op, e.Kind, e.TaskID, e.Err)
	}
	return fmt.Sprintf("task store %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *TaskStoreError) Unwrap() error { return e.Err }

// NewPersistenceError wraps a transient or permanent save/load failure.
func NewPersistenceError(op, taskID string, kind StoreErrorKind, err error) *TaskStoreError {
	return &TaskStoreError{Kind: kind, TaskID: taskID, Op: op, Err: err}
}

// NewSerializationError wraps an encode/decode failure for a task record.
func NewSerializationError(op, taskID string, err error) *TaskStoreError {
	return &TaskStoreError{Kind: StoreErrorSerialization, TaskID: taskID, Op: op, Err: err}
}
