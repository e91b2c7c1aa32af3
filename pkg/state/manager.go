package state

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
	"github.com/agentmesh/a2a-core/pkg/stores"
)

/*
TaskManager owns the persistence funnel for a single store: it loads the
prior canonical record, folds the incoming event onto it, and saves the
result. The pipeline guarantees one Apply at a time per task id, so the
load-fold-save sequence needs no locking here.
*/
type TaskManager struct {
	store  stores.TaskStore
	folder Folder
}

func NewTaskManager(store stores.TaskStore) *TaskManager {
	return &TaskManager{store: store}
}

/*
Apply folds an event into the canonical task record and persists it.
It returns the folded task, which may be nil for free-floating messages
that carry no task id.
*/
func (m *TaskManager) Apply(ctx context.Context, event a2a.Event) (*a2a.Task, error) {
	taskID := a2a.EventTaskID(event)
	if taskID == "" {
		// Plain messages outside a task are visible but never persisted.
		return nil, nil
	}

	prior, err := m.store.Get(ctx, taskID)
	if err != nil && errors.AsRpcError(err).Code != errors.ErrTaskNotFound.Code {
		return nil, err
	}

	folded := m.folder.Fold(prior, event)
	if folded == nil || folded == prior {
		return prior, nil
	}

	if prior != nil {
		if err := ValidateTransition(prior.Status.State, folded.Status.State); err != nil {
			log.Warn("out-of-order task transition", "task", taskID,
				"from", prior.Status.State, "to", folded.Status.State)
		}
	}

	if err := m.store.Save(ctx, folded); err != nil {
		return nil, err
	}

	return folded, nil
}

// Current returns the canonical task record, nil when none exists yet.
func (m *TaskManager) Current(ctx context.Context, taskID string) (*a2a.Task, error) {
	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		if errors.AsRpcError(err).Code == errors.ErrTaskNotFound.Code {
			return nil, nil
		}
		return nil, err
	}

	return task, nil
}

/*
IsFinalized reports whether the canonical record for a task has reached a
final state. Unknown tasks are not finalized.
*/
func (m *TaskManager) IsFinalized(ctx context.Context, taskID string) bool {
	task, err := m.Current(ctx, taskID)
	if err != nil || task == nil {
		return false
	}

	return task.Status.State.IsFinal()
}
