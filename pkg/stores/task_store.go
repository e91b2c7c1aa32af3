package stores

import (
	"context"
	"sort"
	"sync"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
)

/*
TaskStore is the pluggable persistence contract for canonical Task records.
Save is atomic per task; the pipeline guarantees a single writer per task id,
so implementations only need to be concurrent across different ids. Failures
should be reported as *errors.TaskStoreError so operators can tell transient
from permanent ones.
*/
type TaskStore interface {
	Save(ctx context.Context, task *a2a.Task) error
	Get(ctx context.Context, id string) (*a2a.Task, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, params a2a.TaskListParams) (*a2a.TaskList, error)
}

// DefaultPageSize caps List results when the caller does not set one.
const DefaultPageSize = 50

/*
InMemoryTaskStore keeps tasks in a map guarded by a RWMutex. Tasks are deep
copied on the way in and out so callers can never alias store state.
*/
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
	order []string // insertion order, the tie-break for stable listing
}

func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		tasks: make(map[string]*a2a.Task),
	}
}

func (s *InMemoryTaskStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil || task.ID == "" {
		return errors.ErrInvalidParams.WithMessagef("task id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		s.order = append(s.order, task.ID)
	}
	s.tasks[task.ID] = task.Clone()

	return nil
}

func (s *InMemoryTaskStore) Get(ctx context.Context, id string) (*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, errors.ErrTaskNotFound.WithMessagef("task %s not found", id)
	}

	return task.Clone(), nil
}

func (s *InMemoryTaskStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return errors.ErrTaskNotFound.WithMessagef("task %s not found", id)
	}

	delete(s.tasks, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	return nil
}

func (s *InMemoryTaskStore) List(ctx context.Context, params a2a.TaskListParams) (*a2a.TaskList, error) {
	s.mu.RLock()

	candidates := make([]*a2a.Task, 0, len(s.order))
	for _, id := range s.order {
		task := s.tasks[id]
		if MatchesFilter(task, params) {
			candidates = append(candidates, task)
		}
	}

	s.mu.RUnlock()

	SortTasks(candidates)

	return Paginate(candidates, params)
}

/*
SortTasks orders tasks by status timestamp ascending, untimestamped first,
with the task id as a stable tie-break. Every TaskStore backend sorts this
way so page tokens stay meaningful across implementations.
*/
func SortTasks(tasks []*a2a.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return taskBefore(tasks[i], tasks[j])
	})
}

/*
MatchesFilter reports whether a task satisfies the list constraints. Shared
by every TaskStore implementation that filters in process.
*/
func MatchesFilter(task *a2a.Task, params a2a.TaskListParams) bool {
	if params.ContextID != "" && task.ContextID != params.ContextID {
		return false
	}

	if params.State != "" && task.Status.State != params.State {
		return false
	}

	if params.StatusTimestampAfter != nil {
		if task.Status.Timestamp == nil || !task.Status.Timestamp.After(*params.StatusTimestampAfter) {
			return false
		}
	}

	return true
}

/*
Paginate slices an already-filtered, already-ordered task list into one page,
applying the per-task history cap and artifact stripping. The page token is
the id of the last task on the previous page.
*/
func Paginate(candidates []*a2a.Task, params a2a.TaskListParams) (*a2a.TaskList, error) {
	start := 0
	if params.PageToken != "" {
		found := false
		for i, task := range candidates {
			if task.ID == params.PageToken {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, errors.ErrInvalidParams.WithMessagef("unknown page token %q", params.PageToken)
		}
	}

	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	end := start + pageSize
	if end > len(candidates) {
		end = len(candidates)
	}

	page := make([]a2a.Task, 0, end-start)
	for _, task := range candidates[start:end] {
		view := task.Clone()
		if params.HistoryLength != nil {
			view.TrimHistory(*params.HistoryLength)
		}
		if !params.IncludeArtifacts {
			view.Artifacts = nil
		}
		page = append(page, *view)
	}

	result := &a2a.TaskList{Tasks: page}
	if end < len(candidates) && len(page) > 0 {
		result.NextPageToken = page[len(page)-1].ID
	}

	return result, nil
}

func taskBefore(a, b *a2a.Task) bool {
	at, bt := a.Status.Timestamp, b.Status.Timestamp

	switch {
	case at == nil && bt == nil:
		return a.ID < b.ID
	case at == nil:
		return true
	case bt == nil:
		return false
	case at.Equal(*bt):
		return a.ID < b.ID
	default:
		return at.Before(*bt)
	}
}
