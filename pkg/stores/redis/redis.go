package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
	"github.com/agentmesh/a2a-core/pkg/stores"
)

// Option configures the Redis-backed stores.
type Option func(*TaskStore)

/*
WithTTL sets the time-to-live for task records and their push configs.
Zero means no expiration, which is the default.
*/
func WithTTL(ttl time.Duration) Option {
	return func(s *TaskStore) {
		s.ttl = ttl
	}
}

// WithPrefix overrides the Redis key prefix. Default is "a2a".
func WithPrefix(prefix string) Option {
	return func(s *TaskStore) {
		s.prefix = prefix
	}
}

/*
TaskStore persists canonical Task records in Redis as JSON blobs, with a
set index so List does not need to SCAN the keyspace. Filtering and
pagination run in process against the loaded records, which keeps page
tokens identical to the in-memory backend.
*/
type TaskStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewTaskStore(client *redis.Client, opts ...Option) *TaskStore {
	store := &TaskStore{
		client: client,
		prefix: "a2a",
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *TaskStore) taskKey(id string) string {
	return fmt.Sprintf("%s:task:%s", s.prefix, id)
}

func (s *TaskStore) indexKey() string {
	return fmt.Sprintf("%s:tasks", s.prefix)
}

func (s *TaskStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil || task.ID == "" {
		return errors.ErrInvalidParams.WithMessagef("task id is required")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return errors.NewSerializationError("save", task.ID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), task.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.indexKey(), s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewPersistenceError("save", task.ID, errors.StoreErrorTransient, err)
	}

	return nil
}

func (s *TaskStore) Get(ctx context.Context, id string) (*a2a.Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(id)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, errors.ErrTaskNotFound.WithMessagef("task %s not found", id)
		}
		return nil, errors.NewPersistenceError("get", id, errors.StoreErrorTransient, err)
	}

	var task a2a.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, errors.NewSerializationError("get", id, err)
	}

	return &task, nil
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()
	delCmd := pipe.Del(ctx, s.taskKey(id))
	pipe.SRem(ctx, s.indexKey(), id)
	pipe.Del(ctx, pushKey(s.prefix, id), pushOrderKey(s.prefix, id))

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewPersistenceError("delete", id, errors.StoreErrorTransient, err)
	}

	if delCmd.Val() == 0 {
		return errors.ErrTaskNotFound.WithMessagef("task %s not found", id)
	}

	return nil
}

func (s *TaskStore) List(ctx context.Context, params a2a.TaskListParams) (*a2a.TaskList, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil && !stderrors.Is(err, redis.Nil) {
		return nil, errors.NewPersistenceError("list", "", errors.StoreErrorTransient, err)
	}

	if len(ids) == 0 {
		return &a2a.TaskList{Tasks: []a2a.Task{}}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.taskKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !stderrors.Is(err, redis.Nil) {
		return nil, errors.NewPersistenceError("list", "", errors.StoreErrorTransient, err)
	}

	candidates := make([]*a2a.Task, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			// Records can expire between SMembers and the pipelined GET.
			if stderrors.Is(err, redis.Nil) {
				continue
			}
			return nil, errors.NewPersistenceError("list", ids[i], errors.StoreErrorTransient, err)
		}

		var task a2a.Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, errors.NewSerializationError("list", ids[i], err)
		}

		if stores.MatchesFilter(&task, params) {
			candidates = append(candidates, &task)
		}
	}

	stores.SortTasks(candidates)

	return stores.Paginate(candidates, params)
}

func pushKey(prefix, taskID string) string {
	return fmt.Sprintf("%s:task:%s:push", prefix, taskID)
}

func pushOrderKey(prefix, taskID string) string {
	return fmt.Sprintf("%s:task:%s:push:order", prefix, taskID)
}
