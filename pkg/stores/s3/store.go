package s3

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
	"github.com/agentmesh/a2a-core/pkg/stores"
)

/*
Store persists canonical Task records as JSON objects in an S3 bucket,
one object per task. Suited to deployments that want durable task history
without running a database; List is a full prefix scan, so large task
volumes belong in the Redis backend instead.
*/
type Store struct {
	conn   *Conn
	bucket string
}

func NewStore(conn *Conn, bucket string) *Store {
	return &Store{conn: conn, bucket: bucket}
}

func taskKey(id string) string {
	return "tasks/" + id + ".json"
}

func (store *Store) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil || task.ID == "" {
		return errors.ErrInvalidParams.WithMessagef("task id is required")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return errors.NewSerializationError("save", task.ID, err)
	}

	if err := store.conn.Put(ctx, store.bucket, taskKey(task.ID), data); err != nil {
		log.Error("failed to store task", "error", err, "task", task.ID)
		return errors.NewPersistenceError("save", task.ID, errors.StoreErrorTransient, err)
	}

	return nil
}

func (store *Store) Get(ctx context.Context, id string) (*a2a.Task, error) {
	data, err := store.conn.Get(ctx, store.bucket, taskKey(id))
	if err != nil {
		if IsNotFound(err) {
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

func (store *Store) Delete(ctx context.Context, id string) error {
	// RemoveObject succeeds on missing keys, so probe first to keep the
	// not-found contract consistent with the other backends.
	if _, err := store.Get(ctx, id); err != nil {
		return err
	}

	if err := store.conn.Delete(ctx, store.bucket, taskKey(id)); err != nil {
		log.Error("failed to delete task", "error", err, "task", id)
		return errors.NewPersistenceError("delete", id, errors.StoreErrorTransient, err)
	}

	return nil
}

func (store *Store) List(ctx context.Context, params a2a.TaskListParams) (*a2a.TaskList, error) {
	keys, err := store.conn.List(ctx, store.bucket, "tasks/")
	if err != nil {
		return nil, errors.NewPersistenceError("list", "", errors.StoreErrorTransient, err)
	}

	candidates := make([]*a2a.Task, 0, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}

		data, err := store.conn.Get(ctx, store.bucket, key)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, errors.NewPersistenceError("list", "", errors.StoreErrorTransient, err)
		}

		var task a2a.Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, errors.NewSerializationError("list", key, err)
		}

		if stores.MatchesFilter(&task, params) {
			candidates = append(candidates, &task)
		}
	}

	stores.SortTasks(candidates)

	return stores.Paginate(candidates, params)
}
