package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
)

/*
PushConfigStore keeps the per-task webhook configs in a Redis hash, with a
companion list preserving registration order for List.
*/
type PushConfigStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewPushConfigStore(client *redis.Client, opts ...Option) *PushConfigStore {
	// Options are shared with TaskStore so both stores agree on prefix
	// and expiry when they back the same deployment.
	carrier := NewTaskStore(client, opts...)

	return &PushConfigStore{
		client: client,
		ttl:    carrier.ttl,
		prefix: carrier.prefix,
	}
}

func (s *PushConfigStore) Save(ctx context.Context, taskID string, config *a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error) {
	if taskID == "" || config == nil || config.URL == "" {
		return nil, errors.ErrInvalidParams.WithMessagef("push config requires a task id and url")
	}

	saved := *config
	if saved.ID == "" {
		saved.ID = uuid.NewString()
	}

	data, err := json.Marshal(&saved)
	if err != nil {
		return nil, errors.NewSerializationError("push.save", taskID, err)
	}

	key := pushKey(s.prefix, taskID)
	orderKey := pushOrderKey(s.prefix, taskID)

	exists, err := s.client.HExists(ctx, key, saved.ID).Result()
	if err != nil {
		return nil, errors.NewPersistenceError("push.save", taskID, errors.StoreErrorTransient, err)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, saved.ID, data)
	if !exists {
		pipe.RPush(ctx, orderKey, saved.ID)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
		pipe.Expire(ctx, orderKey, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.NewPersistenceError("push.save", taskID, errors.StoreErrorTransient, err)
	}

	return &saved, nil
}

func (s *PushConfigStore) Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error) {
	key := pushKey(s.prefix, taskID)

	if configID == "" {
		// Without an id the lookup resolves only when the task has
		// exactly one config registered.
		all, err := s.List(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if len(all) == 1 {
			return all[0], nil
		}
		return nil, errors.ErrPushConfigNotFound.WithMessagef("push config not found for task %s", taskID)
	}

	data, err := s.client.HGet(ctx, key, configID).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, errors.ErrPushConfigNotFound.WithMessagef("push config %s not found for task %s", configID, taskID)
		}
		return nil, errors.NewPersistenceError("push.get", taskID, errors.StoreErrorTransient, err)
	}

	var config a2a.PushNotificationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, errors.NewSerializationError("push.get", taskID, err)
	}

	return &config, nil
}

func (s *PushConfigStore) List(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error) {
	ids, err := s.client.LRange(ctx, pushOrderKey(s.prefix, taskID), 0, -1).Result()
	if err != nil && !stderrors.Is(err, redis.Nil) {
		return nil, errors.NewPersistenceError("push.list", taskID, errors.StoreErrorTransient, err)
	}

	if len(ids) == 0 {
		return []*a2a.PushNotificationConfig{}, nil
	}

	raw, err := s.client.HMGet(ctx, pushKey(s.prefix, taskID), ids...).Result()
	if err != nil {
		return nil, errors.NewPersistenceError("push.list", taskID, errors.StoreErrorTransient, err)
	}

	out := make([]*a2a.PushNotificationConfig, 0, len(raw))
	for _, entry := range raw {
		text, ok := entry.(string)
		if !ok {
			continue
		}

		var config a2a.PushNotificationConfig
		if err := json.Unmarshal([]byte(text), &config); err != nil {
			return nil, errors.NewSerializationError("push.list", taskID, err)
		}
		out = append(out, &config)
	}

	return out, nil
}

func (s *PushConfigStore) Delete(ctx context.Context, taskID, configID string) error {
	key := pushKey(s.prefix, taskID)

	pipe := s.client.Pipeline()
	delCmd := pipe.HDel(ctx, key, configID)
	pipe.LRem(ctx, pushOrderKey(s.prefix, taskID), 0, configID)

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewPersistenceError("push.delete", taskID, errors.StoreErrorTransient, err)
	}

	if delCmd.Val() == 0 {
		return errors.ErrPushConfigNotFound.WithMessagef("push config %s not found for task %s", configID, taskID)
	}

	return nil
}
