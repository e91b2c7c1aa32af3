package stores

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
)

/*
PushConfigStore persists the webhook configurations registered per task.
Config ids are unique within a task; Save generates one when absent.
*/
type PushConfigStore interface {
	Save(ctx context.Context, taskID string, config *a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error)
	Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error)
	List(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error)
	Delete(ctx context.Context, taskID, configID string) error
}

/*
InMemoryPushConfigStore keeps configs in a nested map guarded by a RWMutex.
*/
type InMemoryPushConfigStore struct {
	mu      sync.RWMutex
	configs map[string]map[string]a2a.PushNotificationConfig // taskID -> configID -> config
	order   map[string][]string                              // taskID -> configIDs in insertion order
}

func NewInMemoryPushConfigStore() *InMemoryPushConfigStore {
	return &InMemoryPushConfigStore{
		configs: make(map[string]map[string]a2a.PushNotificationConfig),
		order:   make(map[string][]string),
	}
}

func (s *InMemoryPushConfigStore) Save(ctx context.Context, taskID string, config *a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error) {
	if taskID == "" || config == nil || config.URL == "" {
		return nil, errors.ErrInvalidParams.WithMessagef("push config requires a task id and url")
	}

	saved := *config
	if saved.ID == "" {
		saved.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.configs[taskID]
	if !ok {
		byID = make(map[string]a2a.PushNotificationConfig)
		s.configs[taskID] = byID
	}

	if _, exists := byID[saved.ID]; !exists {
		s.order[taskID] = append(s.order[taskID], saved.ID)
	}
	byID[saved.ID] = saved

	return &saved, nil
}

func (s *InMemoryPushConfigStore) Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID, ok := s.configs[taskID]
	if ok {
		// A lookup without a config id returns the sole config when there
		// is exactly one, mirroring single-webhook deployments.
		if configID == "" && len(byID) == 1 {
			for _, config := range byID {
				out := config
				return &out, nil
			}
		}
		if config, exists := byID[configID]; exists {
			out := config
			return &out, nil
		}
	}

	return nil, errors.ErrPushConfigNotFound.WithMessagef("push config %s not found for task %s", configID, taskID)
}

func (s *InMemoryPushConfigStore) List(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order[taskID]
	out := make([]*a2a.PushNotificationConfig, 0, len(ids))
	for _, id := range ids {
		config := s.configs[taskID][id]
		out = append(out, &config)
	}

	return out, nil
}

func (s *InMemoryPushConfigStore) Delete(ctx context.Context, taskID, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.configs[taskID]
	if !ok {
		return errors.ErrPushConfigNotFound.WithMessagef("push config %s not found for task %s", configID, taskID)
	}

	if _, exists := byID[configID]; !exists {
		return errors.ErrPushConfigNotFound.WithMessagef("push config %s not found for task %s", configID, taskID)
	}

	delete(byID, configID)
	ids := s.order[taskID]
	for i, id := range ids {
		if id == configID {
			s.order[taskID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	return nil
}
