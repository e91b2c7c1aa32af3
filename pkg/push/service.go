package push

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/stores"
)

// NotificationTokenHeader carries the per-config token so receivers can
// authenticate the webhook call.
const NotificationTokenHeader = "X-A2A-Notification-Token"

/*
Sender delivers task snapshots to every webhook registered for the task.
Delivery is fire-and-forget: failures are logged and dropped, never
retried, and never block the pipeline that invoked the sender.
*/
type Sender struct {
	configs stores.PushConfigStore
	client  *http.Client
}

func NewSender(configs stores.PushConfigStore) *Sender {
	return &Sender{
		configs: configs,
		client: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

/*
NotifyTask posts the current task snapshot to each configured URL. The
caller is expected to invoke it from its own goroutine.
*/
func (s *Sender) NotifyTask(ctx context.Context, task *a2a.Task) {
	if task == nil {
		return
	}

	targets, err := s.configs.List(ctx, task.ID)
	if err != nil {
		log.Error("failed to load push configs", "task", task.ID, "error", err)
		return
	}

	if len(targets) == 0 {
		return
	}

	payload, err := a2a.MarshalEvent(task)
	if err != nil {
		log.Error("failed to marshal task for push", "task", task.ID, "error", err)
		return
	}

	for _, config := range targets {
		s.post(ctx, task.ID, config, payload)
	}
}

func (s *Sender) post(ctx context.Context, taskID string, config *a2a.PushNotificationConfig, payload []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, bytes.NewReader(payload))
	if err != nil {
		log.Error("failed to build push request", "task", taskID, "url", config.URL, "error", err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	if config.Token != nil && *config.Token != "" {
		req.Header.Set(NotificationTokenHeader, *config.Token)
	}

	if auth := config.Authentication; auth != nil && auth.Credentials != nil {
		for _, scheme := range auth.Schemes {
			if scheme == "Bearer" {
				req.Header.Set("Authorization", "Bearer "+*auth.Credentials)
			}
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Error("push notification failed", "task", taskID, "url", config.URL, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		log.Error("push notification rejected", "task", taskID, "url", config.URL, "status", resp.StatusCode)
		return
	}

	log.Debug("push notification delivered", "task", taskID, "url", config.URL)
}
