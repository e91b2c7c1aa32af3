package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
	"github.com/agentmesh/a2a-core/pkg/jsonrpc"
	"github.com/agentmesh/a2a-core/pkg/state"
)

// WellKnownPath is the discovery document location.
const WellKnownPath = "/.well-known/agent.json"

/*
AgentClient talks to one remote agent. It resolves and caches the agent
card, upgrades to the authenticated extended card when it can, and picks
the transport per call: streaming when the card advertises it, silent
fallback to blocking send when it does not.
*/
type AgentClient struct {
	base string
	rpc  *jsonrpc.Client
	http *http.Client

	mu   sync.Mutex
	card *a2a.AgentCard

	folder state.Folder

	// onStreamError observes stream decode/transport failures; streams
	// end on error either way.
	onStreamError func(taskID string, err error)
}

type Option func(*AgentClient)

// WithTokenSource authenticates every call with the supplied token.
func WithTokenSource(source jsonrpc.TokenSource) Option {
	return func(c *AgentClient) {
		c.rpc.Token = source
	}
}

// WithExtensions requests the extension URIs on every call.
func WithExtensions(uris ...string) Option {
	return func(c *AgentClient) {
		c.rpc.Extensions = append(c.rpc.Extensions, uris...)
	}
}

// WithHTTPClient overrides the HTTP client used for discovery and RPC.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *AgentClient) {
		c.http = httpClient
		c.rpc.HTTPClient = httpClient
	}
}

// WithStreamErrorHandler observes errors that terminate a stream.
func WithStreamErrorHandler(handler func(taskID string, err error)) Option {
	return func(c *AgentClient) {
		c.onStreamError = handler
	}
}

// NewAgentClient creates a client for the agent at baseURL. The card is
// resolved lazily on first use.
func NewAgentClient(baseURL string, opts ...Option) *AgentClient {
	base := strings.TrimRight(baseURL, "/")

	client := &AgentClient{
		base: base,
		rpc:  jsonrpc.NewClient(base + "/rpc"),
		http: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

/*
Card returns the agent card, fetching and caching it on first call. The
well-known document is preferred; /v1/card is the fallback for agents
that only mount the REST surface.
*/
func (c *AgentClient) Card(ctx context.Context) (*a2a.AgentCard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.card != nil {
		return c.card, nil
	}

	card, err := c.fetchCard(ctx, c.base+WellKnownPath)
	if err != nil {
		log.Debug("well-known card fetch failed, trying /v1/card", "agent", c.base, "error", err)
		card, err = c.fetchCard(ctx, c.base+"/v1/card")
	}
	if err != nil {
		return nil, fmt.Errorf("resolving agent card: %w", err)
	}

	c.card = card
	return c.card, nil
}

func (c *AgentClient) fetchCard(ctx context.Context, url string) (*a2a.AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("card endpoint returned %d", resp.StatusCode)
	}

	var card a2a.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, err
	}

	return &card, nil
}

/*
UpgradeCard swaps the cached card for the authenticated extended card
when the agent offers one and this client can authenticate. Agents
without an extended card leave the cached card untouched.
*/
func (c *AgentClient) UpgradeCard(ctx context.Context) (*a2a.AgentCard, error) {
	card, err := c.Card(ctx)
	if err != nil {
		return nil, err
	}

	if !card.SupportsAuthenticatedExtendedCard || c.rpc.Token == nil {
		return card, nil
	}

	var extended a2a.AgentCard
	if err := c.rpc.Call(ctx, jsonrpc.MethodExtendedCard, struct{}{}, &extended); err != nil {
		return nil, fmt.Errorf("fetching extended card: %w", err)
	}

	c.mu.Lock()
	c.card = &extended
	c.mu.Unlock()

	return &extended, nil
}

// SendMessage performs a blocking send; the result is the canonical
// task, or the agent's direct message reply.
func (c *AgentClient) SendMessage(ctx context.Context, params a2a.MessageSendParams) (a2a.Event, error) {
	return c.rpc.CallEvent(ctx, jsonrpc.MethodMessageSend, params)
}

/*
StreamMessage sends a message and returns the task's event stream. When
the agent's card does not advertise streaming the call degrades to a
blocking send whose result is delivered as a one-event stream, so
callers consume both cases the same way.
*/
func (c *AgentClient) StreamMessage(ctx context.Context, params a2a.MessageSendParams) (<-chan a2a.Event, error) {
	card, err := c.Card(ctx)
	if err != nil {
		return nil, err
	}

	if !card.Capabilities.Streaming {
		event, err := c.SendMessage(ctx, params)
		if err != nil {
			return nil, err
		}

		out := make(chan a2a.Event, 1)
		out <- event
		close(out)
		return out, nil
	}

	return c.rpc.Stream(ctx, jsonrpc.MethodMessageStream, params)
}

/*
Resubscribe reattaches to a running task's stream. Unlike StreamMessage
there is no blocking fallback; an agent without streaming cannot serve
this at all.
*/
func (c *AgentClient) Resubscribe(ctx context.Context, taskID string) (<-chan a2a.Event, error) {
	card, err := c.Card(ctx)
	if err != nil {
		return nil, err
	}

	if !card.Capabilities.Streaming {
		return nil, errors.ErrUnsupportedOperation.WithMessagef("agent %s does not support streaming", card.Name)
	}

	return c.rpc.Stream(ctx, jsonrpc.MethodTasksResubscribe, a2a.TaskIDParams{ID: taskID})
}

/*
Mirror folds a stream into a local task replica, emitting the snapshot
after each event. The mirror starts empty: events received before a
snapshot fold onto nothing until the first task event arrives, matching
what a subscriber attached mid-stream can know.
*/
func (c *AgentClient) Mirror(ctx context.Context, events <-chan a2a.Event) <-chan *a2a.Task {
	out := make(chan *a2a.Task)

	go func() {
		defer close(out)

		var current *a2a.Task

		for {
			select {
			case <-ctx.Done():
				return
			case event, open := <-events:
				if !open {
					return
				}

				if errEvent, ok := event.(*a2a.InternalErrorEvent); ok {
					if c.onStreamError != nil {
						c.onStreamError(errEvent.TaskID, errEvent)
					}
					continue
				}

				if folded := c.folder.Fold(current, event); folded != nil {
					current = folded
				}
				if current == nil {
					continue
				}

				select {
				case out <- current.Clone():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// GetTask fetches the canonical task.
func (c *AgentClient) GetTask(ctx context.Context, taskID string, historyLength *int) (*a2a.Task, error) {
	params := a2a.TaskQueryParams{
		TaskIDParams:  a2a.TaskIDParams{ID: taskID},
		HistoryLength: historyLength,
	}

	var task a2a.Task
	if err := c.rpc.Call(ctx, jsonrpc.MethodTasksGet, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks pages through the agent's task store.
func (c *AgentClient) ListTasks(ctx context.Context, params a2a.TaskListParams) (*a2a.TaskList, error) {
	var list a2a.TaskList
	if err := c.rpc.Call(ctx, jsonrpc.MethodTasksList, params, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CancelTask requests cancellation and returns the resulting task.
func (c *AgentClient) CancelTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	var task a2a.Task
	if err := c.rpc.Call(ctx, jsonrpc.MethodTasksCancel, a2a.TaskIDParams{ID: taskID}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SetPushConfig registers a push notification config for a task.
func (c *AgentClient) SetPushConfig(ctx context.Context, config a2a.TaskPushNotificationConfig) (*a2a.TaskPushNotificationConfig, error) {
	var saved a2a.TaskPushNotificationConfig
	if err := c.rpc.Call(ctx, jsonrpc.MethodPushConfigSet, config, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// ListPushConfigs lists a task's push notification configs.
func (c *AgentClient) ListPushConfigs(ctx context.Context, taskID string) ([]*a2a.TaskPushNotificationConfig, error) {
	var configs []*a2a.TaskPushNotificationConfig
	if err := c.rpc.Call(ctx, jsonrpc.MethodPushConfigList, a2a.ListTaskPushConfigParams{TaskID: taskID}, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// DeletePushConfig removes a push notification config.
func (c *AgentClient) DeletePushConfig(ctx context.Context, taskID, configID string) error {
	return c.rpc.Call(ctx, jsonrpc.MethodPushConfigDelete,
		a2a.DeleteTaskPushConfigParams{TaskID: taskID, ConfigID: configID}, nil)
}

/*
SendText is the text-to-text convenience path: wrap the prompt in a user
message, send blocking, and dig the reply text out of the artifacts or
the agent's messages.
*/
func (c *AgentClient) SendText(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	params := a2a.MessageSendParams{Message: a2a.NewUserMessage(a2a.TextPart(prompt))}

	event, err := c.SendMessage(ctx, params)
	if err != nil {
		return "", fmt.Errorf("send failed: %w", err)
	}

	switch result := event.(type) {
	case *a2a.Message:
		return result.TextContent(), nil
	case *a2a.Task:
		for _, artifact := range result.Artifacts {
			for _, part := range artifact.Parts {
				if part.Type == a2a.PartTypeText {
					return part.Text, nil
				}
			}
		}
		for i := len(result.History) - 1; i >= 0; i-- {
			if result.History[i].Role == a2a.RoleAgent {
				return result.History[i].TextContent(), nil
			}
		}
	}

	return "", fmt.Errorf("no text output received from agent")
}
