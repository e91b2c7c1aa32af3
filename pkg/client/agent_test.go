package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/eventqueue"
	"github.com/agentmesh/a2a-core/pkg/jsonrpc"
	"github.com/agentmesh/a2a-core/pkg/service"
	"github.com/agentmesh/a2a-core/pkg/state"
	"github.com/agentmesh/a2a-core/pkg/stores"
)

func testCard(streaming bool) a2a.AgentCard {
	return a2a.AgentCard{
		Name:    "echo-agent",
		Version: "1.0.0",
		Capabilities: a2a.AgentCapabilities{
			Streaming:         streaming,
			PushNotifications: true,
		},
	}
}

// startAgent wires the full server stack around an echo executor and
// serves it over httptest.
func startAgent(t *testing.T, card a2a.AgentCard, workDelay time.Duration) *httptest.Server {
	t.Helper()

	store := stores.NewInMemoryTaskStore()
	pushConfigs := stores.NewInMemoryPushConfigStore()
	manager := state.NewTaskManager(store)

	bus := eventqueue.NewMainEventBus(eventqueue.DefaultBusCapacity)
	queues := eventqueue.NewManager(bus, eventqueue.WithStateProvider(func(taskID string) bool {
		return manager.IsFinalized(context.Background(), taskID)
	}))

	processor := eventqueue.NewProcessor(bus, manager)
	ctx, cancel := context.WithCancel(context.Background())
	processor.Start(ctx)
	t.Cleanup(func() {
		cancel()
		processor.Wait()
	})

	handler := service.NewRequestHandler(card, store, pushConfigs, manager, queues,
		&service.EchoExecutor{WorkDelay: workDelay})

	mux := http.NewServeMux()
	mux.Handle("POST /rpc", jsonrpc.NewServer(handler))
	mux.HandleFunc("GET "+WellKnownPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(card)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func TestCardResolution(t *testing.T) {
	server := startAgent(t, testCard(true), 0)
	client := NewAgentClient(server.URL)

	card, err := client.Card(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "echo-agent", card.Name)
	assert.True(t, card.Capabilities.Streaming)

	// Cached: works even after the server goes away.
	server.Close()
	again, err := client.Card(context.Background())
	require.NoError(t, err)
	assert.Same(t, card, again)
}

func TestCardResolutionFallsBackToRESTRoute(t *testing.T) {
	card := testCard(false)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/card", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(card)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewAgentClient(server.URL)

	resolved, err := client.Card(context.Background())
	require.NoError(t, err)
	assert.Equal(t, card.Name, resolved.Name)
}

func TestSendText(t *testing.T) {
	server := startAgent(t, testCard(false), 0)
	client := NewAgentClient(server.URL)

	reply, err := client.SendText(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)
}

func TestStreamMessageDeliversLifecycle(t *testing.T) {
	server := startAgent(t, testCard(true), 0)
	client := NewAgentClient(server.URL)

	params := a2a.MessageSendParams{Message: a2a.NewUserMessage(a2a.TextPart("stream me"))}

	events, err := client.StreamMessage(context.Background(), params)
	require.NoError(t, err)

	var kinds []a2a.EventKind
	var final a2a.Event
	for event := range events {
		kinds = append(kinds, event.EventKind())
		final = event
	}

	require.NotEmpty(t, kinds)
	assert.Contains(t, kinds, a2a.EventKindArtifactUpdate)
	assert.True(t, a2a.IsFinalEvent(final))
}

func TestStreamMessageFallsBackToBlockingSend(t *testing.T) {
	server := startAgent(t, testCard(false), 0)
	client := NewAgentClient(server.URL)

	params := a2a.MessageSendParams{Message: a2a.NewUserMessage(a2a.TextPart("no streaming"))}

	events, err := client.StreamMessage(context.Background(), params)
	require.NoError(t, err)

	event, open := <-events
	require.True(t, open)

	task, ok := event.(*a2a.Task)
	require.True(t, ok)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)

	_, open = <-events
	assert.False(t, open, "fallback stream carries exactly one event")
}

func TestResubscribeRequiresStreaming(t *testing.T) {
	server := startAgent(t, testCard(false), 0)
	client := NewAgentClient(server.URL)

	_, err := client.Resubscribe(context.Background(), "some-task")
	require.Error(t, err)
}

func TestMirrorFoldsStreamIntoTask(t *testing.T) {
	server := startAgent(t, testCard(true), 0)
	client := NewAgentClient(server.URL)

	params := a2a.MessageSendParams{Message: a2a.NewUserMessage(a2a.TextPart("mirror me"))}

	events, err := client.StreamMessage(context.Background(), params)
	require.NoError(t, err)

	var last *a2a.Task
	for snapshot := range client.Mirror(context.Background(), events) {
		last = snapshot
	}

	require.NotNil(t, last)
	assert.Equal(t, a2a.TaskStateCompleted, last.Status.State)
	require.NotEmpty(t, last.Artifacts)
	assert.Equal(t, "mirror me", last.Artifacts[0].Parts[0].Text)
}

func TestCancelInFlightTask(t *testing.T) {
	server := startAgent(t, testCard(true), 2*time.Second)
	client := NewAgentClient(server.URL)

	params := a2a.MessageSendParams{Message: a2a.NewUserMessage(a2a.TextPart("slow work"))}

	events, err := client.StreamMessage(context.Background(), params)
	require.NoError(t, err)

	// The first event is the submitted snapshot carrying the task id.
	first := <-events
	task, ok := first.(*a2a.Task)
	require.True(t, ok)

	canceled, err := client.CancelTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCanceled, canceled.Status.State)

	for range events {
		// drain until the canceled final event closes the stream
	}
}

func TestResubscribeAfterDisconnect(t *testing.T) {
	server := startAgent(t, testCard(true), time.Second)
	client := NewAgentClient(server.URL)

	params := a2a.MessageSendParams{Message: a2a.NewUserMessage(a2a.TextPart("come back later"))}

	streamCtx, dropStream := context.WithCancel(context.Background())
	events, err := client.StreamMessage(streamCtx, params)
	require.NoError(t, err)

	first := <-events
	task, ok := first.(*a2a.Task)
	require.True(t, ok)

	// Simulate the connection dropping mid-task.
	dropStream()

	resumed, err := client.Resubscribe(context.Background(), task.ID)
	require.NoError(t, err)

	var final a2a.Event
	for event := range resumed {
		final = event
	}

	require.NotNil(t, final)
	assert.True(t, a2a.IsFinalEvent(final))
}

func TestPushConfigRoundTrip(t *testing.T) {
	server := startAgent(t, testCard(false), 0)
	client := NewAgentClient(server.URL)

	event, err := client.SendMessage(context.Background(),
		a2a.MessageSendParams{Message: a2a.NewUserMessage(a2a.TextPart("task"))})
	require.NoError(t, err)
	task := event.(*a2a.Task)

	saved, err := client.SetPushConfig(context.Background(), a2a.TaskPushNotificationConfig{
		TaskID:                 task.ID,
		PushNotificationConfig: a2a.PushNotificationConfig{URL: "https://example.com/hook"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, saved.PushNotificationConfig.ID)

	configs, err := client.ListPushConfigs(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, configs, 1)

	require.NoError(t, client.DeletePushConfig(context.Background(), task.ID, saved.PushNotificationConfig.ID))

	configs, err = client.ListPushConfigs(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Empty(t, configs)
}
