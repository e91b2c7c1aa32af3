package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
	"github.com/agentmesh/a2a-core/pkg/eventqueue"
	"github.com/agentmesh/a2a-core/pkg/service"
	"github.com/agentmesh/a2a-core/pkg/state"
	"github.com/agentmesh/a2a-core/pkg/stores"
)

func startRPC(t *testing.T) *httptest.Server {
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

	card := a2a.AgentCard{
		Name:         "rpc-agent",
		Version:      "1.0.0",
		Capabilities: a2a.AgentCapabilities{Streaming: true, PushNotifications: true},
	}

	handler := service.NewRequestHandler(card, store, pushConfigs, manager, queues, &service.EchoExecutor{})
	server := httptest.NewServer(NewServer(handler))
	t.Cleanup(server.Close)

	return server
}

func post(t *testing.T, url, contentType string, body []byte) *http.Response {
	t.Helper()

	resp, err := http.Post(url, contentType, bytes.NewReader(body))
	require.NoError(t, err)

	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) *Response {
	t.Helper()
	defer resp.Body.Close()

	var response Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	return &response
}

func TestServeMessageSend(t *testing.T) {
	server := startRPC(t)

	payload, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  MethodMessageSend,
		"params": a2a.MessageSendParams{
			Message: a2a.NewUserMessage(a2a.TextPart("hello")),
		},
	})

	resp := post(t, server.URL, "application/json", payload)
	assert.Equal(t, service.ProtocolVersion, resp.Header.Get(service.VersionHeader))

	response := decodeResponse(t, resp)
	require.Nil(t, response.Error)
	assert.Equal(t, "1", string(response.ID))

	result, _ := json.Marshal(response.Result)
	event, err := a2a.UnmarshalEvent(result)
	require.NoError(t, err)

	task, ok := event.(*a2a.Task)
	require.True(t, ok)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
}

func TestServeAgentCard(t *testing.T) {
	server := startRPC(t)

	resp := post(t, server.URL, "application/json",
		[]byte(`{"jsonrpc":"2.0","id":5,"method":"agent/card"}`))
	response := decodeResponse(t, resp)
	require.Nil(t, response.Error)

	result, err := json.Marshal(response.Result)
	require.NoError(t, err)

	var card a2a.AgentCard
	require.NoError(t, json.Unmarshal(result, &card))
	assert.Equal(t, "rpc-agent", card.Name)
	assert.True(t, card.Capabilities.Streaming)
}

func TestServeRejectsNonPost(t *testing.T) {
	server := startRPC(t)

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServeRejectsWrongContentType(t *testing.T) {
	server := startRPC(t)

	resp := post(t, server.URL, "text/plain", []byte(`{}`))
	response := decodeResponse(t, resp)
	require.NotNil(t, response.Error)
	assert.Equal(t, errors.ErrContentTypeNotSupported.Code, response.Error.Code)
}

func TestServeParseError(t *testing.T) {
	server := startRPC(t)

	resp := post(t, server.URL, "application/json", []byte(`{not json`))
	response := decodeResponse(t, resp)
	require.NotNil(t, response.Error)
	assert.Equal(t, errors.ErrParseError.Code, response.Error.Code)
}

func TestServeInvalidRequest(t *testing.T) {
	server := startRPC(t)

	resp := post(t, server.URL, "application/json", []byte(`{"jsonrpc":"1.0","id":1,"method":"tasks/get"}`))
	response := decodeResponse(t, resp)
	require.NotNil(t, response.Error)
	assert.Equal(t, errors.ErrInvalidRequest.Code, response.Error.Code)
}

func TestServeMethodNotFound(t *testing.T) {
	server := startRPC(t)

	resp := post(t, server.URL, "application/json", []byte(`{"jsonrpc":"2.0","id":7,"method":"tasks/teleport","params":{}}`))
	response := decodeResponse(t, resp)
	require.NotNil(t, response.Error)
	assert.Equal(t, errors.ErrMethodNotFound.Code, response.Error.Code)
	assert.Equal(t, "7", string(response.ID))
}

func TestServeTaskNotFound(t *testing.T) {
	server := startRPC(t)

	resp := post(t, server.URL, "application/json", []byte(`{"jsonrpc":"2.0","id":2,"method":"tasks/get","params":{"id":"ghost"}}`))
	response := decodeResponse(t, resp)
	require.NotNil(t, response.Error)
	assert.Equal(t, errors.ErrTaskNotFound.Code, response.Error.Code)
}

func TestServeBatch(t *testing.T) {
	server := startRPC(t)

	batch := []byte(`[` +
		`{"jsonrpc":"2.0","id":1,"method":"tasks/get","params":{"id":"ghost"}},` +
		`{"jsonrpc":"2.0","id":2,"method":"message/stream","params":{}},` +
		`{"jsonrpc":"2.0","method":"tasks/get","params":{"id":"ghost"}}` +
		`]`)

	resp := post(t, server.URL, "application/json", batch)
	defer resp.Body.Close()

	var responses []Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&responses))

	// Notification response is dropped, so two envelopes come back.
	require.Len(t, responses, 2)
	assert.Equal(t, errors.ErrTaskNotFound.Code, responses[0].Error.Code)
	assert.Equal(t, errors.ErrInvalidRequest.Code, responses[1].Error.Code)
}

func TestServeBatchAllNotifications(t *testing.T) {
	server := startRPC(t)

	batch := []byte(`[{"jsonrpc":"2.0","method":"tasks/get","params":{"id":"ghost"}}]`)

	resp := post(t, server.URL, "application/json", batch)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServeEmptyBatch(t *testing.T) {
	server := startRPC(t)

	resp := post(t, server.URL, "application/json", []byte(`[]`))
	response := decodeResponse(t, resp)
	require.NotNil(t, response.Error)
	assert.Equal(t, errors.ErrInvalidRequest.Code, response.Error.Code)
}

func TestServeStreamFrames(t *testing.T) {
	server := startRPC(t)

	client := &Client{Endpoint: server.URL, HTTPClient: server.Client()}

	events, err := client.Stream(context.Background(), MethodMessageStream, a2a.MessageSendParams{
		Message: a2a.NewUserMessage(a2a.TextPart("stream me")),
	})
	require.NoError(t, err)

	var kinds []string
	for event := range events {
		kinds = append(kinds, string(event.EventKind()))
	}

	require.NotEmpty(t, kinds)
	assert.Contains(t, kinds, string(a2a.EventKindArtifactUpdate))
	assert.Contains(t, kinds, string(a2a.EventKindStatusUpdate))
}

func TestServeStreamRejectsUnknownTask(t *testing.T) {
	server := startRPC(t)

	resp := post(t, server.URL, "application/json",
		[]byte(`{"jsonrpc":"2.0","id":3,"method":"tasks/resubscribe","params":{"id":"ghost"}}`))
	response := decodeResponse(t, resp)
	require.NotNil(t, response.Error)
	assert.Equal(t, errors.ErrTaskNotFound.Code, response.Error.Code)
}
