package service

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
)

func restServer(t *testing.T, card a2a.AgentCard) (*harness, *httptest.Server) {
	t.Helper()

	h := newHarness(t, card)
	server := httptest.NewServer(NewRESTHandler(h.handler))
	t.Cleanup(server.Close)

	return h, server
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)

	return resp
}

func decodeInto(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func TestRESTCard(t *testing.T) {
	_, server := restServer(t, fullCard())

	resp, err := http.Get(server.URL + "/v1/card")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var card a2a.AgentCard
	decodeInto(t, resp, &card)
	assert.Equal(t, "test-agent", card.Name)
}

func TestRESTMessageSend(t *testing.T) {
	_, server := restServer(t, fullCard())

	resp := postJSON(t, server.URL+"/v1/message:send", a2a.MessageSendParams{
		Message: a2a.NewUserMessage(a2a.TextPart("hello")),
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ProtocolVersion, resp.Header.Get(VersionHeader))

	var payload map[string]json.RawMessage
	decodeInto(t, resp, &payload)
	require.Contains(t, payload, "kind")
	assert.Equal(t, `"task"`, string(payload["kind"]))
}

func TestRESTMessageSendRejectsWrongContentType(t *testing.T) {
	_, server := restServer(t, fullCard())

	resp, err := http.Post(server.URL+"/v1/message:send", "text/plain", bytes.NewReader([]byte("hi")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestRESTVersionMismatch(t *testing.T) {
	_, server := restServer(t, fullCard())

	body, _ := json.Marshal(a2a.MessageSendParams{Message: a2a.NewUserMessage(a2a.TextPart("x"))})
	req, err := http.NewRequest(http.MethodPost, server.URL+"/v1/message:send", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(VersionHeader, "2.0.0")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestRESTGetTask(t *testing.T) {
	h, server := restServer(t, fullCard())

	task := a2a.NewTask("rest-task", "ctx")
	require.NoError(t, h.tasks.Save(context.Background(), task))

	resp, err := http.Get(server.URL + "/v1/tasks/rest-task")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	decodeInto(t, resp, &got)
	assert.Equal(t, "rest-task", got["id"])

	resp, err = http.Get(server.URL + "/v1/tasks/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRESTListTasks(t *testing.T) {
	h, server := restServer(t, fullCard())

	for _, id := range []string{"a", "b"} {
		require.NoError(t, h.tasks.Save(context.Background(), a2a.NewTask(id, "shared")))
	}

	resp, err := http.Get(server.URL + "/v1/tasks?contextId=shared")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list a2a.TaskList
	decodeInto(t, resp, &list)
	assert.Len(t, list.Tasks, 2)
}

func TestRESTCancelCompletedTaskConflicts(t *testing.T) {
	h, server := restServer(t, fullCard())

	done := a2a.NewTask("finished", "ctx")
	done.Status.State = a2a.TaskStateCompleted
	require.NoError(t, h.tasks.Save(context.Background(), done))

	resp := postJSON(t, server.URL+"/v1/tasks/finished:cancel", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRESTUnknownTaskAction(t *testing.T) {
	_, server := restServer(t, fullCard())

	resp := postJSON(t, server.URL+"/v1/tasks/sometask:explode", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRESTPushConfigLifecycle(t *testing.T) {
	h, server := restServer(t, fullCard())

	task := a2a.NewTask("push-task", "ctx")
	require.NoError(t, h.tasks.Save(context.Background(), task))

	resp := postJSON(t, server.URL+"/v1/tasks/push-task/pushNotificationConfigs",
		a2a.PushNotificationConfig{URL: "https://callback.example.com/hook"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var saved a2a.TaskPushNotificationConfig
	decodeInto(t, resp, &saved)
	require.NotEmpty(t, saved.PushNotificationConfig.ID)

	resp, err := http.Get(server.URL + "/v1/tasks/push-task/pushNotificationConfigs")
	require.NoError(t, err)
	var configs []a2a.TaskPushNotificationConfig
	decodeInto(t, resp, &configs)
	assert.Len(t, configs, 1)

	req, err := http.NewRequest(http.MethodDelete,
		server.URL+"/v1/tasks/push-task/pushNotificationConfigs/"+saved.PushNotificationConfig.ID, nil)
	require.NoError(t, err)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(server.URL + "/v1/tasks/push-task/pushNotificationConfigs/" + saved.PushNotificationConfig.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
