package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
)

/*
RESTHandler maps the resource-oriented HTTP surface onto the shared
request handler. Verb suffixes (message:send, tasks/{id}:cancel) ride in
the final path segment, so routing splits on the last colon.
*/
type RESTHandler struct {
	handler *RequestHandler
	mux     *http.ServeMux
}

func NewRESTHandler(handler *RequestHandler) *RESTHandler {
	rest := &RESTHandler{handler: handler, mux: http.NewServeMux()}

	rest.mux.HandleFunc("GET /v1/card", rest.handleCard)
	rest.mux.HandleFunc("GET /v1/extended-card", rest.handleExtendedCard)
	rest.mux.HandleFunc("POST /v1/message:send", rest.handleMessageSend)
	rest.mux.HandleFunc("POST /v1/message:stream", rest.handleMessageStream)
	rest.mux.HandleFunc("GET /v1/tasks", rest.handleListTasks)
	rest.mux.HandleFunc("GET /v1/tasks/{id}", rest.handleGetTask)
	rest.mux.HandleFunc("POST /v1/tasks/{action}", rest.handleTaskAction)
	rest.mux.HandleFunc("POST /v1/tasks/{id}/pushNotificationConfigs", rest.handleSetPushConfig)
	rest.mux.HandleFunc("GET /v1/tasks/{id}/pushNotificationConfigs", rest.handleListPushConfigs)
	rest.mux.HandleFunc("GET /v1/tasks/{id}/pushNotificationConfigs/{configId}", rest.handleGetPushConfig)
	rest.mux.HandleFunc("DELETE /v1/tasks/{id}/pushNotificationConfigs/{configId}", rest.handleDeletePushConfig)

	return rest
}

func (rest *RESTHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest.mux.ServeHTTP(w, r)
}

func (rest *RESTHandler) handleCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rest.handler.AgentCard())
}

func (rest *RESTHandler) handleExtendedCard(w http.ResponseWriter, r *http.Request) {
	call := CallFromRequest(r)

	card, err := rest.handler.ExtendedAgentCard(call)
	if err != nil {
		writeRESTError(w, err)
		return
	}

	WriteCallHeaders(w, call)
	writeJSON(w, http.StatusOK, card)
}

func (rest *RESTHandler) handleMessageSend(w http.ResponseWriter, r *http.Request) {
	var params a2a.MessageSendParams
	if !decodeBody(w, r, &params) {
		return
	}

	call := CallFromRequest(r)

	event, err := rest.handler.OnMessageSend(r.Context(), params, call)
	if err != nil {
		writeRESTError(w, err)
		return
	}

	WriteCallHeaders(w, call)
	writeEvent(w, http.StatusOK, event)
}

func (rest *RESTHandler) handleMessageStream(w http.ResponseWriter, r *http.Request) {
	var params a2a.MessageSendParams
	if !decodeBody(w, r, &params) {
		return
	}

	call := CallFromRequest(r)

	events, err := rest.handler.OnMessageSendStream(r.Context(), params, call)
	if err != nil {
		writeRESTError(w, err)
		return
	}

	WriteCallHeaders(w, call)
	StreamSSE(w, r, events, nil)
}

func (rest *RESTHandler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	params := a2a.TaskQueryParams{TaskIDParams: a2a.TaskIDParams{ID: r.PathValue("id")}}

	if raw := r.URL.Query().Get("historyLength"); raw != "" {
		length, err := strconv.Atoi(raw)
		if err != nil {
			writeRESTError(w, errors.ErrInvalidParams.WithMessagef("invalid historyLength: %v", err))
			return
		}
		params.HistoryLength = &length
	}

	call := CallFromRequest(r)

	task, err := rest.handler.OnGetTask(r.Context(), params, call)
	if err != nil {
		writeRESTError(w, err)
		return
	}

	WriteCallHeaders(w, call)
	writeEvent(w, http.StatusOK, task)
}

func (rest *RESTHandler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params := a2a.TaskListParams{
		ContextID: query.Get("contextId"),
		State:     a2a.TaskState(query.Get("status")),
		PageToken: query.Get("pageToken"),
	}

	if raw := query.Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			writeRESTError(w, errors.ErrInvalidParams.WithMessagef("invalid pageSize: %v", err))
			return
		}
		params.PageSize = size
	}

	if raw := query.Get("historyLength"); raw != "" {
		length, err := strconv.Atoi(raw)
		if err != nil {
			writeRESTError(w, errors.ErrInvalidParams.WithMessagef("invalid historyLength: %v", err))
			return
		}
		params.HistoryLength = &length
	}

	if raw := query.Get("statusTimestampAfter"); raw != "" {
		after, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeRESTError(w, errors.ErrInvalidParams.WithMessagef("invalid statusTimestampAfter: %v", err))
			return
		}
		params.StatusTimestampAfter = &after
	}

	params.IncludeArtifacts = query.Get("includeArtifacts") == "true"

	call := CallFromRequest(r)

	list, err := rest.handler.OnListTasks(r.Context(), params, call)
	if err != nil {
		writeRESTError(w, err)
		return
	}

	WriteCallHeaders(w, call)
	writeJSON(w, http.StatusOK, list)
}

// handleTaskAction dispatches the colon-verb routes under /v1/tasks.
func (rest *RESTHandler) handleTaskAction(w http.ResponseWriter, r *http.Request) {
	segment := r.PathValue("action")

	cut := strings.LastIndex(segment, ":")
	if cut <= 0 {
		writeRESTError(w, errors.ErrMethodNotFound.WithMessagef("unknown task action %q", segment))
		return
	}

	taskID, verb := segment[:cut], segment[cut+1:]
	call := CallFromRequest(r)

	switch verb {
	case "cancel":
		task, err := rest.handler.OnCancelTask(r.Context(), a2a.TaskIDParams{ID: taskID}, call)
		if err != nil {
			writeRESTError(w, err)
			return
		}
		WriteCallHeaders(w, call)
		writeEvent(w, http.StatusOK, task)

	case "subscribe":
		events, err := rest.handler.OnSubscribeToTask(r.Context(), a2a.TaskIDParams{ID: taskID}, call)
		if err != nil {
			writeRESTError(w, err)
			return
		}
		WriteCallHeaders(w, call)
		StreamSSE(w, r, events, nil)

	default:
		writeRESTError(w, errors.ErrMethodNotFound.WithMessagef("unknown task action %q", verb))
	}
}

func (rest *RESTHandler) handleSetPushConfig(w http.ResponseWriter, r *http.Request) {
	var config a2a.PushNotificationConfig
	if !decodeBody(w, r, &config) {
		return
	}

	params := a2a.TaskPushNotificationConfig{
		TaskID:                 r.PathValue("id"),
		PushNotificationConfig: config,
	}

	call := CallFromRequest(r)

	saved, err := rest.handler.OnSetTaskPushConfig(r.Context(), params, call)
	if err != nil {
		writeRESTError(w, err)
		return
	}

	WriteCallHeaders(w, call)
	writeJSON(w, http.StatusCreated, saved)
}

func (rest *RESTHandler) handleGetPushConfig(w http.ResponseWriter, r *http.Request) {
	params := a2a.GetTaskPushConfigParams{
		TaskID:   r.PathValue("id"),
		ConfigID: r.PathValue("configId"),
	}

	call := CallFromRequest(r)

	config, err := rest.handler.OnGetTaskPushConfig(r.Context(), params, call)
	if err != nil {
		writeRESTError(w, err)
		return
	}

	WriteCallHeaders(w, call)
	writeJSON(w, http.StatusOK, config)
}

func (rest *RESTHandler) handleListPushConfigs(w http.ResponseWriter, r *http.Request) {
	params := a2a.ListTaskPushConfigParams{TaskID: r.PathValue("id")}
	call := CallFromRequest(r)

	configs, err := rest.handler.OnListTaskPushConfig(r.Context(), params, call)
	if err != nil {
		writeRESTError(w, err)
		return
	}

	WriteCallHeaders(w, call)
	writeJSON(w, http.StatusOK, configs)
}

func (rest *RESTHandler) handleDeletePushConfig(w http.ResponseWriter, r *http.Request) {
	params := a2a.DeleteTaskPushConfigParams{
		TaskID:   r.PathValue("id"),
		ConfigID: r.PathValue("configId"),
	}

	call := CallFromRequest(r)

	if err := rest.handler.OnDeleteTaskPushConfig(r.Context(), params, call); err != nil {
		writeRESTError(w, err)
		return
	}

	WriteCallHeaders(w, call)
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if mediaType := r.Header.Get("Content-Type"); !strings.HasPrefix(mediaType, "application/json") {
		writeRESTError(w, errors.ErrContentTypeNotSupported.WithMessagef(
			"expected application/json, got %s", mediaType))
		return false
	}

	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeRESTError(w, errors.ErrInvalidParams.WithMessagef("decoding body: %v", err))
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("writing response", "error", err)
	}
}

// writeEvent serializes tasks and messages with their kind tag, matching
// the streaming wire shape.
func writeEvent(w http.ResponseWriter, status int, event a2a.Event) {
	payload, err := a2a.MarshalEvent(event)
	if err != nil {
		writeRESTError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeRESTError(w http.ResponseWriter, err error) {
	rpcErr := errors.AsRpcError(err)
	writeJSON(w, HTTPStatus(rpcErr), rpcErr)
}
