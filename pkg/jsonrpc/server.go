package jsonrpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/agentmesh/a2a-core/pkg/a2a"
	"github.com/agentmesh/a2a-core/pkg/errors"
	"github.com/agentmesh/a2a-core/pkg/service"
)

// maxBodyBytes caps a request body read.
const maxBodyBytes = 4 << 20

/*
Server adapts the JSON-RPC 2.0 transport onto the shared request
handler. Unary methods answer with a single response envelope (batches
supported); the streaming methods answer with an SSE stream whose every
frame is a response envelope carrying the originating request id.
*/
type Server struct {
	handler *service.RequestHandler
}

func NewServer(handler *service.RequestHandler) *Server {
	return &Server{handler: handler}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if mediaType := r.Header.Get("Content-Type"); !strings.HasPrefix(mediaType, "application/json") {
		writeSingle(w, NewErrorResponse(nil,
			errors.ErrContentTypeNotSupported.WithMessagef("expected application/json, got %s", mediaType)))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeSingle(w, NewErrorResponse(nil, errors.ErrParseError.WithMessagef("reading body: %v", err)))
		return
	}

	call := service.CallFromRequest(r)

	if isBatch(body) {
		s.serveBatch(w, r, body, call)
		return
	}

	var request Request
	if err := json.Unmarshal(body, &request); err != nil {
		writeSingle(w, NewErrorResponse(nil, errors.ErrParseError.WithMessagef("%v", err)))
		return
	}

	if rpcErr := request.Validate(); rpcErr != nil {
		writeSingle(w, NewErrorResponse(request.ID, rpcErr))
		return
	}

	if isStreaming(request.Method) {
		s.serveStream(w, r, &request, call)
		return
	}

	response := s.dispatch(r, &request, call)
	service.WriteCallHeaders(w, call)

	if request.IsNotification() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeSingle(w, response)
}

// serveBatch answers an array of unary requests in order. Streaming
// methods cannot share a connection, so inside a batch they error.
func (s *Server) serveBatch(w http.ResponseWriter, r *http.Request, body []byte, call *service.ServerCallContext) {
	var requests []Request
	if err := json.Unmarshal(body, &requests); err != nil {
		writeSingle(w, NewErrorResponse(nil, errors.ErrParseError.WithMessagef("%v", err)))
		return
	}

	if len(requests) == 0 {
		writeSingle(w, NewErrorResponse(nil, errors.ErrInvalidRequest.WithMessagef("empty batch")))
		return
	}

	responses := make([]*Response, 0, len(requests))

	for i := range requests {
		request := &requests[i]

		var response *Response

		switch {
		case request.Validate() != nil:
			response = NewErrorResponse(request.ID, request.Validate())
		case isStreaming(request.Method):
			response = NewErrorResponse(request.ID,
				errors.ErrInvalidRequest.WithMessagef("%s cannot be batched", request.Method))
		default:
			response = s.dispatch(r, request, call)
		}

		if !request.IsNotification() {
			responses = append(responses, response)
		}
	}

	service.WriteCallHeaders(w, call)

	if len(responses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(responses); err != nil {
		log.Error("writing batch response", "error", err)
	}
}

// dispatch routes one unary request to the handler.
func (s *Server) dispatch(r *http.Request, request *Request, call *service.ServerCallContext) *Response {
	ctx := r.Context()

	result, err := func() (any, error) {
		switch request.Method {
		case MethodMessageSend:
			var params a2a.MessageSendParams
			if err := unmarshalParams(request.Params, &params); err != nil {
				return nil, err
			}
			event, err := s.handler.OnMessageSend(ctx, params, call)
			if err != nil {
				return nil, err
			}
			return eventResult{event}, nil

		case MethodTasksGet:
			var params a2a.TaskQueryParams
			if err := unmarshalParams(request.Params, &params); err != nil {
				return nil, err
			}
			return s.handler.OnGetTask(ctx, params, call)

		case MethodTasksList:
			var params a2a.TaskListParams
			if err := unmarshalParams(request.Params, &params); err != nil {
				return nil, err
			}
			return s.handler.OnListTasks(ctx, params, call)

		case MethodTasksCancel:
			var params a2a.TaskIDParams
			if err := unmarshalParams(request.Params, &params); err != nil {
				return nil, err
			}
			return s.handler.OnCancelTask(ctx, params, call)

		case MethodPushConfigSet:
			var params a2a.TaskPushNotificationConfig
			if err := unmarshalParams(request.Params, &params); err != nil {
				return nil, err
			}
			return s.handler.OnSetTaskPushConfig(ctx, params, call)

		case MethodPushConfigGet:
			var params a2a.GetTaskPushConfigParams
			if err := unmarshalParams(request.Params, &params); err != nil {
				return nil, err
			}
			return s.handler.OnGetTaskPushConfig(ctx, params, call)

		case MethodPushConfigList:
			var params a2a.ListTaskPushConfigParams
			if err := unmarshalParams(request.Params, &params); err != nil {
				return nil, err
			}
			return s.handler.OnListTaskPushConfig(ctx, params, call)

		case MethodPushConfigDelete:
			var params a2a.DeleteTaskPushConfigParams
			if err := unmarshalParams(request.Params, &params); err != nil {
				return nil, err
			}
			if err := s.handler.OnDeleteTaskPushConfig(ctx, params, call); err != nil {
				return nil, err
			}
			return map[string]any{}, nil

		case MethodAgentCard:
			return s.handler.AgentCard(), nil

		case MethodExtendedCard:
			return s.handler.ExtendedAgentCard(call)

		default:
			return nil, errors.ErrMethodNotFound.WithMessagef("unknown method %s", request.Method)
		}
	}()

	if err != nil {
		return NewErrorResponse(request.ID, errors.AsRpcError(err))
	}

	return NewResponse(request.ID, result)
}

// serveStream answers message/stream and tasks/resubscribe with SSE.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, request *Request, call *service.ServerCallContext) {
	var (
		events <-chan a2a.Event
		err    error
	)

	switch request.Method {
	case MethodMessageStream:
		var params a2a.MessageSendParams
		if err = unmarshalParams(request.Params, &params); err == nil {
			events, err = s.handler.OnMessageSendStream(r.Context(), params, call)
		}
	case MethodTasksResubscribe:
		var params a2a.TaskIDParams
		if err = unmarshalParams(request.Params, &params); err == nil {
			events, err = s.handler.OnSubscribeToTask(r.Context(), params, call)
		}
	}

	if err != nil {
		service.WriteCallHeaders(w, call)
		writeSingle(w, NewErrorResponse(request.ID, errors.AsRpcError(err)))
		return
	}

	service.WriteCallHeaders(w, call)

	// Every SSE frame is a full response envelope keyed to the request id,
	// so clients demultiplex streams the same way they match unary calls.
	service.StreamSSE(w, r, events, func(event a2a.Event) ([]byte, error) {
		return json.Marshal(NewResponse(request.ID, eventResult{event}))
	})
}

// eventResult defers to MarshalEvent so the kind discriminator survives
// envelope encoding.
type eventResult struct {
	event a2a.Event
}

func (r eventResult) MarshalJSON() ([]byte, error) {
	return a2a.MarshalEvent(r.event)
}

func unmarshalParams(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return errors.ErrInvalidParams.WithMessagef("params are required")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return errors.ErrInvalidParams.WithMessagef("%v", err)
	}
	return nil
}

func isStreaming(method string) bool {
	return method == MethodMessageStream || method == MethodTasksResubscribe
}

func isBatch(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

func writeSingle(w http.ResponseWriter, response *Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error("writing response", "error", err)
	}
}
