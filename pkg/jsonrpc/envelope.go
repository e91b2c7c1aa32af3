package jsonrpc

import (
	"encoding/json"

	"github.com/agentmesh/a2a-core/pkg/errors"
)

// Version is the JSON-RPC protocol version this package speaks.
const Version = "2.0"

// Method names of the A2A operation surface.
const (
	MethodMessageSend      = "message/send"
	MethodMessageStream    = "message/stream"
	MethodTasksGet         = "tasks/get"
	MethodTasksList        = "tasks/list"
	MethodTasksCancel      = "tasks/cancel"
	MethodTasksResubscribe = "tasks/resubscribe"
	MethodPushConfigSet    = "tasks/pushNotificationConfig/set"
	MethodPushConfigGet    = "tasks/pushNotificationConfig/get"
	MethodPushConfigList   = "tasks/pushNotificationConfig/list"
	MethodPushConfigDelete = "tasks/pushNotificationConfig/delete"
	MethodAgentCard        = "agent/card"
	MethodExtendedCard     = "agent/getAuthenticatedExtendedCard"
)

/*
Request is a JSON-RPC 2.0 request envelope. ID and Params stay raw until
the dispatcher knows the method, so malformed params surface as
InvalidParams rather than a parse failure of the whole envelope.
*/
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Validate checks the envelope invariants before dispatch.
func (r *Request) Validate() *errors.RpcError {
	if r.JSONRPC != Version {
		return errors.ErrInvalidRequest.WithMessagef("jsonrpc must be %q", Version)
	}
	if r.Method == "" {
		return errors.ErrInvalidRequest.WithMessagef("method is required")
	}
	return nil
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

/*
Response is a JSON-RPC 2.0 response envelope. Exactly one of Result and
Error is set.
*/
type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  any              `json:"result,omitempty"`
	Error   *errors.RpcError `json:"error,omitempty"`
}

// NewResponse builds a success response for the given request id.
func NewResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse builds an error response for the given request id.
func NewErrorResponse(id json.RawMessage, rpcErr *errors.RpcError) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: rpcErr}
}
