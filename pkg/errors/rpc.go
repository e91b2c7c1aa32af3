package errors

import (
	"fmt"
)

/*
RpcError represents a protocol-level error. The Code is the JSON-RPC wire
code; REST and gRPC adapters map it onto their own status vocabularies.
*/
type RpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

/*
Error implements the error interface for RpcError.
*/
func (e *RpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Convenience errors (JSON-RPC reserved codes -32600 .. -32000)
// Application specific codes should use other ranges.
var (
	ErrParseError     = &RpcError{Code: -32700, Message: "Parse error"}
	ErrInvalidRequest = &RpcError{Code: -32600, Message: "Invalid Request"}
	ErrMethodNotFound = &RpcError{Code: -32601, Message: "Method not found"}
	ErrInvalidParams  = &RpcError{Code: -32602, Message: "Invalid params"}
	ErrInternal       = &RpcError{Code: -32603, Message: "Internal error"}

	// A2A specific errors (-32000 to -32099)
	ErrTaskNotFound                 = &RpcError{Code: -32001, Message: "Task not found"}
	ErrTaskNotCancelable            = &RpcError{Code: -32002, Message: "Task cannot be canceled"}
	ErrPushNotificationNotSupported = &RpcError{Code: -32003, Message: "Push Notification is not supported"}
	ErrUnsupportedOperation         = &RpcError{Code: -32004, Message: "This operation is not supported"}
	ErrContentTypeNotSupported      = &RpcError{Code: -32005, Message: "Incompatible content types"}
	ErrInvalidAgentResponse         = &RpcError{Code: -32006, Message: "Invalid agent response"}
	ErrExtendedCardNotConfigured    = &RpcError{Code: -32007, Message: "Authenticated extended card not configured"}
	ErrExtensionSupportRequired     = &RpcError{Code: -32008, Message: "Required extension not requested"}
	ErrVersionNotSupported          = &RpcError{Code: -32009, Message: "Protocol version not supported"}
	ErrPushConfigNotFound           = &RpcError{Code: -32010, Message: "Push notification config not found"}

	// Security errors; carried outside the JSON-RPC reserved range because
	// they surface as transport-level 401/403 rather than envelope errors.
	ErrAuthentication = &RpcError{Code: -32090, Message: "Authentication required"}
	ErrAuthorization  = &RpcError{Code: -32091, Message: "Permission denied"}
)

// WithMessagef creates a *copy* of an RpcError with a formatted message.
// It does not modify the original error variable.
func (e *RpcError) WithMessagef(format string, args ...any) *RpcError {
	newErr := *e // shallow copy so the sentinel stays pristine
	newErr.Message = fmt.Sprintf(format, args...)
	return &newErr
}

// WithData creates a copy of an RpcError carrying extra diagnostic data.
func (e *RpcError) WithData(data any) *RpcError {
	newErr := *e
	newErr.Data = data
	return &newErr
}

/*
AsRpcError normalizes any error to an *RpcError: RpcErrors pass through,
store errors keep their task context, everything else becomes Internal.
*/
func AsRpcError(err error) *RpcError {
	if err == nil {
		return nil
	}

	if rpcErr, ok := err.(*RpcError); ok {
		return rpcErr
	}

	if storeErr, ok := err.(*TaskStoreError); ok {
		return ErrInternal.WithMessagef("%s", storeErr.Error())
	}

	return ErrInternal.WithMessagef("%s", err.Error())
}
