package service

import (
	"net/http"

	"github.com/agentmesh/a2a-core/pkg/errors"
)

/*
HTTPStatus maps a protocol error onto the REST status-code contract.
*/
func HTTPStatus(err *errors.RpcError) int {
	switch err.Code {
	case errors.ErrParseError.Code, errors.ErrInvalidRequest.Code:
		return http.StatusBadRequest
	case errors.ErrMethodNotFound.Code, errors.ErrTaskNotFound.Code, errors.ErrPushConfigNotFound.Code:
		return http.StatusNotFound
	case errors.ErrTaskNotCancelable.Code:
		return http.StatusConflict
	case errors.ErrContentTypeNotSupported.Code:
		return http.StatusUnsupportedMediaType
	case errors.ErrInvalidParams.Code:
		return http.StatusUnprocessableEntity
	case errors.ErrUnsupportedOperation.Code,
		errors.ErrPushNotificationNotSupported.Code,
		errors.ErrVersionNotSupported.Code,
		errors.ErrExtendedCardNotConfigured.Code:
		return http.StatusNotImplemented
	case errors.ErrExtensionSupportRequired.Code:
		return http.StatusBadRequest
	case errors.ErrInvalidAgentResponse.Code:
		return http.StatusBadGateway
	case errors.ErrAuthentication.Code:
		return http.StatusUnauthorized
	case errors.ErrAuthorization.Code:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
