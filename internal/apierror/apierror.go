package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/custody/model"
)

type ErrorCode string

const (
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrConflict           ErrorCode = "CONFLICT"
	ErrBadRequest         ErrorCode = "BAD_REQUEST"
	ErrInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrInsufficientFunds  ErrorCode = "INSUFFICIENT_FUNDS"
	ErrExcessCancellation ErrorCode = "EXCESS_CANCELLATION"
	ErrOutOfWindow        ErrorCode = "OUT_OF_WINDOW"
	ErrRequestFinalized   ErrorCode = "REQUEST_FINALIZED"
	ErrOverflow           ErrorCode = "OVERFLOW"
	ErrTransferFailed     ErrorCode = "TRANSFER_FAILED"
	ErrUnsupportedMode    ErrorCode = "UNSUPPORTED_MODE"
	ErrInternalServer     ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

var ledgerCodes = []struct {
	err  error
	code ErrorCode
}{
	{model.ErrUnauthorized, ErrUnauthorized},
	{model.ErrInsufficientFunds, ErrInsufficientFunds},
	{model.ErrExcessCancellation, ErrExcessCancellation},
	{model.ErrOutOfWindow, ErrOutOfWindow},
	{model.ErrRequestFinalized, ErrRequestFinalized},
	{model.ErrOverflow, ErrOverflow},
	{model.ErrExternalTransferFailed, ErrTransferFailed},
	{model.ErrRequestNotFound, ErrNotFound},
	{model.ErrUnsupportedMode, ErrUnsupportedMode},
	{model.ErrInvalidHolder, ErrInvalidInput},
}

// FromError classifies a custodian error. Unknown errors become internal errors.
func FromError(err error) APIError {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, c := range ledgerCodes {
		if errors.Is(err, c.err) {
			return APIError{Code: c.code, Message: err.Error()}
		}
	}
	return NewAPIError(ErrInternalServer, "internal server error", err.Error())
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}
	switch apiErr.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict, ErrOutOfWindow, ErrRequestFinalized, ErrUnsupportedMode:
		return http.StatusConflict
	case ErrBadRequest, ErrInvalidInput:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusForbidden
	case ErrInsufficientFunds, ErrExcessCancellation, ErrOverflow:
		return http.StatusUnprocessableEntity
	case ErrTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
