package domain

import (
	"fmt"
	"net/http"
)

// ErrorCode names an API-facing error category and the HTTP status it maps to.
type ErrorCode struct {
	Name       string
	StatusCode int
}

var (
	ErrorCodeParameterInvalid = ErrorCode{Name: "PARAMETER_INVALID", StatusCode: http.StatusBadRequest}
	ErrorCodeResourceNotFound = ErrorCode{Name: "RESOURCE_NOT_FOUND", StatusCode: http.StatusNotFound}

	ErrorCodeAuthPermissionDenied  = ErrorCode{Name: "AUTH_PERMISSION_DENIED", StatusCode: http.StatusForbidden}
	ErrorCodeAuthNotAuthenticated  = ErrorCode{Name: "AUTH_NOT_AUTHENTICATED", StatusCode: http.StatusUnauthorized}
	ErrorCodeInternalProcess       = ErrorCode{Name: "INTERNAL_PROCESS", StatusCode: http.StatusInternalServerError}
	ErrorCodeRemoteProcess         = ErrorCode{Name: "REMOTE_PROCESS_ERROR", StatusCode: http.StatusBadGateway}
	ErrorCodeSimulationReverted    = ErrorCode{Name: "SIMULATION_REVERTED", StatusCode: http.StatusUnprocessableEntity}
	ErrorCodeSponsorshipDenied     = ErrorCode{Name: "SPONSORSHIP_DENIED", StatusCode: http.StatusForbidden}
	ErrorCodeSubmissionRejected    = ErrorCode{Name: "SUBMISSION_REJECTED", StatusCode: http.StatusConflict}
	ErrorCodeSubmissionAmbiguous   = ErrorCode{Name: "SUBMISSION_AMBIGUOUS", StatusCode: http.StatusBadGateway}
	ErrorCodeServiceUnavailable    = ErrorCode{Name: "SERVICE_UNAVAILABLE", StatusCode: http.StatusServiceUnavailable}
	ErrorCodeSettlementUnconfirmed = ErrorCode{Name: "SETTLEMENT_UNCONFIRMED", StatusCode: http.StatusAccepted}

	errorCodeUnknown = ErrorCode{Name: "UNKNOWN_ERROR", StatusCode: http.StatusInternalServerError}
)

// DomainError is the error type handlers render. The zero value describes an
// unknown internal error.
type DomainError struct {
	code      ErrorCode
	err       error
	clientMsg string
	detail    map[string]interface{}
}

type ErrorOption func(*DomainError)

// WithMsg sets the message shown to API clients.
func WithMsg(msg string) ErrorOption {
	return func(e *DomainError) {
		e.clientMsg = msg
	}
}

// WithDetail attaches structured information to the error response.
func WithDetail(detail map[string]interface{}) ErrorOption {
	return func(e *DomainError) {
		e.detail = detail
	}
}

func NewError(code ErrorCode, err error, opts ...ErrorOption) error {
	e := DomainError{code: code, err: err}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e DomainError) Error() string {
	if e.err == nil {
		return e.Name()
	}
	return fmt.Sprintf("%s: %s", e.Name(), e.err.Error())
}

func (e DomainError) Unwrap() error {
	return e.err
}

func (e DomainError) Name() string {
	if e.code.Name == "" {
		return errorCodeUnknown.Name
	}
	return e.code.Name
}

func (e DomainError) HTTPStatus() int {
	if e.code.StatusCode == 0 {
		return errorCodeUnknown.StatusCode
	}
	return e.code.StatusCode
}

func (e DomainError) ClientMsg() string {
	return e.clientMsg
}

func (e DomainError) Detail() map[string]interface{} {
	return e.detail
}
