package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a relay run did not settle.
type ErrorKind string

const (
	ErrorKindInvalidIntent          ErrorKind = "InvalidIntent"
	ErrorKindSimulationReverted     ErrorKind = "SimulationReverted"
	ErrorKindEstimationUnavailable  ErrorKind = "EstimationUnavailable"
	ErrorKindSponsorshipDenied      ErrorKind = "SponsorshipDenied"
	ErrorKindSponsorshipUnavailable ErrorKind = "SponsorshipUnavailable"
	ErrorKindSubmissionRejected     ErrorKind = "SubmissionRejected"
	ErrorKindSubmissionUnavailable  ErrorKind = "SubmissionUnavailable"
	ErrorKindSubmissionAmbiguous    ErrorKind = "SubmissionAmbiguous"
	ErrorKindTimedOut               ErrorKind = "TimedOut"
	ErrorKindCancelled              ErrorKind = "Cancelled"
	ErrorKindInvalidOperation       ErrorKind = "InvalidOperation"
)

// Retryable reports whether the failing stage may be attempted again with the same input.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindEstimationUnavailable, ErrorKindSponsorshipUnavailable, ErrorKindSubmissionUnavailable:
		return true
	}
	return false
}

// CallerFault reports whether the request itself is wrong.
func (k ErrorKind) CallerFault() bool {
	return k == ErrorKindInvalidIntent || k == ErrorKindSimulationReverted
}

// Unresolved reports whether the operation may still land on chain. Such runs
// keep their tracking handle and are settled out-of-band.
func (k ErrorKind) Unresolved() bool {
	switch k {
	case ErrorKindTimedOut, ErrorKindCancelled, ErrorKindSubmissionAmbiguous:
		return true
	}
	return false
}

func (k ErrorKind) ErrorCode() ErrorCode {
	switch k {
	case ErrorKindInvalidIntent:
		return ErrorCodeParameterInvalid
	case ErrorKindSimulationReverted:
		return ErrorCodeSimulationReverted
	case ErrorKindSponsorshipDenied:
		return ErrorCodeSponsorshipDenied
	case ErrorKindSubmissionRejected:
		return ErrorCodeSubmissionRejected
	case ErrorKindEstimationUnavailable, ErrorKindSponsorshipUnavailable, ErrorKindSubmissionUnavailable:
		return ErrorCodeServiceUnavailable
	case ErrorKindSubmissionAmbiguous:
		return ErrorCodeSubmissionAmbiguous
	case ErrorKindTimedOut, ErrorKindCancelled:
		return ErrorCodeSettlementUnconfirmed
	default:
		return ErrorCodeInternalProcess
	}
}

// RelayError is the typed failure of a relay stage.
type RelayError struct {
	Kind    ErrorKind
	Message string
	// Handle is set once the operation was accepted by the bundler.
	Handle TrackingHandle
	Err    error
}

func NewRelayError(kind ErrorKind, message string, err error) *RelayError {
	return &RelayError{Kind: kind, Message: message, Err: err}
}

func (e *RelayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// ErrorKindOf returns the kind of the first RelayError in err's chain.
func ErrorKindOf(err error) (ErrorKind, bool) {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Kind, true
	}
	return "", false
}
