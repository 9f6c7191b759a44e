package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tipvault/relayer/src/domain"
)

// StandardResponse represents the standard API response format
type StandardResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

// respondWithSuccess sends a successful response with the standard format
func respondWithSuccess(c *gin.Context, data interface{}) {
	msg := "OK"

	response := StandardResponse{
		Code:    0,
		Message: msg,
		Data:    data,
	}

	c.JSON(http.StatusOK, response)
}

// respondWithUnsettled sends a relay whose outcome is not known yet. The
// record is the data; the status tells the client to look it up later.
func respondWithUnsettled(c *gin.Context, err error, data interface{}) {
	domainErr := parseDomainError(err)
	c.JSON(domainErr.HTTPStatus(), StandardResponse{
		Code:    mapDomainErrorToCode(domainErr),
		Message: domainErr.ClientMsg(),
		Data:    data,
		Error:   domainErr.Detail(),
	})
}

// respondWithError sends an error response with the standard format
func respondWithError(c *gin.Context, err error) {
	domainErr := parseDomainError(err)

	// Use the original error message if the domain error has no client message
	message := domainErr.ClientMsg()
	if message == "" {
		message = err.Error()
	}

	response := StandardResponse{
		Code:    mapDomainErrorToCode(domainErr),
		Message: message,
	}

	// Add error details if available
	if detail := domainErr.Detail(); detail != nil {
		response.Error = detail
	}

	ctx := c.Request.Context()
	event := zerolog.Ctx(ctx).Error()
	if domainErr.HTTPStatus() < http.StatusInternalServerError {
		event = zerolog.Ctx(ctx).Warn()
	}
	event.Str("function", "respondWithError").
		Str("error_name", domainErr.Name()).
		Int("error_code", response.Code).
		Msg(response.Message)

	_ = c.Error(err)
	c.AbortWithStatusJSON(domainErr.HTTPStatus(), response)
}

// parseDomainError extracts domain error information
func parseDomainError(err error) domain.DomainError {
	var domainError domain.DomainError
	// We don't check if errors.As is valid or not
	// because an empty domain.DomainError would return default error data.
	_ = errors.As(err, &domainError)
	return domainError
}

// mapDomainErrorToCode maps domain error codes to API response codes
func mapDomainErrorToCode(domainErr domain.DomainError) int {
	switch domainErr.Name() {
	case "PARAMETER_INVALID":
		return 1001
	case "RESOURCE_NOT_FOUND":
		return 1002
	case "AUTH_PERMISSION_DENIED":
		return 1003
	case "AUTH_NOT_AUTHENTICATED":
		return 1004
	case "INTERNAL_PROCESS":
		return 1005
	case "REMOTE_PROCESS_ERROR":
		return 1006
	case "SIMULATION_REVERTED":
		return 2001
	case "SPONSORSHIP_DENIED":
		return 2002
	case "SUBMISSION_REJECTED":
		return 2003
	case "SUBMISSION_AMBIGUOUS":
		return 2004
	case "SERVICE_UNAVAILABLE":
		return 2005
	case "SETTLEMENT_UNCONFIRMED":
		return 2006
	default:
		return 1000 // Generic error code
	}
}
