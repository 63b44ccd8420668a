package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	bookingDomain "github.com/felixgeelhaar/slotwise/internal/booking/domain"
	sharedDomain "github.com/felixgeelhaar/slotwise/internal/shared/domain"
)

// APIError represents an API error.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// toAPIError maps the engine's error taxonomy onto HTTP.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, sharedDomain.ErrInvalidInput):
		return &APIError{Status: http.StatusBadRequest, Code: "invalid_input", Message: err.Error()}
	case errors.Is(err, sharedDomain.ErrNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "not_found", Message: err.Error()}
	case errors.Is(err, sharedDomain.ErrResourceExhausted):
		return &APIError{Status: http.StatusConflict, Code: "resource_exhausted", Message: rejectionReason(err)}
	case errors.Is(err, sharedDomain.ErrSlotUnavailable):
		return &APIError{Status: http.StatusConflict, Code: "slot_unavailable", Message: rejectionReason(err)}
	case errors.Is(err, bookingDomain.ErrInvalidTransition):
		return &APIError{Status: http.StatusConflict, Code: "invalid_transition", Message: err.Error()}
	default:
		return &APIError{Status: http.StatusInternalServerError, Code: "internal_error", Message: "internal server error"}
	}
}

func rejectionReason(err error) string {
	if rejected, ok := bookingDomain.AsRejected(err); ok {
		return rejected.Reason
	}
	return err.Error()
}

func badRequest(format string, args ...any) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "invalid_input", Message: fmt.Sprintf(format, args...)}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			"path", c.FullPath(),
			"error", err,
		)
	}
	c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
}
