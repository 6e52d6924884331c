package handler

import (
	"errors"
	"net/http"

	"signal-desk/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// statusFor maps a pipeline error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyInput):
		return http.StatusNotFound
	case domain.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrFeedUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
