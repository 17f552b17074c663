package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/interface/http/handlers"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is the body of every failed request.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`

	// CoursePathID is set when a generation failed after the path was stored.
	CoursePathID string `json:"coursePathId,omitempty"`
}

// ErrorEnvelope wraps APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondStatus(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: message, Code: code}})
}

// respondError maps a domain error to its status and envelope.
func (s *Server) respondError(c *gin.Context, err error) {
	s.respondErrorFor(c, err, "")
}

func (s *Server) respondErrorFor(c *gin.Context, err error, coursePathID string) {
	status, code := classify(err)
	body := APIError{
		Message:      err.Error(),
		Code:         code,
		Field:        shared.FieldOf(err),
		CoursePathID: coursePathID,
	}
	if status == http.StatusInternalServerError {
		handlers.RequestLogger(c, s.logger).Error("request failed", logger.Err(err))
		body.Message = "an unexpected error occurred"
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: body})
}

// classify picks the status code. Order matters: a generation timeout is both
// a generation and a timeout error, and must surface as 502.
func classify(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsNotEnrolled(err):
		return http.StatusForbidden, "not_enrolled"
	case shared.IsForbidden(err):
		return http.StatusForbidden, "forbidden"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "already_exists"
	case shared.IsConflict(err):
		return http.StatusConflict, "conflict"
	case shared.IsDrift(err):
		return http.StatusConflict, "aggregate_drift"
	case shared.IsInvalidState(err):
		return http.StatusConflict, "invalid_state"
	case shared.IsGeneration(err):
		return http.StatusBadGateway, "generation_failed"
	case shared.IsExternalService(err):
		return http.StatusBadGateway, "external_service_error"
	case errors.Is(err, context.Canceled):
		return 499, "client_closed_request"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// bindError reports a malformed body.
func bindError(c *gin.Context, err error) {
	respondStatus(c, http.StatusBadRequest, "invalid_request", err.Error())
}

// queryInt reads a non-negative integer query parameter.
func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
