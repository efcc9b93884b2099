package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/activity"
	"github.com/xaenox/shieldbot/internal/classifier"
	"github.com/xaenox/shieldbot/internal/coach"
	"github.com/xaenox/shieldbot/internal/lifecycle"
	"github.com/xaenox/shieldbot/internal/storage"
)

// Error codes returned in the "code" field.
const (
	codeInvalidRequest  = "invalid_request"
	codeSenderBlocked   = "sender_blocked"
	codeNotFound        = "not_found"
	codeNoActivity      = "no_activity"
	codeAINotConfigured = "ai_not_configured"
	codeAIUnavailable   = "ai_unavailable"
	codeInternal        = "internal_error"
)

// classify maps a service error to an HTTP status and code.
func classify(err error) (int, string) {
	var transportErr *classifier.TransportError
	switch {
	case errors.Is(err, lifecycle.ErrValidation),
		errors.Is(err, activity.ErrInvalidScan),
		errors.Is(err, activity.ErrUnknownRisk),
		errors.Is(err, coach.ErrEmptyMessage):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.Is(err, lifecycle.ErrBlocked):
		return http.StatusForbidden, codeSenderBlocked
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, coach.ErrNoActivity):
		return http.StatusUnprocessableEntity, codeNoActivity
	case errors.Is(err, classifier.ErrNotConfigured):
		return http.StatusServiceUnavailable, codeAINotConfigured
	case errors.As(err, &transportErr):
		return http.StatusBadGateway, codeAIUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// errorMessage hides internal failures from clients.
func errorMessage(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "Internal error"
	}
	return err.Error()
}

func (r *Router) fail(c *gin.Context, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		r.logger.Error("Request failed", zap.String("operation", op), zap.Error(err))
	} else {
		r.logger.Debug("Request rejected", zap.String("operation", op), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": errorMessage(status, err), "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": codeInvalidRequest})
}
