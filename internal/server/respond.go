package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ledgerline/backend/internal/apperrors"
)

// errorBody is the JSON error envelope. Code is machine-usable; the message
// is safe to show to the caller.
type errorBody struct {
	Code     apperrors.Code `json:"code"`
	Message  string         `json:"message"`
	UnlockAt string         `json:"unlock_at,omitempty"`
}

// errorBodyFor builds the client-facing envelope for an error. Server-class
// errors get generic text regardless of their internal detail.
func errorBodyFor(err error) errorBody {
	body := errorBody{Code: apperrors.CodeOf(err), Message: "request failed"}
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		body.Message = ae.Message
		if ae.UnlockAt != nil {
			body.UnlockAt = ae.UnlockAt.UTC().Format(time.RFC3339)
		}
	}
	if apperrors.StatusOf(err) >= http.StatusInternalServerError {
		body.Message = "security configuration error"
	}
	return body
}

// respondError maps an error to its HTTP status. Configuration and guardrail
// failures return generic text; the full detail goes to the server log only.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := apperrors.StatusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errorBodyFor(err)})
}
