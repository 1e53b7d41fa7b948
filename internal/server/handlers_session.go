package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ledgerline/backend/internal/apperrors"
	"ledgerline/backend/internal/audit"
	rbacdomain "ledgerline/backend/internal/rbac/domain"
)

// sessionAdmin is the slice of the session service the admin endpoint needs.
type sessionAdmin interface {
	RevokeAllSessions(ctx context.Context, userID string) error
}

// SessionHandler serves the session ping and admin revocation endpoints.
type SessionHandler struct {
	sessions sessionAdmin
	access   accessChecker
	audit    auditSink
	log      *zap.Logger
}

func NewSessionHandler(sessions sessionAdmin, access accessChecker, auditSink auditSink, log *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, access: access, audit: auditSink, log: log}
}

// Ping reports the remaining idle and absolute budgets. Validation and
// refresh already happened in the session middleware; an invalid session
// never reaches this handler.
func (h *SessionHandler) Ping(c *gin.Context) {
	v := validationFrom(c)
	if v == nil {
		respondError(c, h.log, apperrors.Configuration("session middleware missing on session route"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":                 v.Session.ID,
		"idle_remaining_seconds":     int(v.IdleRemaining / time.Second),
		"absolute_remaining_seconds": int(v.AbsRemaining / time.Second),
		"privileged":                 v.Session.PrivilegedAt(time.Now().UTC()),
	})
}

type revokeAllRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// RevokeAll revokes every session of the target user. An administrative
// action gated by session_admin:write and always audited.
func (h *SessionHandler) RevokeAll(c *gin.Context) {
	var req revokeAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apperrors.Validation("user_id is required"))
		return
	}
	id := identityFrom(c)
	ctx := c.Request.Context()

	decision, err := h.access.CheckAccess(ctx, rbacdomain.AccessRequest{
		UserID:       id.UserID,
		TenantID:     id.TenantID,
		ResourceType: rbacdomain.ResourceSessionAdmin,
		Action:       rbacdomain.ActionWrite,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if !decision.Allowed {
		h.auditRevokeAll(c, req.UserID, false, string(decision.Reason))
		respondError(c, h.log, apperrors.PermissionDenied(decision.Detail))
		return
	}

	if err := h.sessions.RevokeAllSessions(ctx, req.UserID); err != nil {
		respondError(c, h.log, err)
		return
	}
	h.auditRevokeAll(c, req.UserID, true, "")
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

func (h *SessionHandler) auditRevokeAll(c *gin.Context, targetUserID string, success bool, failure string) {
	id := identityFrom(c)
	h.audit.Log(c.Request.Context(), audit.Event{
		TenantID:      id.TenantID,
		UserID:        id.UserID,
		Action:        "revoke_all_sessions",
		ResourceType:  string(rbacdomain.ResourceSessionAdmin),
		ResourceID:    targetUserID,
		Success:       success,
		FailureReason: failure,
		IPAddress:     c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
}
