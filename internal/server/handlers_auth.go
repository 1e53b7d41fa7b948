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
	"ledgerline/backend/internal/security"
	sessiondomain "ledgerline/backend/internal/session/domain"
	userdomain "ledgerline/backend/internal/user/domain"
)

// authService is the slice of the session service the auth handlers need.
type authService interface {
	Authenticate(ctx context.Context, tenantID, email, password string) (*userdomain.User, error)
	CreateSession(ctx context.Context, userID, tenantID, ip, userAgent string) (*sessiondomain.Session, error)
	GrantPrivilegedAccess(ctx context.Context, sessionID, password string) (time.Time, error)
	RevokeSession(ctx context.Context, sessionID string) error
}

// roleSource resolves the caller's roles for the token role claim.
type roleSource interface {
	RolesForUser(ctx context.Context, userID, tenantID string) ([]rbacdomain.Role, error)
}

// auditSink records authentication decisions.
type auditSink interface {
	Log(ctx context.Context, ev audit.Event) (string, error)
}

// AuthHandler serves login, logout, and privilege elevation.
type AuthHandler struct {
	sessions authService
	roles    roleSource
	tokens   *security.TokenProvider
	audit    auditSink
	log      *zap.Logger
}

// NewAuthHandler wires the auth endpoints.
func NewAuthHandler(sessions authService, roles roleSource, tokens *security.TokenProvider, auditSink auditSink, log *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, roles: roles, tokens: tokens, audit: auditSink, log: log}
}

type loginRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates under the lockout policy, creates a session, and
// issues a bearer token. Failures are audited with the failure reason.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apperrors.Validation("tenant_id, email and password are required"))
		return
	}
	ctx := c.Request.Context()

	user, err := h.sessions.Authenticate(ctx, req.TenantID, req.Email, req.Password)
	if err != nil {
		h.auditLogin(c, req.TenantID, "", false, apperrors.CodeOf(err))
		respondError(c, h.log, err)
		return
	}

	sess, err := h.sessions.CreateSession(ctx, user.ID, user.TenantID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	role := ""
	if roles, err := h.roles.RolesForUser(ctx, user.ID, user.TenantID); err == nil && len(roles) > 0 {
		role = roles[0].Name
	}
	token, expiresAt, err := h.tokens.Issue(security.Identity{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Role:     role,
	})
	if err != nil {
		respondError(c, h.log, apperrors.Configuration("token issue failed").Wrap(err))
		return
	}

	h.auditLogin(c, user.TenantID, user.ID, true, "")
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
		"session_id": sess.ID,
		"user_id":    user.ID,
	})
}

// Logout revokes the caller's session.
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := c.GetHeader(sessionHeader)
	if err := h.sessions.RevokeSession(c.Request.Context(), sessionID); err != nil {
		respondError(c, h.log, err)
		return
	}
	id := identityFrom(c)
	h.audit.Log(c.Request.Context(), audit.Event{
		TenantID:  id.TenantID,
		UserID:    id.UserID,
		Action:    "logout",
		Success:   true,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

type elevateRequest struct {
	Password string `json:"password" binding:"required"`
}

// Elevate re-verifies the caller's password and opens the privileged window
// on the session.
func (h *AuthHandler) Elevate(c *gin.Context) {
	var req elevateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log, apperrors.Validation("password is required"))
		return
	}
	id := identityFrom(c)
	ctx := c.Request.Context()

	until, err := h.sessions.GrantPrivilegedAccess(ctx, c.GetHeader(sessionHeader), req.Password)
	if err != nil {
		h.audit.Log(ctx, audit.Event{
			TenantID:      id.TenantID,
			UserID:        id.UserID,
			Action:        "elevate",
			Success:       false,
			FailureReason: string(apperrors.CodeOf(err)),
			IPAddress:     c.ClientIP(),
			UserAgent:     c.Request.UserAgent(),
		})
		respondError(c, h.log, err)
		return
	}
	h.audit.Log(ctx, audit.Event{
		TenantID:  id.TenantID,
		UserID:    id.UserID,
		Action:    "elevate",
		Success:   true,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	c.JSON(http.StatusOK, gin.H{"privileged_until": until.UTC().Format(time.RFC3339)})
}

func (h *AuthHandler) auditLogin(c *gin.Context, tenantID, userID string, success bool, failure apperrors.Code) {
	h.audit.Log(c.Request.Context(), audit.Event{
		TenantID:      tenantID,
		UserID:        userID,
		Action:        "login",
		Success:       success,
		FailureReason: string(failure),
		IPAddress:     c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
}
