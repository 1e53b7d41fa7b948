package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ledgerline/backend/internal/apperrors"
	auditdomain "ledgerline/backend/internal/audit/domain"
	rbacdomain "ledgerline/backend/internal/rbac/domain"
)

// auditQuerier is the slice of the audit logger the handlers need.
type auditQuerier interface {
	Query(ctx context.Context, f auditdomain.QueryFilter) ([]*auditdomain.Entry, error)
	VerifyIntegrity(ctx context.Context, tenantID string) (auditdomain.IntegrityReport, error)
}

// accessChecker gates audit review behind the audit:read permission.
type accessChecker interface {
	CheckAccess(ctx context.Context, req rbacdomain.AccessRequest) (rbacdomain.AccessDecision, error)
}

// AuditHandler serves audit review and integrity verification.
type AuditHandler struct {
	audit  auditQuerier
	access accessChecker
	log    *zap.Logger
}

func NewAuditHandler(audit auditQuerier, access accessChecker, log *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, access: access, log: log}
}

type auditEntryResponse struct {
	ID              string   `json:"id"`
	TenantID        string   `json:"tenant_id"`
	UserID          string   `json:"user_id"`
	Action          string   `json:"action"`
	ResourceType    string   `json:"resource_type"`
	ResourceID      string   `json:"resource_id,omitempty"`
	Success         bool     `json:"success"`
	FailureReason   string   `json:"failure_reason,omitempty"`
	SensitiveFields []string `json:"sensitive_fields,omitempty"`
	IPAddress       string   `json:"ip_address,omitempty"`
	UserAgent       string   `json:"user_agent,omitempty"`
	EntryHash       string   `json:"entry_hash"`
	PrevHash        string   `json:"prev_hash"`
	CreatedAt       string   `json:"created_at"`
}

// Logs returns audit entries for the caller's tenant, filtered by the query
// parameters. Gated by audit:read; the tenant filter is always forced to the
// caller's tenant.
func (h *AuditHandler) Logs(c *gin.Context) {
	id := identityFrom(c)
	if !h.authorize(c) {
		return
	}

	filter := auditdomain.QueryFilter{
		TenantID:     id.TenantID,
		UserID:       c.Query("user_id"),
		Action:       c.Query("action"),
		ResourceType: c.Query("resource_type"),
		ResourceID:   c.Query("resource_id"),
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, h.log, apperrors.Validation("from must be RFC3339"))
			return
		}
		filter.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, h.log, apperrors.Validation("to must be RFC3339"))
			return
		}
		filter.To = t
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, h.log, apperrors.Validation("limit must be a positive integer"))
			return
		}
		filter.Limit = n
	}

	entries, err := h.audit.Query(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:              e.ID,
			TenantID:        e.TenantID,
			UserID:          e.UserID,
			Action:          e.Action,
			ResourceType:    e.ResourceType,
			ResourceID:      e.ResourceID,
			Success:         e.Success,
			FailureReason:   e.FailureReason,
			SensitiveFields: e.SensitiveFields,
			IPAddress:       e.IPAddress,
			UserAgent:       e.UserAgent,
			EntryHash:       e.EntryHash,
			PrevHash:        e.PrevHash,
			CreatedAt:       e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

// Verify walks the caller's tenant chain and reports broken links.
func (h *AuditHandler) Verify(c *gin.Context) {
	id := identityFrom(c)
	if !h.authorize(c) {
		return
	}
	report, err := h.audit.VerifyIntegrity(c.Request.Context(), id.TenantID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	errs := make([]gin.H, 0, len(report.Errors))
	for _, e := range report.Errors {
		errs = append(errs, gin.H{"entry_id": e.EntryID, "reason": e.Reason})
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":   report.Valid,
		"checked": report.Checked,
		"errors":  errs,
	})
}

func (h *AuditHandler) authorize(c *gin.Context) bool {
	id := identityFrom(c)
	decision, err := h.access.CheckAccess(c.Request.Context(), rbacdomain.AccessRequest{
		UserID:       id.UserID,
		TenantID:     id.TenantID,
		ResourceType: rbacdomain.ResourceAuditLog,
		Action:       rbacdomain.ActionRead,
	})
	if err != nil {
		respondError(c, h.log, err)
		return false
	}
	if !decision.Allowed {
		respondError(c, h.log, apperrors.PermissionDenied(decision.Detail))
		return false
	}
	return true
}
