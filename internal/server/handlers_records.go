package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ledgerline/backend/internal/apperrors"
	"ledgerline/backend/internal/boundary"
	rbacdomain "ledgerline/backend/internal/rbac/domain"
	sessionservice "ledgerline/backend/internal/session/service"
)

// boundaryService is the slice of the sensitive-field boundary the record
// handlers need.
type boundaryService interface {
	Read(ctx context.Context, req boundary.Request) (*boundary.Result, error)
	Write(ctx context.Context, req boundary.Request) (*boundary.Result, error)
	Create(ctx context.Context, req boundary.Request) (*boundary.Result, error)
	Delete(ctx context.Context, req boundary.Request) (*boundary.Result, error)
	Export(ctx context.Context, req boundary.Request) (*boundary.Result, error)
}

// RecordsHandler routes record access through the boundary. No handler here
// touches sensitive storage directly.
type RecordsHandler struct {
	boundary boundaryService
	log      *zap.Logger
	now      func() time.Time
}

func NewRecordsHandler(b boundaryService, log *zap.Logger) *RecordsHandler {
	return &RecordsHandler{boundary: b, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Get reads a record. Requested fields come from ?fields=a,b; an empty list
// means non-sensitive fields only.
func (h *RecordsHandler) Get(c *gin.Context) {
	req, ok := h.buildRequest(c)
	if !ok {
		return
	}
	if raw := c.Query("fields"); raw != "" {
		req.Fields = strings.Split(raw, ",")
	}
	res, err := h.boundary.Read(c.Request.Context(), req)
	h.respond(c, res, err)
}

type recordBody struct {
	Data          map[string]string `json:"data"`
	Justification string            `json:"justification"`
}

// Create inserts a record owned by the caller.
func (h *RecordsHandler) Create(c *gin.Context) {
	req, ok := h.buildRequest(c)
	if !ok {
		return
	}
	var body recordBody
	if err := c.ShouldBindJSON(&body); err != nil || len(body.Data) == 0 {
		respondError(c, h.log, apperrors.Validation("data is required"))
		return
	}
	req.Data = body.Data
	res, err := h.boundary.Create(c.Request.Context(), req)
	h.respond(c, res, err)
}

// Update modifies a record through the boundary.
func (h *RecordsHandler) Update(c *gin.Context) {
	req, ok := h.buildRequest(c)
	if !ok {
		return
	}
	var body recordBody
	if err := c.ShouldBindJSON(&body); err != nil || len(body.Data) == 0 {
		respondError(c, h.log, apperrors.Validation("data is required"))
		return
	}
	req.Data = body.Data
	res, err := h.boundary.Write(c.Request.Context(), req)
	h.respond(c, res, err)
}

// Delete removes a record. Deleting a sensitive resource class requires an
// open privileged window, same as export.
func (h *RecordsHandler) Delete(c *gin.Context) {
	req, ok := h.buildRequest(c)
	if !ok {
		return
	}
	if sessionservice.RequiresReauthentication(req.ResourceType, rbacdomain.ActionDelete) && !req.Privileged {
		respondError(c, h.log, apperrors.PermissionDenied("this action requires recent credential verification"))
		return
	}
	res, err := h.boundary.Delete(c.Request.Context(), req)
	h.respond(c, res, err)
}

// Export returns the full decrypted record. Justification and privileged
// window are enforced inside the boundary.
func (h *RecordsHandler) Export(c *gin.Context) {
	req, ok := h.buildRequest(c)
	if !ok {
		return
	}
	var body recordBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, h.log, apperrors.Validation("justification is required"))
		return
	}
	req.Justification = body.Justification
	res, err := h.boundary.Export(c.Request.Context(), req)
	h.respond(c, res, err)
}

func (h *RecordsHandler) buildRequest(c *gin.Context) (boundary.Request, bool) {
	id := identityFrom(c)
	rt, err := rbacdomain.ParseResourceType(c.Param("type"))
	if err != nil {
		respondError(c, h.log, apperrors.Validation("unknown resource type"))
		return boundary.Request{}, false
	}

	privileged := false
	if v := validationFrom(c); v != nil {
		privileged = v.Session.PrivilegedAt(h.now())
	}
	return boundary.Request{
		UserID:       id.UserID,
		TenantID:     id.TenantID,
		ResourceType: rt,
		ResourceID:   c.Param("id"),
		Privileged:   privileged,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	}, true
}

// respond writes the boundary result. The audit log id rides along on errors
// too, so a caller can correlate a denial with the exact audit entry.
func (h *RecordsHandler) respond(c *gin.Context, res *boundary.Result, err error) {
	if err != nil {
		status := apperrors.StatusOf(err)
		body := gin.H{"error": errorBodyFor(err)}
		if res != nil && res.AuditLogID != "" {
			body["audit_log_id"] = res.AuditLogID
		}
		if status >= http.StatusInternalServerError {
			h.log.Error("record operation failed",
				zap.String("path", c.FullPath()),
				zap.Error(err))
		}
		c.AbortWithStatusJSON(status, body)
		return
	}
	out := gin.H{
		"success":      res.Success,
		"audit_log_id": res.AuditLogID,
	}
	if res.Data != nil {
		out["data"] = res.Data
	}
	if len(res.DeniedFields) > 0 {
		out["denied_fields"] = res.DeniedFields
	}
	c.JSON(http.StatusOK, out)
}
