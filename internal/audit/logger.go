package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ledgerline/backend/internal/audit/domain"
	"ledgerline/backend/internal/metrics"
)

// Repo is the minimal repository needed by the Logger.
type Repo interface {
	Append(ctx context.Context, e *domain.Entry) error
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.Entry, error)
	Query(ctx context.Context, f domain.QueryFilter) ([]*domain.Entry, error)
}

// Event is the caller-facing shape of one audit event.
type Event struct {
	TenantID        string
	UserID          string
	Action          string
	ResourceType    string
	ResourceID      string
	Success         bool
	FailureReason   string
	SensitiveFields []string // names only; never values
	IPAddress       string
	UserAgent       string
}

// Logger appends hash-chained audit entries. Unlike request logging, audit
// writes are not best-effort: Log returns the error so callers of sensitive
// actions can escalate, and every failure is pushed to the alert channel
// (error log + metric) here regardless of what the caller does with it.
type Logger struct {
	repo Repo
	log  *zap.Logger
}

// NewLogger returns a Logger that persists to repo.
func NewLogger(repo Repo, log *zap.Logger) *Logger {
	return &Logger{repo: repo, log: log}
}

// Log appends one entry to the tenant's chain and returns its id. On failure
// the event is written to the server log in full (an unrecorded action must
// not also be unobservable) and the audit-failure metric is incremented.
func (l *Logger) Log(ctx context.Context, ev Event) (string, error) {
	e := &domain.Entry{
		ID:              uuid.New().String(),
		TenantID:        ev.TenantID,
		UserID:          ev.UserID,
		Action:          ev.Action,
		ResourceType:    ev.ResourceType,
		ResourceID:      ev.ResourceID,
		Success:         ev.Success,
		FailureReason:   ev.FailureReason,
		SensitiveFields: ev.SensitiveFields,
		IPAddress:       ev.IPAddress,
		UserAgent:       ev.UserAgent,
		// timestamptz round-trips at microsecond precision. The hash must be
		// computed over exactly the timestamp a later scan returns.
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := l.repo.Append(ctx, e); err != nil {
		metrics.AuditWriteFailures.WithLabelValues(ev.TenantID).Inc()
		l.log.Error("audit write failed",
			zap.String("tenant_id", ev.TenantID),
			zap.String("user_id", ev.UserID),
			zap.String("action", ev.Action),
			zap.String("resource_type", ev.ResourceType),
			zap.String("resource_id", ev.ResourceID),
			zap.Bool("success", ev.Success),
			zap.Error(err))
		return "", err
	}
	return e.ID, nil
}

// VerifyIntegrity walks the tenant's chain in insertion order, recomputing
// each hash and checking continuity.
func (l *Logger) VerifyIntegrity(ctx context.Context, tenantID string) (domain.IntegrityReport, error) {
	entries, err := l.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return domain.IntegrityReport{}, err
	}
	return Verify(entries), nil
}

// Query returns entries matching the filter for authorized audit review.
// Callers must have already passed an audit:read RBAC check.
func (l *Logger) Query(ctx context.Context, f domain.QueryFilter) ([]*domain.Entry, error) {
	return l.repo.Query(ctx, f)
}
