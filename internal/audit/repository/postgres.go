package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ledgerline/backend/internal/audit"
	"ledgerline/backend/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append writes the entry inside one transaction. A per-tenant advisory lock
// serializes concurrent appends for the same tenant so the chain cannot fork;
// appends for different tenants do not contend.
func (r *PostgresRepository) Append(ctx context.Context, e *domain.Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, "audit:"+e.TenantID); err != nil {
		return err
	}

	prev := domain.GenesisHash
	err = tx.QueryRowContext(ctx,
		`SELECT entry_hash FROM audit_log_entries
		 WHERE tenant_id = $1 ORDER BY seq DESC LIMIT 1`, e.TenantID).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	e.PrevHash = prev
	e.EntryHash = audit.ComputeHash(e)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_log_entries (id, tenant_id, user_id, action, resource_type,
			resource_id, success, failure_reason, sensitive_fields, ip_address, user_agent,
			entry_hash, prev_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.TenantID, e.UserID, e.Action, e.ResourceType, e.ResourceID,
		e.Success, nullString(e.FailureReason), strings.Join(e.SensitiveFields, ","),
		e.IPAddress, e.UserAgent, e.EntryHash, e.PrevHash, e.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

const entryColumns = `id, tenant_id, user_id, action, resource_type, resource_id,
	success, failure_reason, sensitive_fields, ip_address, user_agent,
	entry_hash, prev_hash, created_at`

// ListByTenant returns the tenant's entries oldest first.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM audit_log_entries
		 WHERE tenant_id = $1 ORDER BY seq ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Query returns entries matching the filter, newest first. TenantID is
// required; other filters are optional.
func (r *PostgresRepository) Query(ctx context.Context, f domain.QueryFilter) ([]*domain.Entry, error) {
	if f.TenantID == "" {
		return nil, errors.New("audit query requires a tenant id")
	}
	where := []string{"tenant_id = $1"}
	args := []any{f.TenantID}
	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + entryColumns + ` FROM audit_log_entries WHERE ` +
		strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY seq DESC LIMIT %d", limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*domain.Entry, error) {
	var out []*domain.Entry
	for rows.Next() {
		var (
			e      domain.Entry
			reason sql.NullString
			fields string
		)
		err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Action, &e.ResourceType,
			&e.ResourceID, &e.Success, &reason, &fields, &e.IPAddress, &e.UserAgent,
			&e.EntryHash, &e.PrevHash, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		e.FailureReason = reason.String
		if fields != "" {
			e.SensitiveFields = strings.Split(fields, ",")
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
