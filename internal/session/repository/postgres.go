package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ledgerline/backend/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, tenant_id, created_at, last_activity_at, absolute_expiry,
		        privileged_until, revoked_at, ip_address, user_agent
		 FROM sessions WHERE id = $1`, id)

	var (
		s          domain.Session
		privileged sql.NullTime
		revoked    sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &s.TenantID, &s.CreatedAt, &s.LastActivityAt,
		&s.AbsoluteExpiry, &privileged, &revoked, &s.IPAddress, &s.UserAgent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if privileged.Valid {
		s.PrivilegedUntil = &privileged.Time
	}
	if revoked.Valid {
		s.RevokedAt = &revoked.Time
	}
	return &s, nil
}

// Create persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, tenant_id, created_at, last_activity_at,
			absolute_expiry, privileged_until, revoked_at, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.UserID, s.TenantID, s.CreatedAt, s.LastActivityAt, s.AbsoluteExpiry,
		timeToNull(s.PrivilegedUntil), timeToNull(s.RevokedAt),
		s.IPAddress, s.UserAgent)
	return err
}

// Revoke marks the session with the given id as revoked. Returns an error if the update fails.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}

// RevokeAllByUser revokes all sessions for the given user. Returns an error if the update fails.
func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	return err
}

// UpdateLastActivity sets the session's last-activity timestamp. A lost update
// between concurrent refreshes is tolerable; both set a similar timestamp.
func (r *PostgresRepository) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity_at = $2 WHERE id = $1`, id, at)
	return err
}

// DeleteExpired removes sessions that can never validate again: revoked rows
// and rows past their absolute expiry as of the given instant. Returns the
// number of rows removed.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE revoked_at IS NOT NULL OR absolute_expiry < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetPrivilegedUntil opens the privileged window on the session until the given time.
func (r *PostgresRepository) SetPrivilegedUntil(ctx context.Context, id string, until time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET privileged_until = $2 WHERE id = $1`, id, until)
	return err
}

func timeToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
