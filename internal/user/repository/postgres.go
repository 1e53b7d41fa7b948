package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ledgerline/backend/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, tenant_id, email, name, password_hash, status,
	failed_login_attempts, account_locked_until, created_at, updated_at`

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user for (tenant, email), or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, tenantID, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND email = $2`, tenantID, email)
	return scanUser(row)
}

// Create persists the user. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, email, name, password_hash, status,
			failed_login_attempts, account_locked_until, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.TenantID, u.Email, u.Name, u.PasswordHash, string(u.Status),
		u.FailedLoginAttempts, timeToNull(u.AccountLockedUntil), u.CreatedAt, u.UpdatedAt)
	return err
}

// RecordLoginFailure increments the failure counter and optionally sets the
// lockout timestamp in the same statement. Returns the new counter value.
func (r *PostgresRepository) RecordLoginFailure(ctx context.Context, id string, lockUntil *time.Time) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET failed_login_attempts = failed_login_attempts + 1,
		     account_locked_until = COALESCE($2, account_locked_until),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING failed_login_attempts`,
		id, timeToNull(lockUntil)).Scan(&attempts)
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

// TenantOf returns the tenant id for the user, or "" if the user does not
// exist. Satisfies the rbac engine's UserLookup.
func (r *PostgresRepository) TenantOf(ctx context.Context, userID string) (string, error) {
	var tenantID string
	err := r.db.QueryRowContext(ctx,
		`SELECT tenant_id FROM users WHERE id = $1`, userID).Scan(&tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return tenantID, nil
}

// ResetLoginFailures zeroes the counter and clears any lockout.
func (r *PostgresRepository) ResetLoginFailures(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET failed_login_attempts = 0, account_locked_until = NULL, updated_at = now()
		 WHERE id = $1`, id)
	return err
}

func timeToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u      domain.User
		status string
		locked sql.NullTime
	)
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.PasswordHash, &status,
		&u.FailedLoginAttempts, &locked, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Status = domain.UserStatus(status)
	if locked.Valid {
		u.AccountLockedUntil = &locked.Time
	}
	return &u, nil
}
