package repository

import (
	"context"
	"time"

	"ledgerline/backend/internal/user/domain"
)

// Repository defines persistence for users, including lockout counters.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// RecordLoginFailure increments the failure counter and, when lockUntil is
	// non-nil, sets the lockout timestamp. Returns the new counter value.
	RecordLoginFailure(ctx context.Context, id string, lockUntil *time.Time) (int, error)
	// ResetLoginFailures zeroes the counter and clears any lockout.
	ResetLoginFailures(ctx context.Context, id string) error
}
