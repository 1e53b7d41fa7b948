package repository

import (
	"context"
	"time"

	"ledgerline/backend/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	Revoke(ctx context.Context, id string) error
	RevokeAllByUser(ctx context.Context, userID string) error
	UpdateLastActivity(ctx context.Context, id string, at time.Time) error
	SetPrivilegedUntil(ctx context.Context, id string, until time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
