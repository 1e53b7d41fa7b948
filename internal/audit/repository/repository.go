package repository

import (
	"context"

	"ledgerline/backend/internal/audit/domain"
)

// Repository defines persistence for the append-only audit log.
type Repository interface {
	// Append writes the entry, filling PrevHash from the tenant's latest
	// entry and computing EntryHash, inside one transaction that serializes
	// appends per tenant.
	Append(ctx context.Context, e *domain.Entry) error
	// ListByTenant returns the tenant's entries oldest first, for
	// verification walks.
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.Entry, error)
	// Query returns entries matching the filter, newest first.
	Query(ctx context.Context, f domain.QueryFilter) ([]*domain.Entry, error)
}
