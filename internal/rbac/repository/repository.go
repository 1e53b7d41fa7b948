package repository

import (
	"context"

	"ledgerline/backend/internal/rbac/domain"
)

// Repository defines persistence for roles and permissions.
type Repository interface {
	// PermissionsForUser returns the union of permission sets across the
	// user's roles within the tenant. Re-queried per access check;
	// permissions may change between requests.
	PermissionsForUser(ctx context.Context, userID, tenantID string) ([]domain.Permission, error)
	RolesForUser(ctx context.Context, userID, tenantID string) ([]domain.Role, error)
	CreateRole(ctx context.Context, r *domain.Role) error
	CreatePermission(ctx context.Context, p *domain.Permission) error
	AttachPermission(ctx context.Context, roleID, permissionID string) error
	AssignRole(ctx context.Context, userID, roleID, tenantID string) error
}
