package repository

import (
	"context"
	"database/sql"

	"ledgerline/backend/internal/rbac/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an RBAC repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// PermissionsForUser returns the union of permissions across the user's roles
// in the tenant. Returns an empty slice (not nil error) when the user has no roles.
func (r *PostgresRepository) PermissionsForUser(ctx context.Context, userID, tenantID string) ([]domain.Permission, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT p.id, p.resource_type, p.action, p.owner_only, p.sensitive_scope
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 JOIN user_roles ur ON ur.role_id = rp.role_id
		 WHERE ur.user_id = $1 AND ur.tenant_id = $2`,
		userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Permission
	for rows.Next() {
		var (
			p        domain.Permission
			resource string
			action   string
		)
		if err := rows.Scan(&p.ID, &resource, &action, &p.OwnerOnly, &p.SensitiveScope); err != nil {
			return nil, err
		}
		p.ResourceType = domain.ResourceType(resource)
		p.Action = domain.Action(action)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RolesForUser returns the user's roles within the tenant.
func (r *PostgresRepository) RolesForUser(ctx context.Context, userID, tenantID string) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.tenant_id, r.name
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1 AND ur.tenant_id = $2`,
		userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.TenantID, &role.Name); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// CreateRole persists the role. The role must have ID set.
func (r *PostgresRepository) CreateRole(ctx context.Context, role *domain.Role) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roles (id, tenant_id, name) VALUES ($1, $2, $3)`,
		role.ID, role.TenantID, role.Name)
	return err
}

// CreatePermission persists the permission. The permission must have ID set.
func (r *PostgresRepository) CreatePermission(ctx context.Context, p *domain.Permission) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO permissions (id, resource_type, action, owner_only, sensitive_scope)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID, string(p.ResourceType), string(p.Action), p.OwnerOnly, p.SensitiveScope)
	return err
}

// AttachPermission links the permission to the role.
func (r *PostgresRepository) AttachPermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		roleID, permissionID)
	return err
}

// AssignRole links the role to the user within the tenant.
func (r *PostgresRepository) AssignRole(ctx context.Context, userID, roleID, tenantID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id, tenant_id) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		userID, roleID, tenantID)
	return err
}
