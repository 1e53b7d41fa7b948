// Package rbac evaluates allow/deny decisions for (actor, tenant, resource,
// action). One fixed permission model: the union of the actor's role
// permission sets in the tenant, with optional owner-only scoping.
package rbac

import (
	"context"

	"ledgerline/backend/internal/rbac/domain"
)

// PermissionSource provides the actor's effective permissions. Satisfied by
// the rbac repository.
type PermissionSource interface {
	PermissionsForUser(ctx context.Context, userID, tenantID string) ([]domain.Permission, error)
}

// UserLookup resolves whether a user exists in a tenant, so denials can
// distinguish "not found" from "forbidden" from "tenant mismatch".
type UserLookup interface {
	// TenantOf returns the tenant id for the user, or "" if the user does not exist.
	TenantOf(ctx context.Context, userID string) (string, error)
}

// Engine is the RBAC access engine. Decisions are never cached across
// requests; permissions may change between requests.
type Engine struct {
	perms PermissionSource
	users UserLookup
}

// NewEngine returns an Engine backed by the given sources.
func NewEngine(perms PermissionSource, users UserLookup) *Engine {
	return &Engine{perms: perms, users: users}
}

// CheckAccess evaluates the request and returns a decision. The decision's
// Reason is machine-usable; Detail is safe to show to the caller and never
// names fields that exist.
func (e *Engine) CheckAccess(ctx context.Context, req domain.AccessRequest) (domain.AccessDecision, error) {
	tenant, err := e.users.TenantOf(ctx, req.UserID)
	if err != nil {
		return domain.AccessDecision{}, err
	}
	if tenant == "" {
		return domain.AccessDecision{
			Allowed: false,
			Reason:  domain.DenyNotFound,
			Detail:  "unknown actor",
		}, nil
	}
	if tenant != req.TenantID {
		return domain.AccessDecision{
			Allowed: false,
			Reason:  domain.DenyTenantMismatch,
			Detail:  "actor does not belong to this tenant",
		}, nil
	}

	perms, err := e.perms.PermissionsForUser(ctx, req.UserID, req.TenantID)
	if err != nil {
		return domain.AccessDecision{}, err
	}

	var allowed, sensitiveScope, ownerOnlyMatch bool
	for _, p := range perms {
		if p.ResourceType != req.ResourceType || p.Action != req.Action {
			continue
		}
		if p.OwnerOnly {
			ownerOnlyMatch = true
			if req.OwnerID == "" || req.OwnerID != req.UserID {
				continue
			}
		}
		allowed = true
		if p.SensitiveScope {
			sensitiveScope = true
		}
	}
	if allowed {
		return domain.AccessDecision{Allowed: true, SensitiveScope: sensitiveScope}, nil
	}
	if ownerOnlyMatch {
		return domain.AccessDecision{
			Allowed: false,
			Reason:  domain.DenyNotOwner,
			Detail:  "permission is limited to resources you created",
		}, nil
	}
	return domain.AccessDecision{
		Allowed: false,
		Reason:  domain.DenyNoPermission,
		Detail:  "you do not have permission to perform this action",
	}, nil
}
