// Package domain defines the closed vocabulary of protected resources and
// actions. Resource types and actions are enumerations, not free-form
// strings, so a typo is a compile error instead of a silent denial.
package domain

import "fmt"

// ResourceType identifies a class of protected resource.
type ResourceType string

const (
	ResourceTaxProfile   ResourceType = "tax_profile"
	ResourceIdentity     ResourceType = "identity_record"
	ResourceHealthClaim  ResourceType = "health_claim"
	ResourceAssessment   ResourceType = "assessment"
	ResourceAuditLog     ResourceType = "audit_log"
	ResourceSessionAdmin ResourceType = "session_admin"
)

// ResourceTypes lists every declared resource type. The route startup
// validator iterates this to detect classification gaps.
func ResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceTaxProfile,
		ResourceIdentity,
		ResourceHealthClaim,
		ResourceAssessment,
		ResourceAuditLog,
		ResourceSessionAdmin,
	}
}

// ParseResourceType returns the ResourceType for raw, or an error for unknown values.
func ParseResourceType(raw string) (ResourceType, error) {
	for _, rt := range ResourceTypes() {
		if string(rt) == raw {
			return rt, nil
		}
	}
	return "", fmt.Errorf("unknown resource type %q", raw)
}

// Action is an operation on a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
)

// Actions lists every declared action.
func Actions() []Action {
	return []Action{ActionRead, ActionWrite, ActionCreate, ActionDelete, ActionExport}
}

// Role is a named bundle of permissions within a tenant.
type Role struct {
	ID       string
	TenantID string
	Name     string
}

// Permission grants an action on a resource type. OwnerOnly restricts the
// grant to resources created by the acting user. SensitiveScope extends the
// grant to registry-listed sensitive fields; without it the action is allowed
// but sensitive fields are withheld as denied fields.
type Permission struct {
	ID             string
	ResourceType   ResourceType
	Action         Action
	OwnerOnly      bool
	SensitiveScope bool
}

// AccessRequest is one access-control question: may actor (user, tenant)
// perform action on the resource? Stateless; computed per call.
type AccessRequest struct {
	UserID       string
	TenantID     string
	ResourceType ResourceType
	Action       Action
	ResourceID   string
	// OwnerID is the creator of the target resource, when known. Needed to
	// evaluate owner-only permissions.
	OwnerID string
}

// DenyReason is a machine-usable reason for a denial. The caller uses it to
// pick the HTTP status and the audit failure reason.
type DenyReason string

const (
	DenyNone           DenyReason = ""
	DenyNoPermission   DenyReason = "forbidden"
	DenyNotFound       DenyReason = "not_found"
	DenyTenantMismatch DenyReason = "tenant_mismatch"
	DenyNotOwner       DenyReason = "not_owner"
)

// AccessDecision is the outcome of one AccessRequest. Never persisted beyond
// the audit record it produces.
type AccessDecision struct {
	Allowed bool
	Reason  DenyReason
	// SensitiveScope is set when the grant that allowed the request also
	// covers sensitive fields. Meaningful only when Allowed is true.
	SensitiveScope bool
	// Detail is a human-readable explanation safe to show to the caller.
	Detail string
}
