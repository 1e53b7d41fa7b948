package registry

import (
	rbacdomain "ledgerline/backend/internal/rbac/domain"
)

// FieldRegistry declares which fields of each resource type are sensitive,
// which table names map to those types for query inspection, and which live
// tables are protected outright. Built once at process start and read-only
// afterwards; every accessor returns copies so callers cannot mutate it.
type FieldRegistry struct {
	fields    map[rbacdomain.ResourceType][]string
	tables    map[string]rbacdomain.ResourceType
	protected map[string]bool
}

// NewFieldRegistry builds the default sensitive-field table.
func NewFieldRegistry() *FieldRegistry {
	return &FieldRegistry{
		fields: map[rbacdomain.ResourceType][]string{
			rbacdomain.ResourceTaxProfile: {
				"ssn", "tax_id", "annual_income", "filing_status",
			},
			rbacdomain.ResourceIdentity: {
				"ssn", "date_of_birth", "passport_number", "drivers_license",
			},
			rbacdomain.ResourceHealthClaim: {
				"diagnosis_code", "provider_notes", "member_id",
			},
		},
		tables: map[string]rbacdomain.ResourceType{
			"tax_profiles":     rbacdomain.ResourceTaxProfile,
			"identity_records": rbacdomain.ResourceIdentity,
			"health_claims":    rbacdomain.ResourceHealthClaim,
		},
		// sensitive_values holds ciphertext for every resource type, so no
		// per-field classification applies; any access to it is restricted.
		protected: map[string]bool{
			"sensitive_values": true,
		},
	}
}

// IsProtectedTable reports whether the table stores sensitive data for all
// resource types. Queries against a protected table are refused outright
// unless they match the system allow-list, field names notwithstanding.
func (r *FieldRegistry) IsProtectedTable(table string) bool {
	return r.protected[table]
}

// SensitiveFields returns the ordered sensitive field names for a resource
// type. An empty slice means the type carries no sensitive fields.
func (r *FieldRegistry) SensitiveFields(rt rbacdomain.ResourceType) []string {
	fields := r.fields[rt]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// IsSensitiveField reports whether the named field is sensitive for rt.
func (r *FieldRegistry) IsSensitiveField(rt rbacdomain.ResourceType, field string) bool {
	for _, f := range r.fields[rt] {
		if f == field {
			return true
		}
	}
	return false
}

// SensitiveResourceTypes lists the resource types that carry sensitive fields.
func (r *FieldRegistry) SensitiveResourceTypes() []rbacdomain.ResourceType {
	out := make([]rbacdomain.ResourceType, 0, len(r.fields))
	for _, rt := range rbacdomain.ResourceTypes() {
		if len(r.fields[rt]) > 0 {
			out = append(out, rt)
		}
	}
	return out
}

// TableFields returns the sensitive fields backing a database table, or nil
// when the table is not registered as sensitive.
func (r *FieldRegistry) TableFields(table string) []string {
	rt, ok := r.tables[table]
	if !ok {
		return nil
	}
	return r.SensitiveFields(rt)
}
