package domain

import "time"

// GenesisHash is the prev_hash value for the first entry of a tenant's chain.
const GenesisHash = "genesis"

// Entry is one append-only audit record. Entries are never mutated or
// deleted; EntryHash covers the record fields plus PrevHash, forming a
// per-tenant hash chain.
type Entry struct {
	ID              string
	TenantID        string
	UserID          string
	Action          string
	ResourceType    string
	ResourceID      string
	Success         bool
	FailureReason   string // empty on success
	SensitiveFields []string
	IPAddress       string
	UserAgent       string
	EntryHash       string
	PrevHash        string
	CreatedAt       time.Time
}

// QueryFilter narrows an audit review query. Zero values mean "any".
type QueryFilter struct {
	TenantID     string // required; chains are audited per tenant
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	From         time.Time
	To           time.Time
	Limit        int
}

// IntegrityError describes one broken link found during verification.
type IntegrityError struct {
	EntryID string
	Reason  string
}

// IntegrityReport is the outcome of walking a tenant's chain.
type IntegrityReport struct {
	Valid   bool
	Checked int
	Errors  []IntegrityError
}
