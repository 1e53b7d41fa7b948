// Package audit writes and verifies the tamper-evident audit log. Each
// tenant has its own hash chain so tenants can be audited independently.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"ledgerline/backend/internal/audit/domain"
)

// ComputeHash returns the hex SHA-256 over the entry's content fields joined
// with the previous hash. Field order is fixed; changing it invalidates every
// stored chain. The stored EntryHash field itself is excluded. CreatedAt must
// carry no sub-microsecond component, since the database column does not.
func ComputeHash(e *domain.Entry) string {
	var b strings.Builder
	b.WriteString(e.ID)
	b.WriteByte('|')
	b.WriteString(e.TenantID)
	b.WriteByte('|')
	b.WriteString(e.UserID)
	b.WriteByte('|')
	b.WriteString(e.Action)
	b.WriteByte('|')
	b.WriteString(e.ResourceType)
	b.WriteByte('|')
	b.WriteString(e.ResourceID)
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(e.Success))
	b.WriteByte('|')
	b.WriteString(e.FailureReason)
	b.WriteByte('|')
	b.WriteString(strings.Join(e.SensitiveFields, ","))
	b.WriteByte('|')
	b.WriteString(e.IPAddress)
	b.WriteByte('|')
	b.WriteString(e.UserAgent)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(e.CreatedAt.UnixNano(), 10))
	b.WriteByte('|')
	b.WriteString(e.PrevHash)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify walks entries in insertion order, recomputing each hash from the
// stored fields and checking chain continuity. entries must all belong to one
// tenant and be ordered oldest first.
func Verify(entries []*domain.Entry) domain.IntegrityReport {
	report := domain.IntegrityReport{Valid: true, Checked: len(entries)}
	prev := domain.GenesisHash
	for _, e := range entries {
		if e.PrevHash != prev {
			report.Valid = false
			report.Errors = append(report.Errors, domain.IntegrityError{
				EntryID: e.ID,
				Reason:  "prev_hash does not match the preceding entry",
			})
		}
		if got := ComputeHash(e); got != e.EntryHash {
			report.Valid = false
			report.Errors = append(report.Errors, domain.IntegrityError{
				EntryID: e.ID,
				Reason:  "entry_hash does not match recomputed hash",
			})
		}
		prev = e.EntryHash
	}
	return report
}
