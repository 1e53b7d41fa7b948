// Package guardrail wraps the database handle and statically inspects
// outgoing SQL. A query that references a registered sensitive field on a
// registered sensitive table is refused unless it matches the system
// allow-list. This is a defense-in-depth backstop behind the boundary, not
// the primary access control.
package guardrail

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"ledgerline/backend/internal/apperrors"
	"ledgerline/backend/internal/metrics"
	"ledgerline/backend/internal/registry"
)

// tablePatterns heuristically extract the target table from SQL text.
var tablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bfrom\s+([a-z_][a-z0-9_]*)`),
	regexp.MustCompile(`(?i)\binto\s+([a-z_][a-z0-9_]*)`),
	regexp.MustCompile(`(?i)\bupdate\s+([a-z_][a-z0-9_]*)`),
	regexp.MustCompile(`(?i)\bdelete\s+from\s+([a-z_][a-z0-9_]*)`),
}

// allowList matches system and bootstrap queries that legitimately touch
// sensitive tables: audit log writes, session housekeeping, role/permission
// lookups, and the boundary store's tenant-scoped ciphertext read. The last
// pattern is anchored to the store's exact statement shape so nothing looser
// slips through on the protected table.
var allowList = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*insert\s+into\s+audit_log_entries\b`),
	regexp.MustCompile(`(?i)^\s*(select|update|delete\s+from)\s+.*\bsessions\b`),
	regexp.MustCompile(`(?i)^\s*select\s+.*\bfrom\s+(permissions|roles|role_permissions|user_roles)\b`),
	regexp.MustCompile(`(?i)^\s*select\s+field_name,\s*ciphertext,\s*key_generation\s+` +
		`from\s+sensitive_values\s+` +
		`where\s+tenant_id\s*=\s*\$1\s+and\s+resource_type\s*=\s*\$2\s+and\s+resource_id\s*=\s*\$3\s*$`),
}

// DB is a checked database handle. Use New for application code; the
// unchecked form exists only for maintenance paths and must be requested
// explicitly.
type DB struct {
	raw     *sql.DB
	fields  *registry.FieldRegistry
	checked bool
	log     *zap.Logger
}

// New returns a handle that inspects every query before it reaches the
// database.
func New(raw *sql.DB, fields *registry.FieldRegistry, log *zap.Logger) *DB {
	return &DB{raw: raw, fields: fields, checked: true, log: log}
}

// NewUnchecked returns a handle that bypasses inspection. The bypass is an
// explicit constructor, never a silent default; callers own the audit trail
// for anything they run through it.
func NewUnchecked(raw *sql.DB, log *zap.Logger) *DB {
	return &DB{raw: raw, checked: false, log: log}
}

// Check inspects a single query and returns a guardrail violation error if it
// references sensitive fields outside the allow-list.
func (d *DB) Check(query string) error {
	if !d.checked {
		return nil
	}
	lower := strings.ToLower(query)
	for _, table := range extractTables(query) {
		// Protected tables hold encrypted values for every resource type;
		// any statement touching them is refused unless allow-listed.
		if d.fields.IsProtectedTable(table) && !allowListed(query) {
			metrics.GuardrailViolations.Inc()
			d.log.Error("query guardrail violation",
				zap.String("table", table),
				zap.String("query", query))
			return apperrors.Guardrail("raw query touches protected table " + table)
		}
		fields := d.fields.TableFields(table)
		if len(fields) == 0 {
			continue
		}
		for _, f := range fields {
			if !containsWord(lower, f) {
				continue
			}
			if allowListed(query) {
				return nil
			}
			metrics.GuardrailViolations.Inc()
			d.log.Error("query guardrail violation",
				zap.String("table", table),
				zap.String("field", f),
				zap.String("query", query))
			return apperrors.Guardrail("raw query touches sensitive field " + table + "." + f)
		}
	}
	return nil
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := d.Check(query); err != nil {
		return nil, err
	}
	return d.raw.QueryContext(ctx, query, args...)
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := d.Check(query); err != nil {
		return nil, err
	}
	return d.raw.ExecContext(ctx, query, args...)
}

func (d *DB) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	if err := d.Check(query); err != nil {
		return nil, err
	}
	return d.raw.PrepareContext(ctx, query)
}

// BeginTx opens a transaction on the underlying handle. Statements inside the
// transaction are not re-inspected; keep transactional use on system tables.
func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return d.raw.BeginTx(ctx, opts)
}

func extractTables(query string) []string {
	var out []string
	seen := map[string]bool{}
	for _, re := range tablePatterns {
		for _, m := range re.FindAllStringSubmatch(query, -1) {
			table := strings.ToLower(m[1])
			if !seen[table] {
				seen[table] = true
				out = append(out, table)
			}
		}
	}
	return out
}

func allowListed(query string) bool {
	for _, re := range allowList {
		if re.MatchString(query) {
			return true
		}
	}
	return false
}

// containsWord reports whether field appears in the query as a whole word,
// so "ssn" does not match "ssn_hint_count" style identifiers.
func containsWord(query, field string) bool {
	idx := 0
	for {
		i := strings.Index(query[idx:], field)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(field)
		beforeOK := start == 0 || !isWordByte(query[start-1])
		afterOK := end == len(query) || !isWordByte(query[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
