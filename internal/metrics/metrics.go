// Package metrics exposes Prometheus counters for security events. These are
// the operational alert channel: an audit write failure for an otherwise
// successful sensitive action must be visible here, never swallowed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuditWriteFailures counts failed audit log writes by tenant. Any
	// non-zero rate is an alerting condition.
	AuditWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerline_audit_write_failures_total",
		Help: "Audit log writes that failed after the audited action ran.",
	}, []string{"tenant_id"})

	// GuardrailViolations counts queries blocked by the query guardrail.
	GuardrailViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerline_guardrail_violations_total",
		Help: "Raw queries touching sensitive fields outside the boundary.",
	})

	// UnclassifiedSensitiveRoutes counts requests rejected because a
	// suspicious-looking path had no route classification entry.
	UnclassifiedSensitiveRoutes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerline_unclassified_sensitive_routes_total",
		Help: "Requests failed closed due to a missing route classification.",
	})

	// AccountLockouts counts accounts locked after repeated login failures.
	AccountLockouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerline_account_lockouts_total",
		Help: "Accounts locked out by the failed-login policy.",
	})
)
