package registry

import (
	"fmt"
	"strings"

	rbacdomain "ledgerline/backend/internal/rbac/domain"
)

// Route declares the protection a single method+path pattern requires.
// Patterns use gin-style parameters (":id"), which match any one segment.
type Route struct {
	Method          string
	Pattern         string
	RequiresSession bool
	RequiresAudit   bool
	Sensitive       bool
	ResourceType    rbacdomain.ResourceType
	Action          rbacdomain.Action
}

// RouteRegistry is the startup-time route classification table. It is
// populated once and read-only afterwards.
type RouteRegistry struct {
	routes []Route
}

// NewRouteRegistry builds a registry from the given routes.
func NewRouteRegistry(routes []Route) *RouteRegistry {
	cp := make([]Route, len(routes))
	copy(cp, routes)
	return &RouteRegistry{routes: cp}
}

// Lookup finds the route entry matching method and path. The path may be
// either a concrete request path or a gin route pattern.
func (r *RouteRegistry) Lookup(method, path string) (*Route, bool) {
	for i := range r.routes {
		rt := &r.routes[i]
		if rt.Method == method && patternMatches(rt.Pattern, path) {
			return rt, true
		}
	}
	return nil, false
}

// Routes returns a copy of every registered route.
func (r *RouteRegistry) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

func patternMatches(pattern, path string) bool {
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	xs := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(xs) {
		return false
	}
	for i := range ps {
		if strings.HasPrefix(ps[i], ":") {
			continue
		}
		// The request side may also be a pattern; parameters match either way.
		if strings.HasPrefix(xs[i], ":") {
			continue
		}
		if ps[i] != xs[i] {
			return false
		}
	}
	return true
}

// suspiciousKeywords flag paths that look like they carry regulated data.
// A path containing one of these with no registry entry is a configuration
// error, never a pass-through.
var suspiciousKeywords = []string{
	"record", "claim", "payment", "diagnosis", "ssn",
	"identity", "health", "tax", "export", "medical", "profile",
}

// LooksSensitive reports whether a path matches the sensitive-path heuristic.
func LooksSensitive(path string) bool {
	lower := strings.ToLower(path)
	for _, kw := range suspiciousKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ValidateCoverage checks that every sensitive resource type has a classified
// route for each CRUD operation plus export. Called once at startup; a
// returned error is fatal.
func (r *RouteRegistry) ValidateCoverage(fields *FieldRegistry) error {
	var missing []string
	for _, rt := range fields.SensitiveResourceTypes() {
		for _, op := range expectedOps(rt) {
			route, ok := r.Lookup(op.method, op.path)
			if !ok {
				missing = append(missing, fmt.Sprintf("%s %s", op.method, op.path))
				continue
			}
			if !route.RequiresSession || !route.RequiresAudit || !route.Sensitive {
				missing = append(missing, fmt.Sprintf("%s %s (underclassified)", op.method, op.path))
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("route registry gaps: %s", strings.Join(missing, ", "))
	}
	return nil
}

type expectedOp struct {
	method string
	path   string
}

func expectedOps(rt rbacdomain.ResourceType) []expectedOp {
	base := "/api/v1/records/" + string(rt)
	return []expectedOp{
		{"POST", base},
		{"GET", base + "/:id"},
		{"PUT", base + "/:id"},
		{"DELETE", base + "/:id"},
		{"POST", base + "/:id/export"},
	}
}

// DefaultRoutes is the route classification table for the service.
func DefaultRoutes() []Route {
	routes := []Route{
		{Method: "POST", Pattern: "/api/v1/auth/login"},
		{Method: "POST", Pattern: "/api/v1/auth/logout", RequiresSession: true},
		{Method: "POST", Pattern: "/api/v1/auth/elevate", RequiresSession: true, RequiresAudit: true},
		{Method: "POST", Pattern: "/api/v1/session/ping", RequiresSession: true},
		{
			Method: "POST", Pattern: "/api/v1/sessions/revoke",
			RequiresSession: true, RequiresAudit: true,
			ResourceType: rbacdomain.ResourceSessionAdmin, Action: rbacdomain.ActionWrite,
		},
		{
			Method: "GET", Pattern: "/api/v1/audit/logs",
			RequiresSession: true,
			ResourceType:    rbacdomain.ResourceAuditLog,
			Action:          rbacdomain.ActionRead,
		},
		{
			Method: "GET", Pattern: "/api/v1/audit/verify",
			RequiresSession: true,
			ResourceType:    rbacdomain.ResourceAuditLog,
			Action:          rbacdomain.ActionRead,
		},
	}
	for _, rt := range []rbacdomain.ResourceType{
		rbacdomain.ResourceTaxProfile,
		rbacdomain.ResourceIdentity,
		rbacdomain.ResourceHealthClaim,
		rbacdomain.ResourceAssessment,
	} {
		sensitive := rt != rbacdomain.ResourceAssessment
		base := "/api/v1/records/" + string(rt)
		routes = append(routes,
			Route{
				Method: "POST", Pattern: base,
				RequiresSession: true, RequiresAudit: true, Sensitive: sensitive,
				ResourceType: rt, Action: rbacdomain.ActionCreate,
			},
			Route{
				Method: "GET", Pattern: base + "/:id",
				RequiresSession: true, RequiresAudit: true, Sensitive: sensitive,
				ResourceType: rt, Action: rbacdomain.ActionRead,
			},
			Route{
				Method: "PUT", Pattern: base + "/:id",
				RequiresSession: true, RequiresAudit: true, Sensitive: sensitive,
				ResourceType: rt, Action: rbacdomain.ActionWrite,
			},
			Route{
				Method: "DELETE", Pattern: base + "/:id",
				RequiresSession: true, RequiresAudit: true, Sensitive: sensitive,
				ResourceType: rt, Action: rbacdomain.ActionDelete,
			},
			Route{
				Method: "POST", Pattern: base + "/:id/export",
				RequiresSession: true, RequiresAudit: true, Sensitive: sensitive,
				ResourceType: rt, Action: rbacdomain.ActionExport,
			},
		)
	}
	return routes
}
