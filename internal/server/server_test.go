package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ledgerline/backend/internal/apperrors"
	"ledgerline/backend/internal/audit"
	auditdomain "ledgerline/backend/internal/audit/domain"
	"ledgerline/backend/internal/boundary"
	rbacdomain "ledgerline/backend/internal/rbac/domain"
	"ledgerline/backend/internal/registry"
	"ledgerline/backend/internal/security"
	sessiondomain "ledgerline/backend/internal/session/domain"
	sessionservice "ledgerline/backend/internal/session/service"
	userdomain "ledgerline/backend/internal/user/domain"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

type fakeSessions struct {
	validation    *sessionservice.Validation
	validErr      error
	revoked       []string
	revokedAllFor []string
	elevateAt     time.Time
	elevateErr    error
}

func (f *fakeSessions) Authenticate(ctx context.Context, tenantID, email, password string) (*userdomain.User, error) {
	if password != "correct horse" {
		return nil, apperrors.PermissionDenied("invalid credentials")
	}
	return &userdomain.User{ID: "user-1", TenantID: tenantID, Email: email, Status: userdomain.UserStatusActive}, nil
}

func (f *fakeSessions) CreateSession(ctx context.Context, userID, tenantID, ip, userAgent string) (*sessiondomain.Session, error) {
	return &sessiondomain.Session{ID: "sess-1", UserID: userID, TenantID: tenantID}, nil
}

func (f *fakeSessions) GrantPrivilegedAccess(ctx context.Context, sessionID, password string) (time.Time, error) {
	if f.elevateErr != nil {
		return time.Time{}, f.elevateErr
	}
	return f.elevateAt, nil
}

func (f *fakeSessions) RevokeSession(ctx context.Context, sessionID string) error {
	f.revoked = append(f.revoked, sessionID)
	return nil
}

func (f *fakeSessions) RevokeAllSessions(ctx context.Context, userID string) error {
	f.revokedAllFor = append(f.revokedAllFor, userID)
	return nil
}

func (f *fakeSessions) ValidateSession(ctx context.Context, sessionID, ip, userAgent, expectedUserID string) (*sessionservice.Validation, error) {
	if f.validErr != nil {
		return nil, f.validErr
	}
	return f.validation, nil
}

type fakeRoles struct{}

func (fakeRoles) RolesForUser(ctx context.Context, userID, tenantID string) ([]rbacdomain.Role, error) {
	return []rbacdomain.Role{{ID: "r1", TenantID: tenantID, Name: "accountant"}}, nil
}

type fakeSink struct {
	events []audit.Event
}

func (f *fakeSink) Log(ctx context.Context, ev audit.Event) (string, error) {
	f.events = append(f.events, ev)
	return "audit-1", nil
}

type fakeAuditQuerier struct {
	entries []*auditdomain.Entry
	report  auditdomain.IntegrityReport
	lastQ   auditdomain.QueryFilter
}

func (f *fakeAuditQuerier) Query(ctx context.Context, q auditdomain.QueryFilter) ([]*auditdomain.Entry, error) {
	f.lastQ = q
	return f.entries, nil
}

func (f *fakeAuditQuerier) VerifyIntegrity(ctx context.Context, tenantID string) (auditdomain.IntegrityReport, error) {
	return f.report, nil
}

type fakeAccess struct {
	decision rbacdomain.AccessDecision
}

func (f *fakeAccess) CheckAccess(ctx context.Context, req rbacdomain.AccessRequest) (rbacdomain.AccessDecision, error) {
	return f.decision, nil
}

type fakeBoundary struct {
	result  *boundary.Result
	err     error
	lastReq boundary.Request
}

func (f *fakeBoundary) call(req boundary.Request) (*boundary.Result, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeBoundary) Read(ctx context.Context, req boundary.Request) (*boundary.Result, error) {
	return f.call(req)
}
func (f *fakeBoundary) Write(ctx context.Context, req boundary.Request) (*boundary.Result, error) {
	return f.call(req)
}
func (f *fakeBoundary) Create(ctx context.Context, req boundary.Request) (*boundary.Result, error) {
	return f.call(req)
}
func (f *fakeBoundary) Delete(ctx context.Context, req boundary.Request) (*boundary.Result, error) {
	return f.call(req)
}
func (f *fakeBoundary) Export(ctx context.Context, req boundary.Request) (*boundary.Result, error) {
	return f.call(req)
}

type harness struct {
	engine   *gin.Engine
	tokens   *security.TokenProvider
	sessions *fakeSessions
	boundary *fakeBoundary
	access   *fakeAccess
	sink     *fakeSink
	querier  *fakeAuditQuerier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zap.NewNop()
	tokens := security.NewTokenProvider([]byte("0123456789abcdef0123456789abcdef"), "test-iss", "test-aud", time.Hour)

	until := time.Now().UTC().Add(5 * time.Minute)
	sessions := &fakeSessions{
		validation: &sessionservice.Validation{
			Session: &sessiondomain.Session{
				ID:              "sess-1",
				UserID:          "user-1",
				TenantID:        "tenant-1",
				PrivilegedUntil: &until,
			},
			IdleRemaining: 10 * time.Minute,
			AbsRemaining:  7 * time.Hour,
		},
		elevateAt: until,
	}
	b := &fakeBoundary{result: &boundary.Result{Success: true, AuditLogID: "audit-1"}}
	access := &fakeAccess{decision: rbacdomain.AccessDecision{Allowed: true}}
	sink := &fakeSink{}
	querier := &fakeAuditQuerier{report: auditdomain.IntegrityReport{Valid: true, Checked: 3}}

	engine := NewRouter(Deps{
		Log:      log,
		Tokens:   tokens,
		Sessions: sessions,
		Routes:   registry.NewRouteRegistry(registry.DefaultRoutes()),
		Auth:     NewAuthHandler(sessions, fakeRoles{}, tokens, sink, log),
		Session:  NewSessionHandler(sessions, access, sink, log),
		Audit:    NewAuditHandler(querier, access, log),
		Records:  NewRecordsHandler(b, log),
	})
	return &harness{engine: engine, tokens: tokens, sessions: sessions, boundary: b, access: access, sink: sink, querier: querier}
}

func (h *harness) token(t *testing.T, readOnly bool) string {
	t.Helper()
	tok, _, err := h.tokens.Issue(security.Identity{
		UserID: "user-1", TenantID: "tenant-1", Role: "accountant", ReadOnly: readOnly,
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(sessionHeader, "sess-1")
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestLoginIssuesTokenAndSession(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"tenant_id": "tenant-1", "email": "a@example.com", "password": "correct horse",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["token"] == "" || body["session_id"] != "sess-1" {
		t.Fatalf("body = %v", body)
	}
	if len(h.sink.events) != 1 || h.sink.events[0].Action != "login" || !h.sink.events[0].Success {
		t.Fatalf("audit events = %+v", h.sink.events)
	}
}

func TestLoginFailureAudited(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"tenant_id": "tenant-1", "email": "a@example.com", "password": "wrong",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	if len(h.sink.events) != 1 || h.sink.events[0].Success {
		t.Fatalf("audit events = %+v", h.sink.events)
	}
}

func TestMissingBearerRejected(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/api/v1/records/tax_profile/rec-1", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestReadOnlyTokenRejectsMutations(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, true)

	w := h.do(t, http.MethodPut, "/api/v1/records/tax_profile/rec-1", tok, gin.H{"data": gin.H{"name": "x"}})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	body := decodeJSON(t, w)
	errObj := body["error"].(map[string]any)
	if errObj["code"] != string(apperrors.CodeReadOnlyToken) {
		t.Fatalf("code = %v, want read_only_token", errObj["code"])
	}

	// Idempotent methods still pass.
	w = h.do(t, http.MethodGet, "/api/v1/records/tax_profile/rec-1", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestSuspiciousUnroutedPathFailsClosed(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/api/v2/payment-exports", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 configuration error", w.Code)
	}
	body := decodeJSON(t, w)
	errObj := body["error"].(map[string]any)
	if errObj["code"] != string(apperrors.CodeConfigurationError) {
		t.Fatalf("code = %v", errObj["code"])
	}

	w = h.do(t, http.MethodGet, "/totally/benign", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("benign status = %d, want 404", w.Code)
	}
}

func TestSessionRequiredOnClassifiedRoutes(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/tax_profile/rec-1", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without session header", w.Code)
	}
}

func TestExpiredSessionCode(t *testing.T) {
	h := newHarness(t)
	h.sessions.validErr = apperrors.SessionInvalid(apperrors.CodeSessionIdleTimeout, "session idle timeout")
	tok := h.token(t, false)

	w := h.do(t, http.MethodGet, "/api/v1/records/tax_profile/rec-1", tok, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeJSON(t, w)
	errObj := body["error"].(map[string]any)
	if errObj["code"] != string(apperrors.CodeSessionIdleTimeout) {
		t.Fatalf("code = %v, want session_idle_timeout", errObj["code"])
	}
}

func TestSessionPingReturnsBudgets(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, false)

	w := h.do(t, http.MethodPost, "/api/v1/session/ping", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["idle_remaining_seconds"].(float64) != 600 {
		t.Fatalf("idle budget = %v", body["idle_remaining_seconds"])
	}
	if body["absolute_remaining_seconds"].(float64) != float64(7*3600) {
		t.Fatalf("absolute budget = %v", body["absolute_remaining_seconds"])
	}
}

func TestRecordReadReturnsDeniedFields(t *testing.T) {
	h := newHarness(t)
	h.boundary.result = &boundary.Result{
		Success:      true,
		Data:         map[string]string{"name": "Avery Example"},
		DeniedFields: []string{"ssn"},
		AuditLogID:   "audit-9",
	}
	tok := h.token(t, false)

	w := h.do(t, http.MethodGet, "/api/v1/records/tax_profile/rec-1?fields=ssn,name", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	data := body["data"].(map[string]any)
	if data["name"] != "Avery Example" {
		t.Fatalf("data = %v", data)
	}
	denied := body["denied_fields"].([]any)
	if len(denied) != 1 || denied[0] != "ssn" {
		t.Fatalf("denied_fields = %v", denied)
	}
	if body["audit_log_id"] != "audit-9" {
		t.Fatalf("audit_log_id = %v", body["audit_log_id"])
	}
	if got := h.boundary.lastReq.Fields; len(got) != 2 || got[0] != "ssn" {
		t.Fatalf("boundary fields = %v", got)
	}
}

func TestRecordDenialCarriesAuditID(t *testing.T) {
	h := newHarness(t)
	h.boundary.result = &boundary.Result{AuditLogID: "audit-7"}
	h.boundary.err = apperrors.PermissionDenied("you do not have permission to perform this action")
	tok := h.token(t, false)

	w := h.do(t, http.MethodGet, "/api/v1/records/tax_profile/rec-1", tok, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeJSON(t, w)
	if body["audit_log_id"] != "audit-7" {
		t.Fatalf("audit_log_id = %v, want audit-7", body["audit_log_id"])
	}
}

func TestUnknownResourceTypeRejected(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, false)
	w := h.do(t, http.MethodGet, "/api/v1/records/invoice/rec-1", tok, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestExportForwardsJustificationAndPrivilege(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, false)

	w := h.do(t, http.MethodPost, "/api/v1/records/tax_profile/rec-1/export", tok, gin.H{
		"justification": "quarterly regulator filing, case 8841",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if h.boundary.lastReq.Justification != "quarterly regulator filing, case 8841" {
		t.Fatalf("justification = %q", h.boundary.lastReq.Justification)
	}
	if !h.boundary.lastReq.Privileged {
		t.Fatal("privileged window not propagated to boundary")
	}
}

func TestDeleteSensitiveRequiresPrivilege(t *testing.T) {
	h := newHarness(t)
	h.sessions.validation.Session.PrivilegedUntil = nil
	tok := h.token(t, false)

	w := h.do(t, http.MethodDelete, "/api/v1/records/health_claim/rec-1", tok, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 without privileged window", w.Code)
	}
}

func TestAuditLogsGatedByPermission(t *testing.T) {
	h := newHarness(t)
	h.access.decision = rbacdomain.AccessDecision{Allowed: false, Reason: rbacdomain.DenyNoPermission, Detail: "no"}
	tok := h.token(t, false)

	w := h.do(t, http.MethodGet, "/api/v1/audit/logs", tok, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestAuditLogsForcesTenantFilter(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, false)

	w := h.do(t, http.MethodGet, "/api/v1/audit/logs?user_id=user-2&tenant_id=tenant-9", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if h.querier.lastQ.TenantID != "tenant-1" {
		t.Fatalf("tenant filter = %q, want caller's tenant", h.querier.lastQ.TenantID)
	}
	if h.querier.lastQ.UserID != "user-2" {
		t.Fatalf("user filter = %q", h.querier.lastQ.UserID)
	}
}

func TestAuditVerifyEndpoint(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, false)

	w := h.do(t, http.MethodGet, "/api/v1/audit/verify", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeJSON(t, w)
	if body["valid"] != true || body["checked"].(float64) != 3 {
		t.Fatalf("body = %v", body)
	}
}

func TestElevateOpensPrivilegedWindow(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, false)

	w := h.do(t, http.MethodPost, "/api/v1/auth/elevate", tok, gin.H{"password": "correct horse"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["privileged_until"] == "" {
		t.Fatalf("body = %v", body)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, false)

	w := h.do(t, http.MethodPost, "/api/v1/auth/logout", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(h.sessions.revoked) != 1 || h.sessions.revoked[0] != "sess-1" {
		t.Fatalf("revoked = %v", h.sessions.revoked)
	}
}

func TestRevokeAllSessionsGatedByPermission(t *testing.T) {
	h := newHarness(t)
	tok := h.token(t, false)

	w := h.do(t, http.MethodPost, "/api/v1/sessions/revoke", tok, map[string]string{"user_id": "user-9"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(h.sessions.revokedAllFor) != 1 || h.sessions.revokedAllFor[0] != "user-9" {
		t.Fatalf("revokedAllFor = %v", h.sessions.revokedAllFor)
	}

	h.access.decision = rbacdomain.AccessDecision{Allowed: false, Reason: rbacdomain.DenyNoPermission, Detail: "no"}
	w = h.do(t, http.MethodPost, "/api/v1/sessions/revoke", tok, map[string]string{"user_id": "user-9"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if len(h.sessions.revokedAllFor) != 1 {
		t.Fatalf("revokedAllFor grew on denial: %v", h.sessions.revokedAllFor)
	}
	last := h.sink.events[len(h.sink.events)-1]
	if last.Action != "revoke_all_sessions" || last.Success {
		t.Fatalf("last audit event = %+v", last)
	}
}
