package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestErrorIs_MatchesOnCode(t *testing.T) {
	a := SessionInvalid(CodeSessionIdleTimeout, "idle timeout")
	b := SessionInvalid(CodeSessionIdleTimeout, "different text")
	if !errors.Is(a, b) {
		t.Error("errors with the same code should match")
	}
	c := SessionInvalid(CodeSessionNotFound, "not found")
	if errors.Is(a, c) {
		t.Error("errors with different codes should not match")
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(PermissionDenied("no")); got != http.StatusForbidden {
		t.Errorf("status = %d, want %d", got, http.StatusForbidden)
	}
	if got := StatusOf(Validation("bad")); got != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", got, http.StatusBadRequest)
	}
	if got := StatusOf(errors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", got, http.StatusInternalServerError)
	}
}

func TestStatusOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", Guardrail("select ssn from tax_profiles"))
	if got := StatusOf(err); got != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", got)
	}
	if got := CodeOf(err); got != CodeGuardrailViolation {
		t.Errorf("code = %q, want %q", got, CodeGuardrailViolation)
	}
}

func TestGuardrail_ClientTextIsGeneric(t *testing.T) {
	e := Guardrail("UPDATE tax_profiles SET ssn = $1")
	if e.Message != "security configuration error" {
		t.Errorf("client message = %q, want generic text", e.Message)
	}
	if e.Detail == "" {
		t.Error("detail should carry the blocked statement for server logs")
	}
}

func TestAccountLocked_CarriesUnlockTime(t *testing.T) {
	until := time.Now().Add(30 * time.Minute)
	e := AccountLocked(until)
	if e.UnlockAt == nil || !e.UnlockAt.Equal(until) {
		t.Errorf("UnlockAt = %v, want %v", e.UnlockAt, until)
	}
	if e.Status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", e.Status)
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("pg: connection refused")
	e := Configuration("missing tenant key").Wrap(cause)
	if !errors.Is(e, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
}
