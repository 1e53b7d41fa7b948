package domain

import (
	"testing"
	"time"
)

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func activeSession() *Session {
	return &Session{
		ID:             "s1",
		UserID:         "u1",
		TenantID:       "t1",
		CreatedAt:      base,
		LastActivityAt: base,
		AbsoluteExpiry: base.Add(8 * time.Hour),
	}
}

func TestStateAt_Active(t *testing.T) {
	s := activeSession()
	if got := s.StateAt(base.Add(5*time.Minute), 15*time.Minute); got != StateActive {
		t.Errorf("state = %q, want active", got)
	}
}

func TestStateAt_IdleExpired(t *testing.T) {
	s := activeSession()
	// Exactly at the idle boundary counts as expired.
	if got := s.StateAt(base.Add(15*time.Minute), 15*time.Minute); got != StateIdleExpired {
		t.Errorf("state = %q, want idle_expired", got)
	}
	if got := s.StateAt(base.Add(20*time.Minute), 15*time.Minute); got != StateIdleExpired {
		t.Errorf("state = %q, want idle_expired", got)
	}
}

func TestStateAt_AbsoluteExpired(t *testing.T) {
	s := activeSession()
	// Recent activity does not save a session past its absolute expiry.
	s.LastActivityAt = base.Add(8*time.Hour - time.Minute)
	if got := s.StateAt(base.Add(8*time.Hour), 15*time.Minute); got != StateAbsoluteExpired {
		t.Errorf("state = %q, want absolute_expired", got)
	}
}

func TestStateAt_Revoked(t *testing.T) {
	s := activeSession()
	revoked := base.Add(time.Minute)
	s.RevokedAt = &revoked
	if got := s.StateAt(base.Add(2*time.Minute), 15*time.Minute); got != StateRevoked {
		t.Errorf("state = %q, want revoked", got)
	}
}

func TestStateAt_IndependentOfCallOrder(t *testing.T) {
	s := activeSession()
	late := s.StateAt(base.Add(16*time.Minute), 15*time.Minute)
	early := s.StateAt(base.Add(time.Minute), 15*time.Minute)
	if late != StateIdleExpired || early != StateActive {
		t.Errorf("late = %q early = %q; StateAt must be pure", late, early)
	}
}

func TestRemainingBudgets(t *testing.T) {
	s := activeSession()
	now := base.Add(5 * time.Minute)
	if got := s.IdleRemaining(now, 15*time.Minute); got != 10*time.Minute {
		t.Errorf("IdleRemaining = %v, want 10m", got)
	}
	if got := s.AbsoluteRemaining(now); got != 8*time.Hour-5*time.Minute {
		t.Errorf("AbsoluteRemaining = %v", got)
	}
}

func TestPrivilegedAt(t *testing.T) {
	s := activeSession()
	if s.PrivilegedAt(base) {
		t.Error("no window granted; PrivilegedAt should be false")
	}
	until := base.Add(5 * time.Minute)
	s.PrivilegedUntil = &until
	if !s.PrivilegedAt(base.Add(4 * time.Minute)) {
		t.Error("window open; PrivilegedAt should be true")
	}
	if s.PrivilegedAt(base.Add(5 * time.Minute)) {
		t.Error("window closed at boundary; PrivilegedAt should be false")
	}
}
