package domain

import "time"

// State is the lifecycle state of a session at a given instant. Every state
// other than StateActive is terminal; the caller must re-authenticate.
type State string

const (
	StateActive          State = "active"
	StateIdleExpired     State = "idle_expired"
	StateAbsoluteExpired State = "absolute_expired"
	StateRevoked         State = "revoked"
)

// Session represents an authenticated user session for one tenant.
type Session struct {
	ID              string
	UserID          string
	TenantID        string
	CreatedAt       time.Time
	LastActivityAt  time.Time
	AbsoluteExpiry  time.Time
	PrivilegedUntil *time.Time // nil when no privileged window is open
	RevokedAt       *time.Time // nil when not revoked
	IPAddress       string
	UserAgent       string
}

// StateAt computes the session state at the given instant for the given idle
// window. Pure function of (now, stored timestamps, policy) so the expiry
// rules are testable without clock waits.
func (s *Session) StateAt(now time.Time, idleWindow time.Duration) State {
	if s.RevokedAt != nil && !now.Before(*s.RevokedAt) {
		return StateRevoked
	}
	if !now.Before(s.AbsoluteExpiry) {
		return StateAbsoluteExpired
	}
	if !now.Before(s.LastActivityAt.Add(idleWindow)) {
		return StateIdleExpired
	}
	return StateActive
}

// IdleRemaining returns the time left in the idle window at now; zero or
// negative means the session has idle-expired.
func (s *Session) IdleRemaining(now time.Time, idleWindow time.Duration) time.Duration {
	return s.LastActivityAt.Add(idleWindow).Sub(now)
}

// AbsoluteRemaining returns the time left before absolute expiry at now.
func (s *Session) AbsoluteRemaining(now time.Time) time.Duration {
	return s.AbsoluteExpiry.Sub(now)
}

// PrivilegedAt reports whether the privileged window is open at now.
func (s *Session) PrivilegedAt(now time.Time) bool {
	return s.PrivilegedUntil != nil && now.Before(*s.PrivilegedUntil)
}
