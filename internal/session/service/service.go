// Package service implements session lifecycle and the login lockout policy.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ledgerline/backend/internal/apperrors"
	"ledgerline/backend/internal/metrics"
	rbacdomain "ledgerline/backend/internal/rbac/domain"
	"ledgerline/backend/internal/security"
	"ledgerline/backend/internal/session/domain"
	userdomain "ledgerline/backend/internal/user/domain"
)

// Policy holds the session and lockout policy constants.
type Policy struct {
	IdleWindow       time.Duration
	AbsoluteWindow   time.Duration
	PrivilegedWindow time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
}

// SessionRepo is the minimal session repository needed by the service.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	Revoke(ctx context.Context, id string) error
	RevokeAllByUser(ctx context.Context, userID string) error
	UpdateLastActivity(ctx context.Context, id string, at time.Time) error
	SetPrivilegedUntil(ctx context.Context, id string, until time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserRepo is the minimal user repository needed by the service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*userdomain.User, error)
	RecordLoginFailure(ctx context.Context, id string, lockUntil *time.Time) (int, error)
	ResetLoginFailures(ctx context.Context, id string) error
}

// Validation is the outcome of ValidateSession.
type Validation struct {
	Session       *domain.Session
	IdleRemaining time.Duration
	AbsRemaining  time.Duration
}

// Service manages sessions and enforces the lockout and timeout policy.
type Service struct {
	sessions SessionRepo
	users    UserRepo
	hasher   *security.Hasher
	policy   Policy
	log      *zap.Logger
	now      func() time.Time // injectable clock for tests
}

// New returns a session Service with the given dependencies.
func New(sessions SessionRepo, users UserRepo, hasher *security.Hasher, policy Policy, log *zap.Logger) *Service {
	return &Service{
		sessions: sessions,
		users:    users,
		hasher:   hasher,
		policy:   policy,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate verifies email/password under the lockout policy and returns
// the user. The Nth consecutive failure (N = LockoutThreshold) locks the
// account; a successful login resets the counter. A locked account is
// rejected even with the correct password.
func (s *Service) Authenticate(ctx context.Context, tenantID, email, password string) (*userdomain.User, error) {
	user, err := s.users.GetByEmail(ctx, tenantID, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, apperrors.PermissionDenied("invalid credentials")
	}
	now := s.now()
	if user.IsLocked(now) {
		return nil, apperrors.AccountLocked(*user.AccountLockedUntil)
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, s.recordFailure(ctx, user, now)
	}
	if user.FailedLoginAttempts > 0 {
		if err := s.users.ResetLoginFailures(ctx, user.ID); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// recordFailure bumps the failure counter and locks the account once the
// counter reaches the threshold. Always returns the client-facing error.
func (s *Service) recordFailure(ctx context.Context, user *userdomain.User, now time.Time) error {
	var lockUntil *time.Time
	if user.FailedLoginAttempts+1 >= s.policy.LockoutThreshold {
		t := now.Add(s.policy.LockoutDuration)
		lockUntil = &t
	}
	if _, err := s.users.RecordLoginFailure(ctx, user.ID, lockUntil); err != nil {
		return err
	}
	if lockUntil != nil {
		metrics.AccountLockouts.Inc()
		s.log.Warn("account locked after repeated login failures",
			zap.String("user_id", user.ID),
			zap.String("tenant_id", user.TenantID),
			zap.Time("locked_until", *lockUntil))
		// A locked account keeps no live sessions.
		if err := s.sessions.RevokeAllByUser(ctx, user.ID); err != nil {
			s.log.Error("revoke sessions after lockout",
				zap.String("user_id", user.ID), zap.Error(err))
		}
		return apperrors.AccountLocked(*lockUntil)
	}
	return apperrors.PermissionDenied("invalid credentials")
}

// CreateSession creates a session for the authenticated user. Called only
// after Authenticate succeeds.
func (s *Service) CreateSession(ctx context.Context, userID, tenantID, ip, userAgent string) (*domain.Session, error) {
	now := s.now()
	sess := &domain.Session{
		ID:             uuid.New().String(),
		UserID:         userID,
		TenantID:       tenantID,
		CreatedAt:      now,
		LastActivityAt: now,
		AbsoluteExpiry: now.Add(s.policy.AbsoluteWindow),
		IPAddress:      ip,
		UserAgent:      userAgent,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ValidateSession checks the session against the idle and absolute windows
// and refreshes last-activity on success. An IP or user-agent change is
// logged as an informational signal only; mobile-network IP churn would
// otherwise log users out constantly.
func (s *Service) ValidateSession(ctx context.Context, sessionID, ip, userAgent, expectedUserID string) (*Validation, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperrors.SessionInvalid(apperrors.CodeSessionNotFound, "session not found")
	}
	if expectedUserID != "" && sess.UserID != expectedUserID {
		return nil, apperrors.SessionInvalid(apperrors.CodeSessionNotFound, "session not found")
	}
	now := s.now()
	switch sess.StateAt(now, s.policy.IdleWindow) {
	case domain.StateRevoked:
		return nil, apperrors.SessionInvalid(apperrors.CodeSessionRevoked, "session revoked")
	case domain.StateAbsoluteExpired:
		return nil, apperrors.SessionInvalid(apperrors.CodeSessionAbsoluteTimeout, "session expired")
	case domain.StateIdleExpired:
		return nil, apperrors.SessionInvalid(apperrors.CodeSessionIdleTimeout, "session idle timeout")
	}
	if (ip != "" && sess.IPAddress != "" && ip != sess.IPAddress) ||
		(userAgent != "" && sess.UserAgent != "" && userAgent != sess.UserAgent) {
		s.log.Info("session client fingerprint changed",
			zap.String("session_id", sess.ID),
			zap.String("stored_ip", sess.IPAddress),
			zap.String("seen_ip", ip))
	}
	if err := s.sessions.UpdateLastActivity(ctx, sessionID, now); err != nil {
		return nil, err
	}
	sess.LastActivityAt = now
	return &Validation{
		Session:       sess,
		IdleRemaining: sess.IdleRemaining(now, s.policy.IdleWindow),
		AbsRemaining:  sess.AbsoluteRemaining(now),
	}, nil
}

// GrantPrivilegedAccess opens the short privileged window on the session
// after the caller's password has been re-verified. Gates destructive and
// export actions.
func (s *Service) GrantPrivilegedAccess(ctx context.Context, sessionID, password string) (time.Time, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return time.Time{}, err
	}
	if sess == nil {
		return time.Time{}, apperrors.SessionInvalid(apperrors.CodeSessionNotFound, "session not found")
	}
	now := s.now()
	if sess.StateAt(now, s.policy.IdleWindow) != domain.StateActive {
		return time.Time{}, apperrors.SessionInvalid(apperrors.CodeSessionIdleTimeout, "session expired")
	}
	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return time.Time{}, err
	}
	if user == nil {
		return time.Time{}, apperrors.SessionInvalid(apperrors.CodeSessionNotFound, "session not found")
	}
	if user.IsLocked(now) {
		return time.Time{}, apperrors.AccountLocked(*user.AccountLockedUntil)
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return time.Time{}, s.recordFailure(ctx, user, now)
	}
	until := now.Add(s.policy.PrivilegedWindow)
	if err := s.sessions.SetPrivilegedUntil(ctx, sessionID, until); err != nil {
		return time.Time{}, err
	}
	return until, nil
}

// RevokeSession revokes the session (logout or admin action).
func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID)
}

// RevokeAllSessions revokes every session for the user, e.g. after a lockout
// or credential anomaly.
func (s *Service) RevokeAllSessions(ctx context.Context, userID string) error {
	return s.sessions.RevokeAllByUser(ctx, userID)
}

// Housekeep removes revoked and absolutely expired sessions. Idle-expired
// rows are kept until absolute expiry so a validation attempt can still
// report the idle-timeout reason.
func (s *Service) Housekeep(ctx context.Context) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Error("session housekeeping failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("removed expired sessions", zap.Int64("count", n))
	}
}

// RequiresReauthentication reports whether (resourceType, action) demands an
// open privileged window regardless of session age. Export always does;
// delete does for every sensitive resource class.
func RequiresReauthentication(resourceType rbacdomain.ResourceType, action rbacdomain.Action) bool {
	if action == rbacdomain.ActionExport {
		return true
	}
	if action == rbacdomain.ActionDelete {
		switch resourceType {
		case rbacdomain.ResourceTaxProfile, rbacdomain.ResourceIdentity, rbacdomain.ResourceHealthClaim:
			return true
		}
	}
	return false
}
