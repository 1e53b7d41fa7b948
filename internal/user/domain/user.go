package domain

import (
	"errors"
	"time"
)

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// User represents an account scoped to a tenant. Lockout state lives here,
// not on the session: lockout must survive session destruction.
type User struct {
	ID                  string
	TenantID            string
	Email               string
	Name                string
	PasswordHash        string
	Status              UserStatus
	FailedLoginAttempts int
	AccountLockedUntil  *time.Time // nil when not locked
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Validate checks required fields. Returns an error naming the first missing field.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("user: id is required")
	}
	if u.TenantID == "" {
		return errors.New("user: tenant_id is required")
	}
	if u.Email == "" {
		return errors.New("user: email is required")
	}
	return nil
}

// IsLocked reports whether the account is locked at the given instant. Pure
// time comparison so lockout logic is testable without clock waits.
func (u *User) IsLocked(now time.Time) bool {
	return u.AccountLockedUntil != nil && now.Before(*u.AccountLockedUntil)
}
