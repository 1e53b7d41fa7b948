// Package kms manages per-tenant data-encryption keys (DEKs) under envelope
// encryption: a master key wraps each tenant DEK, and the unwrapped DEK lives
// only in process memory.
package kms

import "context"

// Provider wraps and unwraps tenant DEKs with the master key. The unwrap
// operation is idempotent for a given wrapped key, so concurrent cache
// population may race safely.
type Provider interface {
	WrapDEK(ctx context.Context, keyID string, plaintextDEK []byte) ([]byte, error)
	UnwrapDEK(ctx context.Context, keyID string, wrapped []byte) ([]byte, error)
}
