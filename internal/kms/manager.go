package kms

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

// TenantKey is an unwrapped data encryption key held in memory only.
type TenantKey struct {
	TenantID   string
	Key        []byte
	Generation int
}

type cachedKey struct {
	key       *TenantKey
	expiresAt time.Time
}

// Manager hands out per-tenant DEKs, unwrapping lazily through the configured
// provider and caching the unwrapped key in memory for a bounded TTL.
// Concurrent unwraps of the same tenant may race; unwrap is idempotent so the
// last writer wins without harm.
type Manager struct {
	provider Provider
	store    KeyStore
	ttl      time.Duration

	mu    sync.RWMutex
	cache map[string]cachedKey

	now func() time.Time
}

// NewManager builds a Manager with the given unwrapped-key cache TTL.
func NewManager(provider Provider, store KeyStore, ttl time.Duration) *Manager {
	return &Manager{
		provider: provider,
		store:    store,
		ttl:      ttl,
		cache:    make(map[string]cachedKey),
		now:      time.Now,
	}
}

// GetTenantKey returns the tenant's current DEK, creating one on first use.
func (m *Manager) GetTenantKey(ctx context.Context, tenantID string) (*TenantKey, error) {
	m.mu.RLock()
	if c, ok := m.cache[tenantID]; ok && m.now().Before(c.expiresAt) {
		m.mu.RUnlock()
		return c.key, nil
	}
	m.mu.RUnlock()

	rec, err := m.store.GetLatest(ctx, tenantID)
	if err == ErrKeyNotFound {
		return m.createTenantKey(ctx, tenantID)
	}
	if err != nil {
		return nil, err
	}

	plaintext, err := m.provider.UnwrapDEK(ctx, tenantID, rec.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("unwrap tenant key: %w", err)
	}
	key := &TenantKey{TenantID: tenantID, Key: plaintext, Generation: rec.Generation}
	m.remember(key)
	return key, nil
}

// RotateTenantKey generates a fresh DEK under the next generation. Earlier
// generation records stay in the store, so values encrypted under them remain
// decryptable until a re-encryption pass rewrites them; callers record the
// generation alongside each ciphertext.
func (m *Manager) RotateTenantKey(ctx context.Context, tenantID string) (*TenantKey, error) {
	rec, err := m.store.GetLatest(ctx, tenantID)
	if err != nil && err != ErrKeyNotFound {
		return nil, err
	}
	generation := 1
	if rec != nil {
		generation = rec.Generation + 1
	}
	return m.issue(ctx, tenantID, generation)
}

// KeyForGeneration unwraps the tenant's key for the generation a ciphertext
// was written under. The latest generation is served from the cache; older
// generations are fetched and unwrapped on demand and not cached, since they
// are only touched while re-encryption catches up after a rotation.
func (m *Manager) KeyForGeneration(ctx context.Context, tenantID string, generation int) (*TenantKey, error) {
	key, err := m.GetTenantKey(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if key.Generation == generation {
		return key, nil
	}
	rec, err := m.store.GetGeneration(ctx, tenantID, generation)
	if err == ErrKeyNotFound {
		return nil, fmt.Errorf("tenant key generation %d not on record", generation)
	}
	if err != nil {
		return nil, err
	}
	plaintext, err := m.provider.UnwrapDEK(ctx, tenantID, rec.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("unwrap tenant key: %w", err)
	}
	return &TenantKey{TenantID: tenantID, Key: plaintext, Generation: rec.Generation}, nil
}

func (m *Manager) createTenantKey(ctx context.Context, tenantID string) (*TenantKey, error) {
	return m.issue(ctx, tenantID, 1)
}

func (m *Manager) issue(ctx context.Context, tenantID string, generation int) (*TenantKey, error) {
	plaintext := make([]byte, 32)
	if _, err := rand.Read(plaintext); err != nil {
		return nil, fmt.Errorf("generate DEK: %w", err)
	}
	wrapped, err := m.provider.WrapDEK(ctx, tenantID, plaintext)
	if err != nil {
		return nil, fmt.Errorf("wrap tenant key: %w", err)
	}
	if err := m.store.Put(ctx, &KeyRecord{
		TenantID:   tenantID,
		WrappedKey: wrapped,
		Generation: generation,
	}); err != nil {
		return nil, err
	}
	key := &TenantKey{TenantID: tenantID, Key: plaintext, Generation: generation}
	m.remember(key)
	return key, nil
}

func (m *Manager) remember(key *TenantKey) {
	m.mu.Lock()
	m.cache[key.TenantID] = cachedKey{key: key, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
}
