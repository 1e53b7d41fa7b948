package kms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrKeyNotFound is returned when no wrapped key exists for the requested
// tenant or generation.
var ErrKeyNotFound = errors.New("tenant key not found")

// KeyRecord is one wrapped data encryption key generation for a tenant.
type KeyRecord struct {
	TenantID   string
	Generation int
	WrappedKey []byte
	CreatedAt  time.Time
}

// KeyStore persists wrapped tenant keys, one row per generation. Rows are
// insert-only: ciphertext records the generation it was written under, so an
// earlier generation must stay resolvable for as long as any ciphertext
// references it. Plaintext DEKs never reach the store.
type KeyStore interface {
	// GetLatest returns the tenant's highest-generation key record.
	GetLatest(ctx context.Context, tenantID string) (*KeyRecord, error)
	// GetGeneration returns the record for one specific generation.
	GetGeneration(ctx context.Context, tenantID string, generation int) (*KeyRecord, error)
	// Put inserts a new generation. Inserting an existing (tenant,
	// generation) pair fails, which surfaces concurrent rotations.
	Put(ctx context.Context, rec *KeyRecord) error
}

type postgresKeyStore struct {
	db *sql.DB
}

// NewPostgresKeyStore returns a KeyStore backed by the tenant_keys table.
func NewPostgresKeyStore(db *sql.DB) KeyStore {
	return &postgresKeyStore{db: db}
}

func (s *postgresKeyStore) GetLatest(ctx context.Context, tenantID string) (*KeyRecord, error) {
	const q = `
		SELECT tenant_id, generation, wrapped_key, created_at
		FROM tenant_keys
		WHERE tenant_id = $1
		ORDER BY generation DESC
		LIMIT 1`
	return scanKeyRecord(s.db.QueryRowContext(ctx, q, tenantID))
}

func (s *postgresKeyStore) GetGeneration(ctx context.Context, tenantID string, generation int) (*KeyRecord, error) {
	const q = `
		SELECT tenant_id, generation, wrapped_key, created_at
		FROM tenant_keys
		WHERE tenant_id = $1 AND generation = $2`
	return scanKeyRecord(s.db.QueryRowContext(ctx, q, tenantID, generation))
}

func (s *postgresKeyStore) Put(ctx context.Context, rec *KeyRecord) error {
	const q = `
		INSERT INTO tenant_keys (tenant_id, generation, wrapped_key, created_at)
		VALUES ($1, $2, $3, now())`
	if _, err := s.db.ExecContext(ctx, q, rec.TenantID, rec.Generation, rec.WrappedKey); err != nil {
		return fmt.Errorf("put tenant key: %w", err)
	}
	return nil
}

func scanKeyRecord(row *sql.Row) (*KeyRecord, error) {
	rec := &KeyRecord{}
	err := row.Scan(&rec.TenantID, &rec.Generation, &rec.WrappedKey, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant key: %w", err)
	}
	return rec, nil
}
