package boundary

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	rbacdomain "ledgerline/backend/internal/rbac/domain"
)

// ErrRecordNotFound is returned when the target record does not exist in the
// caller's tenant.
var ErrRecordNotFound = errors.New("record not found")

// Record is the non-sensitive shell of a protected resource. Sensitive field
// values are stored separately as ciphertext and never appear in Attrs.
type Record struct {
	ID           string
	TenantID     string
	ResourceType rbacdomain.ResourceType
	OwnerID      string
	Attrs        map[string]string
}

// SensitiveValue is one encrypted field value.
type SensitiveValue struct {
	Ciphertext    []byte
	KeyGeneration int
}

// RecordStore persists record shells and their encrypted sensitive values.
type RecordStore interface {
	GetRecord(ctx context.Context, tenantID string, rt rbacdomain.ResourceType, id string) (*Record, error)
	CreateRecord(ctx context.Context, rec *Record) error
	UpdateRecordAttrs(ctx context.Context, rec *Record) error
	DeleteRecord(ctx context.Context, tenantID string, rt rbacdomain.ResourceType, id string) error
	GetSensitiveValues(ctx context.Context, tenantID string, rt rbacdomain.ResourceType, id string) (map[string]SensitiveValue, error)
	PutSensitiveValues(ctx context.Context, tenantID string, rt rbacdomain.ResourceType, id string, values map[string]SensitiveValue) error
}

// DB is the slice of the database handle the store needs. Satisfied by
// *sql.DB and by the guardrail-checked handle; production wiring passes the
// checked handle so every store query is inspected.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type postgresRecordStore struct {
	db DB
}

// NewPostgresRecordStore returns a RecordStore backed by the records and
// sensitive_values tables.
func NewPostgresRecordStore(db DB) RecordStore {
	return &postgresRecordStore{db: db}
}

func (s *postgresRecordStore) GetRecord(ctx context.Context, tenantID string, rt rbacdomain.ResourceType, id string) (*Record, error) {
	const q = `
		SELECT id, tenant_id, resource_type, owner_id, attrs
		FROM records
		WHERE tenant_id = $1 AND resource_type = $2 AND id = $3`
	rows, err := s.db.QueryContext(ctx, q, tenantID, string(rt), id)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get record: %w", err)
		}
		return nil, ErrRecordNotFound
	}
	var (
		rec      Record
		resource string
		attrs    []byte
	)
	if err := rows.Scan(&rec.ID, &rec.TenantID, &resource, &rec.OwnerID, &attrs); err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	rec.ResourceType = rbacdomain.ResourceType(resource)
	rec.Attrs = map[string]string{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &rec.Attrs); err != nil {
			return nil, fmt.Errorf("decode record attrs: %w", err)
		}
	}
	return &rec, nil
}

func (s *postgresRecordStore) CreateRecord(ctx context.Context, rec *Record) error {
	attrs, err := json.Marshal(rec.Attrs)
	if err != nil {
		return fmt.Errorf("encode record attrs: %w", err)
	}
	const q = `
		INSERT INTO records (id, tenant_id, resource_type, owner_id, attrs)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, q, rec.ID, rec.TenantID, string(rec.ResourceType), rec.OwnerID, attrs); err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

func (s *postgresRecordStore) UpdateRecordAttrs(ctx context.Context, rec *Record) error {
	attrs, err := json.Marshal(rec.Attrs)
	if err != nil {
		return fmt.Errorf("encode record attrs: %w", err)
	}
	const q = `
		UPDATE records SET attrs = $4, updated_at = now()
		WHERE tenant_id = $1 AND resource_type = $2 AND id = $3`
	res, err := s.db.ExecContext(ctx, q, rec.TenantID, string(rec.ResourceType), rec.ID, attrs)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *postgresRecordStore) DeleteRecord(ctx context.Context, tenantID string, rt rbacdomain.ResourceType, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sensitive_values WHERE tenant_id = $1 AND resource_type = $2 AND resource_id = $3`,
		tenantID, string(rt), id); err != nil {
		return fmt.Errorf("delete sensitive values: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE tenant_id = $1 AND resource_type = $2 AND id = $3`,
		tenantID, string(rt), id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordNotFound
	}
	return tx.Commit()
}

func (s *postgresRecordStore) GetSensitiveValues(ctx context.Context, tenantID string, rt rbacdomain.ResourceType, id string) (map[string]SensitiveValue, error) {
	const q = `
		SELECT field_name, ciphertext, key_generation
		FROM sensitive_values
		WHERE tenant_id = $1 AND resource_type = $2 AND resource_id = $3`
	rows, err := s.db.QueryContext(ctx, q, tenantID, string(rt), id)
	if err != nil {
		return nil, fmt.Errorf("get sensitive values: %w", err)
	}
	defer rows.Close()

	out := map[string]SensitiveValue{}
	for rows.Next() {
		var (
			field string
			v     SensitiveValue
		)
		if err := rows.Scan(&field, &v.Ciphertext, &v.KeyGeneration); err != nil {
			return nil, err
		}
		out[field] = v
	}
	return out, rows.Err()
}

func (s *postgresRecordStore) PutSensitiveValues(ctx context.Context, tenantID string, rt rbacdomain.ResourceType, id string, values map[string]SensitiveValue) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback()

	const q = `
		INSERT INTO sensitive_values (tenant_id, resource_type, resource_id, field_name, ciphertext, key_generation, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (tenant_id, resource_type, resource_id, field_name) DO UPDATE
		SET ciphertext = EXCLUDED.ciphertext,
		    key_generation = EXCLUDED.key_generation,
		    updated_at = now()`
	for field, v := range values {
		if _, err := tx.ExecContext(ctx, q, tenantID, string(rt), id, field, v.Ciphertext, v.KeyGeneration); err != nil {
			return fmt.Errorf("put sensitive value %s: %w", field, err)
		}
	}
	return tx.Commit()
}
