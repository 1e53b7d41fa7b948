package kms

import (
	"bytes"
	"context"
	"testing"
	"time"
)

type memKeyStore struct {
	records map[string][]*KeyRecord // ascending generation
	gets    int
}

func newMemKeyStore() *memKeyStore {
	return &memKeyStore{records: make(map[string][]*KeyRecord)}
}

func (s *memKeyStore) GetLatest(ctx context.Context, tenantID string) (*KeyRecord, error) {
	s.gets++
	recs := s.records[tenantID]
	if len(recs) == 0 {
		return nil, ErrKeyNotFound
	}
	cp := *recs[len(recs)-1]
	return &cp, nil
}

func (s *memKeyStore) GetGeneration(ctx context.Context, tenantID string, generation int) (*KeyRecord, error) {
	s.gets++
	for _, rec := range s.records[tenantID] {
		if rec.Generation == generation {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrKeyNotFound
}

func (s *memKeyStore) Put(ctx context.Context, rec *KeyRecord) error {
	cp := *rec
	s.records[rec.TenantID] = append(s.records[rec.TenantID], &cp)
	return nil
}

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *memKeyStore) {
	t.Helper()
	p, err := NewLocalProvider(testMasterKey())
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}
	store := newMemKeyStore()
	return NewManager(p, store, ttl), store
}

func TestManagerCreatesKeyOnFirstUse(t *testing.T) {
	m, store := newTestManager(t, time.Minute)

	key, err := m.GetTenantKey(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("GetTenantKey: %v", err)
	}
	if len(key.Key) != 32 {
		t.Fatalf("expected 32-byte DEK, got %d", len(key.Key))
	}
	if key.Generation != 1 {
		t.Fatalf("expected generation 1, got %d", key.Generation)
	}
	recs := store.records["tenant-a"]
	if len(recs) != 1 {
		t.Fatalf("expected one wrapped key persisted, got %d", len(recs))
	}
	if bytes.Contains(recs[0].WrappedKey, key.Key) {
		t.Fatal("stored record contains plaintext DEK")
	}
}

func TestManagerCachesUnwrappedKey(t *testing.T) {
	m, store := newTestManager(t, time.Minute)

	first, err := m.GetTenantKey(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("GetTenantKey: %v", err)
	}
	getsAfterCreate := store.gets

	second, err := m.GetTenantKey(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("GetTenantKey: %v", err)
	}
	if store.gets != getsAfterCreate {
		t.Fatal("expected cached key without a store round trip")
	}
	if !bytes.Equal(first.Key, second.Key) {
		t.Fatal("cached key differs from created key")
	}
}

func TestManagerCacheExpires(t *testing.T) {
	m, store := newTestManager(t, time.Minute)
	base := time.Now()
	m.now = func() time.Time { return base }

	key, err := m.GetTenantKey(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("GetTenantKey: %v", err)
	}
	getsAfterCreate := store.gets

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	again, err := m.GetTenantKey(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("GetTenantKey: %v", err)
	}
	if store.gets == getsAfterCreate {
		t.Fatal("expected expired cache to hit the store")
	}
	if !bytes.Equal(key.Key, again.Key) {
		t.Fatal("re-unwrapped key differs from original")
	}
}

func TestManagerRotationBumpsGeneration(t *testing.T) {
	m, _ := newTestManager(t, time.Minute)

	first, err := m.GetTenantKey(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("GetTenantKey: %v", err)
	}
	rotated, err := m.RotateTenantKey(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("RotateTenantKey: %v", err)
	}
	if rotated.Generation != first.Generation+1 {
		t.Fatalf("expected generation %d, got %d", first.Generation+1, rotated.Generation)
	}
	if bytes.Equal(first.Key, rotated.Key) {
		t.Fatal("rotation reused the old DEK")
	}

	current, err := m.GetTenantKey(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("GetTenantKey: %v", err)
	}
	if current.Generation != rotated.Generation {
		t.Fatal("GetTenantKey did not return the rotated key")
	}
}

func TestManagerOldGenerationStaysDecryptable(t *testing.T) {
	m, store := newTestManager(t, time.Minute)
	ctx := context.Background()

	first, err := m.GetTenantKey(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("GetTenantKey: %v", err)
	}
	if _, err := m.RotateTenantKey(ctx, "tenant-a"); err != nil {
		t.Fatalf("RotateTenantKey: %v", err)
	}
	// Rotation adds a generation; it must not replace the old record.
	if n := len(store.records["tenant-a"]); n != 2 {
		t.Fatalf("expected 2 key records after rotation, got %d", n)
	}

	old, err := m.KeyForGeneration(ctx, "tenant-a", 1)
	if err != nil {
		t.Fatalf("KeyForGeneration(1): %v", err)
	}
	if !bytes.Equal(old.Key, first.Key) {
		t.Fatal("generation 1 key differs from the key issued at generation 1")
	}
	current, err := m.KeyForGeneration(ctx, "tenant-a", 2)
	if err != nil {
		t.Fatalf("KeyForGeneration(2): %v", err)
	}
	if bytes.Equal(current.Key, old.Key) {
		t.Fatal("rotation reused the old DEK")
	}
}

func TestManagerKeyForUnknownGeneration(t *testing.T) {
	m, _ := newTestManager(t, time.Minute)

	if _, err := m.GetTenantKey(context.Background(), "tenant-a"); err != nil {
		t.Fatalf("GetTenantKey: %v", err)
	}
	if _, err := m.KeyForGeneration(context.Background(), "tenant-a", 7); err == nil {
		t.Fatal("expected error for a generation never issued")
	}
}

func TestManagerTenantsGetDistinctKeys(t *testing.T) {
	m, _ := newTestManager(t, time.Minute)

	a, err := m.GetTenantKey(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("GetTenantKey: %v", err)
	}
	b, err := m.GetTenantKey(context.Background(), "tenant-b")
	if err != nil {
		t.Fatalf("GetTenantKey: %v", err)
	}
	if bytes.Equal(a.Key, b.Key) {
		t.Fatal("tenants share a DEK")
	}
}
