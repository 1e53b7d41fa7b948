package kms

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"
)

func testMasterKey() string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
}

func TestLocalProviderRoundTrip(t *testing.T) {
	p, err := NewLocalProvider(testMasterKey())
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}
	dek := []byte("0123456789abcdef0123456789abcdef")

	wrapped, err := p.WrapDEK(context.Background(), "tenant-a", dek)
	if err != nil {
		t.Fatalf("WrapDEK: %v", err)
	}
	if bytes.Contains(wrapped, dek) {
		t.Fatal("wrapped key contains plaintext DEK")
	}

	got, err := p.UnwrapDEK(context.Background(), "tenant-a", wrapped)
	if err != nil {
		t.Fatalf("UnwrapDEK: %v", err)
	}
	if !bytes.Equal(got, dek) {
		t.Fatal("unwrapped DEK does not match original")
	}
}

func TestLocalProviderKeyIDBindsWrap(t *testing.T) {
	p, err := NewLocalProvider(testMasterKey())
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}
	wrapped, err := p.WrapDEK(context.Background(), "tenant-a", []byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("WrapDEK: %v", err)
	}
	if _, err := p.UnwrapDEK(context.Background(), "tenant-b", wrapped); err == nil {
		t.Fatal("expected unwrap under a different key id to fail")
	}
}

func TestLocalProviderRejectsTamperedCiphertext(t *testing.T) {
	p, err := NewLocalProvider(testMasterKey())
	if err != nil {
		t.Fatalf("NewLocalProvider: %v", err)
	}
	wrapped, err := p.WrapDEK(context.Background(), "tenant-a", []byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("WrapDEK: %v", err)
	}
	wrapped[len(wrapped)-1] ^= 0xff
	if _, err := p.UnwrapDEK(context.Background(), "tenant-a", wrapped); err == nil {
		t.Fatal("expected unwrap of tampered ciphertext to fail")
	}
}

func TestNewLocalProviderRejectsShortKey(t *testing.T) {
	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	if _, err := NewLocalProvider(short); err == nil {
		t.Fatal("expected short master key to be rejected")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	master := bytes.Repeat([]byte{0x01}, 32)
	a, err := deriveKey(master, "tenant-a", 32)
	if err != nil {
		t.Fatalf("deriveKey: %v", err)
	}
	b, err := deriveKey(master, "tenant-a", 32)
	if err != nil {
		t.Fatalf("deriveKey: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("same inputs derived different keys")
	}
	c, err := deriveKey(master, "tenant-b", 32)
	if err != nil {
		t.Fatalf("deriveKey: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Fatal("different key ids derived the same key")
	}
}
