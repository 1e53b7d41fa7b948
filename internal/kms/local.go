package kms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// LocalProvider wraps DEKs with AES-256-GCM under keys derived from a single
// base64 master key. Suitable for development and single-node deployments; a
// production deployment should prefer the AWS KMS provider.
type LocalProvider struct {
	masterKey []byte
}

// NewLocalProvider returns a LocalProvider for the base64-encoded master key.
func NewLocalProvider(masterKey string) (*LocalProvider, error) {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(key) < 32 {
		return nil, errors.New("master key must be at least 32 bytes")
	}
	return &LocalProvider{masterKey: key}, nil
}

// WrapDEK encrypts the plaintext DEK under the key derived for keyID.
func (p *LocalProvider) WrapDEK(ctx context.Context, keyID string, plaintextDEK []byte) ([]byte, error) {
	kek, err := deriveKey(p.masterKey, keyID, 32)
	if err != nil {
		return nil, err
	}
	return sealWithKey(kek, plaintextDEK)
}

// UnwrapDEK decrypts the wrapped DEK under the key derived for keyID.
func (p *LocalProvider) UnwrapDEK(ctx context.Context, keyID string, wrapped []byte) ([]byte, error) {
	kek, err := deriveKey(p.masterKey, keyID, 32)
	if err != nil {
		return nil, err
	}
	return openWithKey(kek, wrapped)
}

func sealWithKey(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func openWithKey(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}
