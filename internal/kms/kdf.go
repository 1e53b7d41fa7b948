package kms

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/hkdf"
)

// deriveKey derives a per-key-id wrapping key from the master key with HKDF,
// so the master key itself never touches ciphertext directly.
func deriveKey(masterKey []byte, keyID string, length int) ([]byte, error) {
	if len(masterKey) == 0 {
		return nil, errors.New("master key cannot be empty")
	}
	salt := []byte("ledgerline-kek:" + keyID)
	reader := hkdf.New(sha256.New, masterKey, salt, []byte(keyID))
	key := make([]byte, length)
	if _, err := reader.Read(key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}
