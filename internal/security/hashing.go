package security

import "golang.org/x/crypto/bcrypt"

// Hasher verifies credentials at login and privileged elevation. bcrypt
// throughout; the cost comes from config (BCRYPT_COST) so deployments can
// tune the work factor without a code change.
type Hasher struct {
	Cost int
}

// NewHasher clamps cost into bcrypt's supported range. Zero or negative
// selects bcrypt's default.
func NewHasher(cost int) *Hasher {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash returns the bcrypt hash of password for storage on the user record.
// The plaintext must never be logged or persisted anywhere else.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare checks password against a stored hash. nil means a match;
// bcrypt.ErrMismatchedHashAndPassword or a parse error otherwise. Failed
// comparisons feed the login lockout counter, so callers must not retry.
func (h *Hasher) Compare(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}
