package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds the bearer token claims: user, tenant, role, and an optional
// read-only flag that downgrades the token to idempotent methods only.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

// Identity is the validated content of a bearer token.
type Identity struct {
	UserID   string
	TenantID string
	Role     string
	ReadOnly bool
}

// TokenProvider issues and validates HS256 bearer tokens.
type TokenProvider struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewTokenProvider returns a TokenProvider signing with the given HMAC key.
// issuer and audience are set on claims and validated on parse.
func NewTokenProvider(key []byte, issuer, audience string, ttl time.Duration) *TokenProvider {
	return &TokenProvider{key: key, issuer: issuer, audience: audience, ttl: ttl}
}

// Issue issues a bearer token for the given identity.
// Returns the token string and its expiration time.
func (p *TokenProvider) Issue(id Identity) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TenantID: id.TenantID,
		Role:     id.Role,
		ReadOnly: id.ReadOnly,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err = t.SignedString(p.key)
	return token, expiresAt, err
}

// Validate parses and validates the token (signature, exp, iss, aud) and
// returns the identity it carries.
func (p *TokenProvider) Validate(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.key, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != p.issuer {
		return nil, ErrInvalidToken
	}
	audOK := false
	for _, a := range claims.Audience {
		if a == p.audience {
			audOK = true
			break
		}
	}
	if !audOK {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.TenantID == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID:   claims.Subject,
		TenantID: claims.TenantID,
		Role:     claims.Role,
		ReadOnly: claims.ReadOnly,
	}, nil
}
