// apptoken.go -- Application JWT minting and verification.
//
// The token is HS256 over JWT_SECRET, so any service holding the secret
// verifies it offline.
package apptoken

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the token lifetime when JWT_EXPIRE_HOURS is unset.
const DefaultTTL = 24 * time.Hour

// ErrInvalidToken is returned by Verify for any rejected token.
var ErrInvalidToken = errors.New("invalid application token")

// Subject is the identity the token is minted for.
type Subject struct {
	ID    string
	Email string
	// EmailVerified gates the admin check; unverified emails never grant it.
	EmailVerified bool
	Name          string
	Provider      string
	Platform      string
}

// Claims is the application token payload.
type Claims struct {
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Provider  string `json:"provider"`
	Platform  string `json:"platform"`
	IsAdmin   bool   `json:"isAdmin"`
	Namespace string `json:"va-dir"`
	jwt.RegisteredClaims
}

// Minter signs and verifies application tokens.
type Minter struct {
	secret []byte
	ttl    time.Duration
	admins []string
	now    func() time.Time
}

// NewMinter returns a Minter. admins must already be lowercase.
func NewMinter(secret []byte, ttl time.Duration, admins []string) *Minter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Minter{secret: secret, ttl: ttl, admins: admins, now: time.Now}
}

// TTL is the token lifetime; the auth cookie Max-Age matches it.
func (m *Minter) TTL() time.Duration { return m.ttl }

// SetClock replaces time.Now, for tests.
func (m *Minter) SetClock(now func() time.Time) { m.now = now }

// IsAdmin reports whether a verified email is in the admin list.
func (m *Minter) IsAdmin(email string, verified bool) bool {
	if email == "" || !verified {
		return false
	}
	return slices.Contains(m.admins, strings.ToLower(email))
}

// Mint signs a token for s.
func (m *Minter) Mint(s Subject) (string, *Claims, error) {
	if len(m.secret) == 0 {
		return "", nil, errors.New("JWT secret not configured")
	}
	jti, err := uuid.NewV7()
	if err != nil {
		return "", nil, fmt.Errorf("generating jti: %w", err)
	}
	now := m.now()
	claims := &Claims{
		Name:      s.Name,
		Email:     s.Email,
		Provider:  s.Provider,
		Platform:  s.Platform,
		IsAdmin:   m.IsAdmin(s.Email, s.EmailVerified),
		Namespace: Namespace(s.Provider, s.ID, s.Email),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID,
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing application token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature and expiry.
func (m *Minter) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
