// statetoken.go -- Signed, self-contained OAuth state tokens.
//
// The nonce, platform and extra claims travel inside an HS256 JWT held in an
// HttpOnly cookie; the server keeps nothing between /state and /callback.
package statetoken

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of a state token.
const DefaultTTL = 10 * time.Minute

// DefaultPlatform is used when the caller names none.
const DefaultPlatform = "web"

// Extra claim keys carried through the round trip.
const (
	ClaimCodeVerifier = "code_verifier"
	ClaimReturnURL    = "return_url"
)

var (
	// ErrMissingSecret means the issuer has no signing key configured.
	ErrMissingSecret = errors.New("state secret not configured")
	// ErrInvalidToken covers bad signatures, malformed tokens and expiry.
	ErrInvalidToken = errors.New("invalid or expired state token")
	// ErrStateMismatch means the echoed state differs from the token nonce.
	ErrStateMismatch = errors.New("state mismatch")
)

// Claims is the payload of a state token.
type Claims struct {
	Nonce    string            `json:"nonce"`
	Platform string            `json:"platform"`
	Extra    map[string]string `json:"extra,omitempty"`
	jwt.RegisteredClaims
}

// ExtraString returns a string extra claim, or "" when absent.
func (c *Claims) ExtraString(key string) string {
	return c.Extra[key]
}

// Issued is the result of Issue. Nonce goes back to the client as data;
// Token only ever goes into the state cookie.
type Issued struct {
	Nonce     string
	Platform  string
	Token     string
	ExpiresAt time.Time
}

// Issuer creates and verifies state tokens for one provider.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer returns an Issuer signing with key. An empty key is accepted here
// and reported by Issue as ErrMissingSecret.
func NewIssuer(key []byte, opts ...Option) *Issuer {
	i := &Issuer{key: key, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// TTL is the configured token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// NormalizePlatform lowercases and trims platform, defaulting to "web".
func NormalizePlatform(platform string) string {
	p := strings.ToLower(strings.TrimSpace(platform))
	if p == "" {
		return DefaultPlatform
	}
	return p
}

// Issue creates a token bound to platform and extra.
func (i *Issuer) Issue(platform string, extra map[string]string) (*Issued, error) {
	if len(i.key) == 0 {
		return nil, ErrMissingSecret
	}
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	platform = NormalizePlatform(platform)

	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Nonce:    nonce,
		Platform: platform,
		Extra:    extra,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return nil, fmt.Errorf("signing state token: %w", err)
	}
	return &Issued{Nonce: nonce, Platform: platform, Token: signed, ExpiresAt: exp}, nil
}

// Decode verifies signature and expiry and returns the claims.
func (i *Issuer) Decode(token string) (*Claims, error) {
	if len(i.key) == 0 {
		return nil, ErrMissingSecret
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Nonce == "" {
		return nil, fmt.Errorf("%w: missing nonce", ErrInvalidToken)
	}
	return claims, nil
}

// Verify decodes token and checks that its nonce equals state.
// The comparison is constant-time.
func (i *Issuer) Verify(token, state string) (*Claims, error) {
	claims, err := i.Decode(token)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(state)) != 1 {
		return nil, ErrStateMismatch
	}
	return claims, nil
}

// newNonce returns 32 random bytes, base64url encoded.
func newNonce() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
