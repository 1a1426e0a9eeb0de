// provider.go -- OAuth provider interface and shared types.
package oauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MGallo-Code/voiceauth/internal/config"
	"github.com/coreos/go-oidc/v3/oidc"
)

// DefaultExchangeTimeout bounds each outbound token or userinfo request.
const DefaultExchangeTimeout = 10 * time.Second

var (
	// ErrTokenEndpoint wraps every failed token exchange (rejected or unreachable).
	ErrTokenEndpoint = errors.New("token endpoint error")
	// ErrMisconfigured means local provider configuration is unusable (e.g. Apple key file).
	ErrMisconfigured = errors.New("provider misconfigured")
	// ErrNoIdentity means the token response carried nothing to extract an identity from.
	ErrNoIdentity = errors.New("no identity in token response")
)

// Identity is the normalized user record extracted after an exchange.
// Provider-specific extras are zero when the provider does not supply them.
type Identity struct {
	ID             string `json:"id"`
	Email          string `json:"email,omitempty"`
	EmailVerified  bool   `json:"email_verified"`
	Name           string `json:"name,omitempty"`
	GivenName      string `json:"given_name,omitempty"`
	FamilyName     string `json:"family_name,omitempty"`
	Picture        string `json:"picture,omitempty"`
	Provider       string `json:"provider"`
	IsPrivateEmail bool   `json:"is_private_email,omitempty"`
	// Source records where the fields came from: id_token or userinfo.
	Source string `json:"-"`
}

// TokenSet is a token endpoint response.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	Expiry       time.Time `json:"-"`
	ExpiresIn    int64     `json:"expires_in,omitempty"`
}

// ExchangeRequest carries everything a provider needs to redeem a code.
type ExchangeRequest struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
	Config       config.ProviderConfig
}

// IdentityHints are unsigned, client-supplied extras. Display use only.
type IdentityHints struct {
	// UserBlob is Apple's first-authorization `user` form field.
	UserBlob string
}

// Provider is an OAuth2 identity provider.
// Implementations are stateless apart from the JWKS cache and safe for concurrent use.
type Provider interface {
	// Name returns the provider identifier used as the URL param.
	Name() string

	// StateCookieName is the cookie holding this provider's state token.
	StateCookieName() string

	// Exchange redeems an authorization code at the token endpoint.
	// Failures wrap ErrTokenEndpoint or ErrMisconfigured.
	Exchange(ctx context.Context, req ExchangeRequest) (*TokenSet, error)

	// ExtractIdentity builds an Identity from an exchange result, preferring
	// the signed id_token over a userinfo round trip.
	ExtractIdentity(ctx context.Context, tokens *TokenSet, cfg config.ProviderConfig, hints IdentityHints) (*Identity, error)
}

// Option configures a provider.
type Option func(*base)

// WithHTTPClient replaces the outbound client used for token, userinfo and JWKS calls.
func WithHTTPClient(c *http.Client) Option {
	return func(b *base) { b.client = c }
}

// WithKeySet pins id_token verification to ks instead of fetching the provider JWKS.
func WithKeySet(ks oidc.KeySet) Option {
	return func(b *base) { b.static = ks }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// base holds what every provider shares.
type base struct {
	client *http.Client
	static oidc.KeySet
	jwks   *jwksCache
	now    func() time.Time
}

func newBase(opts []Option) base {
	b := base{
		client: &http.Client{Timeout: DefaultExchangeTimeout},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.jwks = newJWKSCache(b.client)
	return b
}

// keySet returns the verification keys for jwksURL.
func (b *base) keySet(jwksURL string) oidc.KeySet {
	if b.static != nil {
		return b.static
	}
	return b.jwks.get(jwksURL)
}
