// google.go -- Google OAuth2 + OIDC provider implementation.
package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MGallo-Code/voiceauth/internal/config"
)

const (
	googleJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// GoogleProvider implements Provider for Google sign-in on every platform.
// Web clients authenticate with a client secret; native clients are public
// PKCE clients with no secret.
type GoogleProvider struct {
	base
}

// NewGoogleProvider returns a GoogleProvider. No network calls are made until
// the first exchange.
func NewGoogleProvider(opts ...Option) *GoogleProvider {
	return &GoogleProvider{base: newBase(opts)}
}

// Name returns "google".
func (p *GoogleProvider) Name() string { return "google" }

// StateCookieName returns "g_oidc_state".
func (p *GoogleProvider) StateCookieName() string { return "g_oidc_state" }

// Exchange trades an authorization code for Google tokens.
func (p *GoogleProvider) Exchange(ctx context.Context, req ExchangeRequest) (*TokenSet, error) {
	return exchangeCode(ctx, p.client, req.Config, req.Config.ClientSecret, req)
}

// googleClaims is the shared shape of Google id_token claims and userinfo.
type googleClaims struct {
	Sub           string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	GivenName     string   `json:"given_name"`
	FamilyName    string   `json:"family_name"`
	Picture       string   `json:"picture"`
}

func (c googleClaims) identity(source string) *Identity {
	return &Identity{
		ID:            c.Sub,
		Email:         c.Email,
		EmailVerified: bool(c.EmailVerified),
		Name:          c.Name,
		GivenName:     c.GivenName,
		FamilyName:    c.FamilyName,
		Picture:       c.Picture,
		Provider:      "google",
		Source:        source,
	}
}

// ExtractIdentity verifies the id_token when present and falls back to the
// userinfo endpoint with the access token otherwise (or when verification fails).
func (p *GoogleProvider) ExtractIdentity(ctx context.Context, tokens *TokenSet, cfg config.ProviderConfig, _ IdentityHints) (*Identity, error) {
	if tokens == nil {
		return nil, ErrNoIdentity
	}

	var idErr error
	if tokens.IDToken != "" {
		id, err := p.fromIDToken(ctx, tokens.IDToken, cfg)
		if err == nil {
			return id, nil
		}
		idErr = err
	}
	if tokens.AccessToken == "" {
		if idErr != nil {
			return nil, idErr
		}
		return nil, ErrNoIdentity
	}

	endpoint := cfg.UserInfoEndpoint
	if endpoint == "" {
		endpoint = googleUserInfoURL
	}
	var c googleClaims
	if err := fetchUserInfo(ctx, p.client, endpoint, tokens.AccessToken, &c); err != nil {
		return nil, errors.Join(idErr, err)
	}
	if c.Sub == "" {
		return nil, errors.Join(idErr, fmt.Errorf("userinfo response missing sub"))
	}
	return c.identity("userinfo"), nil
}

func (p *GoogleProvider) fromIDToken(ctx context.Context, raw string, cfg config.ProviderConfig) (*Identity, error) {
	jwks := cfg.JWKSURI
	if jwks == "" {
		jwks = googleJWKSURL
	}
	issuers := googleIssuers
	if cfg.Issuer != "" {
		issuers = []string{cfg.Issuer}
	}
	tok, err := verifyIDToken(ctx, raw, idTokenCheck{
		issuers:   issuers,
		audiences: nonEmpty(cfg.ClientID, cfg.WebClientID),
		keys:      p.keySet(jwks),
		now:       p.now,
	})
	if err != nil {
		return nil, err
	}
	var c googleClaims
	if err := tok.Claims(&c); err != nil {
		return nil, fmt.Errorf("extracting id token claims: %w", err)
	}
	return c.identity("id_token"), nil
}
