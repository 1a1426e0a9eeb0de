// apple.go -- Sign in with Apple provider implementation.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MGallo-Code/voiceauth/internal/config"
)

const (
	appleIssuer  = "https://appleid.apple.com"
	appleJWKSURL = "https://appleid.apple.com/auth/keys"
)

// AppleProvider implements Provider for Sign in with Apple.
type AppleProvider struct {
	base
}

// NewAppleProvider returns an AppleProvider.
func NewAppleProvider(opts ...Option) *AppleProvider {
	return &AppleProvider{base: newBase(opts)}
}

// Name returns "apple".
func (p *AppleProvider) Name() string { return "apple" }

// StateCookieName returns "a_oidc_state".
func (p *AppleProvider) StateCookieName() string { return "a_oidc_state" }

// Exchange builds a fresh client secret and redeems the code.
func (p *AppleProvider) Exchange(ctx context.Context, req ExchangeRequest) (*TokenSet, error) {
	secret, err := AppleClientSecret(req.Config, p.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	return exchangeCode(ctx, p.client, req.Config, secret, req)
}

type appleClaims struct {
	Sub            string   `json:"sub"`
	Email          string   `json:"email"`
	EmailVerified  flexBool `json:"email_verified"`
	IsPrivateEmail flexBool `json:"is_private_email"`
}

// appleUser is the `user` JSON Apple posts on first authorization only.
// Nothing binds it to the id_token.
type appleUser struct {
	Name struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"name"`
	Email string `json:"email"`
}

// ExtractIdentity verifies the id_token. Apple has no userinfo endpoint, so
// a response without one yields ErrNoIdentity. Names from the `user` hint are
// copied into the display fields and nothing else.
func (p *AppleProvider) ExtractIdentity(ctx context.Context, tokens *TokenSet, cfg config.ProviderConfig, hints IdentityHints) (*Identity, error) {
	if tokens == nil || tokens.IDToken == "" {
		return nil, ErrNoIdentity
	}

	jwks := cfg.JWKSURI
	if jwks == "" {
		jwks = appleJWKSURL
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = appleIssuer
	}
	tok, err := verifyIDToken(ctx, tokens.IDToken, idTokenCheck{
		issuers:   []string{issuer},
		audiences: nonEmpty(cfg.ClientID, cfg.WebClientID),
		keys:      p.keySet(jwks),
		now:       p.now,
	})
	if err != nil {
		return nil, err
	}
	var c appleClaims
	if err := tok.Claims(&c); err != nil {
		return nil, fmt.Errorf("extracting id token claims: %w", err)
	}

	id := &Identity{
		ID:             c.Sub,
		Email:          c.Email,
		EmailVerified:  bool(c.EmailVerified),
		IsPrivateEmail: bool(c.IsPrivateEmail),
		Provider:       "apple",
		Source:         "id_token",
	}
	if u, ok := parseAppleUser(hints.UserBlob); ok {
		id.GivenName = u.Name.FirstName
		id.FamilyName = u.Name.LastName
		id.Name = strings.TrimSpace(u.Name.FirstName + " " + u.Name.LastName)
	}
	return id, nil
}

// parseAppleUser decodes the `user` blob; malformed input is treated as absent.
func parseAppleUser(blob string) (appleUser, bool) {
	var u appleUser
	if blob == "" {
		return u, false
	}
	if err := json.Unmarshal([]byte(blob), &u); err != nil {
		return u, false
	}
	return u, true
}
