// handler.go -- Handler wiring and the capability interfaces it consumes.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MGallo-Code/voiceauth/internal/apptoken"
	"github.com/MGallo-Code/voiceauth/internal/config"
	"github.com/MGallo-Code/voiceauth/internal/oauth"
	"github.com/MGallo-Code/voiceauth/internal/statetoken"
	"github.com/MGallo-Code/voiceauth/internal/store"
	"github.com/go-chi/chi/v5"
)

// ConfigSource resolves provider configuration.
// Satisfied by *config.Registry.
type ConfigSource interface {
	// Get returns the config for (provider, platform) or wraps config.ErrProviderConfigNotFound.
	Get(provider, platform string) (config.ProviderConfig, error)
}

// IdentityMinter issues application tokens. Satisfied by *apptoken.Minter.
type IdentityMinter interface {
	Mint(s apptoken.Subject) (string, *apptoken.Claims, error)
	// TTL is the token lifetime; the auth cookie Max-Age follows it.
	TTL() time.Duration
}

// TokenVerifier checks application tokens offline. Satisfied by *apptoken.Minter.
type TokenVerifier interface {
	Verify(token string) (*apptoken.Claims, error)
}

// IdentityRecorder is the storage side effect run after a successful login.
// Satisfied by *store.PostgresStore, *events.QueuedRecorder and events.LogRecorder.
type IdentityRecorder interface {
	RecordLogin(ctx context.Context, ev store.LoginEvent) error
}

// ReplayGuard marks state nonces as used. Consume returns false when the key
// was already consumed. Satisfied by *store.NonceStore.
type ReplayGuard interface {
	Consume(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// IdentityDirectory looks up stored identities. Satisfied by *store.PostgresStore.
type IdentityDirectory interface {
	GetIdentity(ctx context.Context, provider, subject string) (*store.Identity, error)
}

// HealthChecker pings a backing store. Satisfied by both store types.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CookieSettings controls attributes shared by every cookie the service sets.
type CookieSettings struct {
	Secure bool
	Domain string
}

// Handler serves /auth/{provider}/* and /user/*.
// Every field is read-only after construction; requests share no mutable state.
type Handler struct {
	Providers map[string]oauth.Provider
	// States holds one state-token issuer per provider name.
	States   map[string]*statetoken.Issuer
	Configs  ConfigSource
	Minter   IdentityMinter
	Verifier TokenVerifier

	// Optional collaborators; nil disables them.
	Recorder  IdentityRecorder
	Replay    ReplayGuard
	Directory IdentityDirectory
	Postgres  HealthChecker
	Redis     HealthChecker

	Cookies CookieSettings
	// ExchangeTimeout bounds the token exchange plus identity extraction.
	ExchangeTimeout time.Duration
	// RecordTimeout bounds the detached storage side effect.
	RecordTimeout time.Duration
	Now           func() time.Time
}

// NewHandler registers providers by name and fills defaults.
func NewHandler(configs ConfigSource, minter *apptoken.Minter, providers ...oauth.Provider) *Handler {
	h := &Handler{
		Providers:       map[string]oauth.Provider{},
		States:          map[string]*statetoken.Issuer{},
		Configs:         configs,
		Minter:          minter,
		Verifier:        minter,
		Cookies:         CookieSettings{Secure: true},
		ExchangeTimeout: oauth.DefaultExchangeTimeout,
		RecordTimeout:   5 * time.Second,
		Now:             time.Now,
	}
	for _, p := range providers {
		h.Providers[p.Name()] = p
	}
	return h
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// provider resolves the {provider} URL param.
func (h *Handler) provider(r *http.Request) (oauth.Provider, *statetoken.Issuer, *FlowError) {
	name := strings.ToLower(chi.URLParam(r, "provider"))
	p, ok := h.Providers[name]
	if !ok {
		return nil, nil, configurationError(http.StatusBadRequest, msgUnsupported, nil)
	}
	iss, ok := h.States[name]
	if !ok {
		return nil, nil, configurationError(http.StatusInternalServerError, msgServerMisconfig, statetoken.ErrMissingSecret)
	}
	return p, iss, nil
}
