// providers.go -- Per-(provider, platform) OAuth client configuration.
//
// Each {provider}_{platform}.env file in AUTH_CONFIG_DIR becomes one
// ProviderConfig. The loaded set is an immutable snapshot; Reload swaps in a
// fresh one atomically so request handlers never lock.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
)

// ErrProviderConfigNotFound is returned by Get when no file covers the pair.
var ErrProviderConfigNotFound = errors.New("provider config not found")

// Native response modes.
const (
	NativeRedirect = "redirect"
	NativeJSON     = "json"
)

var defaultTokenEndpoints = map[string]string{
	"google":    "https://oauth2.googleapis.com/token",
	"apple":     "https://appleid.apple.com/auth/token",
	"microsoft": "https://login.microsoftonline.com/common/oauth2/v2.0/token",
	"github":    "https://github.com/login/oauth/access_token",
}

var defaultAuthEndpoints = map[string]string{
	"google":    "https://accounts.google.com/o/oauth2/v2/auth",
	"apple":     "https://appleid.apple.com/auth/authorize",
	"microsoft": "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
	"github":    "https://github.com/login/oauth/authorize",
}

var defaultScopes = map[string]string{
	"google": "openid email profile",
	"apple":  "name email",
}

// ProviderConfig is the static client configuration for one (provider, platform).
type ProviderConfig struct {
	Provider string
	Platform string

	ClientID    string
	WebClientID string // Google: audience also accepted on native id_tokens
	// ClientSecret is empty for public PKCE clients.
	ClientSecret string

	AuthorizationEndpoint string
	TokenEndpoint         string
	UserInfoEndpoint      string
	JWKSURI               string
	Issuer                string
	RedirectURI           string
	Scope                 string

	// Apple client-secret material.
	TeamID      string
	KeyID       string
	AuthKeyPath string

	DeepLinkScheme string
	NativeResponse string

	// Source is the file this config was read from.
	Source string
}

// UseDeepLink reports whether native responses redirect to the app scheme
// rather than returning JSON.
func (c ProviderConfig) UseDeepLink() bool {
	return c.DeepLinkScheme != "" && c.NativeResponse != NativeJSON
}

// LogValue redacts secrets when the config is logged.
func (c ProviderConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", c.Provider),
		slog.String("platform", c.Platform),
		slog.String("client_id", c.ClientID),
		slog.Bool("has_client_secret", c.ClientSecret != ""),
		slog.String("token_endpoint", c.TokenEndpoint),
		slog.String("redirect_uri", c.RedirectURI),
		slog.String("deep_link_scheme", c.DeepLinkScheme),
		slog.String("source", c.Source),
	)
}

// PublicConfig is the subset of a ProviderConfig safe to hand to clients.
type PublicConfig struct {
	Provider              string `json:"provider"`
	Platform              string `json:"platform"`
	ClientID              string `json:"client_id"`
	AuthorizationEndpoint string `json:"auth_uri"`
	Scope                 string `json:"scope"`
	RedirectURI           string `json:"redirect_uri,omitempty"`
	DeepLinkScheme        string `json:"deep_link_scheme,omitempty"`
}

// Public strips secrets and key material.
func (c ProviderConfig) Public() PublicConfig {
	return PublicConfig{
		Provider:              c.Provider,
		Platform:              c.Platform,
		ClientID:              c.ClientID,
		AuthorizationEndpoint: c.AuthorizationEndpoint,
		Scope:                 c.Scope,
		RedirectURI:           c.RedirectURI,
		DeepLinkScheme:        c.DeepLinkScheme,
	}
}

type providerKey struct {
	provider string
	platform string
}

type snapshot map[providerKey]ProviderConfig

// Registry serves ProviderConfigs loaded from a directory.
type Registry struct {
	dir  string
	snap atomic.Pointer[snapshot]
}

// NewRegistry loads every config file in dir.
// A missing directory yields an empty registry and a warning, not an error.
func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{dir: dir}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewStaticRegistry builds a registry from in-memory configs. Reload is a no-op.
func NewStaticRegistry(cfgs ...ProviderConfig) *Registry {
	snap := snapshot{}
	for _, c := range cfgs {
		c.Provider = strings.ToLower(c.Provider)
		c.Platform = strings.ToLower(c.Platform)
		snap[providerKey{c.Provider, c.Platform}] = c
	}
	r := &Registry{}
	r.snap.Store(&snap)
	return r
}

// Reload re-reads the directory and swaps in the new set.
// On error the previous set stays active.
func (r *Registry) Reload() error {
	if r.dir == "" {
		if r.snap.Load() == nil {
			r.snap.Store(&snapshot{})
		}
		return nil
	}
	snap, err := loadDir(r.dir)
	if err != nil {
		return err
	}
	r.snap.Store(&snap)
	slog.Info("provider configs loaded", "dir", r.dir, "count", len(snap))
	return nil
}

// Get returns the config for (provider, platform). Both are matched lowercase.
func (r *Registry) Get(provider, platform string) (ProviderConfig, error) {
	snap := r.snap.Load()
	if snap != nil {
		if c, ok := (*snap)[providerKey{strings.ToLower(provider), strings.ToLower(platform)}]; ok {
			return c, nil
		}
	}
	return ProviderConfig{}, fmt.Errorf("%w: %s/%s", ErrProviderConfigNotFound, provider, platform)
}

// All returns every loaded config sorted by provider then platform.
func (r *Registry) All() []ProviderConfig {
	snap := r.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]ProviderConfig, 0, len(*snap))
	for _, c := range *snap {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Platform < out[j].Platform
	})
	return out
}

// loadDir parses every {provider}_{platform}.env in dir.
func loadDir(dir string) (snapshot, error) {
	snap := snapshot{}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("auth config dir not found, no providers configured", "dir", dir)
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading auth config dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		provider, platform, ok := parseFilename(e.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, e.Name())
		vals, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if len(vals) == 0 {
			slog.Warn("empty auth config file, skipping", "path", path)
			continue
		}
		c := fromValues(provider, platform, vals, dir)
		c.Source = path
		if c.ClientID == "" {
			return nil, fmt.Errorf("%s: client_id is required", path)
		}
		k := providerKey{provider, platform}
		if prev, dup := snap[k]; dup {
			return nil, fmt.Errorf("duplicate config for %s/%s: %s and %s", provider, platform, prev.Source, path)
		}
		snap[k] = c
	}
	return snap, nil
}

// parseFilename splits "google_ios.env" into ("google", "ios").
func parseFilename(name string) (provider, platform string, ok bool) {
	base, found := strings.CutSuffix(name, ".env")
	if !found {
		return "", "", false
	}
	provider, platform, ok = strings.Cut(strings.ToLower(base), "_")
	if !ok || provider == "" || platform == "" {
		return "", "", false
	}
	return provider, platform, true
}

// fromValues maps env-file keys (any case) onto a ProviderConfig and fills
// provider defaults for unset endpoints.
func fromValues(provider, platform string, vals map[string]string, dir string) ProviderConfig {
	lower := make(map[string]string, len(vals))
	for k, v := range vals {
		lower[strings.ToLower(k)] = strings.TrimSpace(v)
	}
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := lower[k]; v != "" {
				return v
			}
		}
		return ""
	}

	c := ProviderConfig{
		Provider:              provider,
		Platform:              platform,
		ClientID:              get("client_id"),
		WebClientID:           get("web_client_id"),
		ClientSecret:          get("client_secret"),
		AuthorizationEndpoint: get("auth_uri", "authorization_endpoint"),
		TokenEndpoint:         get("token_uri", "token_endpoint"),
		UserInfoEndpoint:      get("userinfo_uri", "userinfo_endpoint"),
		JWKSURI:               get("jwks_uri"),
		Issuer:                get("issuer"),
		RedirectURI:           get("redirect_uri"),
		Scope:                 get("scope"),
		TeamID:                get("team_id"),
		KeyID:                 get("key_id"),
		AuthKeyPath:           get("auth_key_path"),
		DeepLinkScheme:        strings.TrimSuffix(get("deep_link_scheme"), "://"),
		NativeResponse:        strings.ToLower(get("native_response")),
	}
	if c.TokenEndpoint == "" {
		c.TokenEndpoint = defaultTokenEndpoints[provider]
	}
	if c.AuthorizationEndpoint == "" {
		c.AuthorizationEndpoint = defaultAuthEndpoints[provider]
	}
	if c.Scope == "" {
		c.Scope = defaultScopes[provider]
	}
	if c.NativeResponse == "" {
		c.NativeResponse = NativeRedirect
	}
	if c.AuthKeyPath != "" && !filepath.IsAbs(c.AuthKeyPath) {
		c.AuthKeyPath = filepath.Join(dir, c.AuthKeyPath)
	}
	return c
}
