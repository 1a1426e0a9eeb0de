// flow.go -- The callback state machine.
//
// AwaitingParams -> StateVerified -> ConfigLoaded -> CodeExchanged ->
// IdentityExtracted -> ResponseBuilt. Each step either advances the outcome
// or stops it with a *FlowError; nothing here touches the ResponseWriter.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/MGallo-Code/voiceauth/internal/apptoken"
	"github.com/MGallo-Code/voiceauth/internal/config"
	"github.com/MGallo-Code/voiceauth/internal/oauth"
	"github.com/MGallo-Code/voiceauth/internal/statetoken"
	"github.com/MGallo-Code/voiceauth/internal/store"
	"github.com/gofrs/uuid/v5"
)

// Stage names a position in the callback state machine.
type Stage string

const (
	StageAwaitingParams    Stage = "awaiting_params"
	StageStateVerified     Stage = "state_verified"
	StageConfigLoaded      Stage = "config_loaded"
	StageCodeExchanged     Stage = "code_exchanged"
	StageIdentityExtracted Stage = "identity_extracted"
	StageResponseBuilt     Stage = "response_built"
)

// CallbackParams are the untrusted inputs of a callback request.
type CallbackParams struct {
	Code  string
	State string
	// StateCookie is the raw cookie value; empty when absent.
	StateCookie string
	// ProviderError is the provider's `error` param, e.g. access_denied.
	ProviderError string
	// UserBlob is Apple's first-login `user` field.
	UserBlob string
	// RedirectURI is the callback URL without its query string.
	RedirectURI string
}

// Login is a completed sign-in.
type Login struct {
	Provider  string
	Platform  string
	Identity  *oauth.Identity
	Token     string
	Claims    *apptoken.Claims
	ReturnURL string
	IssuedAt  time.Time
}

// Outcome is the result of a flow run. Platform and Config are filled as soon
// as they are known so failures can be rendered in the right shape.
type Outcome struct {
	Stage    Stage
	Platform string
	Config   *config.ProviderConfig
	Login    *Login
	Err      *FlowError
}

func (o *Outcome) fail(fe *FlowError) *Outcome {
	o.Err = fe
	return o
}

// RunCallback drives a callback from raw params to a minted token.
// It never panics: a panic in any step becomes an UnexpectedError.
func (h *Handler) RunCallback(ctx context.Context, log *slog.Logger, p oauth.Provider, iss *statetoken.Issuer, in CallbackParams) (out *Outcome) {
	out = &Outcome{Stage: StageAwaitingParams}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("callback panicked", "severity", "critical", "stage", out.Stage, "panic", rec, "stack", string(debug.Stack()))
			out.Err = unexpectedError(fmt.Errorf("panic: %v", rec))
			out.Login = nil
		}
	}()

	// AwaitingParams -> StateVerified
	if in.Code == "" || in.State == "" {
		if in.ProviderError != "" {
			return out.fail(validationError(msgProviderDenied, errors.New(in.ProviderError)))
		}
		return out.fail(validationError(msgMissingParams, nil))
	}
	if in.StateCookie == "" {
		return out.fail(validationError(msgMissingCookie, nil))
	}
	claims, err := iss.Verify(in.StateCookie, in.State)
	if err != nil {
		return out.fail(classify(err))
	}
	if fe := h.consumeNonce(ctx, log, p.Name(), claims); fe != nil {
		return out.fail(fe)
	}
	// Platform comes from the signed token only.
	out.Platform = claims.Platform
	out.Stage = StageStateVerified

	// StateVerified -> ConfigLoaded
	cfg, err := h.Configs.Get(p.Name(), claims.Platform)
	if err != nil {
		return out.fail(classify(err))
	}
	out.Config = &cfg
	out.Stage = StageConfigLoaded

	// ConfigLoaded -> CodeExchanged
	redirectURI := in.RedirectURI
	if cfg.RedirectURI != "" {
		redirectURI = cfg.RedirectURI
	}
	ctx, cancel := context.WithTimeout(ctx, h.exchangeTimeout())
	defer cancel()

	tokens, fe := h.exchange(ctx, log, p, oauth.ExchangeRequest{
		Code:         in.Code,
		RedirectURI:  redirectURI,
		CodeVerifier: claims.ExtraString(statetoken.ClaimCodeVerifier),
		Config:       cfg,
	})
	if fe != nil {
		return out.fail(fe)
	}
	out.Stage = StageCodeExchanged

	// CodeExchanged -> IdentityExtracted -> ResponseBuilt
	login, fe := h.completeLogin(ctx, log, p, cfg, tokens, oauth.IdentityHints{UserBlob: in.UserBlob})
	if fe != nil {
		out.Stage = StageIdentityExtracted
		return out.fail(fe)
	}
	login.ReturnURL = claims.ExtraString(statetoken.ClaimReturnURL)
	out.Login = login
	out.Stage = StageResponseBuilt
	return out
}

// consumeNonce enforces one-time use when a ReplayGuard is configured.
// Guard failures are logged and let through so a cache outage doesn't block sign-in.
func (h *Handler) consumeNonce(ctx context.Context, log *slog.Logger, provider string, claims *statetoken.Claims) *FlowError {
	if h.Replay == nil {
		return nil
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = max(time.Second, claims.ExpiresAt.Sub(h.now()))
	}
	ok, err := h.Replay.Consume(ctx, provider+":"+claims.Nonce, ttl)
	if err != nil {
		log.Error("replay guard failed, allowing state", "error", err)
		return nil
	}
	if !ok {
		log.Warn("state nonce reused", "provider", provider)
		return validationError(msgStateReused, nil)
	}
	return nil
}

// exchange runs the provider exchange and logs upstream details server-side.
func (h *Handler) exchange(ctx context.Context, log *slog.Logger, p oauth.Provider, req oauth.ExchangeRequest) (*oauth.TokenSet, *FlowError) {
	tokens, err := p.Exchange(ctx, req)
	if err != nil {
		var ue *oauth.UpstreamError
		if errors.As(err, &ue) {
			log.Warn("token exchange failed", "provider", p.Name(), "status", ue.Status, "oauth_error", ue.Code, "body", ue.Body, "error", ue.Err)
		} else {
			log.Error("token exchange failed", "provider", p.Name(), "error", err)
		}
		return nil, classify(err)
	}
	return tokens, nil
}

// completeLogin extracts the identity, mints the application token and fires
// the storage side effect. Extraction failure is tolerated.
func (h *Handler) completeLogin(ctx context.Context, log *slog.Logger, p oauth.Provider, cfg config.ProviderConfig, tokens *oauth.TokenSet, hints oauth.IdentityHints) (*Login, *FlowError) {
	identity, err := p.ExtractIdentity(ctx, tokens, cfg, hints)
	if err != nil || identity == nil {
		log.Warn("identity extraction failed, continuing with empty identity", "provider", p.Name(), "platform", cfg.Platform, "error", err)
		identity = &oauth.Identity{Provider: p.Name()}
	}

	token, claims, err := h.Minter.Mint(apptoken.Subject{
		ID:            identity.ID,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		Name:          identity.Name,
		Provider:      p.Name(),
		Platform:      cfg.Platform,
	})
	if err != nil {
		return nil, configurationError(http.StatusInternalServerError, msgServerMisconfig, err)
	}

	login := &Login{
		Provider: p.Name(),
		Platform: cfg.Platform,
		Identity: identity,
		Token:    token,
		Claims:   claims,
		IssuedAt: h.now(),
	}
	h.record(log, login)
	return login, nil
}

// record runs the storage side effect detached from the request.
// Its failures never reach the client.
func (h *Handler) record(log *slog.Logger, l *Login) {
	if h.Recorder == nil || l.Identity.ID == "" {
		return
	}
	id, err := uuid.NewV7()
	if err != nil {
		log.Warn("login event id generation failed", "error", err)
		return
	}
	ev := store.LoginEvent{
		ID:            id,
		Provider:      l.Provider,
		Subject:       l.Identity.ID,
		Email:         l.Identity.Email,
		EmailVerified: l.Identity.EmailVerified,
		Name:          l.Identity.Name,
		Platform:      l.Platform,
		Namespace:     l.Claims.Namespace,
		IsAdmin:       l.Claims.IsAdmin,
		At:            l.IssuedAt,
	}
	timeout := h.RecordTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := h.Recorder.RecordLogin(ctx, ev); err != nil {
			log.Warn("storage callback failed", "provider", ev.Provider, "error", err)
		}
	}()
}

func (h *Handler) exchangeTimeout() time.Duration {
	if h.ExchangeTimeout <= 0 {
		return oauth.DefaultExchangeTimeout
	}
	return h.ExchangeTimeout
}
