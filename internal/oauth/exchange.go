// exchange.go -- Authorization code redemption shared by all providers.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MGallo-Code/voiceauth/internal/config"
	"golang.org/x/oauth2"
)

// maxLoggedBody caps how much of a provider error body is kept for logs.
const maxLoggedBody = 512

// UpstreamError describes a failed token endpoint call.
// Body is for server logs only and must not reach clients.
type UpstreamError struct {
	Status int    // 0 when the endpoint was unreachable
	Code   string // OAuth error code, e.g. invalid_grant
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("token endpoint unreachable: %v", e.Err)
	}
	return fmt.Sprintf("token endpoint returned %d %s", e.Status, e.Code)
}

// Is makes errors.Is(err, ErrTokenEndpoint) true for every UpstreamError.
func (e *UpstreamError) Is(target error) bool { return target == ErrTokenEndpoint }

func (e *UpstreamError) Unwrap() error { return e.Err }

// exchangeCode POSTs grant_type=authorization_code to cfg.TokenEndpoint.
// Client credentials go in the form body. No retry: codes are single-use.
func exchangeCode(ctx context.Context, client *http.Client, cfg config.ProviderConfig, clientSecret string, req ExchangeRequest) (*TokenSet, error) {
	if cfg.TokenEndpoint == "" {
		return nil, fmt.Errorf("%w: no token endpoint for %s/%s", ErrMisconfigured, cfg.Provider, cfg.Platform)
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: clientSecret,
		RedirectURL:  req.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthorizationEndpoint,
			TokenURL:  cfg.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	var opts []oauth2.AuthCodeOption
	if req.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(req.CodeVerifier))
	}

	tok, err := oc.Exchange(ctx, req.Code, opts...)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			ue := &UpstreamError{Code: re.ErrorCode, Body: truncate(string(re.Body), maxLoggedBody), Err: err}
			if re.Response != nil {
				ue.Status = re.Response.StatusCode
			}
			return nil, ue
		}
		return nil, &UpstreamError{Err: err}
	}
	return tokenSetFrom(tok), nil
}

// tokenSetFrom flattens an oauth2.Token, pulling id_token and scope from extras.
func tokenSetFrom(tok *oauth2.Token) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if s, ok := tok.Extra("id_token").(string); ok {
		ts.IDToken = s
	}
	if s, ok := tok.Extra("scope").(string); ok {
		ts.Scope = s
	}
	if !tok.Expiry.IsZero() {
		ts.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return ts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
