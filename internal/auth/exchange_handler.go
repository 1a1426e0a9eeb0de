// exchange_handler.go -- POST /auth/{provider}/exchange for native apps that
// ran the authorization step themselves and hold their own PKCE verifier.
package auth

import (
	"context"
	"net/http"

	"github.com/MGallo-Code/voiceauth/internal/oauth"
	"github.com/MGallo-Code/voiceauth/internal/statetoken"
	"github.com/go-chi/render"
)

type exchangeRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	RedirectURI  string `json:"redirect_uri"`
	Platform     string `json:"platform"`
	// IssueToken asks for an application token instead of the raw provider tokens.
	IssueToken bool `json:"issue_token"`
	// User is Apple's first-login user blob, forwarded by the app.
	User string `json:"user"`
}

// Exchange redeems an authorization code on behalf of a native client.
// Without issue_token the provider's token set is returned as-is.
func (h *Handler) Exchange(w http.ResponseWriter, r *http.Request) {
	p, _, fe := h.provider(r)
	if fe != nil {
		flowErrorJSON(w, r, fe)
		return
	}

	var req exchangeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.exchangeFailure(w, r, p.Name(), validationError(msgMalformedJSONBody, err))
		return
	}
	if req.Code == "" || req.RedirectURI == "" {
		h.exchangeFailure(w, r, p.Name(), validationError(msgMissingParams, nil))
		return
	}

	platform := statetoken.NormalizePlatform(req.Platform)
	cfg, err := h.Configs.Get(p.Name(), platform)
	if err != nil {
		h.exchangeFailure(w, r, p.Name(), classify(err))
		return
	}

	log := reqLogger(r)
	ctx, cancel := context.WithTimeout(r.Context(), h.exchangeTimeout())
	defer cancel()

	tokens, fe := h.exchange(ctx, log, p, oauth.ExchangeRequest{
		Code:         req.Code,
		RedirectURI:  req.RedirectURI,
		CodeVerifier: req.CodeVerifier,
		Config:       cfg,
	})
	if fe != nil {
		h.exchangeFailure(w, r, p.Name(), fe)
		return
	}

	if !req.IssueToken {
		logInfo(r, "code exchanged", "provider", p.Name(), "platform", platform)
		render.Status(r, http.StatusOK)
		render.JSON(w, r, tokens)
		return
	}

	login, fe := h.completeLogin(ctx, log, p, cfg, tokens, oauth.IdentityHints{UserBlob: req.User})
	if fe != nil {
		h.exchangeFailure(w, r, p.Name(), fe)
		return
	}
	logInfo(r, "user signed in", "provider", p.Name(), "platform", platform, "via", "exchange")
	writeLoginJSON(w, r, login)
}

func (h *Handler) exchangeFailure(w http.ResponseWriter, r *http.Request, provider string, fe *FlowError) {
	logFlowError(r, fe)
	h.writeFailureJSON(w, r, provider, fe)
}
