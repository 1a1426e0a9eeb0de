// state_handler.go -- GET|POST /auth/{provider}/state.
package auth

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MGallo-Code/voiceauth/internal/statetoken"
	"github.com/go-chi/render"
)

type stateRequest struct {
	Platform     string `json:"platform"`
	CodeVerifier string `json:"code_verifier"`
	ReturnURL    string `json:"return_url"`
}

type stateResponse struct {
	State     string `json:"state"`
	Platform  string `json:"platform"`
	ExpiresIn int    `json:"expires_in"`
}

// IssueState creates a state token for the requested platform, sets it as the
// provider's HttpOnly cookie and returns the nonce the client must send as `state`.
func (h *Handler) IssueState(w http.ResponseWriter, r *http.Request) {
	p, iss, fe := h.provider(r)
	if fe != nil {
		flowErrorJSON(w, r, fe)
		return
	}

	req, err := decodeStateRequest(w, r)
	if err != nil {
		logWarn(r, "state request rejected", "reason", "malformed_body", "error", err)
		BadRequest(w, r, msgMalformedJSONBody)
		return
	}

	platform := statetoken.NormalizePlatform(req.Platform)
	// Fail here rather than at the callback, after the user has already consented.
	if _, err := h.Configs.Get(p.Name(), platform); err != nil {
		flowErrorJSON(w, r, classify(err))
		return
	}

	extra := map[string]string{}
	if req.CodeVerifier != "" {
		if !validCodeVerifier(req.CodeVerifier) {
			BadRequest(w, r, "Invalid code_verifier")
			return
		}
		extra[statetoken.ClaimCodeVerifier] = req.CodeVerifier
	}
	if u := safeReturnURL(req.ReturnURL); u != "" {
		extra[statetoken.ClaimReturnURL] = u
	}
	if len(extra) == 0 {
		extra = nil
	}

	issued, err := iss.Issue(platform, extra)
	if err != nil {
		flowErrorJSON(w, r, classify(err))
		return
	}

	h.setStateCookie(w, p.StateCookieName(), issued.Token, iss.TTL())
	logDebug(r, "state issued", "provider", p.Name(), "platform", platform)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, stateResponse{
		State:     issued.Nonce,
		Platform:  issued.Platform,
		ExpiresIn: int(iss.TTL().Seconds()),
	})
}

// decodeStateRequest reads params from a JSON body, a form body or the query string.
func decodeStateRequest(w http.ResponseWriter, r *http.Request) (stateRequest, error) {
	var req stateRequest
	if r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			return req, err
		}
		return req, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Platform = r.FormValue("platform")
	req.CodeVerifier = r.FormValue("code_verifier")
	req.ReturnURL = r.FormValue("return_url")
	return req, nil
}

// validCodeVerifier checks RFC 7636 length and charset.
func validCodeVerifier(v string) bool {
	if len(v) < 43 || len(v) > 128 {
		return false
	}
	for _, c := range v {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}
