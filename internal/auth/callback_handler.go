// callback_handler.go -- GET|POST /auth/{provider}/callback.
package auth

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// maxFormBytes caps callback and state request bodies.
const maxFormBytes = 64 << 10

// Callback handles the provider redirect back to us. Apple posts a form
// (response_mode=form_post); Google redirects with a query string.
// The state cookie is cleared on every outcome.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	p, iss, fe := h.provider(r)
	if fe != nil {
		h.respondFailure(w, r, chi.URLParam(r, "provider"), "", nil, fe)
		return
	}
	// Cleared before anything is written so every exit path carries it.
	h.clearStateCookie(w, p.StateCookieName())

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.respondFailure(w, r, p.Name(), "", nil, validationError(msgMissingParams, err))
		return
	}

	in := CallbackParams{
		Code:          r.FormValue("code"),
		State:         r.FormValue("state"),
		ProviderError: r.FormValue("error"),
		UserBlob:      r.PostFormValue("user"),
		RedirectURI:   callbackURL(r),
	}
	if c, err := r.Cookie(p.StateCookieName()); err == nil {
		in.StateCookie = c.Value
	}

	out := h.RunCallback(r.Context(), reqLogger(r), p, iss, in)
	if out.Err != nil {
		h.respondFailure(w, r, p.Name(), out.Platform, out.Config, out.Err)
		return
	}

	logInfo(r, "user signed in",
		"provider", out.Login.Provider,
		"platform", out.Login.Platform,
		"identity_source", out.Login.Identity.Source,
		"has_identity", out.Login.Identity.ID != "",
	)
	h.respondLogin(w, r, out.Login, out.Config)
}

// callbackURL rebuilds the URL the provider redirected to, query stripped.
// It must match the redirect_uri sent in the authorization request.
func callbackURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		scheme = strings.ToLower(strings.TrimSpace(first))
	}
	return scheme + "://" + r.Host + r.URL.Path
}
