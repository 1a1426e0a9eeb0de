// user_handler.go -- GET /user/current and POST /user/logout.
package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/MGallo-Code/voiceauth/internal/store"
	"github.com/go-chi/render"
)

type currentUserResponse struct {
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"sub"`
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	Provider      string `json:"provider"`
	Platform      string `json:"platform"`
	Namespace     string `json:"va-dir"`
	IsAdmin       bool   `json:"isAdmin"`
	AuthSource    string `json:"auth_source"`
	ExpiresAt     int64  `json:"exp"`

	// Filled from the identity store when one is configured.
	LoginCount  int64      `json:"login_count,omitempty"`
	FirstSeenAt *time.Time `json:"first_seen_at,omitempty"`
}

// CurrentUser echoes the verified claims. Must run behind RequireAuth.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	claims, source, ok := ClaimsFromContext(r.Context())
	if !ok {
		logError(r, "current user called without auth context")
		Unauthorized(w, r, "unauthorized")
		return
	}
	resp := currentUserResponse{
		Authenticated: true,
		Subject:       claims.Subject,
		Name:          claims.Name,
		Email:         claims.Email,
		Provider:      claims.Provider,
		Platform:      claims.Platform,
		Namespace:     claims.Namespace,
		IsAdmin:       claims.IsAdmin,
		AuthSource:    source,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if h.Directory != nil && claims.Subject != "" {
		id, err := h.Directory.GetIdentity(r.Context(), claims.Provider, claims.Subject)
		switch {
		case err == nil:
			resp.LoginCount = id.LoginCount
			resp.FirstSeenAt = &id.FirstSeenAt
		case !errors.Is(err, store.ErrIdentityNotFound):
			// The token alone is authoritative; the lookup only adds detail.
			logWarn(r, "identity lookup failed", "error", err)
		}
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// Logout clears the auth cookie. Tokens are stateless, so a copy held
// elsewhere stays valid until it expires.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearAuthCookie(w)
	logInfo(r, "user logged out")
	OK(w, r, "logged out")
}
