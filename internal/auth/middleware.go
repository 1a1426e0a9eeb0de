// middleware.go

// Application token authentication middleware.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/MGallo-Code/voiceauth/internal/apptoken"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const claimsKey contextKey = "claims"
const authSourceKey contextKey = "auth_source"

// Where RequireAuth found the token.
const (
	AuthSourceHeader = "header"
	AuthSourceCookie = "cookie"
)

// ClaimsFromContext retrieves verified token claims and their source from context.
// Returns false if RequireAuth hasn't run.
func ClaimsFromContext(ctx context.Context) (*apptoken.Claims, string, bool) {
	claims, ok := ctx.Value(claimsKey).(*apptoken.Claims)
	if !ok {
		return nil, "", false
	}
	source, _ := ctx.Value(authSourceKey).(string)
	return claims, source, true
}

// RequireAuth accepts an application token from the Authorization header
// (Bearer) or the auth_token cookie, header first. Returns 401 on failure.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, source := bearerToken(r), AuthSourceHeader
		if token == "" {
			if c, err := r.Cookie(AuthCookieName); err == nil {
				token, source = c.Value, AuthSourceCookie
			}
		}
		if token == "" {
			logWarn(r, "require auth failed", "reason", "missing_token")
			Unauthorized(w, r, "unauthorized")
			return
		}

		claims, err := h.Verifier.Verify(token)
		if err != nil {
			logWarn(r, "require auth failed", "reason", "invalid_token", "source", source, "error", err)
			Unauthorized(w, r, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, authSourceKey, source)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
