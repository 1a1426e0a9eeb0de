// config_handler.go -- GET /auth/{provider}/config.
package auth

import (
	"net/http"

	"github.com/MGallo-Code/voiceauth/internal/statetoken"
	"github.com/go-chi/render"
)

// ProviderConfig returns the public part of a provider config so clients can
// build the authorization URL. Secrets are never included.
func (h *Handler) ProviderConfig(w http.ResponseWriter, r *http.Request) {
	p, _, fe := h.provider(r)
	if fe != nil {
		flowErrorJSON(w, r, fe)
		return
	}
	platform := statetoken.NormalizePlatform(r.URL.Query().Get("platform"))
	cfg, err := h.Configs.Get(p.Name(), platform)
	if err != nil {
		flowErrorJSON(w, r, classify(err))
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, cfg.Public())
}
