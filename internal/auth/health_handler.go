// health_handler.go -- Health check handler for GET /health.
package auth

import (
	"net/http"

	"github.com/go-chi/render"
)

type healthResponse struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

// CheckHealth pings the optional stores and reports each as ok, disabled or error.
// Returns 503 if a configured store is down. Login itself needs neither.
func (h *Handler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Postgres: h.storeStatus(r, "postgres", h.Postgres),
		Redis:    h.storeStatus(r, "redis", h.Redis),
	}

	status := http.StatusOK
	if resp.Postgres == "error" || resp.Redis == "error" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

func (h *Handler) storeStatus(r *http.Request, name string, c HealthChecker) string {
	if c == nil {
		return "disabled"
	}
	if err := c.CheckHealth(r.Context()); err != nil {
		logError(r, name+" health check failed", "error", err)
		return "error"
	}
	return "ok"
}
