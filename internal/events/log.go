// log.go -- Storage port for deployments without Postgres.
package events

import (
	"context"
	"log/slog"

	"github.com/MGallo-Code/voiceauth/internal/store"
)

// LogRecorder writes login events to the structured log and nothing else.
type LogRecorder struct {
	Logger *slog.Logger
}

// RecordLogin never fails.
func (l LogRecorder) RecordLogin(ctx context.Context, ev store.LoginEvent) error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "login recorded",
		"event_id", ev.ID,
		"provider", ev.Provider,
		"platform", ev.Platform,
		"va_dir", ev.Namespace,
		"is_admin", ev.IsAdmin,
		"email_verified", ev.EmailVerified,
	)
	return nil
}
