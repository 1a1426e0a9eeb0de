package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/voiceauth/internal/apptoken"
	"github.com/MGallo-Code/voiceauth/internal/auth"
	"github.com/MGallo-Code/voiceauth/internal/config"
	"github.com/MGallo-Code/voiceauth/internal/events"
	"github.com/MGallo-Code/voiceauth/internal/oauth"
	"github.com/MGallo-Code/voiceauth/internal/statetoken"
	"github.com/MGallo-Code/voiceauth/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
)

// migrationsDir ships the SQL migrations inside the binary.
//
//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	listConfigs := flag.Bool("list-configs", false, "print the loaded provider configs (secrets redacted) and exit")
	flag.Parse()

	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg, os.Stdout))

	if *listConfigs {
		if err := printConfigs(cfg); err != nil {
			slog.Error("fatal", "err", err)
			os.Exit(1)
		}
		return
	}

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes (ps, rdb) always execute before os.Exit.
	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// newLogger returns a JSON logger, or a colored text logger when LOG_FORMAT=text.
// Source locations are included at debug level only.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	addSrc := cfg.LogLevel == slog.LevelDebug
	if cfg.LogFormat == "text" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  addSrc,
			TimeFormat: time.TimeOnly,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	}))
}

// printConfigs logs every provider config found in AUTH_CONFIG_DIR.
// ProviderConfig.LogValue keeps secrets out of the output.
func printConfigs(cfg *config.Config) error {
	registry, err := config.NewRegistry(cfg.AuthConfigDir)
	if err != nil {
		return fmt.Errorf("failed to load provider configs: %w", err)
	}
	all := registry.All()
	for _, c := range all {
		slog.Info("provider config", "config", c)
	}
	slog.Info("provider configs loaded", "dir", cfg.AuthConfigDir, "count", len(all))
	return nil
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup (ps.Close, rdb.Close) always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
// opts are passed to every OAuth provider.
func run(ctx context.Context, cfg *config.Config, ready chan<- string, opts ...oauth.Option) error {
	registry, err := config.NewRegistry(cfg.AuthConfigDir)
	if err != nil {
		return fmt.Errorf("failed to load provider configs: %w", err)
	}
	slog.Info("provider configs loaded", "dir", cfg.AuthConfigDir, "count", len(registry.All()))

	h := newHandler(cfg, registry, opts...)

	// Postgres and Redis are both optional; login works without either.
	var ps *store.PostgresStore
	if cfg.DatabaseURL != "" {
		ps, err = store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to set up postgres store: %w", err)
		}
		defer ps.Close()

		migrationsFS, err := fs.Sub(migrationsDir, "migrations")
		if err != nil {
			return fmt.Errorf("failed to access embedded migrations: %w", err)
		}
		if err := ps.Migrate(ctx, migrationsFS); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		// Assigned only when non-nil so the interfaces stay truly nil otherwise.
		h.Postgres = ps
		h.Directory = ps
	} else {
		slog.Warn("DATABASE_URL not set, login events will only be logged")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis client: %w", err)
		}
		defer rdb.Close()

		nonces := store.NewNonceStore(rdb)
		h.Redis = nonces
		if cfg.ReplayProtection {
			h.Replay = nonces
		}
	} else if cfg.ReplayProtection {
		slog.Warn("REDIS_URL not set, state replay protection disabled")
	}

	// Worker goroutines stop via workerCtx when run() returns.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	switch {
	case ps != nil && rdb != nil:
		q := events.NewQueuedRecorder(ps, rdb, cfg.IdentityQueueMax)
		go q.StartWorker(workerCtx)
		h.Recorder = q
	case ps != nil:
		h.Recorder = ps
	default:
		h.Recorder = events.LogRecorder{Logger: slog.Default()}
	}

	// SIGHUP re-reads AUTH_CONFIG_DIR. A bad reload keeps the old set.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-hup:
				if err := registry.Reload(); err != nil {
					slog.Error("provider config reload failed, keeping previous set", "error", err)
					continue
				}
				slog.Info("provider configs reloaded", "count", len(registry.All()))
			case <-workerCtx.Done():
				return
			}
		}
	}()

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           buildRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("voiceauth listening", "addr", ln.Addr().String())
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	// Wait for server error or shutdown signal from ctx.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	// In-flight callbacks get 30s to finish before Shutdown gives up.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// newHandler builds the auth handler with both providers and one state issuer
// per provider. Optional stores are attached by the caller.
func newHandler(cfg *config.Config, configs *config.Registry, opts ...oauth.Option) *auth.Handler {
	minter := apptoken.NewMinter([]byte(cfg.JWTSecret), cfg.JWTTTL(), cfg.AdminEmails)
	h := auth.NewHandler(configs, minter,
		oauth.NewGoogleProvider(opts...),
		oauth.NewAppleProvider(opts...),
	)

	for name := range h.Providers {
		key, err := cfg.StateKey(name)
		if err != nil {
			slog.Warn("deriving state key failed", "provider", name, "error", err)
		}
		if key == nil {
			// A keyless issuer makes /state and /callback answer with a
			// configuration error instead of "unsupported provider".
			slog.Warn("no state secret for provider", "provider", name)
		}
		h.States[name] = statetoken.NewIssuer(key, statetoken.WithTTL(cfg.StateTTL))
	}

	h.Cookies = auth.CookieSettings{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain}
	h.ExchangeTimeout = cfg.ExchangeTimeout
	return h
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
func buildRouter(h *auth.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.CheckHealth)

	r.Route("/auth/{provider}", func(r chi.Router) {
		r.Get("/state", h.IssueState)
		r.Post("/state", h.IssueState)
		// Apple posts the callback as a form (response_mode=form_post).
		r.Get("/callback", h.Callback)
		r.Post("/callback", h.Callback)
		r.Post("/exchange", h.Exchange)
		r.Get("/config", h.ProviderConfig)
	})

	// Authentication required routes
	r.Route("/user", func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Get("/current", h.CurrentUser)
		r.Post("/logout", h.Logout)
	})

	return r
}
