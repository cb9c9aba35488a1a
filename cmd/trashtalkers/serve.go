package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trashtalkers/trashtalkers/internal/account"
	"github.com/trashtalkers/trashtalkers/internal/api"
	"github.com/trashtalkers/trashtalkers/internal/auth"
	"github.com/trashtalkers/trashtalkers/internal/classify"
	"github.com/trashtalkers/trashtalkers/internal/config"
	"github.com/trashtalkers/trashtalkers/internal/db"
	"github.com/trashtalkers/trashtalkers/internal/guidance"
	"github.com/trashtalkers/trashtalkers/internal/metrics"
	"github.com/trashtalkers/trashtalkers/internal/pipeline"
	"github.com/trashtalkers/trashtalkers/internal/places"
	"github.com/trashtalkers/trashtalkers/internal/store"
	"github.com/trashtalkers/trashtalkers/internal/upstream"
	"github.com/trashtalkers/trashtalkers/internal/web"
)

func serveCmd() *cobra.Command {
	var addr, logPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("log") {
				cfg.LogPath = logPath
			}
			if dbPath != "" {
				cfg.DatabaseURL = dbPath
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address (default: $ADDR or :$PORT)")
	cmd.Flags().StringVarP(&logPath, "log", "l", "", "log file path (default: no file, stdout/stderr only)")
	return cmd
}

func serve(cfg *config.Config) error {
	// Set up structured logging: INFO/WARN → stdout, ERROR → stderr.
	// Optionally also write to a log file.
	closeLog, err := setupLogger(cfg.LogPath)
	if err != nil {
		return err
	}
	defer closeLog()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	// Ensure schema exists (idempotent).
	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}
	slog.Info("database ready", "dialect", db.DialectOf(database))

	// Without JWT_SECRET the signing key is generated once and kept in the database.
	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret, err = store.GetJWTSecret(context.Background(), database)
		if err != nil {
			return fmt.Errorf("getting jwt secret: %w", err)
		}
	}

	// Upstream clients are created once and shared by every request.
	httpClient := upstream.NewHTTPClient(cfg.UpstreamTimeout)
	classifier := classify.NewClient(cfg.HuggingFaceEndpoint, cfg.HuggingFaceAPIKey, httpClient)
	generator := guidance.NewClient(cfg.GeminiEndpoint, cfg.GeminiModel, cfg.GeminiAPIKey, httpClient)
	searcher := places.NewClient(cfg.PlacesEndpoint, cfg.MapsAPIKey, httpClient)
	warnUnconfigured(cfg)

	verifiers := auth.Chain{auth.LocalVerifier{Secret: jwtSecret}}
	var provider auth.Verifier
	if cfg.AuthCertsURL != "" {
		provider = auth.NewProviderVerifier(cfg.AuthCertsURL, cfg.AuthAudience, cfg.AuthIssuer, httpClient)
		verifiers = append(verifiers, provider)
		slog.Info("identity provider tokens enabled", "certs", cfg.AuthCertsURL)
	}

	guard := &auth.Guard{Verifier: verifiers, DB: database}
	accounts := &account.Service{DB: database, JWTSecret: jwtSecret, Provider: provider}
	submissions := pipeline.New(database, classifier, generator, searcher)

	// Set up routers.
	apiRouter := api.NewRouter(api.Deps{
		DB:            database,
		Guard:         guard,
		Accounts:      accounts,
		Pipeline:      submissions,
		Limiter:       api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		MapsAPIKey:    cfg.MapsAPIKey,
		SecureCookies: cfg.SecureCookies,
		Development:   cfg.Development(),
	})
	webRouter, err := web.NewRouter(web.Deps{
		DB:            database,
		Guard:         guard,
		Accounts:      accounts,
		Pipeline:      submissions,
		MapsAPIKey:    cfg.MapsAPIKey,
		SecureCookies: cfg.SecureCookies,
	})
	if err != nil {
		return fmt.Errorf("setting up web router: %w", err)
	}

	metrics.Register()

	// Combine: API routes take priority, web routes handle the rest.
	mux := http.NewServeMux()
	mux.Handle("/api/", apiRouter)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.PingContext(r.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok\n"))
	})
	mux.Handle("/", webRouter)

	handler := api.LoggingMiddleware(mux)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A submission may wait on classification, then guidance and place search.
		WriteTimeout: 3*cfg.UpstreamTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr, "mode", cfg.Mode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

func warnUnconfigured(cfg *config.Config) {
	for name, value := range map[string]string{
		"HUGGINGFACE_API_KEY": cfg.HuggingFaceAPIKey,
		"GEMINI_API_KEY":      cfg.GeminiAPIKey,
		"GCP_MAPS_API_KEY":    cfg.MapsAPIKey,
	} {
		if value == "" {
			slog.Warn("upstream credential not set, dependent routes will fail", "env", name)
		}
	}
}
