// Package main is the entrypoint for the failwatch API server.
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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/failwatch/failwatch/internal/analyzer"
	"github.com/failwatch/failwatch/internal/api"
	"github.com/failwatch/failwatch/internal/api/handler"
	mw "github.com/failwatch/failwatch/internal/api/middleware"
	"github.com/failwatch/failwatch/internal/api/response"
	"github.com/failwatch/failwatch/internal/cache"
	"github.com/failwatch/failwatch/internal/config"
	"github.com/failwatch/failwatch/internal/ledger"
	"github.com/failwatch/failwatch/internal/mailer"
	"github.com/failwatch/failwatch/internal/notify"
	"github.com/failwatch/failwatch/internal/pipeline"
	"github.com/failwatch/failwatch/internal/source"
	"github.com/failwatch/failwatch/internal/store"
	"github.com/failwatch/failwatch/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"llm_provider", cfg.LLM.Provider,
		"ledger_backend", cfg.Ledger.Backend,
		"env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to the primary database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Connect to the monitored failures database. Reuse the primary
	// pool when both point at the same instance.
	sourcePool := pool
	if cfg.Source.URL != cfg.Database.URL {
		sourcePool, err = store.ConnectURL(ctx, cfg.Source.URL)
		if err != nil {
			return fmt.Errorf("connect source database: %w", err)
		}
		defer sourcePool.Close()
		slog.Info("source database connected")
	}
	failureSource := source.NewPostgresSource(sourcePool, cfg.Source.Table)

	// 5. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 6. Create the suppression ledger
	led, err := buildLedger(cfg.Ledger, pool)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}

	// 7. Create the LLM provider
	provider, err := analyzer.NewProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}
	if cfg.LLM.AnalysisCacheTTL > 0 {
		provider = analyzer.Cached(provider, redisCache, cfg.LLM.AnalysisCacheTTL)
	}
	slog.Info("LLM provider initialized", "provider", provider.Name())

	// 8. Create mail formatting and dispatch
	formatter := mailer.NewFormatter(cfg.Mail.Sender)
	dispatcher, err := mailer.NewSMTPDispatcher(cfg.Mail)
	if err != nil {
		return fmt.Errorf("create SMTP dispatcher: %w", err)
	}

	// 9. Build the pipeline and notify service
	pipe := pipeline.New(pipeline.Config{
		Ledger:          led,
		Analyzer:        provider,
		Formatter:       formatter,
		Dispatcher:      dispatcher,
		Window:          cfg.Pipeline.ThrottleWindow,
		AnalysisTimeout: cfg.LLM.InferenceTimeout,
		DispatchTimeout: cfg.Pipeline.DispatchTimeout,
	})
	svc := notify.NewService(failureSource, pipe, cfg.Mail.DefaultRecipient)

	// 10. Create store and seed the bootstrap admin key if needed
	pgStore := store.NewPostgresStore(pool)
	if err := bootstrapAdminKey(ctx, pgStore, cfg.Auth.BootstrapKey); err != nil {
		return fmt.Errorf("bootstrap admin key: %w", err)
	}

	// 11. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:       healthHandler(pgStore, redisCache),
		NotifyHandler:       handler.NewNotifyHandler(svc),
		HistoryHandler:      handler.NewHistoryHandler(led),
		ClearHistoryHandler: handler.NewClearHistoryHandler(led),
		CreateKeyHandler:    handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:     handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler:    handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 12. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func buildLedger(cfg config.LedgerConfig, pool *pgxpool.Pool) (ledger.Ledger, error) {
	switch cfg.Backend {
	case "postgres":
		return ledger.NewPostgresLedger(pool), nil
	default:
		return ledger.NewFileLedger(cfg.FilePath)
	}
}

// bootstrapAdminKey seeds one admin key from BOOTSTRAP_API_KEY so a fresh
// deployment can reach the key admin endpoints. It only runs against an
// empty key table.
func bootstrapAdminKey(ctx context.Context, s store.Store, rawKey string) error {
	if rawKey == "" {
		return nil
	}
	if len(rawKey) < 16 {
		return fmt.Errorf("BOOTSTRAP_API_KEY must be at least 16 characters")
	}

	count, err := s.CountAPIKeys(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "bootstrap-admin",
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:8],
		Scopes:    []string{"admin", "notify"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		return err
	}
	slog.Info("bootstrap admin key created", "key_prefix", key.KeyPrefix)
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
