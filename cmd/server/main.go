// Package main is the entrypoint for the prompt-lab API server.
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

	"github.com/joho/godotenv"

	"github.com/Deharath/prompt-lab-sub000/internal/api"
	"github.com/Deharath/prompt-lab-sub000/internal/api/handler"
	mw "github.com/Deharath/prompt-lab-sub000/internal/api/middleware"
	"github.com/Deharath/prompt-lab-sub000/internal/api/response"
	"github.com/Deharath/prompt-lab-sub000/internal/cache"
	"github.com/Deharath/prompt-lab-sub000/internal/config"
	"github.com/Deharath/prompt-lab-sub000/internal/job"
	"github.com/Deharath/prompt-lab-sub000/internal/provider"
	"github.com/Deharath/prompt-lab-sub000/internal/scoring"
	"github.com/Deharath/prompt-lab-sub000/internal/store"
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
	// 1. Load config — fail fast on invalid config. A missing .env is fine.
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
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

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Build the provider registry
	registry := provider.NewRegistry(cfg.Providers)
	slog.Info("providers registered", "providers", registry.Names())

	// 6. Create store and job service
	pgStore := store.NewPostgresStore(pool)
	jobService := job.NewService(pgStore, registry, scoring.NewBasic(), redisCache)

	// 7. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, 60),

		HealthHandler: healthHandler(pgStore, redisCache),

		CreateJobHandler: handler.NewCreateJobHandler(jobService),
		ListJobsHandler:  handler.NewListJobsHandler(jobService),
		GetJobHandler:    handler.NewGetJobHandler(jobService),
		DeleteJobHandler: handler.NewDeleteJobHandler(jobService),
		StreamJobHandler: handler.NewStreamJobHandler(jobService),
		CancelJobHandler: handler.NewCancelJobHandler(jobService),
		RetryJobHandler:  handler.NewRetryJobHandler(jobService),
		DiffJobHandler:   handler.NewDiffJobHandler(jobService),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server. No WriteTimeout: SSE streams stay open as long
	// as a provider keeps producing.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
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

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "One or more services degraded")
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
