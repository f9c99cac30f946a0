package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/medireport/platform/internal/labreport"
	"github.com/medireport/platform/internal/llm"
	"github.com/medireport/platform/internal/report"
	"github.com/medireport/platform/internal/shared/auth"
	"github.com/medireport/platform/internal/shared/config"
	"github.com/medireport/platform/internal/shared/events"
	"github.com/medireport/platform/internal/shared/logging"
	"github.com/medireport/platform/internal/shared/metrics"
	secmiddleware "github.com/medireport/platform/internal/shared/middleware"
	"github.com/medireport/platform/internal/storage"
)

// App holds all application dependencies
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Store     storage.Store
	LLM       llm.Client
	Bus       *events.Bus
	Publisher events.Publisher
}

func runServer(cfg *config.Config) error {
	ctx := context.Background()
	logger := logging.New(cfg.Log, cfg.Server.Env)

	app := &App{Config: cfg, Logger: logger, Publisher: events.NopPublisher{}}

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	app.Store = store
	defer store.Close()

	// Event bus is optional
	if cfg.KurrentDB.Enabled {
		bus, err := events.NewBus(cfg.KurrentDB)
		if err != nil {
			logger.Warn().Err(err).Msg("KurrentDB not available, running without event streaming")
		} else {
			app.Bus = bus
			app.Publisher = bus
			defer bus.Close()
			logger.Info().Str("host", cfg.KurrentDB.Host).Int("port", cfg.KurrentDB.Port).Msg("KurrentDB event bus initialized")
		}
	}

	client, err := llm.New(cfg.LLM)
	if err != nil {
		return err
	}
	app.LLM = client

	reports := report.NewService(client, app.Publisher, cfg.Report, logger)
	handler := labreport.NewHandler(store, reports, app.Publisher, logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	if cfg.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(secmiddleware.RequestLogger(logger))
	r.Use(secmiddleware.Recovery(logger))
	r.Use(middleware.Timeout(cfg.LLM.Timeout + 15*time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig(cfg.Server.CORSOrigins)))

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	limiter := secmiddleware.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	r.Route("/api", func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Use(secmiddleware.BodyLimit(1 << 20))

		if cfg.IsProduction() {
			r.Use(auth.Middleware(cfg.Auth))
		}

		r.Mount("/", handler.Routes())
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Report generation waits on the model
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info().Msg("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
		close(done)
	}()

	logger.Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("llm_provider", client.Provider()).
		Str("llm_url", cfg.LLM.BaseURL).
		Str("model", llm.Model).
		Bool("strict_schema", cfg.Report.StrictSchema).
		Msg("MediReport API listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info().Msg("server stopped")
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := map[string]string{
			"server": "ready",
		}

		if err := app.Store.Health(ctx); err != nil {
			checks["storage"] = "not ready: " + err.Error()
		} else {
			checks["storage"] = "ready"
		}

		if err := app.LLM.Health(ctx); err != nil {
			checks["model"] = "not ready: " + err.Error()
		} else {
			checks["model"] = "ready"
		}

		if app.Bus != nil {
			if err := app.Bus.Health(ctx); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
