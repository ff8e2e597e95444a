package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/norelinorth/norelinorth-ai-assistant/config"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/assist"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/auth"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/httpapi"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/provider"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/seeder"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/session"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/telemetry"
	"github.com/norelinorth/norelinorth-ai-assistant/internal/tracing"
	"github.com/norelinorth/norelinorth-ai-assistant/pkg/ratelimit"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("ai-assistant", cfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to init tracer")
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect postgres")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.WithError(err).Fatal("failed to ping postgres")
	}
	logger.Info("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to ping redis")
	}
	logger.Info("Redis connected")

	// 5. Secret sealing
	sealer, err := provider.NewSealer(cfg.SealKey)
	if err != nil {
		logger.WithError(err).Fatal("failed to init sealer")
	}

	// 6. Stores
	providerStore := provider.NewPostgresStore(pool)
	sessionStore := session.NewPostgresStore(pool)
	authStore := auth.NewPostgresStore(pool)
	authMiddleware := auth.NewMiddleware(authStore, rdb, logger)

	// 7. AI call pipeline
	resolver := provider.NewResolver(providerStore, sealer, logger)
	tracingCache := tracing.NewClientCache(providerStore, sealer, logger)
	wrapper := tracing.NewWrapper(tracingCache, logger)
	dispatcher := assist.NewDispatcher()
	assistSvc := assist.NewService(resolver, dispatcher, wrapper, logger)
	sessionSvc := session.NewService(sessionStore, assistSvc, logger)

	// 8. Rate limiter
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitRPM)

	// 9. Background trace flusher
	flushCtx, stopFlusher := context.WithCancel(ctx)
	flusher := tracing.NewFlusher(tracingCache, time.Duration(cfg.TraceFlushSeconds)*time.Second, logger)
	go flusher.Run(flushCtx)

	// 10. Seed bootstrap data if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedProviderConfig(ctx, providerStore, logger)
		seeder.SeedAdminAPIKey(ctx, authStore, logger)
	}

	// 11. Handler
	tracer := otel.GetTracerProvider().Tracer("ai-assistant")
	handler := httpapi.NewHandler(assistSvc, sessionSvc, providerStore, resolver, sealer, tracingCache, limiter, tracer, logger)

	// 12. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"ai-assistant"}`))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		handler.Routes(r)
	})

	// 13. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.WithField("port", cfg.Port).Info("AI Assistant starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	<-quit
	logger.Info("Shutting down gracefully...")
	stopFlusher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("forced shutdown")
	}
	logger.Info("Server stopped")
}
