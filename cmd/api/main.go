package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eventlyhq/evently/internal/auth"
	"github.com/eventlyhq/evently/internal/cache"
	"github.com/eventlyhq/evently/internal/clock"
	"github.com/eventlyhq/evently/internal/config"
	"github.com/eventlyhq/evently/internal/db"
	"github.com/eventlyhq/evently/internal/engine"
	httpx "github.com/eventlyhq/evently/internal/http"
	"github.com/eventlyhq/evently/internal/http/handlers"
	"github.com/eventlyhq/evently/internal/http/middlewares"
	"github.com/eventlyhq/evently/internal/observability"
	"github.com/eventlyhq/evently/internal/redisclient"
	"github.com/eventlyhq/evently/internal/repo/postgres"
	"github.com/eventlyhq/evently/internal/service"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing := false

	if cfg.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer(ctx, "evently-api", cfg.OTLPEndpoint)

		if err != nil {
			log.Error("tracer init failed", "err", err)
		} else {
			tracing = true

			defer func() {
				sctx, cancel := config.WithTimeout(5 * time.Second)
				defer cancel()

				_ = shutdown(sctx)
			}()
		}
	}

	pool, err := db.NewPool(ctx, cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Error("schema setup failed", "err", err)
		os.Exit(1)
	}

	if err := db.EnsureAdminUser(ctx, pool, cfg); err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	eventsRepo := postgres.NewEventsRepo(pool, prom)
	regsRepo := postgres.NewRegistrationsRepo(pool, prom)
	statsRepo := postgres.NewStatsRepo(pool, prom)
	usersRepo := postgres.NewUsersRepo(pool, prom)

	clk := clock.System()

	eventsSvc := service.NewEventService(eventsRepo, regsRepo, statsRepo, clk, service.PolicyFromConfig(cfg))
	regEngine := engine.New(regsRepo, clk)

	jwtManager := auth.NewManager(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute)

	generalLimiter, authLimiter := buildLimiters(ctx, cfg, log)

	listings := cache.New[handlers.CachedJSON](cfg.CacheTTL)

	ping := func(pctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(pctx, time.Second)
		defer cancel()

		return pool.Ping(pingCtx)
	}

	router := httpx.NewRouter(httpx.Deps{
		Cfg:            cfg,
		Log:            log,
		Prom:           prom,
		Registry:       registry,
		Ping:           ping,
		JWT:            jwtManager,
		Users:          usersRepo,
		Events:         eventsSvc,
		Engine:         regEngine,
		Clock:          clk,
		Listings:       listings,
		GeneralLimiter: generalLimiter,
		AuthLimiter:    authLimiter,
		TracingEnabled: tracing,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)

		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	log.Info("server shutting down")

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return
	}

	log.Info("shutdown complete")
}

// buildLimiters prefers the Redis backend so limits hold across replicas,
// and degrades to process-local windows when Redis is absent or down.
func buildLimiters(ctx context.Context, cfg config.Config, log *slog.Logger) (middlewares.Limiter, middlewares.Limiter) {
	if cfg.RedisAddr != "" {
		rc := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		if err := rc.Ping(ctx); err != nil {
			log.Warn("redis unreachable, using in-memory rate limits", "err", err)
			_ = rc.Close()
		} else {
			return middlewares.NewRedisFixedWindow(rc.Raw(), cfg.RateLimitGeneral, cfg.RateLimitWindow),
				middlewares.NewRedisFixedWindow(rc.Raw(), cfg.RateLimitAuth, cfg.RateLimitWindow)
		}
	}

	return middlewares.NewFixedWindow(cfg.RateLimitGeneral, cfg.RateLimitWindow),
		middlewares.NewFixedWindow(cfg.RateLimitAuth, cfg.RateLimitWindow)
}
