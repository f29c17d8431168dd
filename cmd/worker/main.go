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

	"github.com/eventlyhq/evently/internal/clock"
	"github.com/eventlyhq/evently/internal/config"
	"github.com/eventlyhq/evently/internal/db"
	"github.com/eventlyhq/evently/internal/observability"
	"github.com/eventlyhq/evently/internal/repo/postgres"
	"github.com/eventlyhq/evently/internal/sweeper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	regsRepo := postgres.NewRegistrationsRepo(pool, prom)

	s := sweeper.New(sweeper.Config{
		Interval: cfg.SweepInterval,
		Timeout:  30 * time.Second,
	}, regsRepo, clock.System(), log, prom)

	mux := http.NewServeMux()
	mux.Handle("/", s.HealthHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	probeSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("worker probes listening", "port", cfg.WorkerPort)

		err := probeSrv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("probe server failed", "err", err)
			stop()
		}
	}()

	log.Info("retention sweeper starting", "interval", cfg.SweepInterval.String())

	if err := s.Run(ctx); err != nil {
		log.Error("sweeper stopped with error", "err", err)
	}

	shutdownCtx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	if err := probeSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("probe shutdown failed", "err", err)
	}

	log.Info("worker shutdown complete")
}
