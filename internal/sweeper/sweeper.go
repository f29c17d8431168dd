package sweeper

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eventlyhq/evently/internal/clock"
	"github.com/eventlyhq/evently/internal/observability"
)

// Repo is the slice of storage the sweeper drives: remove cancelled
// registrations that can never be reactivated because their event started.
type Repo interface {
	SweepCancelled(ctx context.Context, now time.Time) (int64, error)
}

type Config struct {
	Interval time.Duration // time between sweeps
	Timeout  time.Duration // per-sweep deadline
}

// Sweeper periodically applies the retention policy. One sweep runs at
// startup so a crash-looping deployment still makes progress.
type Sweeper struct {
	cfg   Config
	repo  Repo
	clock clock.Clock
	log   *slog.Logger
	prom  *observability.Prom

	runs     atomic.Uint64
	failures atomic.Uint64
	removed  atomic.Int64

	mu        sync.RWMutex
	ready     bool
	lastRunAt time.Time
	lastTook  time.Duration
}

func New(cfg Config, repo Repo, clk clock.Clock, log *slog.Logger, prom *observability.Prom) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Sweeper{
		cfg:   cfg,
		repo:  repo,
		clock: clk,
		log:   log,
		prom:  prom,
	}
}

// Run blocks until ctx is cancelled, sweeping immediately and then on every
// interval tick. It always returns nil; individual sweep failures are
// reported through logs and metrics and the next tick retries.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.setReady(false)
			s.log.Info("sweeper received shutdown signal")

			return nil

		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()

	removed, err := s.repo.SweepCancelled(cctx, s.clock.Now())

	took := time.Since(start)

	s.runs.Add(1)

	s.mu.Lock()
	s.lastRunAt = start
	s.lastTook = took
	s.mu.Unlock()

	if s.prom != nil {
		s.prom.SweepDuration.Observe(took.Seconds())
	}

	if err != nil {
		s.failures.Add(1)

		if s.prom != nil {
			s.prom.SweepRuns.WithLabelValues("error").Inc()
		}

		s.log.ErrorContext(cctx, "retention sweep failed", "err", err)

		return
	}

	s.removed.Add(removed)
	s.setReady(true)

	if s.prom != nil {
		s.prom.SweepRuns.WithLabelValues("ok").Inc()
		s.prom.SweepRemoved.Add(float64(removed))
	}

	if removed > 0 {
		s.log.InfoContext(cctx, "retention sweep removed rows", "removed", removed, "took_ms", took.Milliseconds())
	}
}

func (s *Sweeper) setReady(v bool) {
	s.mu.Lock()
	s.ready = v
	s.mu.Unlock()
}

// Stats is a point-in-time view of the sweeper's counters.
type Stats struct {
	Runs       uint64    `json:"runs"`
	Failures   uint64    `json:"failures"`
	Removed    int64     `json:"removed"`
	LastRunAt  time.Time `json:"last_run_at"`
	LastTookMs int64     `json:"last_took_ms"`
}

func (s *Sweeper) Snapshot() Stats {
	s.mu.RLock()
	lastAt := s.lastRunAt
	lastTook := s.lastTook
	s.mu.RUnlock()

	return Stats{
		Runs:       s.runs.Load(),
		Failures:   s.failures.Load(),
		Removed:    s.removed.Load(),
		LastRunAt:  lastAt,
		LastTookMs: lastTook.Milliseconds(),
	}
}

// HealthHandler serves the worker's probe endpoints: liveness, readiness
// (true after the first successful sweep), and the counter snapshot.
func (s *Sweeper) HealthHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.RLock()
		ready := s.ready
		s.mu.RUnlock()

		if !ready {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(s.Snapshot())
	})

	return mux
}
