// Package cleanup evicts expired challenge nonces on an interval.
// Eviction timing is invisible to verification correctness; the worker
// only keeps the store from growing without bound.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"racepass/internal/nonce"
	"racepass/internal/vc/metrics"
)

// Worker sweeps the nonce store periodically.
type Worker struct {
	nonces   nonce.Store
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
	clock    func() time.Time
}

// Option configures the Worker.
type Option func(*Worker)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithInterval overrides how often the sweep runs.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(w *Worker) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// New builds a Worker over the nonce store.
func New(nonces nonce.Store, opts ...Option) *Worker {
	w := &Worker{
		nonces:   nonces,
		logger:   slog.Default(),
		interval: 5 * time.Minute,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the sweep loop until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			removed, err := w.RunOnce(ctx)
			duration := time.Since(start)

			if err != nil {
				w.logger.Error("nonce_cleanup_failed",
					"error", err,
					"duration_ms", duration.Milliseconds(),
				)
				continue
			}

			w.logger.Info("nonce_cleanup_completed",
				"nonces_removed", removed,
				"duration_ms", duration.Milliseconds(),
			)

		case <-ctx.Done():
			w.logger.Info("nonce cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep.
func (w *Worker) RunOnce(ctx context.Context) (int64, error) {
	removed, err := w.nonces.DeleteExpired(ctx, w.clock())
	if err != nil {
		return 0, err
	}
	if w.metrics != nil {
		w.metrics.ExpiredNonceSweeps.Inc()
	}
	return removed, nil
}
