package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
)

// Sweeper runs one auto-completion pass.
type Sweeper interface {
	RunAutoCompletionSweep(ctx context.Context) (booking.SweepResult, error)
}

// CompletionWorker runs the sweep on a fixed interval. Passes never overlap.
type CompletionWorker struct {
	sweeper  Sweeper
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

type CompletionWorkerConfig struct {
	Interval time.Duration
	// Timeout bounds a single pass. Defaults to the interval.
	Timeout time.Duration
}

func NewCompletionWorker(sweeper Sweeper, logger *slog.Logger, cfg CompletionWorkerConfig) *CompletionWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	return &CompletionWorker{
		sweeper:  sweeper,
		logger:   logger,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (w *CompletionWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *CompletionWorker) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	res, err := w.sweeper.RunAutoCompletionSweep(ctx)
	if err != nil {
		w.logger.Error("auto-completion sweep failed", "err", err)
		return
	}
	if len(res.FailedIDs) > 0 {
		w.logger.Warn("auto-completion sweep left appointments for the next pass",
			"completed", res.Completed,
			"failed_ids", res.FailedIDs,
		)
	}
}
