package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StatePurger deletes state tokens created at or before a cutoff.
type StatePurger interface {
	PurgeOAuthStates(ctx context.Context, createdBefore time.Time) (int64, error)
}

// Worker periodically removes state tokens that can no longer be consumed.
// Consumption already rejects them; this only keeps the table small.
type Worker struct {
	store    StatePurger
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func New(store StatePurger, ttl, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		store:    store,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Start sweeps every interval. It blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one purge and returns how many tokens were removed.
func (w *Worker) Sweep(ctx context.Context) int64 {
	n, err := w.store.PurgeOAuthStates(ctx, w.now().Add(-w.ttl))
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("purge expired oauth states", zap.Error(err))
		}
		return 0
	}
	if n > 0 {
		w.logger.Debug("purged expired oauth states", zap.Int64("count", n))
	}
	return n
}
