package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultInterval = time.Minute

// Expirer releases reservations whose hold has lapsed.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Worker runs the reservation sweep on a fixed interval.
type Worker struct {
	expirer  Expirer
	interval time.Duration
	logger   *zap.Logger
}

// New returns a Worker; a non-positive interval falls back to one minute.
func New(expirer Expirer, interval time.Duration, logger *zap.Logger) (*Worker, error) {
	if expirer == nil {
		return nil, errors.New("sweeper: expirer is nil")
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{expirer: expirer, interval: interval, logger: logger}, nil
}

// RunOnce performs a single sweep.
func (worker *Worker) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()
	expired, err := worker.expirer.ExpireStale(ctx)
	if err != nil {
		return expired, fmt.Errorf("sweep reservations: %w", err)
	}
	if expired > 0 {
		worker.logger.Info("expired stale reservations",
			zap.Int("expired", expired),
			zap.Duration("took", time.Since(started)),
		)
	}
	return expired, nil
}

// RunForever sweeps immediately and then on every tick until ctx is cancelled.
// Failed sweeps are logged and retried on the next tick.
func (worker *Worker) RunForever(ctx context.Context) error {
	ticker := time.NewTicker(worker.interval)
	defer ticker.Stop()
	for {
		if _, err := worker.RunOnce(ctx); err != nil && ctx.Err() == nil {
			worker.logger.Error("reservation sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
