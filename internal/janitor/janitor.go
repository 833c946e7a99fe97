// Package janitor periodically sweeps expired pastes from the store.
package janitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pastebox/internal/metrics"
)

const (
	DefaultInterval = 5 * time.Minute
	sweepTimeout    = 5 * time.Second
)

// Sweeper deletes everything that expired at or before now.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Start launches the janitor goroutine. The returned channel is closed once
// it has stopped after ctx is cancelled.
func Start(ctx context.Context, sweeper Sweeper, interval time.Duration, logger zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		Run(ctx, sweeper, interval, logger)
	}()
	return done
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func Run(ctx context.Context, sweeper Sweeper, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger = logger.With().Str("component", "janitor").Logger()
	logger.Info().Dur("interval", interval).Msg("janitor started")

	// Pastes that expired while the process was down go on the first pass.
	_, _ = RunOnce(ctx, sweeper, time.Now().UTC(), logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("janitor stopped")
			return
		case <-ticker.C:
			_, _ = RunOnce(ctx, sweeper, time.Now().UTC(), logger)
		}
	}
}

// RunOnce performs a single sweep bounded by a short timeout.
func RunOnce(ctx context.Context, sweeper Sweeper, now time.Time, logger zerolog.Logger) (int, error) {
	runID := uuid.New().String()
	c, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	metrics.SweepCycles.Inc()
	removed, err := sweeper.SweepExpired(c, now)
	if err != nil {
		logger.Error().Err(err).Str("run_id", runID).Msg("sweep failed")
		return 0, err
	}
	if removed > 0 {
		logger.Info().Str("run_id", runID).Int("count", removed).Msg("removed expired pastes")
	}
	return removed, nil
}
