// Package scheduler drives periodic background jobs.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
)

// Sweeper is the job the runner triggers on every tick.
type Sweeper interface {
	Sweep(ctx context.Context) (dto.SweepReport, error)
}

// Runner triggers a Sweeper on a fixed interval until its context ends.
type Runner struct {
	sweeper  Sweeper
	interval time.Duration
	logger   zerolog.Logger
}

// NewRunner constructs a runner. A non-positive interval defaults to one minute.
func NewRunner(sweeper Sweeper, interval time.Duration, logger zerolog.Logger) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.With().Str("component", "autosubmit_scheduler").Logger(),
	}
}

// Run sweeps once immediately and then on every tick. It returns nil when ctx
// is cancelled and ctx.Err() when its deadline expires.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("auto-submit scheduler started")
	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("auto-submit scheduler stopped")
			if !errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	report, err := r.sweeper.Sweep(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error().Err(err).Msg("auto-submit sweep failed")
		return
	}
	if report.Skipped {
		return
	}
	r.logger.Debug().Int("submitted", report.Submitted).Msg("auto-submit tick")
}
