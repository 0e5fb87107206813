// Package sweeper periodically deletes held reservations whose TTL lapsed.
package sweeper

import (
	"context"
	"time"

	"github.com/MrJamesThe3rd/tesoro/internal/clock"
	"github.com/MrJamesThe3rd/tesoro/internal/logger"
	"github.com/MrJamesThe3rd/tesoro/internal/metrics"
)

const DefaultInterval = 10 * time.Minute

// Repository deletes expired held reservations. Confirmed reservations are
// never eligible.
type Repository interface {
	DeleteExpiredHeld(ctx context.Context, now time.Time) (int64, error)
}

type Sweeper struct {
	repo     Repository
	clock    clock.Clock
	log      *logger.Logger
	interval time.Duration
}

func New(repo Repository, clk clock.Clock, log *logger.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}

	if log == nil {
		log = logger.NewNop()
	}

	return &Sweeper{
		repo:     repo,
		clock:    clk,
		log:      log.With("component", "ReservationSweeper"),
		interval: interval,
	}
}

// SweepOnce runs a single pass and returns how many reservations it released.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredHeld(ctx, s.clock.Now())
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return 0, err
	}

	metrics.SweepRuns.WithLabelValues("ok").Inc()
	metrics.SweptReservations.Add(float64(n))
	s.log.Info("expired reservations released", "count", n)

	return n, nil
}

// Run sweeps on every tick until ctx is cancelled. A failed pass is logged
// and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Warn("sweep failed", "error", err)
			}
		}
	}
}
