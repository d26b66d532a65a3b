package services

import (
	"context"
	"time"

	"github.com/mkravchenko/authd/internal/logging"
	"github.com/mkravchenko/authd/internal/server/metrics"
	"github.com/mkravchenko/authd/internal/server/repositories/repomanager"
)

// Sweeper periodically deletes session records that are expired or revoked,
// bounding storage growth. It runs apart from the request path; a failed
// sweep is retried on the next tick and never blocks login or refresh.
type Sweeper struct {
	repos    repomanager.RepositoryManager
	logger   logging.Logger
	interval time.Duration
}

// NewSweeper constructs a Sweeper. A non-positive interval falls back to
// once a day.
func NewSweeper(m repomanager.RepositoryManager, interval time.Duration, logger logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Sweeper{repos: m, logger: logger, interval: interval}
}

// Run sweeps immediately and then once per interval until ctx is cancelled.
// Deletions committed before cancellation stay committed.
func (s *Sweeper) Run(ctx context.Context) {
	if _, err := s.SweepOnce(ctx); err != nil {
		s.logger.Error(ctx, "error sweeping session records", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error(ctx, "error sweeping session records", "error", err)
			}
		}
	}
}

// SweepOnce deletes every expired or revoked session record and returns how
// many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.repos.RefreshTokens().DeleteExpiredOrRevoked(ctx)
	if err != nil {
		return 0, err
	}
	metrics.TokensSwept.Add(float64(n))
	s.logger.Info(ctx, "session records swept", "deleted", n)
	return n, nil
}
