package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner is the part of RelayRepository the retention loop needs.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionService periodically deletes relay records older than maxAge.
type RetentionService struct {
	store    Pruner
	logger   *zap.Logger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

func NewRetentionService(store Pruner, interval, maxAge time.Duration, logger *zap.Logger) *RetentionService {
	return &RetentionService{
		store:    store,
		logger:   logger,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Start prunes once, then on every tick until ctx is done.
func (s *RetentionService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Starting relay log retention",
		zap.Duration("interval", s.interval),
		zap.Duration("max_age", s.maxAge))

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping relay log retention")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce deletes everything older than maxAge and returns the count.
func (s *RetentionService) RunOnce(ctx context.Context) int64 {
	cutoff := s.now().Add(-s.maxAge)
	n, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to prune relay log", zap.Error(err))
		return 0
	}
	if n > 0 {
		s.logger.Info("Pruned relay log",
			zap.Int64("deleted", n),
			zap.Time("cutoff", cutoff))
	}
	return n
}
