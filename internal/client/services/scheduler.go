package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/logging"
)

// Syncer runs a full sync pass.
type Syncer interface {
	SyncAll(ctx context.Context) ([]*Result, error)
}

// Scheduler runs sync passes periodically and on demand until its context
// is cancelled.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	logger   logging.Logger
	trigger  chan struct{}
}

func NewScheduler(s Syncer, interval time.Duration, l logging.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		syncer:   s,
		interval: interval,
		logger:   l.With("module", "scheduler"),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a pass as soon as the current one, if any, finishes.
// Requests made while one is already queued are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run syncs immediately and then on every tick or trigger. It returns
// ctx.Err() once ctx is done. Failed passes are logged and retried on the
// next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.trigger:
		}
		s.runOnce(ctx)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	_, err := s.syncer.SyncAll(ctx)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrSyncInProgress):
		s.logger.Debug(ctx, "sync already in progress, skipping")
	case ctx.Err() != nil:
	default:
		s.logger.Warn(ctx, "sync pass failed", "error", err, "retryable", common.IsRetryable(err))
	}
}
