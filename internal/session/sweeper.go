package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// DefaultSweepInterval is how often expired sessions are purged.
const DefaultSweepInterval = 5 * time.Minute

// ExpiredDeleter removes sessions whose expiry has passed.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically purges expired sessions from the store. Expired rows
// are already ignored on lookup; sweeping only bounds table growth.
type Sweeper struct {
	cron     gocron.Scheduler
	store    ExpiredDeleter
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a Sweeper. Call Start to begin sweeping.
func NewSweeper(store ExpiredDeleter, interval time.Duration, logger *zap.Logger) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Sweeper{
		cron:     s,
		store:    store,
		interval: interval,
		logger:   logger.Named("session_sweeper"),
	}, nil
}

// Start schedules the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.Sweep(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("gocron.NewJob failed for session sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("session sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Sweep deletes expired sessions once.
func (s *Sweeper) Sweep(ctx context.Context) {
	n, err := s.store.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("failed to delete expired sessions", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Debug("expired sessions deleted", zap.Int64("count", n))
	}
}

// Stop shuts down the scheduler, waiting for a running sweep to finish.
func (s *Sweeper) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("session sweeper shutdown error: %w", err)
	}
	s.logger.Info("session sweeper stopped")
	return nil
}
