// Package scheduler runs the periodic background work of the service:
// auto-assignment of pending consultation requests and cleanup of doctors
// whose availability has gone stale.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultAutoAssignInterval = 30 * time.Second
	defaultCleanupInterval    = 5 * time.Minute
	defaultStaleThreshold     = 10 * time.Minute
)

// Assigner matches pending consultation requests to available doctors.
type Assigner interface {
	AutoAssignPendingRequests(ctx context.Context) (int, error)
}

// Sweeper forces doctors offline after a period of inactivity.
type Sweeper interface {
	CleanupStaleAvailability(ctx context.Context, threshold time.Duration) (int, error)
}

// Scheduler drives the auto-assign and cleanup loops on independent tickers.
// Each loop runs its task on a single goroutine, so a slow run delays the
// next tick rather than overlapping with it.
type Scheduler struct {
	assigner Assigner
	sweeper  Sweeper
	logger   *slog.Logger

	assignInterval  time.Duration
	cleanupInterval time.Duration
	staleThreshold  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAutoAssignInterval overrides the auto-assign tick interval.
func WithAutoAssignInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.assignInterval = interval
		}
	}
}

// WithCleanupInterval overrides the stale-availability sweep interval.
func WithCleanupInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.cleanupInterval = interval
		}
	}
}

// WithStaleThreshold overrides how long a doctor may go unseen before the
// sweep forces them offline.
func WithStaleThreshold(threshold time.Duration) Option {
	return func(s *Scheduler) {
		if threshold > 0 {
			s.staleThreshold = threshold
		}
	}
}

// New builds a Scheduler. Call Start to begin the loops.
func New(assigner Assigner, sweeper Sweeper, opts ...Option) *Scheduler {
	s := &Scheduler{
		assigner:        assigner,
		sweeper:         sweeper,
		logger:          slog.Default(),
		assignInterval:  defaultAutoAssignInterval,
		cleanupInterval: defaultCleanupInterval,
		staleThreshold:  defaultStaleThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches both loops. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.logger.Warn("scheduler already started")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, runCtx := errgroup.WithContext(runCtx)
	s.cancel = cancel
	s.group = group

	group.Go(func() error {
		s.runLoop(runCtx, s.assignInterval, "auto_assign", s.runAutoAssign)
		return nil
	})
	group.Go(func() error {
		s.runLoop(runCtx, s.cleanupInterval, "availability_cleanup", s.runCleanup)
		return nil
	})

	s.logger.Info("scheduler started",
		"auto_assign_interval", s.assignInterval,
		"cleanup_interval", s.cleanupInterval,
		"stale_threshold", s.staleThreshold)
}

// Stop cancels both loops and waits for in-flight runs to finish. Calling
// Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		s.logger.Warn("scheduler not running")
		return
	}

	s.cancel()
	_ = s.group.Wait()
	s.cancel = nil
	s.group = nil

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runLoop(ctx context.Context, interval time.Duration, name string, task func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			task(ctx)
		case <-ctx.Done():
			s.logger.Debug("scheduler loop stopping", "loop", name)
			return
		}
	}
}

func (s *Scheduler) runAutoAssign(ctx context.Context) {
	assigned, err := s.assigner.AutoAssignPendingRequests(ctx)
	if err != nil {
		s.logger.Error("auto-assign run failed", "error", err)
		return
	}
	if assigned > 0 {
		s.logger.Info("auto-assign run completed", "assigned", assigned)
	}
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	cleaned, err := s.sweeper.CleanupStaleAvailability(ctx, s.staleThreshold)
	if err != nil {
		s.logger.Error("availability cleanup failed", "error", err)
		return
	}
	if cleaned > 0 {
		s.logger.Info("availability cleanup completed", "doctors_forced_offline", cleaned)
	}
}
