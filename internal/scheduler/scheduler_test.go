package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type countingAssigner struct {
	runs atomic.Int64
}

func (a *countingAssigner) AutoAssignPendingRequests(ctx context.Context) (int, error) {
	a.runs.Add(1)
	return 1, nil
}

type countingSweeper struct {
	runs      atomic.Int64
	threshold atomic.Int64
}

func (s *countingSweeper) CleanupStaleAvailability(ctx context.Context, threshold time.Duration) (int, error) {
	s.runs.Add(1)
	s.threshold.Store(int64(threshold))
	return 0, nil
}

type SchedulerSuite struct {
	suite.Suite

	assigner *countingAssigner
	sweeper  *countingSweeper
	sched    *Scheduler
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.assigner = &countingAssigner{}
	s.sweeper = &countingSweeper{}
	s.sched = New(s.assigner, s.sweeper,
		WithLogger(slog.Default()),
		WithAutoAssignInterval(5*time.Millisecond),
		WithCleanupInterval(5*time.Millisecond),
		WithStaleThreshold(time.Minute),
	)
}

func (s *SchedulerSuite) TestRunsBothLoops() {
	s.sched.Start(context.Background())
	defer s.sched.Stop()

	s.Require().Eventually(func() bool {
		return s.assigner.runs.Load() >= 2 && s.sweeper.runs.Load() >= 2
	}, time.Second, time.Millisecond)

	s.Equal(int64(time.Minute), s.sweeper.threshold.Load())
}

func (s *SchedulerSuite) TestStopHaltsLoops() {
	s.sched.Start(context.Background())

	s.Require().Eventually(func() bool {
		return s.assigner.runs.Load() >= 1
	}, time.Second, time.Millisecond)

	s.sched.Stop()
	after := s.assigner.runs.Load()

	time.Sleep(30 * time.Millisecond)
	s.Equal(after, s.assigner.runs.Load())
}

func (s *SchedulerSuite) TestStartIsIdempotent() {
	s.sched.Start(context.Background())
	s.sched.Start(context.Background())
	defer s.sched.Stop()

	s.Require().Eventually(func() bool {
		return s.assigner.runs.Load() >= 1
	}, time.Second, time.Millisecond)
}

func (s *SchedulerSuite) TestStopWithoutStartIsNoOp() {
	s.NotPanics(func() { s.sched.Stop() })
}

func (s *SchedulerSuite) TestRestartAfterStop() {
	s.sched.Start(context.Background())
	s.sched.Stop()

	s.sched.Start(context.Background())
	defer s.sched.Stop()

	s.Require().Eventually(func() bool {
		return s.sweeper.runs.Load() >= 1
	}, time.Second, time.Millisecond)
}
