package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"carematch/internal/availability/models"
	"carematch/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) record(username string, load int, lastSeen time.Time, specialties ...string) *models.DoctorAvailability {
	return &models.DoctorAvailability{
		DoctorUsername: username,
		IsOnline:       true,
		Specialties:    specialties,
		CurrentLoad:    load,
		LastSeen:       lastSeen,
		UpdatedAt:      lastSeen,
	}
}

func (s *InMemoryStoreSuite) seed(record *models.DoctorAvailability) {
	load := record.CurrentLoad
	s.Require().NoError(s.store.Upsert(s.ctx, record))
	if load > 0 {
		_, err := s.store.IncrementLoad(s.ctx, record.DoctorUsername, load)
		s.Require().NoError(err)
	}
}

func (s *InMemoryStoreSuite) TestUpsert() {
	now := time.Now()

	s.Run("creates record on first write", func() {
		s.Require().NoError(s.store.Upsert(s.ctx, s.record("drA", 0, now, "Cardiology")))

		found, err := s.store.Find(s.ctx, "drA")
		s.Require().NoError(err)
		s.Equal([]string{"Cardiology"}, found.Specialties)
		s.True(found.IsOnline)
	})

	s.Run("second upsert updates in place and preserves load", func() {
		s.seed(s.record("drB", 2, now, "Cardiology"))

		s.Require().NoError(s.store.Upsert(s.ctx, s.record("drB", 0, now.Add(time.Minute), "Cardiology", "General")))

		found, err := s.store.Find(s.ctx, "drB")
		s.Require().NoError(err)
		s.Equal(2, found.CurrentLoad, "upsert must not reset load")
		s.Equal([]string{"Cardiology", "General"}, found.Specialties)

		all, err := s.store.Query(s.ctx, models.Filters{MaxLoad: 10, Limit: 10})
		s.Require().NoError(err)
		count := 0
		for _, record := range all {
			if record.DoctorUsername == "drB" {
				count++
			}
		}
		s.Equal(1, count, "never two records for the same doctor")
	})

	s.Run("find unknown doctor returns ErrNotFound", func() {
		_, err := s.store.Find(s.ctx, "ghost")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestQueryOrdering() {
	now := time.Now()
	s.seed(s.record("busy", 3, now))
	s.seed(s.record("idleOld", 0, now.Add(-time.Hour)))
	s.seed(s.record("idleFresh", 0, now))
	s.seed(s.record("overloaded", 6, now))
	offline := s.record("offline", 0, now)
	offline.IsOnline = false
	s.seed(offline)

	matched, err := s.store.Query(s.ctx, models.Filters{MaxLoad: 5, Limit: 10})
	s.Require().NoError(err)

	usernames := make([]string, 0, len(matched))
	for _, record := range matched {
		usernames = append(usernames, record.DoctorUsername)
	}
	s.Equal([]string{"idleFresh", "idleOld", "busy"}, usernames)

	limited, err := s.store.Query(s.ctx, models.Filters{MaxLoad: 5, Limit: 2})
	s.Require().NoError(err)
	s.Len(limited, 2)
}

func (s *InMemoryStoreSuite) TestIncrementLoad() {
	now := time.Now()

	s.Run("unknown doctor returns ErrNotFound", func() {
		_, err := s.store.IncrementLoad(s.ctx, "ghost", 1)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("clamps at zero on large negative delta", func() {
		s.seed(s.record("drA", 2, now))

		newLoad, err := s.store.IncrementLoad(s.ctx, "drA", -5)
		s.Require().NoError(err)
		s.Equal(0, newLoad)
	})

	s.Run("concurrent increments sum correctly", func() {
		s.seed(s.record("drB", 0, now))

		const workers = 50
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				_, err := s.store.IncrementLoad(s.ctx, "drB", 1)
				s.NoError(err)
			}()
		}
		wg.Wait()

		found, err := s.store.Find(s.ctx, "drB")
		s.Require().NoError(err)
		s.Equal(workers, found.CurrentLoad)
	})
}

func (s *InMemoryStoreSuite) TestSetOnlineAndStale() {
	now := time.Now()
	s.seed(s.record("fresh", 0, now.Add(-time.Minute)))
	s.seed(s.record("stale", 0, now.Add(-30*time.Minute)))

	s.Run("finds only stale online doctors", func() {
		stale, err := s.store.FindStale(s.ctx, now.Add(-10*time.Minute))
		s.Require().NoError(err)
		s.Require().Len(stale, 1)
		s.Equal("stale", stale[0].DoctorUsername)
	})

	s.Run("offline doctors are not stale", func() {
		s.Require().NoError(s.store.SetOnline(s.ctx, "stale", false, now))

		stale, err := s.store.FindStale(s.ctx, now.Add(-10*time.Minute))
		s.Require().NoError(err)
		s.Empty(stale)
	})

	s.Run("set online on unknown doctor returns ErrNotFound", func() {
		s.Require().ErrorIs(s.store.SetOnline(s.ctx, "ghost", false, now), sentinel.ErrNotFound)
	})
}
