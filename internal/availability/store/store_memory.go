package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"carematch/internal/availability/models"
	"carematch/pkg/platform/sentinel"
)

// InMemory implements the availability store contract with a mutex-guarded
// map. It is the default for tests and single-instance deployments; use the
// Postgres store when state must survive restarts or be shared.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]*models.DoctorAvailability
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]*models.DoctorAvailability)}
}

// Upsert creates or updates a doctor's presence record. CurrentLoad only
// moves through IncrementLoad: new records start at zero and existing load
// is preserved.
func (s *InMemory) Upsert(_ context.Context, record *models.DoctorAvailability) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming := record.Clone()
	incoming.CurrentLoad = 0
	if existing, ok := s.records[record.DoctorUsername]; ok {
		incoming.CurrentLoad = existing.CurrentLoad
	}
	s.records[record.DoctorUsername] = incoming
	return nil
}

func (s *InMemory) Find(_ context.Context, username string) (*models.DoctorAvailability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[username]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return record.Clone(), nil
}

// Query returns online doctors with CurrentLoad <= MaxLoad, ordered by load
// ascending then LastSeen descending, limited to Limit. Specialty filtering
// is the caller's concern; multi-valued containment is not something every
// backing store can index.
func (s *InMemory) Query(_ context.Context, filters models.Filters) ([]*models.DoctorAvailability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.DoctorAvailability
	for _, record := range s.records {
		if !record.IsOnline || record.CurrentLoad > filters.MaxLoad {
			continue
		}
		matched = append(matched, record.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CurrentLoad != matched[j].CurrentLoad {
			return matched[i].CurrentLoad < matched[j].CurrentLoad
		}
		return matched[i].LastSeen.After(matched[j].LastSeen)
	})
	if filters.Limit > 0 && len(matched) > filters.Limit {
		matched = matched[:filters.Limit]
	}
	return matched, nil
}

// IncrementLoad atomically applies max(0, CurrentLoad+delta) and returns the
// new load. The clamp happens under the same lock as the read, so concurrent
// increments and decrements never interleave into a negative or lost count.
func (s *InMemory) IncrementLoad(_ context.Context, username string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[username]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	record.CurrentLoad += delta
	if record.CurrentLoad < 0 {
		record.CurrentLoad = 0
	}
	return record.CurrentLoad, nil
}

func (s *InMemory) SetOnline(_ context.Context, username string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[username]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.IsOnline = online
	record.UpdatedAt = at
	return nil
}

// FindStale returns online doctors whose LastSeen is before the cutoff.
func (s *InMemory) FindStale(_ context.Context, cutoff time.Time) ([]*models.DoctorAvailability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []*models.DoctorAvailability
	for _, record := range s.records {
		if record.IsOnline && record.LastSeen.Before(cutoff) {
			stale = append(stale, record.Clone())
		}
	}
	return stale, nil
}
