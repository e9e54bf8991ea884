package store

import (
	"context"
	"sort"
	"sync"

	"carematch/internal/consult/models"
	"carematch/pkg/platform/sentinel"
)

// InMemory implements the consult store contract with a mutex-guarded map.
// Transition applies its mutation under the lock, which gives the same
// exactly-once semantics the Postgres store gets from row locking.
type InMemory struct {
	mu       sync.RWMutex
	requests map[string]*models.Request
}

func NewInMemory() *InMemory {
	return &InMemory{requests: make(map[string]*models.Request)}
}

func (s *InMemory) Create(_ context.Context, request *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[request.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[request.ID] = request.Clone()
	return nil
}

func (s *InMemory) Find(_ context.Context, id string) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return request.Clone(), nil
}

// ListPending returns pending requests, oldest first, limited to limit.
func (s *InMemory) ListPending(_ context.Context, limit int) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*models.Request
	for _, request := range s.requests {
		if request.Status == models.StatusPending {
			pending = append(pending, request.Clone())
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *InMemory) ListByPatient(_ context.Context, patient string) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listWhere(func(r *models.Request) bool {
		return r.PatientUsername == patient
	}), nil
}

func (s *InMemory) ListByDoctor(_ context.Context, doctor string) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listWhere(func(r *models.Request) bool {
		return r.AssignedDoctorUsername == doctor && r.AssignedDoctorUsername != ""
	}), nil
}

// Transition atomically applies mutate to the request if its current status
// is one of expected. Returns ErrStale when the status check fails, so the
// caller can re-read and decide whether to retry or reject.
func (s *InMemory) Transition(_ context.Context, id string, expected []models.Status, mutate func(*models.Request) error) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !statusIn(current.Status, expected) {
		return nil, sentinel.ErrStale
	}

	updated := current.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	s.requests[id] = updated
	return updated.Clone(), nil
}

func (s *InMemory) listWhere(match func(*models.Request) bool) []*models.Request {
	var matched []*models.Request
	for _, request := range s.requests {
		if match(request) {
			matched = append(matched, request.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched
}

func statusIn(status models.Status, set []models.Status) bool {
	for _, candidate := range set {
		if candidate == status {
			return true
		}
	}
	return false
}
