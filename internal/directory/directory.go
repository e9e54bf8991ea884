// Package directory exposes the user-identity facts this service consumes.
// Verification itself is owned by an external identity system; the matching
// core only ever asks boolean questions about a username.
package directory

import (
	"context"
	"sync"
)

// UserDirectory answers role questions about usernames.
type UserDirectory interface {
	IsVerifiedDoctor(ctx context.Context, username string) (bool, error)
	IsPatient(ctx context.Context, username string) (bool, error)
}

// InMemory is a static directory for tests and single-tenant deployments
// where the identity system pushes its user set at startup.
type InMemory struct {
	mu       sync.RWMutex
	doctors  map[string]struct{}
	patients map[string]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{
		doctors:  make(map[string]struct{}),
		patients: make(map[string]struct{}),
	}
}

func (d *InMemory) AddVerifiedDoctor(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doctors[username] = struct{}{}
}

func (d *InMemory) AddPatient(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[username] = struct{}{}
}

func (d *InMemory) IsVerifiedDoctor(_ context.Context, username string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.doctors[username]
	return ok, nil
}

func (d *InMemory) IsPatient(_ context.Context, username string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.patients[username]
	return ok, nil
}
