// Package cache holds short-lived copies of availability records so hot
// reads skip the store. Entries carry an absolute TTL from the moment they
// are written; the cache is advisory and never authoritative.
package cache

import (
	"context"
	"sync"
	"time"

	"carematch/internal/availability/models"
	"carematch/pkg/requestcontext"
)

// InMemory is a mutex-guarded map cache with absolute-TTL entries.
type InMemory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

type memoryEntry struct {
	record    *models.DoctorAvailability
	expiresAt time.Time
}

func NewInMemory(ttl time.Duration) *InMemory {
	return &InMemory{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the cached record, or (nil, nil) on miss or expiry. Expired
// entries are evicted on read; entries never outlive their TTL even if
// untouched, because expiry is checked against write time, not access time.
func (c *InMemory) Get(ctx context.Context, username string) (*models.DoctorAvailability, error) {
	c.mu.RLock()
	entry, ok := c.entries[username]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !requestcontext.Now(ctx).Before(entry.expiresAt) {
		c.mu.Lock()
		if current, ok := c.entries[username]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, username)
		}
		c.mu.Unlock()
		return nil, nil
	}
	return entry.record.Clone(), nil
}

func (c *InMemory) Set(ctx context.Context, record *models.DoctorAvailability) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[record.DoctorUsername] = memoryEntry{
		record:    record.Clone(),
		expiresAt: requestcontext.Now(ctx).Add(c.ttl),
	}
	return nil
}

func (c *InMemory) Evict(_ context.Context, username string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, username)
	return nil
}
