package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"carematch/internal/availability/models"
)

const availabilityKeyPrefix = "avail:doctor:"

// Redis is the distributed cache implementation for deployments with more
// than one instance. TTL is enforced by Redis key expiry, so entries never
// outlive it regardless of which instance wrote them.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (c *Redis) Get(ctx context.Context, username string) (*models.DoctorAvailability, error) {
	payload, err := c.client.Get(ctx, availabilityKeyPrefix+username).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var record models.DoctorAvailability
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &record, nil
}

func (c *Redis) Set(ctx context.Context, record *models.DoctorAvailability) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, availabilityKeyPrefix+record.DoctorUsername, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *Redis) Evict(ctx context.Context, username string) error {
	if err := c.client.Del(ctx, availabilityKeyPrefix+username).Err(); err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	return nil
}
