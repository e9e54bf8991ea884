package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration. FromEnv keeps main lean.
type Config struct {
	Addr        string
	PostgresDSN string
	Redis       RedisConfig
	Kafka       KafkaConfig

	CacheTTL           time.Duration
	AutoAssignInterval time.Duration
	CleanupInterval    time.Duration
	StaleThreshold     time.Duration

	// Comma-separated usernames loaded into the user directory at startup.
	SeedDoctors  string
	SeedPatients string
}

// RedisConfig configures the optional distributed availability cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional notification sink.
type KafkaConfig struct {
	Brokers string
	Topic   string
}

// FromEnv builds a Config from environment variables with sensible defaults.
func FromEnv() Config {
	return Config{
		Addr:        envString("CAREMATCH_ADDR", ":8080"),
		PostgresDSN: os.Getenv("CAREMATCH_POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("CAREMATCH_REDIS_URL"),
			PoolSize:     envInt("CAREMATCH_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CAREMATCH_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("CAREMATCH_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CAREMATCH_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CAREMATCH_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: os.Getenv("CAREMATCH_KAFKA_BROKERS"),
			Topic:   envString("CAREMATCH_KAFKA_TOPIC", "carematch.notifications"),
		},
		CacheTTL:           envDuration("CAREMATCH_CACHE_TTL", 30*time.Second),
		AutoAssignInterval: envDuration("CAREMATCH_AUTO_ASSIGN_INTERVAL", 30*time.Second),
		CleanupInterval:    envDuration("CAREMATCH_CLEANUP_INTERVAL", 5*time.Minute),
		StaleThreshold:     envDuration("CAREMATCH_STALE_THRESHOLD", 10*time.Minute),
		SeedDoctors:        os.Getenv("CAREMATCH_SEED_DOCTORS"),
		SeedPatients:       os.Getenv("CAREMATCH_SEED_PATIENTS"),
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
