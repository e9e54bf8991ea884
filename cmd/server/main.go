package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"carematch/internal/availability/cache"
	availhandler "carematch/internal/availability/handler"
	availservice "carematch/internal/availability/service"
	availstore "carematch/internal/availability/store"
	consulthandler "carematch/internal/consult/handler"
	consultservice "carematch/internal/consult/service"
	consultstore "carematch/internal/consult/store"
	"carematch/internal/directory"
	"carematch/internal/notify"
	"carematch/internal/platform/config"
	"carematch/internal/platform/httpserver"
	"carematch/internal/platform/logger"
	"carematch/internal/platform/metrics"
	platformredis "carematch/internal/platform/redis"
	"carematch/internal/scheduler"
	httptransport "carematch/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

type dbChecker struct {
	db *sql.DB
}

func (c dbChecker) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// main wires storage, services, the scheduler, and the HTTP surface, then
// runs until interrupted. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	checkers := map[string]httptransport.HealthChecker{}

	// Storage: Postgres when a DSN is configured, in-memory otherwise.
	var (
		availabilityStore availservice.Store   = availstore.NewInMemory()
		consultStore      consultservice.Store = consultstore.NewInMemory()
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		if err := db.PingContext(context.Background()); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		availabilityStore = availstore.NewPostgres(db)
		consultStore = consultstore.NewPostgres(db)
		checkers["postgres"] = dbChecker{db}
		log.Info("using postgres storage")
	}

	// Cache: Redis when configured, in-memory otherwise.
	var availabilityCache availservice.Cache = cache.NewInMemory(cfg.CacheTTL)
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		availabilityCache = cache.NewRedis(redisClient.Client, cfg.CacheTTL)
		checkers["redis"] = redisClient
		log.Info("using redis availability cache")
	}

	// Notifications: Kafka when brokers are configured, log sink otherwise.
	var sink notify.Sink = notify.NewLogSink(log)
	if cfg.Kafka.Brokers != "" {
		kafkaSink, err := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = kafkaSink.Close(ctx)
		}()
		sink = kafkaSink
		log.Info("using kafka notification sink", "topic", cfg.Kafka.Topic)
	}

	users := directory.NewInMemory()
	seedUsers(users, cfg)

	registry := availservice.New(availabilityStore, availabilityCache, users,
		availservice.WithLogger(log),
		availservice.WithMetrics(m),
	)
	lifecycle := consultservice.New(consultStore, registry, users,
		consultservice.WithLogger(log),
		consultservice.WithMetrics(m),
		consultservice.WithNotifier(sink),
	)

	sched := scheduler.New(lifecycle, registry,
		scheduler.WithLogger(log),
		scheduler.WithAutoAssignInterval(cfg.AutoAssignInterval),
		scheduler.WithCleanupInterval(cfg.CleanupInterval),
		scheduler.WithStaleThreshold(cfg.StaleThreshold),
	)

	router := httptransport.NewRouter([]httptransport.Registrar{
		availhandler.New(registry, log),
		consulthandler.New(lifecycle, log),
	}, checkers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// seedUsers loads the configured usernames into the in-process directory.
// Deployments with a real identity backend leave the seeds empty.
func seedUsers(users *directory.InMemory, cfg config.Config) {
	for _, doctor := range splitUsernames(cfg.SeedDoctors) {
		users.AddVerifiedDoctor(doctor)
	}
	for _, patient := range splitUsernames(cfg.SeedPatients) {
		users.AddPatient(patient)
	}
}

func splitUsernames(raw string) []string {
	if raw == "" {
		return nil
	}
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
