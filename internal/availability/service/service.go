package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"carematch/internal/availability/models"
	"carematch/internal/matching"
	"carematch/internal/platform/metrics"
	dErrors "carematch/pkg/domain-errors"
	"carematch/pkg/platform/sentinel"
	"carematch/pkg/requestcontext"
)

// Candidate pool bounds for best-match selection. Doctors above the load
// bound are not considered even if nobody else is free.
const (
	matchMaxLoad    = 3
	matchCandidates = 20
)

type Store interface {
	Upsert(ctx context.Context, record *models.DoctorAvailability) error
	Find(ctx context.Context, username string) (*models.DoctorAvailability, error)
	Query(ctx context.Context, filters models.Filters) ([]*models.DoctorAvailability, error)
	IncrementLoad(ctx context.Context, username string, delta int) (int, error)
	SetOnline(ctx context.Context, username string, online bool, at time.Time) error
	FindStale(ctx context.Context, cutoff time.Time) ([]*models.DoctorAvailability, error)
}

// Cache is advisory: read errors degrade to store reads and write errors are
// logged, never surfaced.
type Cache interface {
	Get(ctx context.Context, username string) (*models.DoctorAvailability, error)
	Set(ctx context.Context, record *models.DoctorAvailability) error
	Evict(ctx context.Context, username string) error
}

type DoctorVerifier interface {
	IsVerifiedDoctor(ctx context.Context, username string) (bool, error)
}

// Service is the availability registry: it owns doctor online state,
// specialties, and load, and is the only writer of those fields.
type Service struct {
	store     Store
	cache     Cache
	directory DoctorVerifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs the registry.
func New(store Store, cache Cache, directory DoctorVerifier, opts ...Option) *Service {
	s := &Service{store: store, cache: cache, directory: directory}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// SetAvailability upserts a doctor's presence record. Only verified doctors
// may register; existing load is preserved across upserts.
func (s *Service) SetAvailability(ctx context.Context, doctor string, isOnline bool, specialties []string) error {
	verified, err := s.directory.IsVerifiedDoctor(ctx, doctor)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify doctor")
	}
	if !verified {
		return dErrors.Newf(dErrors.CodeNotFound, "doctor %q not found or not verified", doctor)
	}

	now := requestcontext.Now(ctx)
	record := &models.DoctorAvailability{
		DoctorUsername: doctor,
		IsOnline:       isOnline,
		Specialties:    specialties,
		LastSeen:       now,
		UpdatedAt:      now,
	}
	if err := s.store.Upsert(ctx, record); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save availability")
	}
	s.metrics.IncAvailabilityUpdate(isOnline)

	if !isOnline {
		s.evictCache(ctx, doctor)
		return nil
	}
	// Re-read so the cached copy carries the preserved load.
	stored, err := s.store.Find(ctx, doctor)
	if err != nil {
		s.logger.Warn("availability cache refresh skipped", "doctor", doctor, "error", err)
		return nil
	}
	if err := s.cache.Set(ctx, stored); err != nil {
		s.logger.Warn("availability cache set failed", "doctor", doctor, "error", err)
	}
	return nil
}

// GetAvailableDoctors returns online doctors under the load bound, ordered
// by load ascending then recency, then filtered for specialty intersection.
// No match is an empty slice, not an error.
func (s *Service) GetAvailableDoctors(ctx context.Context, filters models.Filters) ([]*models.DoctorAvailability, error) {
	candidates, err := s.store.Query(ctx, filters)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query availability")
	}
	matched := make([]*models.DoctorAvailability, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.HasAnySpecialty(filters.Specialties) {
			matched = append(matched, candidate)
		}
	}
	return matched, nil
}

// FindBestMatchingDoctor picks the highest-scoring available doctor for the
// given preferences, or nil when nobody qualifies.
func (s *Service) FindBestMatchingDoctor(ctx context.Context, category string, preferredSpecialties []string) (*models.DoctorAvailability, error) {
	start := time.Now()
	candidates, err := s.GetAvailableDoctors(ctx, models.Filters{
		Specialties: preferredSpecialties,
		MaxLoad:     matchMaxLoad,
		Limit:       matchCandidates,
	})
	if err != nil {
		return nil, err
	}
	best := matching.FindBestMatch(candidates, preferredSpecialties, requestcontext.Now(ctx))
	s.metrics.ObserveMatchDuration(time.Since(start).Seconds())
	if best == nil {
		s.logger.Debug("no matching doctor available", "category", category)
		return nil, nil
	}
	return best, nil
}

// UpdateDoctorLoad atomically applies max(0, load+delta) at the store.
func (s *Service) UpdateDoctorLoad(ctx context.Context, doctor string, delta int) error {
	if _, err := s.store.IncrementLoad(ctx, doctor, delta); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "no availability record for doctor %q", doctor)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update doctor load")
	}
	// The cached copy now carries a stale load; drop it rather than serve it.
	s.evictCache(ctx, doctor)
	return nil
}

// GetDoctorAvailability is a cache-first read. Cache failures degrade to the
// store; only online doctors are cached back.
func (s *Service) GetDoctorAvailability(ctx context.Context, doctor string) (*models.DoctorAvailability, error) {
	cached, err := s.cache.Get(ctx, doctor)
	if err != nil {
		s.logger.Warn("availability cache read failed", "doctor", doctor, "error", err)
	} else if cached != nil {
		s.metrics.RecordCacheHit()
		return cached, nil
	}
	s.metrics.RecordCacheMiss()

	record, err := s.store.Find(ctx, doctor)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "no availability record for doctor %q", doctor)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load availability")
	}
	if record.IsOnline {
		if err := s.cache.Set(ctx, record); err != nil {
			s.logger.Warn("availability cache set failed", "doctor", doctor, "error", err)
		}
	}
	return record, nil
}

// SetDoctorOffline flips the doctor offline and evicts the cache entry
// synchronously so no reader sees the doctor as available afterwards.
func (s *Service) SetDoctorOffline(ctx context.Context, doctor string) error {
	if err := s.store.SetOnline(ctx, doctor, false, requestcontext.Now(ctx)); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "no availability record for doctor %q", doctor)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set doctor offline")
	}
	s.evictCache(ctx, doctor)
	return nil
}

// CleanupStaleAvailability forces offline every online doctor whose last
// heartbeat is older than staleFor and returns how many were affected.
// Re-running with nothing stale is a no-op.
func (s *Service) CleanupStaleAvailability(ctx context.Context, staleFor time.Duration) (int, error) {
	cutoff := requestcontext.Now(ctx).Add(-staleFor)
	stale, err := s.store.FindStale(ctx, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to find stale availability")
	}

	affected := 0
	for _, record := range stale {
		if err := s.store.SetOnline(ctx, record.DoctorUsername, false, requestcontext.Now(ctx)); err != nil {
			s.logger.Warn("failed to force doctor offline",
				"doctor", record.DoctorUsername, "error", err)
			continue
		}
		s.evictCache(ctx, record.DoctorUsername)
		affected++
	}
	if affected > 0 {
		s.metrics.AddDoctorsForcedOffline(affected)
		s.logger.Info("stale availability cleanup", "affected", affected)
	}
	return affected, nil
}

func (s *Service) evictCache(ctx context.Context, doctor string) {
	if err := s.cache.Evict(ctx, doctor); err != nil {
		s.logger.Warn("availability cache evict failed", "doctor", doctor, "error", err)
	}
}
