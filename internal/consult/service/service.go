package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	amodels "carematch/internal/availability/models"
	"carematch/internal/consult/models"
	"carematch/internal/notify"
	"carematch/internal/platform/metrics"
	dErrors "carematch/pkg/domain-errors"
	"carematch/pkg/platform/sentinel"
	"carematch/pkg/requestcontext"
)

const (
	// A doctor may be explicitly targeted (preferred assignment, reassignment)
	// up to this load; the auto-matcher uses the registry's tighter bound.
	explicitAssignMaxLoad = 5

	// transitionAttempts bounds optimistic-concurrency retries before a
	// status update surfaces CodeConcurrency.
	transitionAttempts = 3

	systemActor = "system"
)

type Store interface {
	Create(ctx context.Context, request *models.Request) error
	Find(ctx context.Context, id string) (*models.Request, error)
	ListPending(ctx context.Context, limit int) ([]*models.Request, error)
	ListByPatient(ctx context.Context, patient string) ([]*models.Request, error)
	ListByDoctor(ctx context.Context, doctor string) ([]*models.Request, error)
	Transition(ctx context.Context, id string, expected []models.Status, mutate func(*models.Request) error) (*models.Request, error)
}

// Availability is the registry surface this service consumes. Load is only
// ever adjusted through it; request-side code never writes availability state.
type Availability interface {
	FindBestMatchingDoctor(ctx context.Context, category string, preferredSpecialties []string) (*amodels.DoctorAvailability, error)
	GetDoctorAvailability(ctx context.Context, doctor string) (*amodels.DoctorAvailability, error)
	UpdateDoctorLoad(ctx context.Context, doctor string, delta int) error
}

type PatientDirectory interface {
	IsPatient(ctx context.Context, username string) (bool, error)
}

// Service owns the consultation request lifecycle: creation, assignment,
// status transitions, reassignment, and the append-only audit trail.
type Service struct {
	store        Store
	availability Availability
	directory    PatientDirectory
	logger       *slog.Logger
	metrics      *metrics.Metrics
	notifier     notify.Sink
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

func WithNotifier(sink notify.Sink) Option {
	return func(s *Service) {
		s.notifier = sink
	}
}

func New(store Store, availability Availability, directory PatientDirectory, opts ...Option) *Service {
	s := &Service{store: store, availability: availability, directory: directory}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateInput carries caller-supplied fields for a new request.
type CreateInput struct {
	Category             string
	Description          string
	PreferredSpecialties []string
	Urgency              string
	PreferredDoctor      string
}

// CreateRequest validates the input, persists a pending request, then
// attempts assignment: the preferred doctor when eligible, otherwise the
// best-scoring available doctor. Assignment mechanics failing never fails
// creation; the request simply stays pending for the background loop.
func (s *Service) CreateRequest(ctx context.Context, patient string, input CreateInput) (*models.Request, error) {
	category, err := models.ParseCategory(input.Category)
	if err != nil {
		return nil, err
	}
	urgency, err := models.ParseUrgency(input.Urgency)
	if err != nil {
		return nil, err
	}
	isPatient, err := s.directory.IsPatient(ctx, patient)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify patient")
	}
	if !isPatient {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "patient %q not found", patient)
	}

	now := requestcontext.Now(ctx)
	request := &models.Request{
		ID:                   uuid.NewString(),
		PatientUsername:      patient,
		Category:             category,
		Description:          input.Description,
		PreferredSpecialties: input.PreferredSpecialties,
		Urgency:              urgency,
		Status:               models.StatusPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	request.AppendNote(models.NoteTypeStatusChange, "request created", patient, now)

	if err := s.store.Create(ctx, request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create request")
	}
	s.metrics.IncRequestsCreated()
	s.emit(ctx, notify.Event{
		Type:      notify.EventRequestCreated,
		RequestID: request.ID,
		Patient:   patient,
		Status:    string(request.Status),
		At:        now,
	})

	doctor := s.pickDoctor(ctx, request, input.PreferredDoctor)
	if doctor == "" {
		return request, nil
	}
	assigned, err := s.assignDoctor(ctx, request.ID, doctor, patient, "create")
	if err != nil {
		s.logger.Warn("creation-time assignment failed, request stays pending",
			"request_id", request.ID, "doctor", doctor, "error", err)
		return request, nil
	}
	return assigned, nil
}

// GetRequest loads a request with its audit trail.
func (s *Service) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	request, err := s.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "request %q not found", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
	}
	return request, nil
}

func (s *Service) ListRequestsByPatient(ctx context.Context, patient string) ([]*models.Request, error) {
	requests, err := s.store.ListByPatient(ctx, patient)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list requests")
	}
	return requests, nil
}

func (s *Service) ListRequestsByDoctor(ctx context.Context, doctor string) ([]*models.Request, error) {
	requests, err := s.store.ListByDoctor(ctx, doctor)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list requests")
	}
	return requests, nil
}

// pickDoctor resolves the creation-time assignment target: the preferred
// doctor when online and under the explicit-assignment load cap, otherwise
// the matcher's choice. Returns "" when nobody qualifies.
func (s *Service) pickDoctor(ctx context.Context, request *models.Request, preferredDoctor string) string {
	if preferredDoctor != "" {
		record, err := s.availability.GetDoctorAvailability(ctx, preferredDoctor)
		if err == nil && record.IsOnline && record.CurrentLoad < explicitAssignMaxLoad {
			return preferredDoctor
		}
		s.logger.Debug("preferred doctor not eligible, falling back to matcher",
			"request_id", request.ID, "doctor", preferredDoctor)
	}
	best, err := s.availability.FindBestMatchingDoctor(ctx, string(request.Category), request.PreferredSpecialties)
	if err != nil {
		s.logger.Warn("matching failed during creation", "request_id", request.ID, "error", err)
		return ""
	}
	if best == nil {
		return ""
	}
	return best.DoctorUsername
}

// assignDoctor performs the pending->assigned transition as a check-and-set:
// the status precondition inside Transition guarantees a request is assigned
// at most once, no matter how many callers race on it. The load increment
// follows the committed transition.
func (s *Service) assignDoctor(ctx context.Context, id, doctor, actor, trigger string) (*models.Request, error) {
	now := requestcontext.Now(ctx)
	updated, err := s.store.Transition(ctx, id, []models.Status{models.StatusPending}, func(r *models.Request) error {
		r.Status = models.StatusAssigned
		r.AssignedDoctorUsername = doctor
		r.UpdatedAt = now
		r.AppendNote(models.NoteTypeStatusChange, "assigned to doctor "+doctor, actor, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "request %q not found", id)
		}
		if errors.Is(err, sentinel.ErrStale) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "request %q is no longer pending", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign request")
	}

	if err := s.availability.UpdateDoctorLoad(ctx, doctor, 1); err != nil {
		// The assignment is committed; a vanished availability record only
		// costs a load count, which the clamp absorbs on completion.
		s.logger.Warn("failed to increment doctor load after assignment",
			"request_id", id, "doctor", doctor, "error", err)
	}
	s.metrics.IncRequestsAssigned(trigger)
	s.emit(ctx, notify.Event{
		Type:      notify.EventRequestAssigned,
		RequestID: id,
		Patient:   updated.PatientUsername,
		Doctor:    doctor,
		Status:    string(updated.Status),
		At:        now,
	})
	return updated, nil
}

func (s *Service) emit(ctx context.Context, event notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("notification delivery failed",
			"type", string(event.Type), "request_id", event.RequestID, "error", err)
	}
}

// releaseDoctor decrements a doctor's load after a request leaves the
// assigned/accepted pipeline. Failures are logged, not surfaced; the request
// transition already committed.
func (s *Service) releaseDoctor(ctx context.Context, requestID, doctor string) {
	if doctor == "" {
		return
	}
	if err := s.availability.UpdateDoctorLoad(ctx, doctor, -1); err != nil {
		s.logger.Warn("failed to decrement doctor load",
			"request_id", requestID, "doctor", doctor, "error", err)
	}
}
