package service

import (
	"context"
	"errors"
	"time"

	"carematch/internal/consult/models"
	"carematch/internal/notify"
	dErrors "carematch/pkg/domain-errors"
	"carematch/pkg/platform/sentinel"
	"carematch/pkg/requestcontext"
)

// UpdateExtra carries transition-specific caller input.
type UpdateExtra struct {
	RejectionReason string
	ScheduledAt     *time.Time
}

// UpdateStatus drives the request state machine. Each successful transition
// appends exactly one audit note; transitions leaving the active pipeline
// release the assigned doctor's load slot. The status write is conditional
// on the status the caller's validation saw, retried up to transitionAttempts
// times before surfacing CodeConcurrency.
func (s *Service) UpdateStatus(ctx context.Context, id string, newStatus models.Status, actor string, extra UpdateExtra) (*models.Request, error) {
	if !newStatus.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid status %q", newStatus)
	}
	if newStatus == models.StatusAssigned {
		// Assignment carries a doctor and goes through creation, the
		// auto-assign loop, or reassignment, never a bare status update.
		return nil, dErrors.New(dErrors.CodeValidation, "assignment requires a doctor; use reassignment")
	}

	for attempt := 0; attempt < transitionAttempts; attempt++ {
		current, err := s.store.Find(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.Newf(dErrors.CodeNotFound, "request %q not found", id)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
		}
		if !current.Status.CanTransitionTo(newStatus) {
			return nil, dErrors.Newf(dErrors.CodeValidation,
				"cannot transition request from %s to %s", current.Status, newStatus)
		}
		if newStatus == models.StatusRejected && extra.RejectionReason == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "rejection requires a reason")
		}

		previousStatus := current.Status
		previousDoctor := current.AssignedDoctorUsername
		now := requestcontext.Now(ctx)

		updated, err := s.store.Transition(ctx, id, []models.Status{previousStatus}, func(r *models.Request) error {
			applyStatus(r, newStatus, extra, now)
			r.AppendNote(models.NoteTypeStatusChange,
				"status changed from "+string(previousStatus)+" to "+string(newStatus), actor, now)
			return nil
		})
		if err != nil {
			if errors.Is(err, sentinel.ErrStale) {
				continue
			}
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.Newf(dErrors.CodeNotFound, "request %q not found", id)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update request status")
		}

		if releasesDoctor(newStatus) {
			s.releaseDoctor(ctx, id, previousDoctor)
		}
		s.metrics.IncStatusTransition(string(newStatus))
		s.emit(ctx, notify.Event{
			Type:      notify.EventStatusChanged,
			RequestID: id,
			Patient:   updated.PatientUsername,
			Doctor:    previousDoctor,
			Status:    string(newStatus),
			At:        now,
		})
		return updated, nil
	}
	return nil, dErrors.Newf(dErrors.CodeConcurrency,
		"request %q status update lost its race after %d attempts", id, transitionAttempts)
}

// AddNote appends a comment to the request's audit trail. Notes are allowed
// in any state, including terminal ones.
func (s *Service) AddNote(ctx context.Context, id, content, author string) (*models.Request, error) {
	if content == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "note content is required")
	}
	now := requestcontext.Now(ctx)
	updated, err := s.store.Transition(ctx, id, anyStatus(), func(r *models.Request) error {
		r.AppendNote(models.NoteTypeComment, content, author, now)
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "request %q not found", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add note")
	}
	return updated, nil
}

// applyStatus sets the target status and its bookkeeping fields. The
// assigned-doctor field survives only in states where the invariant allows
// it: assigned, accepted, completed.
func applyStatus(r *models.Request, newStatus models.Status, extra UpdateExtra, now time.Time) {
	r.Status = newStatus
	r.UpdatedAt = now
	switch newStatus {
	case models.StatusAccepted:
		acceptedAt := now
		r.AcceptedAt = &acceptedAt
		if extra.ScheduledAt != nil {
			scheduledAt := *extra.ScheduledAt
			r.ScheduledAt = &scheduledAt
		}
	case models.StatusRejected:
		r.RejectionReason = extra.RejectionReason
		r.AssignedDoctorUsername = ""
	case models.StatusCompleted:
		completedAt := now
		r.CompletedAt = &completedAt
	case models.StatusCancelled:
		r.AssignedDoctorUsername = ""
	}
}

// releasesDoctor reports whether entering the status frees the assigned
// doctor's load slot.
func releasesDoctor(status models.Status) bool {
	return status == models.StatusRejected ||
		status == models.StatusCompleted ||
		status == models.StatusCancelled
}

func anyStatus() []models.Status {
	return []models.Status{
		models.StatusPending, models.StatusAssigned, models.StatusAccepted,
		models.StatusRejected, models.StatusCompleted, models.StatusCancelled,
	}
}
