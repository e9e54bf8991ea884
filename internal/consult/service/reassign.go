package service

import (
	"context"
	"errors"

	"carematch/internal/consult/models"
	"carematch/internal/notify"
	dErrors "carematch/pkg/domain-errors"
	"carematch/pkg/platform/sentinel"
	"carematch/pkg/requestcontext"
)

// ReassignRequest moves an assigned or accepted request to a different
// doctor. The target must be online and under the explicit-assignment load
// cap; otherwise CodeConflict and the original assignment is untouched.
func (s *Service) ReassignRequest(ctx context.Context, id, newDoctor, actor string) (*models.Request, error) {
	for attempt := 0; attempt < transitionAttempts; attempt++ {
		current, err := s.store.Find(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.Newf(dErrors.CodeNotFound, "request %q not found", id)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
		}
		if current.Status != models.StatusAssigned && current.Status != models.StatusAccepted {
			return nil, dErrors.Newf(dErrors.CodeValidation,
				"cannot reassign request in status %s", current.Status)
		}
		if current.AssignedDoctorUsername == newDoctor {
			return nil, dErrors.Newf(dErrors.CodeConflict,
				"request already assigned to doctor %q", newDoctor)
		}

		target, err := s.availability.GetDoctorAvailability(ctx, newDoctor)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return nil, err
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check doctor availability")
		}
		if !target.IsOnline {
			return nil, dErrors.Newf(dErrors.CodeConflict, "doctor %q is offline", newDoctor)
		}
		if target.CurrentLoad >= explicitAssignMaxLoad {
			return nil, dErrors.Newf(dErrors.CodeConflict,
				"doctor %q is at capacity (load %d)", newDoctor, target.CurrentLoad)
		}

		previousStatus := current.Status
		previousDoctor := current.AssignedDoctorUsername
		now := requestcontext.Now(ctx)

		updated, err := s.store.Transition(ctx, id, []models.Status{previousStatus}, func(r *models.Request) error {
			r.Status = models.StatusAssigned
			r.AssignedDoctorUsername = newDoctor
			r.AcceptedAt = nil
			r.ScheduledAt = nil
			r.UpdatedAt = now
			r.AppendNote(models.NoteTypeReassignment,
				"reassigned from doctor "+previousDoctor+" to doctor "+newDoctor, actor, now)
			return nil
		})
		if err != nil {
			if errors.Is(err, sentinel.ErrStale) {
				continue
			}
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.Newf(dErrors.CodeNotFound, "request %q not found", id)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reassign request")
		}

		s.releaseDoctor(ctx, id, previousDoctor)
		if err := s.availability.UpdateDoctorLoad(ctx, newDoctor, 1); err != nil {
			s.logger.Warn("failed to increment doctor load after reassignment",
				"request_id", id, "doctor", newDoctor, "error", err)
		}
		s.metrics.IncRequestsAssigned("reassign")
		s.emit(ctx, notify.Event{
			Type:      notify.EventRequestReassigned,
			RequestID: id,
			Patient:   updated.PatientUsername,
			Doctor:    newDoctor,
			Status:    string(updated.Status),
			At:        now,
		})
		return updated, nil
	}
	return nil, dErrors.Newf(dErrors.CodeConcurrency,
		"request %q reassignment lost its race after %d attempts", id, transitionAttempts)
}
