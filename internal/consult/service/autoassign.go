package service

import (
	"context"

	dErrors "carematch/pkg/domain-errors"
)

// autoAssignBatch caps how many pending requests one run considers.
const autoAssignBatch = 20

// AutoAssignPendingRequests matches the oldest pending requests to available
// doctors. Availability is re-checked per request, immediately before each
// assignment, so a doctor going offline or filling up mid-batch is seen.
// Per-item failures are logged and never abort the batch. Returns the number
// of requests assigned.
func (s *Service) AutoAssignPendingRequests(ctx context.Context) (int, error) {
	pending, err := s.store.ListPending(ctx, autoAssignBatch)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending requests")
	}
	s.metrics.IncAutoAssignRuns()

	assigned := 0
	for _, request := range pending {
		candidate, err := s.availability.FindBestMatchingDoctor(ctx,
			string(request.Category), request.PreferredSpecialties)
		if err != nil {
			s.logger.Warn("auto-assign matching failed",
				"request_id", request.ID, "error", err)
			continue
		}
		if candidate == nil {
			continue
		}
		if _, err := s.assignDoctor(ctx, request.ID, candidate.DoctorUsername, systemActor, "auto"); err != nil {
			// CodeConflict here means another writer took the request first;
			// that is expected interleaving, not a fault.
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				s.logger.Debug("request no longer pending, skipping",
					"request_id", request.ID)
				continue
			}
			s.logger.Warn("auto-assign failed",
				"request_id", request.ID, "doctor", candidate.DoctorUsername, "error", err)
			continue
		}
		assigned++
	}
	if assigned > 0 {
		s.logger.Info("auto-assigned pending requests", "assigned", assigned, "considered", len(pending))
	}
	return assigned, nil
}
