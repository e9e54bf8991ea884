// Package matching scores availability candidates against a request's
// preferred specialties. It has no storage and no side effects; callers feed
// it candidates already filtered and ordered by the availability registry.
package matching

import (
	"sort"
	"time"

	"carematch/internal/availability/models"
)

const (
	baseScore          = 10
	specialtyScore     = 20
	loadPenalty        = 5
	recencyBonusFresh  = 15
	recencyBonusRecent = 10
	recencyBonusStale  = 5
)

// Score rates a candidate: a flat base for being available, a bonus per
// specialty shared with the preferred set, a penalty per unit of current
// load, and a bonus for having been seen recently.
func Score(doctor *models.DoctorAvailability, preferred []string, now time.Time) int {
	score := baseScore
	score += specialtyScore * len(doctor.MatchingSpecialties(preferred))
	score -= loadPenalty * doctor.CurrentLoad
	score += recencyBonus(now.Sub(doctor.LastSeen))
	return score
}

func recencyBonus(sinceLastSeen time.Duration) int {
	switch {
	case sinceLastSeen < 5*time.Minute:
		return recencyBonusFresh
	case sinceLastSeen < 15*time.Minute:
		return recencyBonusRecent
	case sinceLastSeen < time.Hour:
		return recencyBonusStale
	default:
		return 0
	}
}

// FindBestMatch returns the highest-scoring candidate, or nil when the list
// is empty. The sort is stable, so ties keep the caller's ordering (load
// ascending, then most recently seen first) and identical inputs always
// produce the same winner.
func FindBestMatch(candidates []*models.DoctorAvailability, preferred []string, now time.Time) *models.DoctorAvailability {
	if len(candidates) == 0 {
		return nil
	}
	ranked := make([]*models.DoctorAvailability, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Score(ranked[i], preferred, now) > Score(ranked[j], preferred, now)
	})
	return ranked[0]
}
