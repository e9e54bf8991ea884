package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carematch/internal/availability/models"
)

func candidate(username string, load int, lastSeen time.Time, specialties ...string) *models.DoctorAvailability {
	return &models.DoctorAvailability{
		DoctorUsername: username,
		IsOnline:       true,
		Specialties:    specialties,
		CurrentLoad:    load,
		LastSeen:       lastSeen,
	}
}

func TestScore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("base score for a candidate with nothing else", func(t *testing.T) {
		d := candidate("drA", 0, now.Add(-2*time.Hour))
		require.Equal(t, 10, Score(d, nil, now))
	})

	t.Run("each matching specialty adds exactly 20", func(t *testing.T) {
		preferred := []string{"Cardiology", "General"}
		one := candidate("drA", 0, now.Add(-2*time.Hour), "Cardiology")
		two := candidate("drB", 0, now.Add(-2*time.Hour), "Cardiology", "General")
		require.Equal(t, Score(one, preferred, now)+20, Score(two, preferred, now))
	})

	t.Run("unrelated specialties score nothing", func(t *testing.T) {
		d := candidate("drA", 0, now.Add(-2*time.Hour), "Dermatology")
		require.Equal(t, 10, Score(d, []string{"Cardiology"}, now))
	})

	t.Run("load subtracts 5 per active request", func(t *testing.T) {
		d := candidate("drA", 3, now.Add(-2*time.Hour))
		require.Equal(t, 10-15, Score(d, nil, now))
	})

	t.Run("recency bonus tiers", func(t *testing.T) {
		cases := []struct {
			sinceLastSeen time.Duration
			want          int
		}{
			{time.Minute, 25},
			{10 * time.Minute, 20},
			{30 * time.Minute, 15},
			{2 * time.Hour, 10},
		}
		for _, tc := range cases {
			d := candidate("drA", 0, now.Add(-tc.sinceLastSeen))
			require.Equal(t, tc.want, Score(d, nil, now), "last seen %s ago", tc.sinceLastSeen)
		}
	})
}

func TestFindBestMatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty candidate list returns nil", func(t *testing.T) {
		require.Nil(t, FindBestMatch(nil, []string{"Cardiology"}, now))
	})

	t.Run("lower load wins over extra unmatched specialty", func(t *testing.T) {
		// With preferred=[Cardiology] and equal recency the idle doctor
		// scores 45 against the loaded doctor's 40.
		loaded := candidate("loaded", 1, now, "Cardiology")
		idle := candidate("idle", 0, now, "Cardiology", "General")
		best := FindBestMatch([]*models.DoctorAvailability{loaded, idle}, []string{"Cardiology"}, now)
		require.Equal(t, "idle", best.DoctorUsername)
	})

	t.Run("ties preserve input order", func(t *testing.T) {
		first := candidate("first", 0, now, "Cardiology")
		second := candidate("second", 0, now, "Cardiology")
		candidates := []*models.DoctorAvailability{first, second}

		best := FindBestMatch(candidates, []string{"Cardiology"}, now)
		require.Equal(t, "first", best.DoctorUsername)

		// Identical inputs are reproducible and do not reorder the slice.
		again := FindBestMatch(candidates, []string{"Cardiology"}, now)
		require.Equal(t, "first", again.DoctorUsername)
		require.Equal(t, "first", candidates[0].DoctorUsername)
	})
}
