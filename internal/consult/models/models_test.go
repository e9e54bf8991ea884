package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "carematch/pkg/domain-errors"
)

func TestParseCategory(t *testing.T) {
	category, err := ParseCategory("cardiology")
	require.NoError(t, err)
	assert.Equal(t, CategoryCardiology, category)

	_, err = ParseCategory("phrenology")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestParseUrgency(t *testing.T) {
	urgency, err := ParseUrgency("")
	require.NoError(t, err)
	assert.Equal(t, UrgencyMedium, urgency)

	urgency, err = ParseUrgency("emergency")
	require.NoError(t, err)
	assert.Equal(t, UrgencyEmergency, urgency)

	_, err = ParseUrgency("asap")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusAssigned, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusAccepted, false},
		{StatusAssigned, StatusAccepted, true},
		{StatusAssigned, StatusRejected, true},
		{StatusAssigned, StatusCompleted, true},
		{StatusAssigned, StatusCancelled, true},
		{StatusAccepted, StatusCompleted, true},
		{StatusAccepted, StatusRejected, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusAssigned, false},
		{StatusRejected, StatusAssigned, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	for _, status := range []Status{StatusRejected, StatusCompleted, StatusCancelled} {
		assert.True(t, status.IsTerminal(), string(status))
	}
	for _, status := range []Status{StatusPending, StatusAssigned, StatusAccepted} {
		assert.False(t, status.IsTerminal(), string(status))
	}
}

func TestRequestCloneIsolation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	original := &Request{
		ID:                   "req-1",
		PatientUsername:      "alice",
		Category:             CategoryGeneral,
		Urgency:              UrgencyLow,
		Status:               StatusPending,
		PreferredSpecialties: []string{"General"},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	original.AppendNote(NoteTypeComment, "first", "alice", now)

	clone := original.Clone()
	clone.Status = StatusCancelled
	clone.PreferredSpecialties[0] = "Dental"
	clone.AppendNote(NoteTypeComment, "second", "alice", now)

	assert.Equal(t, StatusPending, original.Status)
	assert.Equal(t, "General", original.PreferredSpecialties[0])
	assert.Len(t, original.Notes, 1)
	assert.Len(t, clone.Notes, 2)
}
