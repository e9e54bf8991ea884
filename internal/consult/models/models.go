package models

import (
	"time"

	dErrors "carematch/pkg/domain-errors"
)

// Category is the fixed set of health categories a request can target.
type Category string

const (
	CategoryGeneral       Category = "general"
	CategoryCardiology    Category = "cardiology"
	CategoryDermatology   Category = "dermatology"
	CategoryPediatrics    Category = "pediatrics"
	CategoryPsychiatry    Category = "psychiatry"
	CategoryOrthopedics   Category = "orthopedics"
	CategoryNeurology     Category = "neurology"
	CategoryGynecology    Category = "gynecology"
	CategoryOphthalmology Category = "ophthalmology"
	CategoryDental        Category = "dental"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryGeneral, CategoryCardiology, CategoryDermatology,
		CategoryPediatrics, CategoryPsychiatry, CategoryOrthopedics,
		CategoryNeurology, CategoryGynecology, CategoryOphthalmology,
		CategoryDental:
		return true
	}
	return false
}

// ParseCategory validates a category string.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid category %q", s)
	}
	return c, nil
}

// Urgency orders how quickly a request needs attention.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyEmergency:
		return true
	}
	return false
}

// ParseUrgency validates an urgency string. Empty defaults to medium.
func ParseUrgency(s string) (Urgency, error) {
	if s == "" {
		return UrgencyMedium, nil
	}
	u := Urgency(s)
	if !u.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid urgency %q", s)
	}
	return u, nil
}

// Status is the consultation request state machine.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusAccepted,
		StatusRejected, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, error) {
	s := Status(value)
	if !s.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid status %q", value)
	}
	return s, nil
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusCancelled
}

// allowedTransitions is the full state machine. Cancellation is reachable
// from every active state; terminal states have no exits.
var allowedTransitions = map[Status][]Status{
	StatusPending:  {StatusAssigned, StatusCancelled},
	StatusAssigned: {StatusAccepted, StatusRejected, StatusCompleted, StatusCancelled},
	StatusAccepted: {StatusRejected, StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether the state machine permits s -> next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NoteType classifies audit notes on a request.
type NoteType string

const (
	NoteTypeStatusChange NoteType = "status_change"
	NoteTypeReassignment NoteType = "reassignment"
	NoteTypeComment      NoteType = "comment"
)

// Note is one entry in a request's append-only audit trail.
type Note struct {
	Type      NoteType  `json:"type"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Request is a patient's consultation request. AssignedDoctorUsername is
// non-empty only while Status is assigned, accepted, or completed.
type Request struct {
	ID                     string     `json:"id"`
	PatientUsername        string     `json:"patient_username"`
	AssignedDoctorUsername string     `json:"assigned_doctor_username,omitempty"`
	Category               Category   `json:"category"`
	Description            string     `json:"description"`
	PreferredSpecialties   []string   `json:"preferred_specialties,omitempty"`
	Urgency                Urgency    `json:"urgency"`
	Status                 Status     `json:"status"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
	AcceptedAt             *time.Time `json:"accepted_at,omitempty"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
	ScheduledAt            *time.Time `json:"scheduled_at,omitempty"`
	RejectionReason        string     `json:"rejection_reason,omitempty"`
	Notes                  []Note     `json:"notes"`
}

// Clone returns a deep copy so store callers cannot alias internal state.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.PreferredSpecialties = append([]string(nil), r.PreferredSpecialties...)
	clone.Notes = append([]Note(nil), r.Notes...)
	clone.AcceptedAt = cloneTime(r.AcceptedAt)
	clone.CompletedAt = cloneTime(r.CompletedAt)
	clone.ScheduledAt = cloneTime(r.ScheduledAt)
	return &clone
}

// AppendNote adds an audit entry. Notes are never removed or reordered.
func (r *Request) AppendNote(noteType NoteType, content, createdBy string, at time.Time) {
	r.Notes = append(r.Notes, Note{
		Type:      noteType,
		Content:   content,
		CreatedBy: createdBy,
		CreatedAt: at,
	})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
