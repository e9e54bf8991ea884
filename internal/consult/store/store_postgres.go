package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"carematch/internal/consult/models"
	"carematch/pkg/platform/sentinel"
)

// Postgres persists consultation requests and their append-only notes.
// Transition takes a row lock so a status check and its write are one
// atomic step; two schedulers racing on the same pending request cannot
// both assign it.
//
// Expected schema:
//
//	CREATE TABLE consultation_requests (
//	    id                       TEXT PRIMARY KEY,
//	    patient_username         TEXT NOT NULL,
//	    assigned_doctor_username TEXT,
//	    category                 TEXT NOT NULL,
//	    description              TEXT NOT NULL DEFAULT '',
//	    preferred_specialties    TEXT[] NOT NULL DEFAULT '{}',
//	    urgency                  TEXT NOT NULL,
//	    status                   TEXT NOT NULL,
//	    created_at               TIMESTAMPTZ NOT NULL,
//	    updated_at               TIMESTAMPTZ NOT NULL,
//	    accepted_at              TIMESTAMPTZ,
//	    completed_at             TIMESTAMPTZ,
//	    scheduled_at             TIMESTAMPTZ,
//	    rejection_reason         TEXT NOT NULL DEFAULT ''
//	);
//
//	CREATE TABLE consultation_request_notes (
//	    request_id TEXT NOT NULL REFERENCES consultation_requests(id),
//	    seq        INT NOT NULL,
//	    note_type  TEXT NOT NULL,
//	    content    TEXT NOT NULL,
//	    created_by TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (request_id, seq)
//	);
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const requestColumns = `id, patient_username, COALESCE(assigned_doctor_username, ''),
	category, description, preferred_specialties, urgency, status,
	created_at, updated_at, accepted_at, completed_at, scheduled_at, rejection_reason`

func (s *Postgres) Create(ctx context.Context, request *models.Request) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO consultation_requests
			(id, patient_username, assigned_doctor_username, category, description,
			 preferred_specialties, urgency, status, created_at, updated_at,
			 accepted_at, completed_at, scheduled_at, rejection_reason)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		request.ID, request.PatientUsername, request.AssignedDoctorUsername,
		string(request.Category), request.Description, pq.Array(request.PreferredSpecialties),
		string(request.Urgency), string(request.Status), request.CreatedAt, request.UpdatedAt,
		request.AcceptedAt, request.CompletedAt, request.ScheduledAt, request.RejectionReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert request: %w", err)
	}
	if err := insertNotes(ctx, tx, request.ID, 0, request.Notes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	return nil
}

func (s *Postgres) Find(ctx context.Context, id string) (*models.Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM consultation_requests WHERE id = $1`, id)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find request: %w", err)
	}
	if request.Notes, err = s.loadNotes(ctx, s.db, id); err != nil {
		return nil, err
	}
	return request, nil
}

func (s *Postgres) ListPending(ctx context.Context, limit int) ([]*models.Request, error) {
	return s.list(ctx, `SELECT `+requestColumns+`
		FROM consultation_requests
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`, string(models.StatusPending), limit)
}

func (s *Postgres) ListByPatient(ctx context.Context, patient string) ([]*models.Request, error) {
	return s.list(ctx, `SELECT `+requestColumns+`
		FROM consultation_requests
		WHERE patient_username = $1
		ORDER BY created_at ASC`, patient)
}

func (s *Postgres) ListByDoctor(ctx context.Context, doctor string) ([]*models.Request, error) {
	return s.list(ctx, `SELECT `+requestColumns+`
		FROM consultation_requests
		WHERE assigned_doctor_username = $1
		ORDER BY created_at ASC`, doctor)
}

// Transition locks the request row, re-checks the status precondition, and
// applies mutate inside the same transaction. ErrStale signals the
// precondition failed against current state.
func (s *Postgres) Transition(ctx context.Context, id string, expected []models.Status, mutate func(*models.Request) error) (*models.Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM consultation_requests WHERE id = $1 FOR UPDATE`, id)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock request: %w", err)
	}
	if !statusIn(request.Status, expected) {
		return nil, sentinel.ErrStale
	}
	if request.Notes, err = s.loadNotes(ctx, tx, id); err != nil {
		return nil, err
	}

	priorNotes := len(request.Notes)
	if err := mutate(request); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE consultation_requests SET
			assigned_doctor_username = NULLIF($2, ''),
			urgency = $3, status = $4, updated_at = $5,
			accepted_at = $6, completed_at = $7, scheduled_at = $8,
			rejection_reason = $9
		WHERE id = $1`,
		request.ID, request.AssignedDoctorUsername, string(request.Urgency),
		string(request.Status), request.UpdatedAt, request.AcceptedAt,
		request.CompletedAt, request.ScheduledAt, request.RejectionReason,
	)
	if err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}
	if err := insertNotes(ctx, tx, request.ID, priorNotes, request.Notes[priorNotes:]); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return request, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Postgres) list(ctx context.Context, query string, args ...any) ([]*models.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.Request
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	for _, request := range requests {
		if request.Notes, err = s.loadNotes(ctx, s.db, request.ID); err != nil {
			return nil, err
		}
	}
	return requests, nil
}

func (s *Postgres) loadNotes(ctx context.Context, q queryer, requestID string) ([]models.Note, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT note_type, content, created_by, created_at
		FROM consultation_request_notes
		WHERE request_id = $1
		ORDER BY seq ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		var note models.Note
		var noteType string
		if err := rows.Scan(&noteType, &note.Content, &note.CreatedBy, &note.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		note.Type = models.NoteType(noteType)
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	return notes, nil
}

func insertNotes(ctx context.Context, tx *sql.Tx, requestID string, startSeq int, notes []models.Note) error {
	for i, note := range notes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO consultation_request_notes
				(request_id, seq, note_type, content, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			requestID, startSeq+i, string(note.Type), note.Content, note.CreatedBy, note.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
	}
	return nil
}

func scanRequest(row interface{ Scan(dest ...any) error }) (*models.Request, error) {
	var request models.Request
	var category, urgency, status string
	var specialties pq.StringArray
	if err := row.Scan(
		&request.ID, &request.PatientUsername, &request.AssignedDoctorUsername,
		&category, &request.Description, &specialties, &urgency, &status,
		&request.CreatedAt, &request.UpdatedAt, &request.AcceptedAt,
		&request.CompletedAt, &request.ScheduledAt, &request.RejectionReason,
	); err != nil {
		return nil, err
	}
	request.Category = models.Category(category)
	request.Urgency = models.Urgency(urgency)
	request.Status = models.Status(status)
	request.PreferredSpecialties = []string(specialties)
	return &request, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
