package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"carematch/internal/availability/models"
	"carematch/pkg/platform/sentinel"
)

// Postgres persists availability records in PostgreSQL. Load mutations go
// through an atomic UPDATE with a GREATEST clamp rather than read-modify-write,
// so concurrent assignment and completion events cannot lose counts.
//
// Expected schema:
//
//	CREATE TABLE doctor_availability (
//	    doctor_username TEXT PRIMARY KEY,
//	    is_online       BOOLEAN NOT NULL,
//	    specialties     TEXT[] NOT NULL DEFAULT '{}',
//	    current_load    INT NOT NULL DEFAULT 0 CHECK (current_load >= 0),
//	    last_seen       TIMESTAMPTZ NOT NULL,
//	    updated_at      TIMESTAMPTZ NOT NULL
//	);
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Upsert(ctx context.Context, record *models.DoctorAvailability) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO doctor_availability
			(doctor_username, is_online, specialties, current_load, last_seen, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5)
		ON CONFLICT (doctor_username) DO UPDATE SET
			is_online   = EXCLUDED.is_online,
			specialties = EXCLUDED.specialties,
			last_seen   = EXCLUDED.last_seen,
			updated_at  = EXCLUDED.updated_at`,
		record.DoctorUsername, record.IsOnline, pq.Array(record.Specialties),
		record.LastSeen, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert availability: %w", err)
	}
	return nil
}

func (s *Postgres) Find(ctx context.Context, username string) (*models.DoctorAvailability, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doctor_username, is_online, specialties, current_load, last_seen, updated_at
		FROM doctor_availability
		WHERE doctor_username = $1`, username)
	record, err := scanAvailability(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find availability: %w", err)
	}
	return record, nil
}

func (s *Postgres) Query(ctx context.Context, filters models.Filters) ([]*models.DoctorAvailability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doctor_username, is_online, specialties, current_load, last_seen, updated_at
		FROM doctor_availability
		WHERE is_online AND current_load <= $1
		ORDER BY current_load ASC, last_seen DESC
		LIMIT $2`, filters.MaxLoad, filters.Limit)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	var matched []*models.DoctorAvailability
	for rows.Next() {
		record, err := scanAvailability(rows)
		if err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		matched = append(matched, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	return matched, nil
}

// IncrementLoad applies max(0, current_load+delta) in a single statement.
func (s *Postgres) IncrementLoad(ctx context.Context, username string, delta int) (int, error) {
	var newLoad int
	err := s.db.QueryRowContext(ctx, `
		UPDATE doctor_availability
		SET current_load = GREATEST(0, current_load + $2), updated_at = NOW()
		WHERE doctor_username = $1
		RETURNING current_load`, username, delta).Scan(&newLoad)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("increment load: %w", err)
	}
	return newLoad, nil
}

func (s *Postgres) SetOnline(ctx context.Context, username string, online bool, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE doctor_availability
		SET is_online = $2, updated_at = $3
		WHERE doctor_username = $1`, username, online, at)
	if err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) FindStale(ctx context.Context, cutoff time.Time) ([]*models.DoctorAvailability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doctor_username, is_online, specialties, current_load, last_seen, updated_at
		FROM doctor_availability
		WHERE is_online AND last_seen < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find stale availability: %w", err)
	}
	defer rows.Close()

	var stale []*models.DoctorAvailability
	for rows.Next() {
		record, err := scanAvailability(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale availability: %w", err)
		}
		stale = append(stale, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find stale availability: %w", err)
	}
	return stale, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAvailability(row rowScanner) (*models.DoctorAvailability, error) {
	var record models.DoctorAvailability
	var specialties pq.StringArray
	if err := row.Scan(
		&record.DoctorUsername, &record.IsOnline, &specialties,
		&record.CurrentLoad, &record.LastSeen, &record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	record.Specialties = []string(specialties)
	return &record, nil
}
