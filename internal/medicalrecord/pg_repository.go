package medicalrecord

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) HasRecord(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM medical_records WHERE appointment_id = $1)
	`, appointmentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query medical record: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, patient_id, doctor_id, notes, diagnoses, created_by, created_at
		FROM medical_records
		WHERE appointment_id = $1
	`, appointmentID).Scan(
		&rec.ID,
		&rec.AppointmentID,
		&rec.PatientID,
		&rec.DoctorID,
		&rec.Notes,
		&rec.Diagnoses,
		&rec.CreatedBy,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Create stores the record for a completed appointment. The appointment's
// version is bumped in the same transaction so a revert that read the
// appointment before the record existed loses its version check.
func (r *PgRepository) Create(ctx context.Context, cmd CreateCommand) (*Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec := Record{
		ID:            uuid.New(),
		AppointmentID: cmd.AppointmentID,
		Notes:         cmd.Notes,
		Diagnoses:     cmd.Diagnoses,
		CreatedBy:     cmd.CreatedBy,
	}
	if rec.Diagnoses == nil {
		rec.Diagnoses = []Diagnosis{}
	}

	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'completed'
		RETURNING patient_id, doctor_id
	`, cmd.AppointmentID).Scan(&rec.PatientID, &rec.DoctorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missingOrNotCompleted(ctx, tx, cmd.AppointmentID)
		}
		return nil, fmt.Errorf("lock appointment: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO medical_records (id, appointment_id, patient_id, doctor_id, notes, diagnoses, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING created_at
	`, rec.ID, rec.AppointmentID, rec.PatientID, rec.DoctorID, rec.Notes, rec.Diagnoses, rec.CreatedBy).Scan(&rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrRecordExists
		}
		return nil, fmt.Errorf("insert medical record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &rec, nil
}

// missingOrNotCompleted tells apart the two ways the guarded update above can
// match no row.
func (r *PgRepository) missingOrNotCompleted(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID) error {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, appointmentID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check appointment: %w", err)
	}
	if !exists {
		return ErrAppointmentNotFound
	}
	return ErrAppointmentNotCompleted
}
