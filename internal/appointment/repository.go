package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the engine.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateAppointment inserts a pending appointment together with its
	// opening ledger entry.
	CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, *HistoryEntry, error)

	// Commit writes c.Appointment only if the stored version still equals
	// c.ExpectedVersion, and appends c.Entry in the same transaction.
	// A version mismatch returns ErrConcurrentModification and writes nothing.
	Commit(ctx context.Context, c Change) (*Appointment, *HistoryEntry, error)

	Ledger
}

// Ledger is the read side of the append-only status history.
type Ledger interface {
	// ListHistory returns every entry for the appointment, oldest first.
	ListHistory(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error)
	GetHistoryEntry(ctx context.Context, id uuid.UUID) (*HistoryEntry, error)

	// LastStatusChange returns the most recent status_change entry that has a
	// from status, or ErrHistoryEntryNotFound.
	LastStatusChange(ctx context.Context, appointmentID uuid.UUID) (*HistoryEntry, error)

	// LatestStatusEntry returns the most recent status_change or
	// status_reversion entry, or ErrHistoryEntryNotFound.
	LatestStatusEntry(ctx context.Context, appointmentID uuid.UUID) (*HistoryEntry, error)

	FindByIdempotencyKey(ctx context.Context, appointmentID uuid.UUID, key string) (*HistoryEntry, error)
}
