package medicalrecord

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRecordNotFound          = errors.New("medical record not found")
	ErrRecordExists            = errors.New("appointment already has a medical record")
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrAppointmentNotCompleted = errors.New("appointment is not completed")
	ErrCheckerUnavailable      = errors.New("medical record lookup unavailable")
)

// Diagnosis is a coded finding attached to a record.
type Diagnosis struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Record is owned by the medical records workflow. The lifecycle engine only
// asks whether one exists for an appointment.
type Record struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	DoctorID      *uuid.UUID
	Notes         string
	Diagnoses     []Diagnosis
	CreatedBy     string
	CreatedAt     time.Time
}

type CreateCommand struct {
	AppointmentID uuid.UUID
	Notes         string
	Diagnoses     []Diagnosis
	CreatedBy     string
}
