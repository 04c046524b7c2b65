package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusCheckedIn  Status = "checked_in"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

var allStatuses = []Status{
	StatusPending,
	StatusScheduled,
	StatusCheckedIn,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

func (s Status) IsValid() bool {
	for _, v := range allStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ParseStatus converts a wire value into a Status, rejecting unknown values.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", newError(KindInvalidTransition, "unknown status %q", raw)
	}
	return s, nil
}

func (s Status) Ptr() *Status {
	return &s
}

type ChangeType string

const (
	ChangeStatus           ChangeType = "status_change"
	ChangeStatusReversion  ChangeType = "status_reversion"
	ChangeDoctorAssignment ChangeType = "doctor_assignment"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clinician is a doctor that can be assigned to an appointment.
type Clinician struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	ServiceID   uuid.UUID
	DoctorID    *uuid.UUID
	Status      Status
	CheckedInAt *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a Appointment) clone() Appointment {
	c := a
	c.DoctorID = copyUUID(a.DoctorID)
	c.CheckedInAt = copyTime(a.CheckedInAt)
	c.StartedAt = copyTime(a.StartedAt)
	c.CompletedAt = copyTime(a.CompletedAt)
	return c
}

// HistoryEntry is an immutable ledger record. Status fields are nil on
// doctor assignments; FromStatus is nil on the entry that created the
// appointment.
type HistoryEntry struct {
	ID               uuid.UUID
	Seq              int64
	AppointmentID    uuid.UUID
	ChangeType       ChangeType
	FromStatus       *Status
	ToStatus         *Status
	Reason           string
	ActorID          string
	PreviousDoctorID *uuid.UUID
	NewDoctorID      *uuid.UUID
	RevertedEntryID  *uuid.UUID
	IdempotencyKey   string
	CreatedAt        time.Time
}

// EventLog is an outbox row written in the same transaction as a ledger entry.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type NewAppointment struct {
	PatientID uuid.UUID
	ServiceID uuid.UUID
	DoctorID  *uuid.UUID
	ActorID   string
}

// Change is the unit of work committed by the repository: the appointment
// state the caller read, the state to write, and the ledger entry recording it.
type Change struct {
	ExpectedVersion int64
	Appointment     Appointment
	Entry           HistoryEntry
	EventType       string
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
