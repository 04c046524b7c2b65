package appointment

import (
	"context"

	"github.com/google/uuid"
)

// DoctorDirectory resolves doctor ids. It is consulted only to reject unknown ids.
type DoctorDirectory interface {
	GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error)
}

// CanAssignDoctor reports whether the doctor on a may still be changed: the
// status is pending or scheduled and CheckedInAt is unset. Reverting a
// check-in clears CheckedInAt, which reopens assignment.
func CanAssignDoctor(a Appointment) bool {
	if a.CheckedInAt != nil {
		return false
	}
	return a.Status == StatusPending || a.Status == StatusScheduled
}

func checkDoctorAssignment(a Appointment, doctorID *uuid.UUID) error {
	if !CanAssignDoctor(a) {
		if a.CheckedInAt != nil {
			return newError(KindDoctorAssignmentNotAllowed, "patient already checked in; doctor is frozen")
		}
		return newError(KindDoctorAssignmentNotAllowed, "doctor cannot be changed while appointment is %s", a.Status)
	}
	if sameDoctor(a.DoctorID, doctorID) {
		if doctorID == nil {
			return newError(KindDoctorAssignmentNotAllowed, "no doctor is assigned")
		}
		return newError(KindDoctorAssignmentNotAllowed, "doctor %s is already assigned", doctorID)
	}
	return nil
}

func sameDoctor(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
