package appointment

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCanAssignDoctor(t *testing.T) {
	checkedIn := time.Now()

	tests := []struct {
		name string
		appt Appointment
		want bool
	}{
		{"pending", Appointment{Status: StatusPending}, true},
		{"scheduled", Appointment{Status: StatusScheduled}, true},
		{"scheduled after check-in", Appointment{Status: StatusScheduled, CheckedInAt: &checkedIn}, false},
		{"checked in", Appointment{Status: StatusCheckedIn, CheckedInAt: &checkedIn}, false},
		{"in progress", Appointment{Status: StatusInProgress, CheckedInAt: &checkedIn}, false},
		{"completed", Appointment{Status: StatusCompleted, CheckedInAt: &checkedIn}, false},
		{"cancelled", Appointment{Status: StatusCancelled}, false},
		{"no show", Appointment{Status: StatusNoShow}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAssignDoctor(tt.appt); got != tt.want {
				t.Errorf("CanAssignDoctor = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckDoctorAssignment(t *testing.T) {
	d1 := uuid.New()
	d2 := uuid.New()

	if err := checkDoctorAssignment(Appointment{Status: StatusPending}, &d1); err != nil {
		t.Errorf("assigning to an unassigned pending appointment: %v", err)
	}
	if err := checkDoctorAssignment(Appointment{Status: StatusScheduled, DoctorID: &d1}, &d2); err != nil {
		t.Errorf("reassigning: %v", err)
	}
	if err := checkDoctorAssignment(Appointment{Status: StatusScheduled, DoctorID: &d1}, nil); err != nil {
		t.Errorf("unassigning: %v", err)
	}

	rejected := []struct {
		name   string
		appt   Appointment
		doctor *uuid.UUID
	}{
		{"same doctor", Appointment{Status: StatusPending, DoctorID: &d1}, &d1},
		{"unassign nobody", Appointment{Status: StatusPending}, nil},
		{"checked in", Appointment{Status: StatusCheckedIn}, &d2},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			err := checkDoctorAssignment(tt.appt, tt.doctor)
			if !errors.Is(err, ErrDoctorAssignmentNotAllowed) {
				t.Errorf("expected doctor_assignment_not_allowed, got %v", err)
			}
		})
	}
}
