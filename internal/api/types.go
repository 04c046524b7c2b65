package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/medicalrecord"
)

type CreateAppointmentRequest struct {
	PatientID string  `json:"patient_id"`
	ServiceID string  `json:"service_id"`
	DoctorID  *string `json:"doctor_id,omitempty"`
}

type TransitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type RevertRequest struct {
	HistoryEntryID string `json:"history_entry_id"`
	Reason         string `json:"reason"`
}

// AssignDoctorRequest unassigns when doctor_id is null or absent.
type AssignDoctorRequest struct {
	DoctorID *string `json:"doctor_id"`
	Reason   string  `json:"reason,omitempty"`
}

type CreateMedicalRecordRequest struct {
	Notes     string                    `json:"notes"`
	Diagnoses []medicalrecord.Diagnosis `json:"diagnoses,omitempty"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	ServiceID          uuid.UUID  `json:"service_id"`
	DoctorID           *uuid.UUID `json:"doctor_id"`
	Status             string     `json:"status"`
	CheckedInAt        *time.Time `json:"checked_in_at"`
	StartedAt          *time.Time `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	Version            int64      `json:"version"`
	AllowedTransitions []string   `json:"allowed_transitions"`
	CanAssignDoctor    bool       `json:"can_assign_doctor"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type HistoryEntryResponse struct {
	ID               uuid.UUID  `json:"id"`
	AppointmentID    uuid.UUID  `json:"appointment_id"`
	ChangeType       string     `json:"change_type"`
	FromStatus       *string    `json:"from_status"`
	ToStatus         *string    `json:"to_status"`
	Reason           string     `json:"reason,omitempty"`
	ActorID          string     `json:"actor_id,omitempty"`
	PreviousDoctorID *uuid.UUID `json:"previous_doctor_id,omitempty"`
	NewDoctorID      *uuid.UUID `json:"new_doctor_id,omitempty"`
	RevertedEntryID  *uuid.UUID `json:"reverted_entry_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type MutationResponse struct {
	Appointment       AppointmentResponse  `json:"appointment"`
	Entry             HistoryEntryResponse `json:"entry"`
	Replayed          bool                 `json:"replayed,omitempty"`
	ClearedMilestones []string             `json:"cleared_milestones,omitempty"`
}

type RevertPreviewResponse struct {
	Candidate         *HistoryEntryResponse `json:"candidate"`
	TargetStatus      string                `json:"target_status,omitempty"`
	ClearedMilestones []string              `json:"cleared_milestones"`
	ReasonRequired    bool                  `json:"reason_required"`
	Blocked           bool                  `json:"blocked"`
	BlockedReason     string                `json:"blocked_reason,omitempty"`
}

type MedicalRecordResponse struct {
	ID            uuid.UUID                 `json:"id"`
	AppointmentID uuid.UUID                 `json:"appointment_id"`
	PatientID     uuid.UUID                 `json:"patient_id"`
	DoctorID      *uuid.UUID                `json:"doctor_id"`
	Notes         string                    `json:"notes"`
	Diagnoses     []medicalrecord.Diagnosis `json:"diagnoses"`
	CreatedBy     string                    `json:"created_by,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	allowed := []string{}
	for _, s := range appointment.AllowedTransitions(a.Status) {
		allowed = append(allowed, string(s))
	}
	return AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		ServiceID:          a.ServiceID,
		DoctorID:           a.DoctorID,
		Status:             string(a.Status),
		CheckedInAt:        a.CheckedInAt,
		StartedAt:          a.StartedAt,
		CompletedAt:        a.CompletedAt,
		Version:            a.Version,
		AllowedTransitions: allowed,
		CanAssignDoctor:    appointment.CanAssignDoctor(*a),
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toHistoryEntryResponse(e *appointment.HistoryEntry) HistoryEntryResponse {
	return HistoryEntryResponse{
		ID:               e.ID,
		AppointmentID:    e.AppointmentID,
		ChangeType:       string(e.ChangeType),
		FromStatus:       statusString(e.FromStatus),
		ToStatus:         statusString(e.ToStatus),
		Reason:           e.Reason,
		ActorID:          e.ActorID,
		PreviousDoctorID: e.PreviousDoctorID,
		NewDoctorID:      e.NewDoctorID,
		RevertedEntryID:  e.RevertedEntryID,
		CreatedAt:        e.CreatedAt,
	}
}

func toMutationResponse(res *appointment.Result, cleared []appointment.Milestone) MutationResponse {
	return MutationResponse{
		Appointment:       toAppointmentResponse(res.Appointment),
		Entry:             toHistoryEntryResponse(res.Entry),
		Replayed:          res.Replayed,
		ClearedMilestones: milestoneStrings(cleared),
	}
}

func toMedicalRecordResponse(r *medicalrecord.Record) MedicalRecordResponse {
	return MedicalRecordResponse{
		ID:            r.ID,
		AppointmentID: r.AppointmentID,
		PatientID:     r.PatientID,
		DoctorID:      r.DoctorID,
		Notes:         r.Notes,
		Diagnoses:     r.Diagnoses,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
	}
}

func statusString(s *appointment.Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func milestoneStrings(ms []appointment.Milestone) []string {
	if len(ms) == 0 {
		return nil
	}
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, string(m))
	}
	return out
}
