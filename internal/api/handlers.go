package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/medicalrecord"
)

const (
	actorHeader       = "X-Actor-ID"
	idempotencyHeader = "Idempotency-Key"
)

// LifecycleEngine is the part of *appointment.Engine the handlers use.
type LifecycleEngine interface {
	CreateAppointment(ctx context.Context, in appointment.NewAppointment) (*appointment.Result, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ApplyTransition(ctx context.Context, cmd appointment.TransitionCommand) (*appointment.Result, error)
	Revert(ctx context.Context, cmd appointment.RevertCommand) (*appointment.RevertResult, error)
	AssignDoctor(ctx context.Context, cmd appointment.AssignDoctorCommand) (*appointment.Result, error)
	GetHistory(ctx context.Context, appointmentID uuid.UUID) ([]appointment.HistoryEntry, error)
	LastUndoCandidate(ctx context.Context, appointmentID uuid.UUID) (*appointment.HistoryEntry, error)
	PreviewRevert(ctx context.Context, appointmentID uuid.UUID) (*appointment.RevertPreview, error)
}

// MedicalRecords is the collaborator callers chain after a completed visit.
type MedicalRecords interface {
	Create(ctx context.Context, cmd medicalrecord.CreateCommand) (*medicalrecord.Record, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*medicalrecord.Record, error)
}

func createAppointmentHandler(svc LifecycleEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}

		doctorID, ok := parseOptionalUUID(w, req.DoctorID, "doctor_id")
		if !ok {
			return
		}

		res, err := svc.CreateAppointment(r.Context(), appointment.NewAppointment{
			PatientID: patientID,
			ServiceID: serviceID,
			DoctorID:  doctorID,
			ActorID:   actorID(r),
		})
		if err != nil {
			handleLifecycleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toMutationResponse(res, nil))
	}
}

func getAppointmentHandler(svc LifecycleEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleLifecycleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func applyTransitionHandler(svc LifecycleEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req TransitionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		to, err := appointment.ParseStatus(req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}

		res, err := svc.ApplyTransition(r.Context(), appointment.TransitionCommand{
			AppointmentID:  id,
			To:             to,
			Reason:         req.Reason,
			ActorID:        actorID(r),
			IdempotencyKey: r.Header.Get(idempotencyHeader),
		})
		if err != nil {
			handleLifecycleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toMutationResponse(res, nil))
	}
}

func revertHandler(svc LifecycleEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req RevertRequest
		if !decodeBody(w, r, &req) {
			return
		}

		entryID, err := uuid.Parse(req.HistoryEntryID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_history_entry_id", "history_entry_id must be a valid UUID")
			return
		}

		res, err := svc.Revert(r.Context(), appointment.RevertCommand{
			AppointmentID:  id,
			HistoryEntryID: entryID,
			Reason:         req.Reason,
			ActorID:        actorID(r),
			IdempotencyKey: r.Header.Get(idempotencyHeader),
		})
		if err != nil {
			handleLifecycleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toMutationResponse(&res.Result, res.ClearedMilestones))
	}
}

func previewRevertHandler(svc LifecycleEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		p, err := svc.PreviewRevert(r.Context(), id)
		if err != nil {
			handleLifecycleError(w, err)
			return
		}

		resp := RevertPreviewResponse{
			TargetStatus:      string(p.TargetStatus),
			ClearedMilestones: []string{},
			ReasonRequired:    p.ReasonRequired,
			Blocked:           p.Blocked,
			BlockedReason:     p.BlockedReason,
		}
		if p.Candidate != nil {
			c := toHistoryEntryResponse(p.Candidate)
			resp.Candidate = &c
		}
		if ms := milestoneStrings(p.ClearedMilestones); ms != nil {
			resp.ClearedMilestones = ms
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func assignDoctorHandler(svc LifecycleEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req AssignDoctorRequest
		if !decodeBody(w, r, &req) {
			return
		}

		doctorID, ok := parseOptionalUUID(w, req.DoctorID, "doctor_id")
		if !ok {
			return
		}

		res, err := svc.AssignDoctor(r.Context(), appointment.AssignDoctorCommand{
			AppointmentID:  id,
			DoctorID:       doctorID,
			Reason:         req.Reason,
			ActorID:        actorID(r),
			IdempotencyKey: r.Header.Get(idempotencyHeader),
		})
		if err != nil {
			handleLifecycleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toMutationResponse(res, nil))
	}
}

func historyHandler(svc LifecycleEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		entries, err := svc.GetHistory(r.Context(), id)
		if err != nil {
			handleLifecycleError(w, err)
			return
		}

		resp := make([]HistoryEntryResponse, 0, len(entries))
		for i := range entries {
			resp = append(resp, toHistoryEntryResponse(&entries[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func undoCandidateHandler(svc LifecycleEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		entry, err := svc.LastUndoCandidate(r.Context(), id)
		if err != nil {
			handleLifecycleError(w, err)
			return
		}
		if entry == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		writeJSON(w, http.StatusOK, toHistoryEntryResponse(entry))
	}
}

func createMedicalRecordHandler(records MedicalRecords) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req CreateMedicalRecordRequest
		if !decodeBody(w, r, &req) {
			return
		}

		rec, err := records.Create(r.Context(), medicalrecord.CreateCommand{
			AppointmentID: id,
			Notes:         req.Notes,
			Diagnoses:     req.Diagnoses,
			CreatedBy:     actorID(r),
		})
		if err != nil {
			handleMedicalRecordError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toMedicalRecordResponse(rec))
	}
}

func getMedicalRecordHandler(records MedicalRecords) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		rec, err := records.GetByAppointment(r.Context(), id)
		if err != nil {
			handleMedicalRecordError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toMedicalRecordResponse(rec))
	}
}

func handleLifecycleError(w http.ResponseWriter, err error) {
	var lerr *appointment.Error
	if errors.As(err, &lerr) {
		writeError(w, statusForKind(lerr.Kind), string(lerr.Kind), lerr.Reason)
		return
	}
	if errors.Is(err, medicalrecord.ErrCheckerUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "medical_records_unavailable", "medical record lookup is unavailable, retry shortly")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func statusForKind(k appointment.Kind) int {
	switch k {
	case appointment.KindNotFound:
		return http.StatusNotFound
	case appointment.KindMissingReason:
		return http.StatusBadRequest
	case appointment.KindInvalidTransition,
		appointment.KindConcurrentModification,
		appointment.KindReversionBlockedByRecord,
		appointment.KindDoctorAssignmentNotAllowed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func handleMedicalRecordError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, medicalrecord.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "medical_record_not_found", err.Error())
	case errors.Is(err, medicalrecord.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, medicalrecord.ErrAppointmentNotCompleted):
		writeError(w, http.StatusConflict, "appointment_not_completed", err.Error())
	case errors.Is(err, medicalrecord.ErrRecordExists):
		writeError(w, http.StatusConflict, "medical_record_exists", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func appointmentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(w http.ResponseWriter, raw *string, field string) (*uuid.UUID, bool) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, true
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return nil, false
	}
	return &id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(actorHeader))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
