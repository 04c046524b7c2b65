package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-appointment-lifecycle/internal/redis"
)

// Recorder receives one observation per accepted or rejected mutation.
type Recorder interface {
	ObserveChange(changeType ChangeType, from, to string)
	ObserveRejection(op string, kind Kind)
}

type nopRecorder struct{}

func (nopRecorder) ObserveChange(ChangeType, string, string) {}
func (nopRecorder) ObserveRejection(string, Kind)            {}

type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithDoctorDirectory makes AssignDoctor reject ids the directory does not know.
func WithDoctorDirectory(d DoctorDirectory) Option {
	return func(e *Engine) { e.doctors = d }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the only writer of appointment status, doctor and milestone fields.
type Engine struct {
	repo    Repository
	guard   *Guard
	locker  redisclient.Locker
	doctors DoctorDirectory
	metrics Recorder
	log     zerolog.Logger
	now     func() time.Time
}

func NewEngine(repo Repository, records RecordChecker, locker redisclient.Locker, opts ...Option) *Engine {
	if locker == nil {
		locker = redisclient.NopLocker()
	}
	e := &Engine{
		repo:    repo,
		guard:   NewGuard(records),
		locker:  locker,
		metrics: nopRecorder{},
		log:     zerolog.Nop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type TransitionCommand struct {
	AppointmentID  uuid.UUID
	To             Status
	Reason         string
	ActorID        string
	IdempotencyKey string
}

type RevertCommand struct {
	AppointmentID  uuid.UUID
	HistoryEntryID uuid.UUID
	Reason         string
	ActorID        string
	IdempotencyKey string
}

type AssignDoctorCommand struct {
	AppointmentID  uuid.UUID
	DoctorID       *uuid.UUID
	Reason         string
	ActorID        string
	IdempotencyKey string
}

// Result is the state after a mutation and the ledger entry that recorded it.
// Replayed is set when the idempotency key matched an earlier entry and
// nothing was written.
type Result struct {
	Appointment *Appointment
	Entry       *HistoryEntry
	Replayed    bool
}

type RevertResult struct {
	Result
	ClearedMilestones []Milestone
}

// CreateAppointment opens a pending appointment for an existing patient.
func (e *Engine) CreateAppointment(ctx context.Context, in NewAppointment) (*Result, error) {
	if _, err := e.repo.GetPatientByID(ctx, in.PatientID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if in.DoctorID != nil {
		if err := e.checkDoctorExists(ctx, *in.DoctorID); err != nil {
			return nil, err
		}
	}

	appt, entry, err := e.repo.CreateAppointment(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	e.metrics.ObserveChange(ChangeStatus, "", string(StatusPending))
	e.log.Debug().
		Str("appointment_id", appt.ID.String()).
		Str("actor_id", in.ActorID).
		Msg("appointment created")

	return &Result{Appointment: appt, Entry: entry}, nil
}

func (e *Engine) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := e.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, wrapLoad("load appointment", err)
	}
	return appt, nil
}

// ApplyTransition moves an appointment forward along the transition table.
func (e *Engine) ApplyTransition(ctx context.Context, cmd TransitionCommand) (*Result, error) {
	var res *Result

	err := e.withLock(ctx, cmd.AppointmentID, func(ctx context.Context) error {
		replayed, err := e.replay(ctx, cmd.AppointmentID, cmd.IdempotencyKey, ChangeStatus, func(prev *HistoryEntry) bool {
			return prev.ToStatus != nil && *prev.ToStatus == cmd.To
		})
		if err != nil || replayed != nil {
			res = replayed
			return err
		}

		appt, err := e.repo.GetAppointmentByID(ctx, cmd.AppointmentID)
		if err != nil {
			return wrapLoad("load appointment", err)
		}

		if err := Validate(appt.Status, cmd.To); err != nil {
			return err
		}

		now := e.now()
		next := appt.clone()
		next.Status = cmd.To
		ApplyForward(&next, cmd.To, now)

		updated, entry, err := e.repo.Commit(ctx, Change{
			ExpectedVersion: appt.Version,
			Appointment:     next,
			EventType:       EventAppointmentStatusChanged,
			Entry: HistoryEntry{
				ID:             uuid.New(),
				AppointmentID:  appt.ID,
				ChangeType:     ChangeStatus,
				FromStatus:     appt.Status.Ptr(),
				ToStatus:       cmd.To.Ptr(),
				Reason:         strings.TrimSpace(cmd.Reason),
				ActorID:        cmd.ActorID,
				IdempotencyKey: cmd.IdempotencyKey,
				CreatedAt:      now,
			},
		})
		if err != nil {
			return wrapCommit(err)
		}

		res = &Result{Appointment: updated, Entry: entry}
		return nil
	})
	if err != nil {
		e.reject("apply_transition", cmd.AppointmentID, err)
		return nil, err
	}

	if !res.Replayed {
		e.metrics.ObserveChange(ChangeStatus, string(*res.Entry.FromStatus), string(cmd.To))
		e.log.Debug().
			Str("appointment_id", cmd.AppointmentID.String()).
			Str("from", string(*res.Entry.FromStatus)).
			Str("to", string(cmd.To)).
			Str("actor_id", cmd.ActorID).
			Msg("status changed")
	}
	return res, nil
}

// Revert undoes the latest forward status change, subject to the guard.
// Milestones past the restored status are cleared and reported back.
func (e *Engine) Revert(ctx context.Context, cmd RevertCommand) (*RevertResult, error) {
	var res *RevertResult

	err := e.withLock(ctx, cmd.AppointmentID, func(ctx context.Context) error {
		replayed, err := e.replay(ctx, cmd.AppointmentID, cmd.IdempotencyKey, ChangeStatusReversion, func(prev *HistoryEntry) bool {
			return prev.RevertedEntryID != nil && *prev.RevertedEntryID == cmd.HistoryEntryID
		})
		if err != nil || replayed != nil {
			if replayed != nil {
				res = &RevertResult{Result: *replayed}
			}
			return err
		}

		appt, err := e.repo.GetAppointmentByID(ctx, cmd.AppointmentID)
		if err != nil {
			return wrapLoad("load appointment", err)
		}

		target, err := e.repo.GetHistoryEntry(ctx, cmd.HistoryEntryID)
		if err != nil {
			return wrapLoad("load history entry", err)
		}

		latest, err := e.latestStatusEntry(ctx, appt.ID)
		if err != nil {
			return err
		}

		if err := e.guard.Check(ctx, *appt, target, latest, cmd.Reason); err != nil {
			return err
		}

		now := e.now()
		next := appt.clone()
		next.Status = *target.FromStatus
		cleared := ClearBeyond(&next, next.Status)

		revertedID := target.ID
		updated, entry, err := e.repo.Commit(ctx, Change{
			ExpectedVersion: appt.Version,
			Appointment:     next,
			EventType:       EventAppointmentStatusReverted,
			Entry: HistoryEntry{
				ID:              uuid.New(),
				AppointmentID:   appt.ID,
				ChangeType:      ChangeStatusReversion,
				FromStatus:      appt.Status.Ptr(),
				ToStatus:        next.Status.Ptr(),
				Reason:          strings.TrimSpace(cmd.Reason),
				ActorID:         cmd.ActorID,
				RevertedEntryID: &revertedID,
				IdempotencyKey:  cmd.IdempotencyKey,
				CreatedAt:       now,
			},
		})
		if err != nil {
			return wrapCommit(err)
		}

		res = &RevertResult{
			Result:            Result{Appointment: updated, Entry: entry},
			ClearedMilestones: cleared,
		}
		return nil
	})
	if err != nil {
		e.reject("revert", cmd.AppointmentID, err)
		return nil, err
	}

	if !res.Replayed {
		e.metrics.ObserveChange(ChangeStatusReversion, string(*res.Entry.FromStatus), string(*res.Entry.ToStatus))
		e.log.Info().
			Str("appointment_id", cmd.AppointmentID.String()).
			Str("from", string(*res.Entry.FromStatus)).
			Str("to", string(*res.Entry.ToStatus)).
			Str("reverted_entry_id", cmd.HistoryEntryID.String()).
			Int("cleared_milestones", len(res.ClearedMilestones)).
			Str("actor_id", cmd.ActorID).
			Msg("status reverted")
	}
	return res, nil
}

// AssignDoctor sets or clears (DoctorID nil) the doctor on an appointment.
func (e *Engine) AssignDoctor(ctx context.Context, cmd AssignDoctorCommand) (*Result, error) {
	var res *Result

	err := e.withLock(ctx, cmd.AppointmentID, func(ctx context.Context) error {
		replayed, err := e.replay(ctx, cmd.AppointmentID, cmd.IdempotencyKey, ChangeDoctorAssignment, func(prev *HistoryEntry) bool {
			return sameDoctor(prev.NewDoctorID, cmd.DoctorID)
		})
		if err != nil || replayed != nil {
			res = replayed
			return err
		}

		appt, err := e.repo.GetAppointmentByID(ctx, cmd.AppointmentID)
		if err != nil {
			return wrapLoad("load appointment", err)
		}

		if err := checkDoctorAssignment(*appt, cmd.DoctorID); err != nil {
			return err
		}
		if cmd.DoctorID != nil {
			if err := e.checkDoctorExists(ctx, *cmd.DoctorID); err != nil {
				return err
			}
		}

		next := appt.clone()
		next.DoctorID = copyUUID(cmd.DoctorID)

		updated, entry, err := e.repo.Commit(ctx, Change{
			ExpectedVersion: appt.Version,
			Appointment:     next,
			EventType:       EventAppointmentDoctorAssigned,
			Entry: HistoryEntry{
				ID:               uuid.New(),
				AppointmentID:    appt.ID,
				ChangeType:       ChangeDoctorAssignment,
				Reason:           strings.TrimSpace(cmd.Reason),
				ActorID:          cmd.ActorID,
				PreviousDoctorID: copyUUID(appt.DoctorID),
				NewDoctorID:      copyUUID(cmd.DoctorID),
				IdempotencyKey:   cmd.IdempotencyKey,
				CreatedAt:        e.now(),
			},
		})
		if err != nil {
			return wrapCommit(err)
		}

		res = &Result{Appointment: updated, Entry: entry}
		return nil
	})
	if err != nil {
		e.reject("assign_doctor", cmd.AppointmentID, err)
		return nil, err
	}

	if !res.Replayed {
		e.metrics.ObserveChange(ChangeDoctorAssignment, "", "")
		e.log.Debug().
			Str("appointment_id", cmd.AppointmentID.String()).
			Str("actor_id", cmd.ActorID).
			Msg("doctor assignment changed")
	}
	return res, nil
}

// GetHistory returns the full ledger for an appointment, oldest first.
func (e *Engine) GetHistory(ctx context.Context, appointmentID uuid.UUID) ([]HistoryEntry, error) {
	if _, err := e.GetAppointment(ctx, appointmentID); err != nil {
		return nil, err
	}
	entries, err := e.repo.ListHistory(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// LastUndoCandidate returns the entry a one-click undo would revert, or nil
// when the latest status entry is not an undoable forward change.
func (e *Engine) LastUndoCandidate(ctx context.Context, appointmentID uuid.UUID) (*HistoryEntry, error) {
	appt, err := e.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return e.undoCandidate(ctx, *appt)
}

func (e *Engine) undoCandidate(ctx context.Context, appt Appointment) (*HistoryEntry, error) {
	last, err := e.repo.LastStatusChange(ctx, appt.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("last status change: %w", err)
	}
	latest, err := e.latestStatusEntry(ctx, appt.ID)
	if err != nil {
		return nil, err
	}
	if checkUndoable(appt, last, latest) != nil {
		return nil, nil
	}
	return last, nil
}

// PreviewRevert describes what undoing the current candidate would do,
// including which milestone timestamps would be lost.
func (e *Engine) PreviewRevert(ctx context.Context, appointmentID uuid.UUID) (*RevertPreview, error) {
	appt, err := e.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	blocked, err := e.guard.blockedByRecord(ctx, *appt)
	if err != nil {
		return nil, err
	}

	candidate, err := e.undoCandidate(ctx, *appt)
	if err != nil {
		return nil, err
	}

	preview := &RevertPreview{ReasonRequired: true}
	switch {
	case blocked:
		preview.Blocked = true
		preview.BlockedReason = string(KindReversionBlockedByRecord)
	case candidate == nil:
		preview.Blocked = true
		preview.BlockedReason = "nothing to undo"
	}
	if candidate != nil {
		preview.Candidate = candidate
		preview.TargetStatus = *candidate.FromStatus
		preview.ClearedMilestones = MilestonesBeyond(*appt, *candidate.FromStatus)
	}
	return preview, nil
}

// CanAssignDoctor loads the appointment and applies the doctor policy.
func (e *Engine) CanAssignDoctor(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	appt, err := e.GetAppointment(ctx, appointmentID)
	if err != nil {
		return false, err
	}
	return CanAssignDoctor(*appt), nil
}

func (e *Engine) withLock(ctx context.Context, appointmentID uuid.UUID, fn func(ctx context.Context) error) error {
	err := e.locker.WithAppointmentLock(ctx, appointmentID, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return newError(KindConcurrentModification, "appointment %s is being modified by another request", appointmentID)
	}
	return err
}

// replay returns the earlier result for a retried command carrying the same
// idempotency key. A key whose recorded entry does not match the command is
// rejected rather than replayed.
func (e *Engine) replay(ctx context.Context, appointmentID uuid.UUID, key string, want ChangeType, matches func(*HistoryEntry) bool) (*Result, error) {
	if key == "" {
		return nil, nil
	}
	entry, err := e.repo.FindByIdempotencyKey(ctx, appointmentID, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find idempotency key: %w", err)
	}
	if entry.ChangeType != want {
		return nil, newError(KindInvalidTransition, "idempotency key %q was used for a %s", key, entry.ChangeType)
	}
	if !matches(entry) {
		return nil, newError(KindInvalidTransition, "idempotency key %q reused with a different request", key)
	}
	appt, err := e.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, wrapLoad("load appointment", err)
	}
	return &Result{Appointment: appt, Entry: entry, Replayed: true}, nil
}

func (e *Engine) latestStatusEntry(ctx context.Context, appointmentID uuid.UUID) (*HistoryEntry, error) {
	latest, err := e.repo.LatestStatusEntry(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest status entry: %w", err)
	}
	return latest, nil
}

func (e *Engine) checkDoctorExists(ctx context.Context, id uuid.UUID) error {
	if e.doctors == nil {
		return nil
	}
	if _, err := e.doctors.GetClinicianByID(ctx, id); err != nil {
		return wrapLoad("load clinician", err)
	}
	return nil
}

func (e *Engine) reject(op string, appointmentID uuid.UUID, err error) {
	kind := KindOf(err)
	if kind == "" {
		e.log.Error().Err(err).
			Str("op", op).
			Str("appointment_id", appointmentID.String()).
			Msg("lifecycle operation failed")
		return
	}
	e.metrics.ObserveRejection(op, kind)
	e.log.Info().
		Str("op", op).
		Str("appointment_id", appointmentID.String()).
		Str("kind", string(kind)).
		Str("reason", err.Error()).
		Msg("lifecycle operation rejected")
}

// Lifecycle errors pass through untouched so callers see a stable kind;
// anything else is infrastructure and gets context.
func wrapLoad(what string, err error) error {
	if KindOf(err) != "" {
		return err
	}
	return fmt.Errorf("%s: %w", what, err)
}

func wrapCommit(err error) error {
	return wrapLoad("commit change", err)
}
