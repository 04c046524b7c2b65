package appointment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RecordChecker answers whether a medical record already references an appointment.
type RecordChecker interface {
	HasRecord(ctx context.Context, appointmentID uuid.UUID) (bool, error)
}

// Guard decides whether an undo of target is permitted for a.
type Guard struct {
	records RecordChecker
}

func NewGuard(records RecordChecker) *Guard {
	return &Guard{records: records}
}

// Check applies the reversion rules. A completed visit that produced a medical
// record is rejected before anything else, whatever the entry or reason. After
// that the entry must be a forward status change that is still the latest
// status entry, and a non-blank reason is mandatory.
func (g *Guard) Check(ctx context.Context, a Appointment, target, latest *HistoryEntry, reason string) error {
	if target.AppointmentID != a.ID {
		return ErrHistoryEntryNotFound
	}
	blocked, err := g.blockedByRecord(ctx, a)
	if err != nil {
		return err
	}
	if blocked {
		return newError(KindReversionBlockedByRecord, "appointment %s is completed and has a medical record", a.ID)
	}
	if err := checkUndoable(a, target, latest); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return newError(KindMissingReason, "a reason is required to revert %s", a.Status)
	}
	return nil
}

func (g *Guard) blockedByRecord(ctx context.Context, a Appointment) (bool, error) {
	if a.Status != StatusCompleted {
		return false, nil
	}
	has, err := g.records.HasRecord(ctx, a.ID)
	if err != nil {
		return false, fmt.Errorf("check medical record: %w", err)
	}
	return has, nil
}

func checkUndoable(a Appointment, target, latest *HistoryEntry) error {
	if target.ChangeType != ChangeStatus || target.FromStatus == nil || target.ToStatus == nil {
		return newError(KindInvalidTransition, "history entry %s is not a reversible status change", target.ID)
	}
	if latest == nil || latest.ID != target.ID {
		return newError(KindInvalidTransition, "history entry %s is no longer the latest status change", target.ID)
	}
	if *target.ToStatus != a.Status {
		return newError(KindInvalidTransition, "history entry %s does not match current status %s", target.ID, a.Status)
	}
	return nil
}

// RevertPreview is what a caller shows before asking an operator to confirm an undo.
type RevertPreview struct {
	Candidate         *HistoryEntry
	TargetStatus      Status
	ClearedMilestones []Milestone
	ReasonRequired    bool
	Blocked           bool
	BlockedReason     string
}
