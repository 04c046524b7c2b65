package appointment

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable name of a lifecycle failure.
type Kind string

const (
	KindInvalidTransition          Kind = "invalid_transition"
	KindConcurrentModification     Kind = "concurrent_modification_conflict"
	KindReversionBlockedByRecord   Kind = "reversion_blocked_by_downstream_record"
	KindMissingReason              Kind = "missing_reason"
	KindDoctorAssignmentNotAllowed Kind = "doctor_assignment_not_allowed"
	KindNotFound                   Kind = "not_found"
)

// Error is returned for every business-rule rejection. Reason is meant for
// humans; Kind is what callers branch on.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidTransition          = &Error{Kind: KindInvalidTransition}
	ErrConcurrentModification     = &Error{Kind: KindConcurrentModification}
	ErrReversionBlockedByRecord   = &Error{Kind: KindReversionBlockedByRecord}
	ErrMissingReason              = &Error{Kind: KindMissingReason}
	ErrDoctorAssignmentNotAllowed = &Error{Kind: KindDoctorAssignmentNotAllowed}
	ErrNotFound                   = &Error{Kind: KindNotFound}
)

var (
	ErrPatientNotFound      = &Error{Kind: KindNotFound, Reason: "patient not found"}
	ErrClinicianNotFound    = &Error{Kind: KindNotFound, Reason: "clinician not found"}
	ErrAppointmentNotFound  = &Error{Kind: KindNotFound, Reason: "appointment not found"}
	ErrHistoryEntryNotFound = &Error{Kind: KindNotFound, Reason: "history entry not found"}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a lifecycle error, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the caller should re-read and try again.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConcurrentModification
}
