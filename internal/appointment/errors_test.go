package appointment

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := newError(KindMissingReason, "reason required")
	wrapped := fmt.Errorf("revert: %w", err)

	if !errors.Is(wrapped, ErrMissingReason) {
		t.Error("expected wrapped error to match ErrMissingReason")
	}
	if errors.Is(wrapped, ErrInvalidTransition) {
		t.Error("missing_reason must not match invalid_transition")
	}
	if KindOf(wrapped) != KindMissingReason {
		t.Errorf("KindOf = %q, want %q", KindOf(wrapped), KindMissingReason)
	}
}

func TestError_NotFoundVariantsShareKind(t *testing.T) {
	for _, err := range []error{ErrPatientNotFound, ErrClinicianNotFound, ErrAppointmentNotFound, ErrHistoryEntryNotFound} {
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%v should match ErrNotFound", err)
		}
	}
}

func TestError_Message(t *testing.T) {
	if got := ErrNotFound.Error(); got != "not_found" {
		t.Errorf("bare kind message = %q", got)
	}
	if got := ErrAppointmentNotFound.Error(); got != "not_found: appointment not found" {
		t.Errorf("message = %q", got)
	}
}

func TestKindOf_Infrastructure(t *testing.T) {
	if KindOf(errors.New("connection reset")) != "" {
		t.Error("plain errors have no kind")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(newError(KindConcurrentModification, "stale")) {
		t.Error("concurrent modification should be retryable")
	}
	for _, k := range []Kind{KindInvalidTransition, KindReversionBlockedByRecord, KindMissingReason, KindDoctorAssignmentNotAllowed, KindNotFound} {
		if IsRetryable(&Error{Kind: k}) {
			t.Errorf("%s should not be retryable", k)
		}
	}
}
