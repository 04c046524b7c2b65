package appointment

import (
	"errors"
	"testing"
)

func TestValidate_Table(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:    {StatusScheduled, StatusCancelled},
		StatusScheduled:  {StatusCheckedIn, StatusCancelled, StatusNoShow},
		StatusCheckedIn:  {StatusInProgress, StatusCancelled},
		StatusInProgress: {StatusCompleted, StatusCancelled},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}

			err := Validate(from, to)
			if want && err != nil {
				t.Errorf("%s -> %s: expected allowed, got %v", from, to, err)
			}
			if !want {
				if err == nil {
					t.Errorf("%s -> %s: expected rejection", from, to)
					continue
				}
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("%s -> %s: expected invalid_transition, got %v", from, to, err)
				}
			}
		}
	}
}

func TestValidate_SelfTransitionRejected(t *testing.T) {
	for _, s := range allStatuses {
		if err := Validate(s, s); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: expected invalid_transition, got %v", s, s, err)
		}
	}
}

func TestValidate_UnknownStatus(t *testing.T) {
	if err := Validate("rescheduled", StatusScheduled); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected invalid_transition for unknown current status, got %v", err)
	}
	if err := Validate(StatusPending, "rescheduled"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected invalid_transition for unknown target status, got %v", err)
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusCompleted: true,
		StatusCancelled: true,
		StatusNoShow:    true,
	}
	for _, s := range allStatuses {
		if IsTerminal(s) != terminal[s] {
			t.Errorf("IsTerminal(%s) = %v, want %v", s, IsTerminal(s), terminal[s])
		}
	}
	if IsTerminal("bogus") {
		t.Error("unknown status must not be terminal")
	}
}

func TestAllowedTransitions_ReturnsCopy(t *testing.T) {
	got := AllowedTransitions(StatusScheduled)
	if len(got) != 3 {
		t.Fatalf("expected 3 transitions from scheduled, got %v", got)
	}
	got[0] = StatusCompleted
	if AllowedTransitions(StatusScheduled)[0] != StatusCheckedIn {
		t.Error("mutating the returned slice changed the table")
	}
	if len(AllowedTransitions(StatusCompleted)) != 0 {
		t.Error("completed should have no outgoing transitions")
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("in_progress")
	if err != nil || s != StatusInProgress {
		t.Fatalf("ParseStatus(in_progress) = %q, %v", s, err)
	}
	if _, err := ParseStatus("InProgress"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected invalid_transition for bad casing, got %v", err)
	}
}
