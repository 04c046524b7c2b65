package appointment

// Terminal statuses have no outgoing edges; they can only be left through Revert.
var transitions = map[Status][]Status{
	StatusPending:    {StatusScheduled, StatusCancelled},
	StatusScheduled:  {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusNoShow:     {},
}

// Validate reports whether moving from current to requested is a legal forward
// transition. Requesting the current status is an error, never a no-op.
func Validate(current, requested Status) error {
	if !current.IsValid() {
		return newError(KindInvalidTransition, "unknown current status %q", current)
	}
	if !requested.IsValid() {
		return newError(KindInvalidTransition, "unknown target status %q", requested)
	}
	if current == requested {
		return newError(KindInvalidTransition, "appointment is already %s", current)
	}
	for _, s := range transitions[current] {
		if s == requested {
			return nil
		}
	}
	if IsTerminal(current) {
		return newError(KindInvalidTransition, "%s is terminal; only a revert can leave it", current)
	}
	return newError(KindInvalidTransition, "cannot move from %s to %s", current, requested)
}

// AllowedTransitions returns the statuses reachable from s in one step.
func AllowedTransitions(s Status) []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

func IsTerminal(s Status) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}
