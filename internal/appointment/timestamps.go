package appointment

import "time"

type Milestone string

const (
	MilestoneCheckedIn Milestone = "checked_in_at"
	MilestoneStarted   Milestone = "started_at"
	MilestoneCompleted Milestone = "completed_at"
)

// Position of each status along the main visit path. Cancelled and NoShow
// are off-path and have no rank.
var pathRank = map[Status]int{
	StatusPending:    0,
	StatusScheduled:  1,
	StatusCheckedIn:  2,
	StatusInProgress: 3,
	StatusCompleted:  4,
}

var milestoneOrder = []struct {
	status    Status
	milestone Milestone
}{
	{StatusCheckedIn, MilestoneCheckedIn},
	{StatusInProgress, MilestoneStarted},
	{StatusCompleted, MilestoneCompleted},
}

// MilestoneFor returns the timestamp a transition into s sets, if any.
func MilestoneFor(s Status) (Milestone, bool) {
	for _, m := range milestoneOrder {
		if m.status == s {
			return m.milestone, true
		}
	}
	return "", false
}

// ApplyForward stamps the milestone reached by moving a into to.
func ApplyForward(a *Appointment, to Status, now time.Time) {
	m, ok := MilestoneFor(to)
	if !ok {
		return
	}
	t := now
	*a.milestoneField(m) = &t
}

// ClearBeyond clears every milestone whose status lies past target on the main
// path and returns the ones that were actually set before clearing.
func ClearBeyond(a *Appointment, target Status) []Milestone {
	targetRank, onPath := pathRank[target]
	if !onPath {
		return nil
	}

	var cleared []Milestone
	for _, m := range milestoneOrder {
		if pathRank[m.status] <= targetRank {
			continue
		}
		field := a.milestoneField(m.milestone)
		if *field != nil {
			cleared = append(cleared, m.milestone)
			*field = nil
		}
	}
	return cleared
}

// MilestonesBeyond reports which set milestones a revert to target would clear,
// without touching a.
func MilestonesBeyond(a Appointment, target Status) []Milestone {
	c := a.clone()
	return ClearBeyond(&c, target)
}

func (a *Appointment) milestoneField(m Milestone) **time.Time {
	switch m {
	case MilestoneCheckedIn:
		return &a.CheckedInAt
	case MilestoneStarted:
		return &a.StartedAt
	default:
		return &a.CompletedAt
	}
}
