package auction

import "time"

// Phase is the temporal state of an auction, derived from its schedule
type Phase string

const (
	PhaseScheduled  Phase = "scheduled"
	PhaseActive     Phase = "active"
	PhaseEndingSoon Phase = "ending-soon"
	PhaseEnded      Phase = "ended"
)

// DefaultEndingSoon is the window before end_time flagged as ending-soon
const DefaultEndingSoon = 24 * time.Hour

// Classify returns the phase of an auction at now.
// Ending-soon is a sub-state of active and does not change admission.
func Classify(now, start, end time.Time, soon time.Duration) Phase {
	switch {
	case !now.Before(end):
		return PhaseEnded
	case now.Before(start):
		return PhaseScheduled
	case end.Sub(now) <= soon:
		return PhaseEndingSoon
	default:
		return PhaseActive
	}
}

// CanAcceptBid reports whether start <= now < end. It is the only check that
// decides if an auction is open for bids.
func CanAcceptBid(now, start, end time.Time) bool {
	return !now.Before(start) && now.Before(end)
}
