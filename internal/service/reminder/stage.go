package reminder

import (
	"time"

	"notifyhub/internal/policy"
)

// Thresholds are the escalation cut-offs for a campaign, in days before the
// deadline.
type Thresholds struct {
	FirstDays int
	FinalDays int
}

// DefaultThresholds used by every campaign unless configured otherwise.
func DefaultThresholds() Thresholds {
	return Thresholds{FirstDays: 3, FinalDays: 1}
}

// SelectStage maps days-remaining to an escalation stage. Final wins ties:
// inside the final window only final is ever attempted, even when the first
// stage was never sent. The daily re-scan evaluates only the currently
// satisfied stage, never historical ones.
func SelectStage(daysRemaining int, t Thresholds) policy.Stage {
	switch {
	case daysRemaining < 0:
		return policy.StageNone
	case daysRemaining <= t.FinalDays:
		return policy.StageFinal
	case daysRemaining <= t.FirstDays:
		return policy.StageFirst
	default:
		return policy.StageNone
	}
}

// Deadline computes anchor + offsetDays.
func Deadline(anchor time.Time, offsetDays int) time.Time {
	return anchor.AddDate(0, 0, offsetDays)
}

// DaysRemaining is the ceiling of (deadline - now) in days. A deadline later
// today counts as 1 day remaining until the moment it passes; a deadline more
// than a full day gone is negative.
func DaysRemaining(deadline, now time.Time) int {
	const day = 24 * time.Hour
	diff := deadline.Sub(now)

	days := int(diff / day)
	// Truncation rounds toward zero, which is already the ceiling for
	// negative durations.
	if diff%day != 0 && diff > 0 {
		days++
	}
	return days
}
