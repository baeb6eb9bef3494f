package progression

import (
	"time"
)

// StreakMilestones is the ladder of streak lengths that fire a milestone.
var StreakMilestones = []int{3, 7, 14, 30, 60, 90, 180, 365}

// StreakUpdate is the outcome of applying one activity to a streak.
type StreakUpdate struct {
	PreviousStreak int  `json:"previous_streak"`
	NewStreak      int  `json:"new_streak"`
	LongestStreak  int  `json:"longest_streak"`
	IsNewDay       bool `json:"is_new_day"`
	Extended       bool `json:"extended"`
	InGracePeriod  bool `json:"in_grace_period"`
	WasReset       bool `json:"was_reset"`
	Milestone      int  `json:"milestone,omitempty"`
}

// StreakStatus is a read-only view of whether a streak survives if the user does nothing.
type StreakStatus struct {
	CurrentStreak  int     `json:"current_streak"`
	Active         bool    `json:"active"`
	PracticedToday bool    `json:"practiced_today"`
	AtRisk         bool    `json:"at_risk"`
	InGracePeriod  bool    `json:"in_grace_period"`
	WouldReset     bool    `json:"would_reset"`
	HoursRemaining float64 `json:"hours_remaining"`
}

// Day truncates t to its calendar date. Dates are compared as civil days, never across zones.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// wallClock re-expresses t's local wall-clock reading on the same axis as Day.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// DaysBetween counts calendar days from a to b. Negative when b is earlier.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// graceDeadline is the last instant at which a missed day is still forgiven.
func graceDeadline(lastDay time.Time, graceHours int) time.Time {
	return Day(lastDay).AddDate(0, 0, 1).Add(time.Duration(graceHours) * time.Hour)
}

// breakAt is when the streak is lost if there is no further activity.
func breakAt(lastDay time.Time, graceHours int) time.Time {
	endOfNextDay := Day(lastDay).AddDate(0, 0, 2)
	grace := graceDeadline(lastDay, graceHours)
	if grace.After(endOfNextDay) {
		return grace
	}
	return endOfNextDay
}

// UpdateStreak applies an activity at now to a streak whose last activity was lastActivity.
func UpdateStreak(current, longest int, lastActivity *time.Time, now time.Time, graceHours int) StreakUpdate {
	u := StreakUpdate{PreviousStreak: current}

	switch {
	case lastActivity == nil:
		u.NewStreak = 1
		u.IsNewDay = true
		u.Extended = true
	default:
		diff := DaysBetween(*lastActivity, now)
		switch {
		case diff <= 0:
			u.NewStreak = max(current, 1)
		case diff == 1:
			u.NewStreak = current + 1
			u.IsNewDay = true
			u.Extended = true
		case !wallClock(now).After(graceDeadline(*lastActivity, graceHours)):
			u.NewStreak = current + 1
			u.IsNewDay = true
			u.Extended = true
			u.InGracePeriod = true
		default:
			u.NewStreak = 1
			u.IsNewDay = true
			u.WasReset = true
		}
	}

	u.LongestStreak = max(longest, u.NewStreak)
	u.Milestone = CrossedMilestone(u.PreviousStreak, u.NewStreak)
	if u.WasReset {
		u.Milestone = CrossedMilestone(0, u.NewStreak)
	}

	return u
}

// CrossedMilestone returns the highest rung r with prev < r <= next, or 0.
func CrossedMilestone(prev, next int) int {
	crossed := 0
	for _, rung := range StreakMilestones {
		if prev < rung && rung <= next {
			crossed = rung
		}
	}
	return crossed
}

// CapStreak bounds a streak by the number of calendar days the account has existed.
func CapStreak(streak int, accountCreated, now time.Time) int {
	if accountCreated.IsZero() {
		return streak
	}
	limit := DaysBetween(accountCreated, now) + 1
	if limit < 1 {
		limit = 1
	}
	return min(streak, limit)
}

// CheckStreakStatus reports what would happen to the streak if the user did nothing at now.
func CheckStreakStatus(current int, lastActivity *time.Time, now time.Time, graceHours int) StreakStatus {
	s := StreakStatus{CurrentStreak: current}
	if lastActivity == nil || current <= 0 {
		return s
	}

	clock := wallClock(now)
	diff := DaysBetween(*lastActivity, now)

	switch {
	case diff <= 0:
		s.Active = true
		s.PracticedToday = true
		s.HoursRemaining = breakAt(*lastActivity, graceHours).Sub(clock).Hours()
	case diff == 1:
		s.Active = true
		s.AtRisk = true
		s.HoursRemaining = breakAt(*lastActivity, graceHours).Sub(clock).Hours()
	case !clock.After(graceDeadline(*lastActivity, graceHours)):
		s.Active = true
		s.AtRisk = true
		s.InGracePeriod = true
		s.HoursRemaining = graceDeadline(*lastActivity, graceHours).Sub(clock).Hours()
	default:
		s.WouldReset = true
	}

	return s
}
