// Package achievements evaluates unlock conditions and records achievement unlocks.
package achievements

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/internal/service/progression"
)

// ErrInvalidCondition is returned when unlock conditions cannot be parsed.
var ErrInvalidCondition = errors.New("invalid unlock condition")

// Attempt is the just-completed attempt as seen by time-shaped conditions.
type Attempt struct {
	CompletedAt time.Time
	Difficulty  models.Difficulty
	IsPerfect   bool
}

// EvalContext is everything a condition may look at.
// Stats already include the current attempt; Previous is the snapshot taken before it was applied.
type EvalContext struct {
	Stats           *models.UserGamificationStats
	Previous        *models.UserGamificationStats
	Attempt         Attempt
	EarnedCount     int
	PracticeContext string
}

// Condition is a closed set of unlock predicates. Only types in this package implement it.
type Condition interface {
	Satisfied(ec *EvalContext) bool
	condition()
}

// TotalECGs is met once the user completed at least Threshold ECGs.
type TotalECGs struct{ Threshold int }

// PerfectScores is met once the user scored perfectly Threshold times.
type PerfectScores struct{ Threshold int }

// LevelReached is met at level Threshold.
type LevelReached struct{ Threshold int }

// StreakDays is met when the current daily streak reaches Threshold.
type StreakDays struct{ Threshold int }

// TotalXP is met once cumulative XP reaches Threshold.
type TotalXP struct{ Threshold int64 }

// EventsParticipated is met after earning XP under Threshold distinct events.
type EventsParticipated struct{ Threshold int }

// AchievementsUnlocked is met when the user holds Threshold other achievements.
type AchievementsUnlocked struct{ Threshold int }

// CategoryCorrect counts correct answers in one category.
type CategoryCorrect struct {
	Category  string
	Threshold int
}

// FindingCorrect counts correct identifications of one finding. "ischemia" aggregates all ischemic findings.
type FindingCorrect struct {
	Finding   string
	Threshold int
}

// FindingGroup counts correct identifications across a named group of findings.
type FindingGroup struct {
	Group     string
	Threshold int
}

// DifficultyCount counts completed ECGs at one difficulty.
type DifficultyCount struct {
	Difficulty models.Difficulty
	Threshold  int
}

// AllCategories requires Threshold correct answers in every category.
type AllCategories struct{ Threshold int }

// AllDifficulties requires Threshold completions in every difficulty.
type AllDifficulties struct{ Threshold int }

// Weekend is met by an attempt completed on Saturday or Sunday.
type Weekend struct{}

// TimeOfDay is met by an attempt completed in [Start, End), in minutes after midnight.
// A window with Start > End wraps past midnight.
type TimeOfDay struct {
	Start int
	End   int
}

// Comeback is met when the previous activity was more than Days calendar days ago.
type Comeback struct{ Days int }

// HospitalType counts completions made while the user practiced in a given context.
// An empty Context means the user's current practice context.
type HospitalType struct {
	Context   string
	Threshold int
}

// DailyECGs is met when Threshold ECGs were completed on the attempt's calendar day.
type DailyECGs struct{ Threshold int }

// PerfectHard counts perfect scores on hard ECGs.
type PerfectHard struct{ Threshold int }

func (TotalECGs) condition()            {}
func (PerfectScores) condition()        {}
func (LevelReached) condition()         {}
func (StreakDays) condition()           {}
func (TotalXP) condition()              {}
func (EventsParticipated) condition()   {}
func (AchievementsUnlocked) condition() {}
func (CategoryCorrect) condition()      {}
func (FindingCorrect) condition()       {}
func (FindingGroup) condition()         {}
func (DifficultyCount) condition()      {}
func (AllCategories) condition()        {}
func (AllDifficulties) condition()      {}
func (Weekend) condition()              {}
func (TimeOfDay) condition()            {}
func (Comeback) condition()             {}
func (HospitalType) condition()         {}
func (DailyECGs) condition()            {}
func (PerfectHard) condition()          {}

// Satisfied implements Condition.
func (c TotalECGs) Satisfied(ec *EvalContext) bool {
	return ec.Stats.TotalECGsCompleted >= c.Threshold
}

// Satisfied implements Condition.
func (c PerfectScores) Satisfied(ec *EvalContext) bool {
	return ec.Stats.TotalPerfectScores >= c.Threshold
}

// Satisfied implements Condition.
func (c LevelReached) Satisfied(ec *EvalContext) bool {
	return ec.Stats.CurrentLevel >= c.Threshold
}

// Satisfied implements Condition.
func (c StreakDays) Satisfied(ec *EvalContext) bool {
	return ec.Stats.CurrentStreak >= c.Threshold
}

// Satisfied implements Condition.
func (c TotalXP) Satisfied(ec *EvalContext) bool {
	return ec.Stats.TotalXP >= c.Threshold
}

// Satisfied implements Condition.
func (c EventsParticipated) Satisfied(ec *EvalContext) bool {
	return ec.Stats.EventsParticipated >= c.Threshold
}

// Satisfied implements Condition.
func (c AchievementsUnlocked) Satisfied(ec *EvalContext) bool {
	return ec.EarnedCount >= c.Threshold
}

// Satisfied implements Condition.
func (c CategoryCorrect) Satisfied(ec *EvalContext) bool {
	return ec.Stats.CorrectByCategory.Get(c.Category) >= c.Threshold
}

// Satisfied implements Condition.
func (c FindingCorrect) Satisfied(ec *EvalContext) bool {
	return models.FindingCount(ec.Stats.CorrectByFinding, c.Finding) >= c.Threshold
}

// Satisfied implements Condition.
func (c FindingGroup) Satisfied(ec *EvalContext) bool {
	return ec.Stats.CorrectByFinding.Sum(models.FindingGroups[c.Group]...) >= c.Threshold
}

// Satisfied implements Condition.
func (c DifficultyCount) Satisfied(ec *EvalContext) bool {
	return ec.Stats.ECGsByDifficulty.Get(string(c.Difficulty)) >= c.Threshold
}

// Satisfied implements Condition.
func (c AllCategories) Satisfied(ec *EvalContext) bool {
	for _, category := range models.AllCategories {
		if ec.Stats.CorrectByCategory.Get(category) < c.Threshold {
			return false
		}
	}
	return true
}

// Satisfied implements Condition.
func (c AllDifficulties) Satisfied(ec *EvalContext) bool {
	for _, d := range models.AllDifficulties {
		if ec.Stats.ECGsByDifficulty.Get(string(d)) < c.Threshold {
			return false
		}
	}
	return true
}

// Satisfied implements Condition.
func (Weekend) Satisfied(ec *EvalContext) bool {
	switch ec.Attempt.CompletedAt.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

// Satisfied implements Condition.
func (c TimeOfDay) Satisfied(ec *EvalContext) bool {
	at := ec.Attempt.CompletedAt
	minute := at.Hour()*60 + at.Minute()
	if c.Start <= c.End {
		return minute >= c.Start && minute < c.End
	}
	return minute >= c.Start || minute < c.End
}

// Satisfied implements Condition.
func (c Comeback) Satisfied(ec *EvalContext) bool {
	if ec.Previous == nil || ec.Previous.LastActivityDate == nil {
		return false
	}
	return progression.DaysBetween(*ec.Previous.LastActivityDate, ec.Attempt.CompletedAt) > c.Days
}

// Satisfied implements Condition.
func (c HospitalType) Satisfied(ec *EvalContext) bool {
	practice := c.Context
	if practice == "" {
		practice = ec.PracticeContext
	}
	if practice == "" {
		return false
	}
	return ec.Stats.CompletionsByContext.Get(practice) >= c.Threshold
}

// Satisfied implements Condition.
func (c DailyECGs) Satisfied(ec *EvalContext) bool {
	if ec.Stats.ECGsTodayDate == nil {
		return false
	}
	if !progression.Day(*ec.Stats.ECGsTodayDate).Equal(progression.Day(ec.Attempt.CompletedAt)) {
		return false
	}
	return ec.Stats.ECGsToday >= c.Threshold
}

// Satisfied implements Condition.
func (c PerfectHard) Satisfied(ec *EvalContext) bool {
	return ec.Stats.PerfectByDifficulty.Get(string(models.DifficultyHard)) >= c.Threshold
}

// rawCondition is the stored JSON shape of every condition type.
type rawCondition struct {
	Type         string `json:"type"`
	Threshold    *int64 `json:"threshold"`
	Category     string `json:"category"`
	Finding      string `json:"finding"`
	Group        string `json:"group"`
	Difficulty   string `json:"difficulty"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Days         int    `json:"days"`
	HospitalType string `json:"hospital_type"`
}

// ParseCondition decodes stored unlock conditions into a Condition.
func ParseCondition(data []byte) (Condition, error) {
	var raw rawCondition
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}

	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidCondition, raw.Type, fmt.Sprintf(format, args...))
	}

	threshold := func() (int, error) {
		if raw.Threshold == nil || *raw.Threshold < 1 {
			return 0, invalid("threshold must be a positive integer")
		}
		return int(*raw.Threshold), nil
	}

	// optional thresholds default to 1
	optionalThreshold := func() (int, error) {
		if raw.Threshold == nil {
			return 1, nil
		}
		return threshold()
	}

	build := func(read func() (int, error), construct func(n int) Condition) (Condition, error) {
		n, err := read()
		if err != nil {
			return nil, err
		}
		return construct(n), nil
	}

	switch raw.Type {
	case "total_ecgs":
		return build(threshold, func(n int) Condition { return TotalECGs{Threshold: n} })
	case "perfect_scores":
		return build(threshold, func(n int) Condition { return PerfectScores{Threshold: n} })
	case "level":
		return build(threshold, func(n int) Condition { return LevelReached{Threshold: n} })
	case "streak":
		return build(threshold, func(n int) Condition { return StreakDays{Threshold: n} })
	case "total_xp":
		if raw.Threshold == nil || *raw.Threshold < 1 {
			return nil, invalid("threshold must be a positive integer")
		}
		return TotalXP{Threshold: *raw.Threshold}, nil
	case "events_participated":
		return build(threshold, func(n int) Condition { return EventsParticipated{Threshold: n} })
	case "achievements_unlocked":
		return build(threshold, func(n int) Condition { return AchievementsUnlocked{Threshold: n} })
	case "category_correct":
		if !models.IsKnownCategory(raw.Category) {
			return nil, invalid("unknown category %q", raw.Category)
		}
		return build(threshold, func(n int) Condition { return CategoryCorrect{Category: raw.Category, Threshold: n} })
	case "finding_correct":
		if raw.Finding != models.FindingIschemia && !models.IsKnownFinding(raw.Finding) {
			return nil, invalid("unknown finding %q", raw.Finding)
		}
		return build(threshold, func(n int) Condition { return FindingCorrect{Finding: raw.Finding, Threshold: n} })
	case "finding_group":
		if _, ok := models.FindingGroups[raw.Group]; !ok {
			return nil, invalid("unknown finding group %q", raw.Group)
		}
		return build(threshold, func(n int) Condition { return FindingGroup{Group: raw.Group, Threshold: n} })
	case "difficulty_count":
		d := models.Difficulty(raw.Difficulty)
		if !d.Valid() {
			return nil, invalid("unknown difficulty %q", raw.Difficulty)
		}
		return build(threshold, func(n int) Condition { return DifficultyCount{Difficulty: d, Threshold: n} })
	case "all_categories":
		return build(optionalThreshold, func(n int) Condition { return AllCategories{Threshold: n} })
	case "all_difficulties":
		return build(optionalThreshold, func(n int) Condition { return AllDifficulties{Threshold: n} })
	case "weekend":
		return Weekend{}, nil
	case "time_of_day":
		start, err := parseClock(raw.Start)
		if err != nil {
			return nil, invalid("start: %v", err)
		}
		end, err := parseClock(raw.End)
		if err != nil {
			return nil, invalid("end: %v", err)
		}
		if start == end {
			return nil, invalid("start and end must differ")
		}
		return TimeOfDay{Start: start, End: end}, nil
	case "comeback":
		if raw.Days < 1 {
			return nil, invalid("days must be positive")
		}
		return Comeback{Days: raw.Days}, nil
	case "hospital_type":
		return build(threshold, func(n int) Condition { return HospitalType{Context: raw.HospitalType, Threshold: n} })
	case "daily_ecgs":
		return build(threshold, func(n int) Condition { return DailyECGs{Threshold: n} })
	case "perfect_hard":
		return build(threshold, func(n int) Condition { return PerfectHard{Threshold: n} })
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCondition, raw.Type)
	}
}

// parseClock converts "HH:MM" to minutes after midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
