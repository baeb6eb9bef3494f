package models

import (
	"time"
)

// Difficulty is the difficulty tier of an ECG case.
type Difficulty string

// Difficulty constants.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// AllDifficulties lists every known difficulty tier.
var AllDifficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Counter is a tag -> count map with zero as the default for missing keys.
type Counter map[string]int

// Get returns the count for key, 0 if absent.
func (c Counter) Get(key string) int {
	return c[key]
}

// Inc increments key by one, allocating the map if needed.
func (c *Counter) Inc(key string) {
	if *c == nil {
		*c = make(Counter)
	}
	(*c)[key]++
}

// Sum returns the total count across keys.
func (c Counter) Sum(keys ...string) int {
	total := 0
	for _, k := range keys {
		total += c[k]
	}
	return total
}

// Clone returns a copy of the counter.
func (c Counter) Clone() Counter {
	out := make(Counter, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// UserGamificationStats is the per-user aggregate updated once per completed attempt.
type UserGamificationStats struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	TotalXP              int64      `gorm:"not null;default:0;index" json:"total_xp"`
	CurrentLevel         int        `gorm:"not null;default:1" json:"current_level"`
	CurrentStreak        int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak        int        `gorm:"not null;default:0" json:"longest_streak"`
	LastActivityDate     *time.Time `gorm:"type:date;index" json:"last_activity_date"`
	TotalECGsCompleted   int        `gorm:"column:total_ecgs_completed;not null;default:0" json:"total_ecgs_completed"`
	TotalPerfectScores   int        `gorm:"not null;default:0" json:"total_perfect_scores"`
	PerfectStreak        int        `gorm:"not null;default:0" json:"perfect_streak"`
	ECGsByDifficulty     Counter    `gorm:"column:ecgs_by_difficulty;type:jsonb;serializer:json" json:"ecgs_by_difficulty"`
	PerfectByDifficulty  Counter    `gorm:"type:jsonb;serializer:json" json:"perfect_by_difficulty"`
	CorrectByCategory    Counter    `gorm:"type:jsonb;serializer:json" json:"correct_by_category"`
	CorrectByFinding     Counter    `gorm:"type:jsonb;serializer:json" json:"correct_by_finding"`
	CompletionsByContext Counter    `gorm:"type:jsonb;serializer:json" json:"completions_by_context"`
	ECGsToday            int        `gorm:"column:ecgs_today;not null;default:0" json:"ecgs_today"`
	ECGsTodayDate        *time.Time `gorm:"column:ecgs_today_date;type:date" json:"ecgs_today_date"`
	EventsParticipated   int        `gorm:"not null;default:0" json:"events_participated"`
	Version              int        `gorm:"not null;default:0" json:"version"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TableName specifies the table name for UserGamificationStats model.
func (UserGamificationStats) TableName() string {
	return "user_gamification_stats"
}

// NewUserStats returns the zero state a user starts from before the first attempt.
func NewUserStats(userID uint) *UserGamificationStats {
	return &UserGamificationStats{
		UserID:               userID,
		CurrentLevel:         1,
		ECGsByDifficulty:     Counter{},
		PerfectByDifficulty:  Counter{},
		CorrectByCategory:    Counter{},
		CorrectByFinding:     Counter{},
		CompletionsByContext: Counter{},
	}
}

// IsNew reports whether the stats row has not been persisted yet.
func (s *UserGamificationStats) IsNew() bool {
	return s.ID == 0
}

// Clone returns a deep copy, used to snapshot stats before an attempt mutates them.
func (s *UserGamificationStats) Clone() *UserGamificationStats {
	cp := *s
	cp.ECGsByDifficulty = s.ECGsByDifficulty.Clone()
	cp.PerfectByDifficulty = s.PerfectByDifficulty.Clone()
	cp.CorrectByCategory = s.CorrectByCategory.Clone()
	cp.CorrectByFinding = s.CorrectByFinding.Clone()
	cp.CompletionsByContext = s.CompletionsByContext.Clone()
	if s.LastActivityDate != nil {
		d := *s.LastActivityDate
		cp.LastActivityDate = &d
	}
	if s.ECGsTodayDate != nil {
		d := *s.ECGsTodayDate
		cp.ECGsTodayDate = &d
	}
	return &cp
}

// UserProfile is the slice of the account profile the engine reads.
type UserProfile struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	DisplayName      string    `gorm:"size:255" json:"display_name"`
	PracticeContext  string    `gorm:"size:100" json:"practice_context"` // e.g. hospital type: "emergency", "cardiology"
	AccountCreatedAt time.Time `gorm:"not null" json:"account_created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for UserProfile model.
func (UserProfile) TableName() string {
	return "user_profiles"
}
