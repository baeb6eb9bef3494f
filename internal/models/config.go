// Package models defines domain models for the gamification engine.
package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when a GamificationConfig violates one of its invariants.
var ErrInvalidConfig = errors.New("invalid gamification config")

// Multipliers maps a difficulty to its XP multiplier.
type Multipliers map[Difficulty]float64

// For returns the multiplier for a difficulty, or 1.0 when it is not configured.
func (m Multipliers) For(d Difficulty) float64 {
	if v, ok := m[d]; ok && v > 0 {
		return v
	}
	return 1.0
}

// GamificationConfig is the admin-editable singleton holding every XP, level, streak and event knob.
type GamificationConfig struct {
	ID                      uint        `gorm:"primaryKey" json:"id"`
	XPPerECGBase            int         `gorm:"not null" json:"xp_per_ecg_base"`
	XPPerScorePoint         float64     `gorm:"not null" json:"xp_per_score_point"`
	XPDifficultyMultipliers Multipliers `gorm:"type:jsonb;serializer:json" json:"xp_difficulty_multipliers"`
	XPStreakBonusPerDay     float64     `gorm:"not null" json:"xp_streak_bonus_per_day"`
	XPStreakBonusMax        int         `gorm:"not null" json:"xp_streak_bonus_max"`
	XPPerfectBonus          int         `gorm:"not null" json:"xp_perfect_bonus"`
	XPPerLevelBase          int         `gorm:"not null" json:"xp_per_level_base"`
	XPPerLevelGrowth        float64     `gorm:"not null" json:"xp_per_level_growth"`
	MaxLevel                int         `gorm:"not null" json:"max_level"`
	LevelMultiplierPerLevel float64     `gorm:"not null" json:"level_multiplier_per_level"`
	Event2xBonus            float64     `gorm:"column:event_2x_bonus;not null" json:"event_2x_bonus"`
	Event3xBonus            float64     `gorm:"column:event_3x_bonus;not null" json:"event_3x_bonus"`
	StreakGracePeriodHours  int         `gorm:"not null" json:"streak_grace_period_hours"`
	InactivityEmailDays     []int       `gorm:"type:jsonb;serializer:json" json:"inactivity_email_days"`
	RankingTopNVisible      int         `gorm:"not null" json:"ranking_top_n_visible"`
	Version                 int         `gorm:"not null;default:1" json:"version"`
	UpdatedBy               string      `gorm:"size:255" json:"updated_by"`
	CreatedAt               time.Time   `json:"created_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

// TableName specifies the table name for GamificationConfig model.
func (GamificationConfig) TableName() string {
	return "gamification_config"
}

// DefaultGamificationConfig returns the values the singleton is created with.
func DefaultGamificationConfig() GamificationConfig {
	return GamificationConfig{
		XPPerECGBase:    10,
		XPPerScorePoint: 0.5,
		XPDifficultyMultipliers: Multipliers{
			DifficultyEasy:   0.8,
			DifficultyMedium: 1.0,
			DifficultyHard:   1.5,
		},
		XPStreakBonusPerDay:     2,
		XPStreakBonusMax:        30,
		XPPerfectBonus:          25,
		XPPerLevelBase:          100,
		XPPerLevelGrowth:        1.1,
		MaxLevel:                100,
		LevelMultiplierPerLevel: 0.002525,
		Event2xBonus:            1.0,
		Event3xBonus:            2.0,
		StreakGracePeriodHours:  36,
		InactivityEmailDays:     []int{3, 7, 14, 30},
		RankingTopNVisible:      50,
		Version:                 1,
		UpdatedBy:               "system",
	}
}

// Validate checks the invariants that keep XP and level computation well defined.
func (c *GamificationConfig) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.XPPerECGBase < 0 {
		return invalid("xp_per_ecg_base must not be negative")
	}
	if c.XPPerScorePoint < 0 {
		return invalid("xp_per_score_point must not be negative")
	}
	for _, d := range AllDifficulties {
		if v, ok := c.XPDifficultyMultipliers[d]; ok && v <= 0 {
			return invalid("difficulty multiplier for %s must be positive", d)
		}
	}
	if c.XPStreakBonusPerDay < 0 || c.XPStreakBonusMax < 0 {
		return invalid("streak bonus settings must not be negative")
	}
	if c.XPPerfectBonus < 0 {
		return invalid("xp_perfect_bonus must not be negative")
	}
	if c.XPPerLevelBase <= 0 {
		return invalid("xp_per_level_base must be positive")
	}
	if c.XPPerLevelGrowth <= 1 {
		return invalid("xp_per_level_growth must be greater than 1")
	}
	if c.MaxLevel < 1 {
		return invalid("max_level must be at least 1")
	}
	if c.LevelMultiplierPerLevel < 0 {
		return invalid("level_multiplier_per_level must not be negative")
	}
	if c.Event2xBonus < 0 || c.Event3xBonus < 0 {
		return invalid("event bonuses must not be negative")
	}
	if c.StreakGracePeriodHours < 0 {
		return invalid("streak_grace_period_hours must not be negative")
	}
	prev := 0
	for _, d := range c.InactivityEmailDays {
		if d <= prev {
			return invalid("inactivity_email_days must be positive and strictly ascending")
		}
		prev = d
	}
	if c.RankingTopNVisible < 1 {
		return invalid("ranking_top_n_visible must be at least 1")
	}

	return nil
}

// EventBonus returns the additive bonus for an event multiplier type.
func (c *GamificationConfig) EventBonus(m MultiplierType) float64 {
	switch m {
	case Multiplier2x:
		return c.Event2xBonus
	case Multiplier3x:
		return c.Event3xBonus
	default:
		return 0
	}
}
