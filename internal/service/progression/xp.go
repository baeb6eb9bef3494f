// Package progression holds the pure XP, level and streak calculations.
// Nothing in this package performs I/O; every function takes the config it needs explicitly.
package progression

import (
	"math"

	"github.com/ecgtrainer/gamification-engine/internal/models"
)

// XPInput describes one completed attempt for XP purposes.
type XPInput struct {
	Score         float64 // 0-100
	Difficulty    models.Difficulty
	CurrentLevel  int
	CurrentStreak int
	IsPerfect     bool
	ActiveEvent   models.MultiplierType
}

// XPBreakdown carries every intermediate value of the XP formula.
type XPBreakdown struct {
	Base                 int                   `json:"base"`
	ScoreBonus           int                   `json:"score_bonus"`
	StreakBonus          int                   `json:"streak_bonus"`
	PerfectBonus         int                   `json:"perfect_bonus"`
	DifficultyMultiplier float64               `json:"difficulty_multiplier"`
	RawXP                int                   `json:"raw_xp"`
	LevelMultiplier      float64               `json:"level_multiplier"`
	EventType            models.MultiplierType `json:"event_type,omitempty"`
	EventBonus           float64               `json:"event_bonus"`
	FinalXP              int                   `json:"final_xp"`
}

// CalculateXP computes the XP for an attempt. Each intermediate is floored before it is combined.
// Out-of-range inputs are clamped rather than rejected.
func CalculateXP(in XPInput, cfg *models.GamificationConfig) XPBreakdown {
	score := clampFloat(in.Score, 0, 100)
	level := in.CurrentLevel
	if level < 1 {
		level = 1
	}
	streak := in.CurrentStreak
	if streak < 0 {
		streak = 0
	}

	b := XPBreakdown{
		Base:       cfg.XPPerECGBase,
		ScoreBonus: floor(score * cfg.XPPerScorePoint),
	}

	b.StreakBonus = floor(float64(streak) * cfg.XPStreakBonusPerDay)
	if b.StreakBonus > cfg.XPStreakBonusMax {
		b.StreakBonus = cfg.XPStreakBonusMax
	}

	if in.IsPerfect {
		b.PerfectBonus = cfg.XPPerfectBonus
	}

	b.DifficultyMultiplier = cfg.XPDifficultyMultipliers.For(in.Difficulty)
	b.RawXP = floor(float64(b.Base+b.ScoreBonus+b.StreakBonus+b.PerfectBonus) * b.DifficultyMultiplier)

	b.LevelMultiplier = 1 + float64(level-1)*cfg.LevelMultiplierPerLevel

	if in.ActiveEvent == models.Multiplier2x || in.ActiveEvent == models.Multiplier3x {
		b.EventType = in.ActiveEvent
		b.EventBonus = cfg.EventBonus(in.ActiveEvent)
	}

	b.FinalXP = floor(float64(b.RawXP) * (b.LevelMultiplier + b.EventBonus))
	if b.FinalXP < 0 {
		b.FinalXP = 0
	}

	return b
}

func floor(v float64) int {
	return int(math.Floor(v))
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
