package progression

import (
	"math"

	"github.com/ecgtrainer/gamification-engine/internal/models"
)

// LevelUp reports the effect of an XP change on the level.
type LevelUp struct {
	LeveledUp bool `json:"leveled_up"`
	OldLevel  int  `json:"old_level"`
	NewLevel  int  `json:"new_level"`
}

// LevelProgress describes how far a player is into their current level.
type LevelProgress struct {
	Level         int     `json:"level"`
	XPIntoLevel   int64   `json:"xp_into_level"`
	XPForNext     int64   `json:"xp_for_next"` // 0 at max level
	PercentToNext float64 `json:"percent_to_next"`
	IsMaxLevel    bool    `json:"is_max_level"`
}

// XPRequiredForLevel is the XP cost of going from level-1 to level.
func XPRequiredForLevel(level int, cfg *models.GamificationConfig) int64 {
	switch {
	case level <= 1:
		return 0
	case level == 2:
		return int64(cfg.XPPerLevelBase)
	default:
		return int64(math.Floor(float64(cfg.XPPerLevelBase) * math.Pow(cfg.XPPerLevelGrowth, float64(level-2))))
	}
}

// TotalXPForLevel is the cumulative XP needed to reach level.
func TotalXPForLevel(level int, cfg *models.GamificationConfig) int64 {
	var total int64
	for l := 2; l <= level; l++ {
		total += XPRequiredForLevel(l, cfg)
	}
	return total
}

// LevelFromXP walks up from level 1 while the next level's cumulative cost fits in totalXP.
func LevelFromXP(totalXP int64, cfg *models.GamificationConfig) int {
	maxLevel := cfg.MaxLevel
	if maxLevel < 1 {
		maxLevel = 1
	}

	level := 1
	cumulative := int64(0)
	for level < maxLevel {
		next := cumulative + XPRequiredForLevel(level+1, cfg)
		if next > totalXP {
			break
		}
		cumulative = next
		level++
	}
	return level
}

// CheckLevelUp compares the levels derived from two XP totals.
func CheckLevelUp(prevTotal, newTotal int64, cfg *models.GamificationConfig) LevelUp {
	oldLevel := LevelFromXP(prevTotal, cfg)
	newLevel := LevelFromXP(newTotal, cfg)
	return LevelUp{
		LeveledUp: newLevel > oldLevel,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
}

// Progress returns the position of totalXP inside its level.
func Progress(totalXP int64, cfg *models.GamificationConfig) LevelProgress {
	level := LevelFromXP(totalXP, cfg)
	p := LevelProgress{
		Level:       level,
		XPIntoLevel: totalXP - TotalXPForLevel(level, cfg),
	}
	if level >= cfg.MaxLevel {
		p.IsMaxLevel = true
		p.PercentToNext = 100
		return p
	}
	p.XPForNext = XPRequiredForLevel(level+1, cfg)
	if p.XPForNext > 0 {
		p.PercentToNext = math.Floor(float64(p.XPIntoLevel)/float64(p.XPForNext)*10000) / 100
	}
	return p
}
