package achievements

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/ecgtrainer/gamification-engine/internal/models"
)

func achievement(id uint, key, conditions string, xp int) models.Achievement {
	return models.Achievement{
		ID:               id,
		Key:              key,
		Name:             key,
		UnlockConditions: datatypes.JSON(conditions),
		XPReward:         xp,
		IsActive:         true,
	}
}

func keys(defs []Definition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Achievement.Key)
	}
	return out
}

func TestCompileSeparatesInvalidConditions(t *testing.T) {
	defs, errs := Compile([]models.Achievement{
		achievement(1, "century", `{"type":"total_ecgs","threshold":100}`, 50),
		achievement(2, "broken", `{"type":"moon_phase"}`, 10),
	})

	require.Len(t, defs, 1)
	assert.Equal(t, "century", defs[0].Achievement.Key)
	require.Len(t, errs, 1)
	assert.Equal(t, "broken", errs[0].Achievement.Key)
	assert.ErrorIs(t, errs[0].Err, ErrInvalidCondition)
}

func TestEvaluateHundredthECG(t *testing.T) {
	defs, _ := Compile([]models.Achievement{
		achievement(1, "century", `{"type":"total_ecgs","threshold":100}`, 50),
	})
	stats := models.NewUserStats(1)
	stats.TotalECGsCompleted = 100

	unlocked := Evaluate(defs, nil, EvalContext{Stats: stats})
	assert.Equal(t, []string{"century"}, keys(unlocked))

	unlocked = Evaluate(defs, map[uint]bool{1: true}, EvalContext{Stats: stats})
	assert.Empty(t, unlocked, "already earned")
}

func TestEvaluateIsIdempotent(t *testing.T) {
	defs, _ := Compile([]models.Achievement{
		achievement(1, "first", `{"type":"total_ecgs","threshold":1}`, 10),
		achievement(2, "perfect", `{"type":"perfect_scores","threshold":1}`, 10),
		achievement(3, "level5", `{"type":"level","threshold":5}`, 10),
	})
	stats := models.NewUserStats(1)
	stats.TotalECGsCompleted = 1
	stats.TotalPerfectScores = 1

	earned := map[uint]bool{}
	first := Evaluate(defs, earned, EvalContext{Stats: stats})
	assert.ElementsMatch(t, []string{"first", "perfect"}, keys(first))

	for _, d := range first {
		earned[d.Achievement.ID] = true
	}
	assert.Empty(t, Evaluate(defs, earned, EvalContext{Stats: stats}))
}

func TestEvaluateMetaAchievementCountsSamePassUnlocks(t *testing.T) {
	defs, _ := Compile([]models.Achievement{
		achievement(1, "collector", `{"type":"achievements_unlocked","threshold":2}`, 100),
		achievement(2, "first", `{"type":"total_ecgs","threshold":1}`, 10),
		achievement(3, "perfect", `{"type":"perfect_scores","threshold":1}`, 10),
	})
	stats := models.NewUserStats(1)
	stats.TotalECGsCompleted = 1
	stats.TotalPerfectScores = 1

	unlocked := Evaluate(defs, nil, EvalContext{Stats: stats})
	assert.ElementsMatch(t, []string{"collector", "first", "perfect"}, keys(unlocked))
}

func TestEvaluateMetaCountsPreviouslyEarned(t *testing.T) {
	defs, _ := Compile([]models.Achievement{
		achievement(1, "collector", `{"type":"achievements_unlocked","threshold":2}`, 100),
	})

	unlocked := Evaluate(defs, map[uint]bool{7: true}, EvalContext{Stats: models.NewUserStats(1)})
	assert.Empty(t, unlocked)

	unlocked = Evaluate(defs, map[uint]bool{7: true, 8: true}, EvalContext{Stats: models.NewUserStats(1)})
	assert.Equal(t, []string{"collector"}, keys(unlocked))
}
