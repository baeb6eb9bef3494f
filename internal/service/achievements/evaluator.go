package achievements

import (
	"github.com/ecgtrainer/gamification-engine/internal/models"
)

// Definition pairs an achievement with its parsed unlock condition.
type Definition struct {
	Achievement models.Achievement
	Condition   Condition
}

// CompileError reports an achievement whose conditions could not be parsed.
type CompileError struct {
	Achievement models.Achievement
	Err         error
}

// Compile parses the conditions of every achievement. Unparseable ones are returned separately so
// one bad row does not block the rest.
func Compile(achievements []models.Achievement) ([]Definition, []CompileError) {
	defs := make([]Definition, 0, len(achievements))
	var errs []CompileError

	for _, a := range achievements {
		cond, err := ParseCondition(a.UnlockConditions)
		if err != nil {
			errs = append(errs, CompileError{Achievement: a, Err: err})
			continue
		}
		defs = append(defs, Definition{Achievement: a, Condition: cond})
	}

	return defs, errs
}

// Evaluate returns the definitions that are satisfied and not in earned.
// Unlocks found during the pass count toward achievements_unlocked conditions, so the pass repeats
// until nothing new unlocks. It has no side effects.
func Evaluate(defs []Definition, earned map[uint]bool, ec EvalContext) []Definition {
	done := make(map[uint]bool, len(earned))
	for id, ok := range earned {
		if ok {
			done[id] = true
		}
	}
	ec.EarnedCount = len(done)

	var unlocked []Definition
	for {
		progressed := false
		for _, d := range defs {
			if done[d.Achievement.ID] {
				continue
			}
			if d.Condition.Satisfied(&ec) {
				done[d.Achievement.ID] = true
				ec.EarnedCount++
				unlocked = append(unlocked, d)
				progressed = true
			}
		}
		if !progressed {
			return unlocked
		}
	}
}
