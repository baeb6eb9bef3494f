// Package session runs the per-attempt workflow that turns a completed ECG attempt into XP,
// level, streak, event participation and achievement updates.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	prommetrics "github.com/ecgtrainer/gamification-engine/internal/metrics"
	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/internal/repository"
	"github.com/ecgtrainer/gamification-engine/internal/service/achievements"
	"github.com/ecgtrainer/gamification-engine/internal/service/events"
	"github.com/ecgtrainer/gamification-engine/internal/service/progression"
	"github.com/ecgtrainer/gamification-engine/pkg/logger"
)

var (
	// ErrRetryable is returned when the attempt could not be recorded and may be submitted again.
	ErrRetryable = errors.New("attempt not recorded, retry later")

	// ErrInvalidAttempt is returned for requests that can never succeed.
	ErrInvalidAttempt = errors.New("invalid attempt")
)

// AttemptOutcome is a scored attempt handed over by the scoring subsystem.
type AttemptOutcome struct {
	Score             float64           `json:"score"`
	Difficulty        models.Difficulty `json:"difficulty"`
	IsPerfect         bool              `json:"is_perfect"`
	CorrectCategories []string          `json:"correct_categories"`
	CorrectFindings   []string          `json:"correct_findings"`
	CompletedAt       time.Time         `json:"completed_at"` // zero means now
}

// Result is everything an attempt changed.
type Result struct {
	XPEarned      int                           `json:"xp_earned"`
	Breakdown     progression.XPBreakdown       `json:"breakdown"`
	AchievementXP int                           `json:"achievement_xp"`
	LevelUp       progression.LevelUp           `json:"level_up"`
	Progress      progression.LevelProgress     `json:"progress"`
	Streak        progression.StreakUpdate      `json:"streak"`
	Achievements  []achievements.Unlocked       `json:"achievements_unlocked"`
	Event         events.Resolved               `json:"event"`
	Stats         *models.UserGamificationStats `json:"stats"`
}

// Service orchestrates attempt completion.
type Service struct {
	tx         Transactor
	stats      StatsStore
	config     ConfigSource
	profiles   ProfileSource
	unlocker   Unlocker
	maxRetries int
	log        *logger.Logger
	now        func() time.Time
}

// NewService creates a new session service.
func NewService(
	db *repository.DB,
	repos *repository.Repositories,
	config ConfigSource,
	unlocker *achievements.Service,
	maxRetries int,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(NewGormTransactor(db), repos.Stats, config, repos.Profiles, unlocker, maxRetries, log)
}

// NewServiceWithInterfaces creates a new session service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	tx Transactor,
	stats StatsStore,
	config ConfigSource,
	profiles ProfileSource,
	unlocker Unlocker,
	maxRetries int,
	log *logger.Logger,
) *Service {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Service{
		tx:         tx,
		stats:      stats,
		config:     config,
		profiles:   profiles,
		unlocker:   unlocker,
		maxRetries: maxRetries,
		log:        log,
		now:        time.Now,
	}
}

// CompleteAttempt applies a scored attempt to the user's progression.
// The whole update runs in one unit of work and is recomputed from scratch when another attempt
// for the same user commits first. Store failures are returned wrapped in ErrRetryable.
func (s *Service) CompleteAttempt(ctx context.Context, userID uint, outcome AttemptOutcome) (*Result, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidAttempt)
	}

	started := time.Now()
	log := s.log.ForUser(userID)
	now := outcome.CompletedAt
	if now.IsZero() {
		now = s.now()
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		prommetrics.RecordAttempt("error", time.Since(started).Seconds())
		return nil, fmt.Errorf("%w: %w", ErrRetryable, err)
	}

	profile := s.loadProfile(ctx, userID)

	var result *Result
	for try := 1; ; try++ {
		err = s.tx.InTx(ctx, func(st Stores) error {
			r, err := s.apply(ctx, st, cfg, profile, userID, outcome, now)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err == nil {
			break
		}

		if errors.Is(err, repository.ErrStaleStats) && try < s.maxRetries {
			prommetrics.RecordAttemptRetry()
			log.Debug().Int("try", try).Msg("Stats changed concurrently, retrying attempt")
			continue
		}

		status := "error"
		if errors.Is(err, repository.ErrStaleStats) {
			status = "conflict"
		}
		prommetrics.RecordAttempt(status, time.Since(started).Seconds())
		log.Error().Err(err).Int("tries", try).Msg("Failed to record attempt")
		return nil, fmt.Errorf("%w: %w", ErrRetryable, err)
	}

	s.recordMetrics(outcome, result)
	prommetrics.RecordAttempt("success", time.Since(started).Seconds())

	log.Info().
		Int("xp", result.XPEarned).
		Int("achievement_xp", result.AchievementXP).
		Int64("total_xp", result.Stats.TotalXP).
		Int("level", result.Stats.CurrentLevel).
		Int("streak", result.Stats.CurrentStreak).
		Int("achievements", len(result.Achievements)).
		Msg("Attempt recorded")

	return result, nil
}

// apply runs one try of the workflow against st. It has no effects outside st.
func (s *Service) apply(
	ctx context.Context,
	st Stores,
	cfg *models.GamificationConfig,
	profile *models.UserProfile,
	userID uint,
	outcome AttemptOutcome,
	now time.Time,
) (*Result, error) {
	// load
	stats, err := st.Stats.GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		stats = models.NewUserStats(userID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	previous := stats.Clone()

	// event
	resolved, err := events.ResolveActive(ctx, st.Events, userID, now)
	if err != nil {
		return nil, err
	}

	// streak
	streak := progression.UpdateStreak(stats.CurrentStreak, stats.LongestStreak, stats.LastActivityDate, now, cfg.StreakGracePeriodHours)
	if profile != nil {
		s.capStreak(&streak, stats.LongestStreak, profile, now)
	}

	// xp and level
	oldLevel := progression.LevelFromXP(stats.TotalXP, cfg)
	breakdown := progression.CalculateXP(progression.XPInput{
		Score:         outcome.Score,
		Difficulty:    outcome.Difficulty,
		CurrentLevel:  oldLevel,
		CurrentStreak: streak.NewStreak,
		IsPerfect:     outcome.IsPerfect,
		ActiveEvent:   resolved.Multiplier(),
	}, cfg)

	stats.TotalXP += int64(breakdown.FinalXP)
	stats.CurrentLevel = progression.LevelFromXP(stats.TotalXP, cfg)

	// merge
	s.mergeAttempt(stats, outcome, streak, profile, now)
	if resolved.Found() {
		first, err := st.Events.RecordParticipation(ctx, userID, resolved.Event.ID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to record event participation: %w", err)
		}
		if first {
			stats.EventsParticipated++
		}
	}

	if err := persist(ctx, st.Stats, stats); err != nil {
		return nil, err
	}

	// achievements
	ec := achievements.EvalContext{
		Stats:    stats,
		Previous: previous,
		Attempt: achievements.Attempt{
			CompletedAt: now,
			Difficulty:  outcome.Difficulty,
			IsPerfect:   outcome.IsPerfect,
		},
	}
	if profile != nil {
		ec.PracticeContext = profile.PracticeContext
	}
	// rewards can cross level or total_xp thresholds, so evaluate again until a pass grants nothing
	var unlocked []achievements.Unlocked
	reward := 0
	for {
		batch, err := s.unlocker.Unlock(ctx, st.Achievements, userID, ec)
		if err != nil {
			return nil, err
		}
		unlocked = append(unlocked, batch...)

		granted := 0
		for _, u := range batch {
			granted += u.XPReward
		}
		if granted == 0 {
			break
		}

		reward += granted
		stats.TotalXP += int64(granted)
		stats.CurrentLevel = progression.LevelFromXP(stats.TotalXP, cfg)
		if err := st.Stats.Save(ctx, stats); err != nil {
			return nil, err
		}
	}

	return &Result{
		XPEarned:      breakdown.FinalXP,
		Breakdown:     breakdown,
		AchievementXP: reward,
		LevelUp: progression.LevelUp{
			LeveledUp: stats.CurrentLevel > oldLevel,
			OldLevel:  oldLevel,
			NewLevel:  stats.CurrentLevel,
		},
		Progress:     progression.Progress(stats.TotalXP, cfg),
		Streak:       streak,
		Achievements: unlocked,
		Event:        resolved,
		Stats:        stats,
	}, nil
}

// capStreak bounds the streak by the age of the account.
func (s *Service) capStreak(streak *progression.StreakUpdate, longest int, profile *models.UserProfile, now time.Time) {
	capped := progression.CapStreak(streak.NewStreak, profile.AccountCreatedAt, now)
	if capped >= streak.NewStreak {
		return
	}

	s.log.Warn().
		Uint("user_id", profile.UserID).
		Int("streak", streak.NewStreak).
		Int("capped", capped).
		Msg("Streak longer than account age, capping")

	streak.NewStreak = capped
	streak.LongestStreak = max(longest, capped)
	from := streak.PreviousStreak
	if streak.WasReset {
		from = 0
	}
	streak.Milestone = progression.CrossedMilestone(from, capped)
}

// mergeAttempt folds the attempt into the counters. Unknown tags are skipped.
func (s *Service) mergeAttempt(
	stats *models.UserGamificationStats,
	outcome AttemptOutcome,
	streak progression.StreakUpdate,
	profile *models.UserProfile,
	now time.Time,
) {
	stats.CurrentStreak = streak.NewStreak
	stats.LongestStreak = max(stats.LongestStreak, streak.LongestStreak)
	today := progression.Day(now)
	stats.LastActivityDate = &today

	stats.TotalECGsCompleted++
	knownDifficulty := outcome.Difficulty.Valid()
	if knownDifficulty {
		stats.ECGsByDifficulty.Inc(string(outcome.Difficulty))
	} else {
		s.log.Warn().Uint("user_id", stats.UserID).Str("difficulty", string(outcome.Difficulty)).Msg("Unknown difficulty, not counted")
	}

	if outcome.IsPerfect {
		stats.TotalPerfectScores++
		stats.PerfectStreak++
		if knownDifficulty {
			stats.PerfectByDifficulty.Inc(string(outcome.Difficulty))
		}
	} else {
		stats.PerfectStreak = 0
	}

	for _, c := range unique(outcome.CorrectCategories) {
		if !models.IsKnownCategory(c) {
			s.log.Warn().Uint("user_id", stats.UserID).Str("category", c).Msg("Unknown category, not counted")
			continue
		}
		stats.CorrectByCategory.Inc(c)
	}
	for _, f := range unique(outcome.CorrectFindings) {
		if !models.IsKnownFinding(f) {
			s.log.Warn().Uint("user_id", stats.UserID).Str("finding", f).Msg("Unknown finding, not counted")
			continue
		}
		stats.CorrectByFinding.Inc(f)
	}

	if profile != nil && profile.PracticeContext != "" {
		stats.CompletionsByContext.Inc(profile.PracticeContext)
	}

	if stats.ECGsTodayDate != nil && progression.Day(*stats.ECGsTodayDate).Equal(today) {
		stats.ECGsToday++
	} else {
		stats.ECGsToday = 1
		stats.ECGsTodayDate = &today
	}
}

func persist(ctx context.Context, store StatsStore, stats *models.UserGamificationStats) error {
	if stats.IsNew() {
		return store.Create(ctx, stats)
	}
	return store.Save(ctx, stats)
}

func (s *Service) loadProfile(ctx context.Context, userID uint) *models.UserProfile {
	if s.profiles == nil {
		return nil
	}
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to load profile, continuing without it")
		}
		return nil
	}
	return profile
}

func (s *Service) recordMetrics(outcome AttemptOutcome, r *Result) {
	prommetrics.RecordXPAwarded(string(outcome.Difficulty), string(r.Event.Multiplier()), r.XPEarned)
	if r.LevelUp.LeveledUp {
		prommetrics.RecordLevelUp()
		s.log.Info().
			Uint("user_id", r.Stats.UserID).
			Int("old_level", r.LevelUp.OldLevel).
			Int("new_level", r.LevelUp.NewLevel).
			Msg("Level up")
	}
	if r.Streak.Milestone > 0 {
		prommetrics.RecordStreakMilestone(r.Streak.Milestone)
	}
	if r.Event.Found() {
		prommetrics.RecordEventApplied(string(r.Event.Multiplier()), string(r.Event.Source))
	}
}

// Stats returns the user's stats, or zero-state stats for users without attempts.
func (s *Service) Stats(ctx context.Context, userID uint) (*models.UserGamificationStats, error) {
	stats, err := s.stats.GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.NewUserStats(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return stats, nil
}

// StreakStatus reports whether the user's streak survives if they do nothing now.
func (s *Service) StreakStatus(ctx context.Context, userID uint) (progression.StreakStatus, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return progression.StreakStatus{}, err
	}
	stats, err := s.Stats(ctx, userID)
	if err != nil {
		return progression.StreakStatus{}, err
	}
	return progression.CheckStreakStatus(stats.CurrentStreak, stats.LastActivityDate, s.now(), cfg.StreakGracePeriodHours), nil
}

func unique(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
