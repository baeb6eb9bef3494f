package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/internal/repository"
	"github.com/ecgtrainer/gamification-engine/internal/service/achievements"
	"github.com/ecgtrainer/gamification-engine/pkg/logger"
	"github.com/ecgtrainer/gamification-engine/test/mocks"
)

// mockStatsStore keeps stats in memory and enforces the version check.
type mockStatsStore struct {
	rows      map[uint]*models.UserGamificationStats
	conflicts int // Save calls that fail with ErrStaleStats before succeeding
	err       error
	saves     int
}

func newMockStatsStore() *mockStatsStore {
	return &mockStatsStore{rows: make(map[uint]*models.UserGamificationStats)}
}

func (m *mockStatsStore) GetByUserID(ctx context.Context, userID uint) (*models.UserGamificationStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	row, ok := m.rows[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return row.Clone(), nil
}

func (m *mockStatsStore) Create(ctx context.Context, stats *models.UserGamificationStats) error {
	if _, ok := m.rows[stats.UserID]; ok {
		return repository.ErrStaleStats
	}
	stats.ID = stats.UserID
	stats.Version = 1
	m.rows[stats.UserID] = stats.Clone()
	return nil
}

func (m *mockStatsStore) Save(ctx context.Context, stats *models.UserGamificationStats) error {
	m.saves++
	if m.conflicts > 0 {
		m.conflicts--
		return repository.ErrStaleStats
	}
	stored := m.rows[stats.UserID]
	if stored == nil || stored.Version != stats.Version {
		return repository.ErrStaleStats
	}
	stats.Version++
	m.rows[stats.UserID] = stats.Clone()
	return nil
}

// mockEventStore serves fixed events and remembers participation.
type mockEventStore struct {
	direct        []models.XPEvent
	participation map[[2]uint]bool
}

func newMockEventStore() *mockEventStore {
	return &mockEventStore{participation: make(map[[2]uint]bool)}
}

func (m *mockEventStore) FindLive(ctx context.Context, userID uint, now time.Time) ([]models.XPEvent, error) {
	return m.direct, nil
}

func (m *mockEventStore) FindAssignedLive(ctx context.Context, userID uint, now time.Time) ([]models.XPEvent, error) {
	return nil, nil
}

func (m *mockEventStore) RecordParticipation(ctx context.Context, userID, eventID uint, at time.Time) (bool, error) {
	key := [2]uint{userID, eventID}
	if m.participation[key] {
		return false, nil
	}
	m.participation[key] = true
	return true, nil
}

type mockTransactor struct {
	stores Stores
	calls  int
}

func (m *mockTransactor) InTx(ctx context.Context, fn func(stores Stores) error) error {
	m.calls++
	return fn(m.stores)
}

// mockUnlocker reports each key at most once, like the unique unlock index.
type mockUnlocker struct {
	unlockFunc func(ec achievements.EvalContext) ([]achievements.Unlocked, error)
	seen       []achievements.EvalContext
	earned     map[string]bool
}

func (m *mockUnlocker) Unlock(ctx context.Context, store achievements.Store, userID uint, ec achievements.EvalContext) ([]achievements.Unlocked, error) {
	m.seen = append(m.seen, ec)
	if m.unlockFunc == nil {
		return nil, nil
	}
	candidates, err := m.unlockFunc(ec)
	if err != nil {
		return nil, err
	}
	if m.earned == nil {
		m.earned = make(map[string]bool)
	}
	var fresh []achievements.Unlocked
	for _, u := range candidates {
		if !m.earned[u.Key] {
			m.earned[u.Key] = true
			fresh = append(fresh, u)
		}
	}
	return fresh, nil
}

type staticConfig struct {
	cfg models.GamificationConfig
	err error
}

func (s *staticConfig) Get(ctx context.Context) (*models.GamificationConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	cp := s.cfg
	return &cp, nil
}

type testEnv struct {
	svc      *Service
	stats    *mockStatsStore
	events   *mockEventStore
	tx       *mockTransactor
	unlocker *mockUnlocker
	config   *staticConfig
	profiles *mocks.MockProfileRepository
}

func setupTestService() *testEnv {
	env := &testEnv{
		stats:    newMockStatsStore(),
		events:   newMockEventStore(),
		unlocker: &mockUnlocker{},
		config:   &staticConfig{cfg: models.DefaultGamificationConfig()},
		profiles: &mocks.MockProfileRepository{},
	}
	env.tx = &mockTransactor{stores: Stores{Stats: env.stats, Events: env.events}}
	env.svc = NewServiceWithInterfaces(env.tx, env.stats, env.config, env.profiles, env.unlocker, 3, logger.Nop())
	return env
}

func at(d, h int) time.Time {
	return time.Date(2025, 3, d, h, 0, 0, 0, time.UTC)
}

func medium80(when time.Time) AttemptOutcome {
	return AttemptOutcome{Score: 80, Difficulty: models.DifficultyMedium, CompletedAt: when}
}

func TestCompleteAttemptFirstAttempt(t *testing.T) {
	env := setupTestService()

	res, err := env.svc.CompleteAttempt(context.Background(), 1, medium80(at(10, 9)))
	require.NoError(t, err)

	assert.Equal(t, 52, res.XPEarned)
	assert.Equal(t, 40, res.Breakdown.ScoreBonus)
	assert.Equal(t, 2, res.Breakdown.StreakBonus, "the new streak of 1 counts")
	assert.Equal(t, 1, res.Streak.NewStreak)
	assert.True(t, res.Streak.Extended)
	assert.False(t, res.LevelUp.LeveledUp)
	assert.False(t, res.Event.Found())

	stored := env.stats.rows[1]
	require.NotNil(t, stored)
	assert.Equal(t, int64(52), stored.TotalXP)
	assert.Equal(t, 1, stored.CurrentLevel)
	assert.Equal(t, 1, stored.TotalECGsCompleted)
	assert.Equal(t, 1, stored.ECGsByDifficulty.Get("medium"))
	assert.Equal(t, 1, stored.ECGsToday)
	assert.Equal(t, at(10, 0), *stored.LastActivityDate)
	assert.Equal(t, 52.0, res.Progress.PercentToNext, "52 of 100 xp into level 1")
}

func TestCompleteAttemptUsesNewStreakForXP(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	_, err := env.svc.CompleteAttempt(ctx, 1, medium80(at(10, 9)))
	require.NoError(t, err)

	res, err := env.svc.CompleteAttempt(ctx, 1, medium80(at(11, 9)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak.NewStreak)
	assert.Equal(t, 4, res.Breakdown.StreakBonus)
	assert.Equal(t, 54, res.XPEarned)

	res, err = env.svc.CompleteAttempt(ctx, 1, medium80(at(11, 20)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak.NewStreak, "same day keeps the streak")
	assert.False(t, res.Streak.Extended)
	assert.Equal(t, 2, env.stats.rows[1].ECGsToday)
	assert.Equal(t, 2, env.stats.rows[1].LongestStreak)
}

func TestCompleteAttemptPerfectStreakResets(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	perfect := AttemptOutcome{Score: 100, Difficulty: models.DifficultyHard, IsPerfect: true, CompletedAt: at(10, 9)}
	for i := 0; i < 3; i++ {
		_, err := env.svc.CompleteAttempt(ctx, 1, perfect)
		require.NoError(t, err)
	}
	stored := env.stats.rows[1]
	assert.Equal(t, 3, stored.PerfectStreak)
	assert.Equal(t, 3, stored.TotalPerfectScores)
	assert.Equal(t, 3, stored.PerfectByDifficulty.Get("hard"))

	_, err := env.svc.CompleteAttempt(ctx, 1, medium80(at(10, 10)))
	require.NoError(t, err)
	stored = env.stats.rows[1]
	assert.Equal(t, 0, stored.PerfectStreak)
	assert.Equal(t, 3, stored.TotalPerfectScores)
	assert.LessOrEqual(t, stored.TotalPerfectScores, stored.TotalECGsCompleted)
}

func TestCompleteAttemptToleratesUnknownTags(t *testing.T) {
	env := setupTestService()

	outcome := AttemptOutcome{
		Score:             70,
		Difficulty:        "nightmare",
		CorrectCategories: []string{models.CategoryRhythm, models.CategoryRhythm, "astrology"},
		CorrectFindings:   []string{models.FindingLBBB, "unicorn"},
		CompletedAt:       at(10, 9),
	}
	res, err := env.svc.CompleteAttempt(context.Background(), 1, outcome)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Breakdown.DifficultyMultiplier)

	stored := env.stats.rows[1]
	assert.Equal(t, 1, stored.TotalECGsCompleted)
	assert.Equal(t, 1, stored.CorrectByCategory.Get(models.CategoryRhythm))
	assert.Equal(t, 0, stored.CorrectByCategory.Get("astrology"))
	assert.Equal(t, 1, stored.CorrectByFinding.Get(models.FindingLBBB))
	assert.Empty(t, stored.ECGsByDifficulty)
}

func TestCompleteAttemptAppliesEventOnce(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()
	env.events.direct = []models.XPEvent{{
		ID:             9,
		MultiplierType: models.Multiplier2x,
		TargetType:     models.TargetAll,
		IsActive:       true,
		StartAt:        at(1, 0),
		EndAt:          at(31, 0),
	}}

	res, err := env.svc.CompleteAttempt(ctx, 1, medium80(at(10, 9)))
	require.NoError(t, err)
	assert.True(t, res.Event.Found())
	assert.Equal(t, models.Multiplier2x, res.Breakdown.EventType)
	assert.Equal(t, 104, res.XPEarned, "floor(52 x (1.0 + 1.0))")

	_, err = env.svc.CompleteAttempt(ctx, 1, medium80(at(10, 10)))
	require.NoError(t, err)
	assert.Equal(t, 1, env.stats.rows[1].EventsParticipated)
}

func TestCompleteAttemptAchievementRewardLevelsUp(t *testing.T) {
	env := setupTestService()
	env.unlocker.unlockFunc = func(ec achievements.EvalContext) ([]achievements.Unlocked, error) {
		if ec.Stats.TotalECGsCompleted == 1 {
			return []achievements.Unlocked{{ID: 1, Key: "first_ecg", XPReward: 60}}, nil
		}
		return nil, nil
	}

	res, err := env.svc.CompleteAttempt(context.Background(), 1, medium80(at(10, 9)))
	require.NoError(t, err)

	assert.Equal(t, 52, res.XPEarned)
	assert.Equal(t, 60, res.AchievementXP)
	assert.True(t, res.LevelUp.LeveledUp)
	assert.Equal(t, 1, res.LevelUp.OldLevel)
	assert.Equal(t, 2, res.LevelUp.NewLevel)
	require.Len(t, res.Achievements, 1)

	stored := env.stats.rows[1]
	assert.Equal(t, int64(112), stored.TotalXP)
	assert.Equal(t, 2, stored.CurrentLevel)
}

func TestCompleteAttemptRewardUnlocksLevelAchievement(t *testing.T) {
	env := setupTestService()
	env.unlocker.unlockFunc = func(ec achievements.EvalContext) ([]achievements.Unlocked, error) {
		out := []achievements.Unlocked{{ID: 1, Key: "first_ecg", XPReward: 60}}
		if ec.Stats.CurrentLevel >= 2 {
			out = append(out, achievements.Unlocked{ID: 2, Key: "level_2", XPReward: 10})
		}
		return out, nil
	}

	res, err := env.svc.CompleteAttempt(context.Background(), 1, medium80(at(10, 9)))
	require.NoError(t, err)

	require.Len(t, res.Achievements, 2)
	assert.Equal(t, "first_ecg", res.Achievements[0].Key)
	assert.Equal(t, "level_2", res.Achievements[1].Key)
	assert.Equal(t, 70, res.AchievementXP)
	assert.Len(t, env.unlocker.seen, 3, "evaluation stops after a pass that grants nothing")
	assert.Equal(t, int64(122), env.stats.rows[1].TotalXP)
}

func TestCompleteAttemptPassesSnapshotToAchievements(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	_, err := env.svc.CompleteAttempt(ctx, 1, medium80(at(1, 9)))
	require.NoError(t, err)
	_, err = env.svc.CompleteAttempt(ctx, 1, medium80(at(20, 9)))
	require.NoError(t, err)

	require.Len(t, env.unlocker.seen, 2)
	ec := env.unlocker.seen[1]
	assert.Equal(t, 1, ec.Previous.TotalECGsCompleted)
	assert.Equal(t, at(1, 0), *ec.Previous.LastActivityDate)
	assert.Equal(t, 2, ec.Stats.TotalECGsCompleted)
	assert.Equal(t, at(20, 9), ec.Attempt.CompletedAt)
	assert.True(t, achievements.Comeback{Days: 7}.Satisfied(&ec))
}

func TestCompleteAttemptRetriesOnConflict(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	_, err := env.svc.CompleteAttempt(ctx, 1, medium80(at(10, 9)))
	require.NoError(t, err)

	env.stats.conflicts = 1
	env.tx.calls = 0
	res, err := env.svc.CompleteAttempt(ctx, 1, medium80(at(10, 10)))
	require.NoError(t, err)
	assert.Equal(t, 2, env.tx.calls)
	assert.Equal(t, int64(104), res.Stats.TotalXP)
	assert.Equal(t, 2, env.stats.rows[1].TotalECGsCompleted, "applied exactly once")
}

func TestCompleteAttemptGivesUpAfterMaxRetries(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()

	_, err := env.svc.CompleteAttempt(ctx, 1, medium80(at(10, 9)))
	require.NoError(t, err)

	env.stats.conflicts = 10
	env.tx.calls = 0
	_, err = env.svc.CompleteAttempt(ctx, 1, medium80(at(10, 10)))
	assert.ErrorIs(t, err, ErrRetryable)
	assert.ErrorIs(t, err, repository.ErrStaleStats)
	assert.Equal(t, 3, env.tx.calls)
	assert.Equal(t, 1, env.stats.rows[1].TotalECGsCompleted)
}

func TestCompleteAttemptStoreFailure(t *testing.T) {
	env := setupTestService()
	env.stats.err = errors.New("connection refused")

	_, err := env.svc.CompleteAttempt(context.Background(), 1, medium80(at(10, 9)))
	assert.ErrorIs(t, err, ErrRetryable)
	assert.Equal(t, 1, env.tx.calls, "only conflicts are retried")
}

func TestCompleteAttemptConfigFailure(t *testing.T) {
	env := setupTestService()
	env.config.err = errors.New("db down")

	_, err := env.svc.CompleteAttempt(context.Background(), 1, medium80(at(10, 9)))
	assert.ErrorIs(t, err, ErrRetryable)
	assert.Equal(t, 0, env.tx.calls)
}

func TestCompleteAttemptRejectsMissingUser(t *testing.T) {
	env := setupTestService()

	_, err := env.svc.CompleteAttempt(context.Background(), 0, medium80(at(10, 9)))
	assert.ErrorIs(t, err, ErrInvalidAttempt)
}

func TestCompleteAttemptCapsStreakByAccountAge(t *testing.T) {
	env := setupTestService()
	yesterday := at(9, 0)
	env.stats.rows[1] = &models.UserGamificationStats{
		ID: 1, UserID: 1, CurrentLevel: 1, CurrentStreak: 5, LongestStreak: 5,
		LastActivityDate: &yesterday, Version: 1,
	}
	env.profiles.GetByUserIDFunc = func(ctx context.Context, userID uint) (*models.UserProfile, error) {
		return &models.UserProfile{UserID: userID, PracticeContext: "emergency", AccountCreatedAt: at(9, 8)}, nil
	}

	res, err := env.svc.CompleteAttempt(context.Background(), 1, medium80(at(10, 9)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak.NewStreak)
	assert.Equal(t, 5, res.Streak.LongestStreak, "longest never decreases")

	stored := env.stats.rows[1]
	assert.Equal(t, 2, stored.CurrentStreak)
	assert.Equal(t, 1, stored.CompletionsByContext.Get("emergency"))
}

func TestCompleteAttemptMilestoneFiresOnce(t *testing.T) {
	env := setupTestService()
	ctx := context.Background()
	yesterday := at(9, 0)
	env.stats.rows[1] = &models.UserGamificationStats{
		ID: 1, UserID: 1, CurrentLevel: 1, CurrentStreak: 6, LongestStreak: 6,
		LastActivityDate: &yesterday, Version: 1,
	}

	res, err := env.svc.CompleteAttempt(ctx, 1, medium80(at(10, 9)))
	require.NoError(t, err)
	assert.Equal(t, 7, res.Streak.Milestone)

	res, err = env.svc.CompleteAttempt(ctx, 1, medium80(at(10, 15)))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Streak.Milestone)
}

func TestStreakStatus(t *testing.T) {
	env := setupTestService()
	env.svc.now = func() time.Time { return at(11, 12) }

	status, err := env.svc.StreakStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, status.Active)

	yesterday := at(10, 0)
	env.stats.rows[1] = &models.UserGamificationStats{UserID: 1, CurrentStreak: 4, LastActivityDate: &yesterday}
	status, err = env.svc.StreakStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, status.AtRisk)
	assert.Equal(t, 24.0, status.HoursRemaining)
}
