package achievements

import (
	"context"
	"fmt"
	"time"

	prommetrics "github.com/ecgtrainer/gamification-engine/internal/metrics"
	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/internal/repository"
	"github.com/ecgtrainer/gamification-engine/pkg/logger"
)

// Store is the persistence needed to unlock achievements. It may be bound to a transaction.
type Store interface {
	ListActive(ctx context.Context) ([]models.Achievement, error)
	EarnedIDs(ctx context.Context, userID uint) ([]uint, error)
	InsertUnlock(ctx context.Context, unlock *models.UserAchievement) (bool, error)
}

// Repository adds catalog management to Store.
type Repository interface {
	Store
	Upsert(ctx context.Context, achievement *models.Achievement) error
	ListEarned(ctx context.Context, userID uint) ([]models.UserAchievement, error)
}

// Unlocked describes an achievement unlocked by an attempt.
type Unlocked struct {
	ID          uint   `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	XPReward    int    `json:"xp_reward"`
}

// CatalogEntry is an achievement as shown to a user.
type CatalogEntry struct {
	Achievement models.Achievement `json:"achievement"`
	Earned      bool               `json:"earned"`
	EarnedAt    *time.Time         `json:"earned_at,omitempty"`
}

// Service handles achievement unlocking and the catalog.
type Service struct {
	repo Repository
	log  *logger.Logger
	now  func() time.Time
}

// NewService creates a new achievement service.
func NewService(repo *repository.AchievementRepository, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(repo, log)
}

// NewServiceWithInterfaces creates a new achievement service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo Repository, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

// Unlock evaluates every active achievement the user has not earned and records the newly satisfied ones.
// store may be bound to a transaction; nil uses the service repository.
// Only rows actually inserted are returned, so a concurrent unlock of the same achievement is reported once.
func (s *Service) Unlock(ctx context.Context, store Store, userID uint, ec EvalContext) ([]Unlocked, error) {
	if store == nil {
		store = s.repo
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}

	earnedIDs, err := store.EarnedIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list earned achievements: %w", err)
	}
	earned := make(map[uint]bool, len(earnedIDs))
	for _, id := range earnedIDs {
		earned[id] = true
	}

	defs, compileErrs := Compile(active)
	for _, ce := range compileErrs {
		s.log.Warn().
			Err(ce.Err).
			Str("achievement", ce.Achievement.Key).
			Msg("Skipping achievement with invalid unlock conditions")
		prommetrics.RecordAchievementConditionError(ce.Achievement.Key)
	}

	earnedAt := ec.Attempt.CompletedAt
	if earnedAt.IsZero() {
		earnedAt = s.now()
	}

	var unlocked []Unlocked
	for _, d := range Evaluate(defs, earned, ec) {
		a := d.Achievement
		inserted, err := store.InsertUnlock(ctx, &models.UserAchievement{
			UserID:        userID,
			AchievementID: a.ID,
			EarnedAt:      earnedAt,
		})
		if err != nil {
			s.log.Error().Err(err).Uint("user_id", userID).Str("achievement", a.Key).Msg("Failed to record unlock")
			return nil, fmt.Errorf("failed to unlock %s: %w", a.Key, err)
		}
		if !inserted {
			continue
		}

		s.log.Info().
			Uint("user_id", userID).
			Str("achievement", a.Key).
			Int("xp_reward", a.XPReward).
			Msg("Achievement unlocked")
		prommetrics.RecordAchievementUnlocked(a.Key)

		unlocked = append(unlocked, Unlocked{
			ID:          a.ID,
			Key:         a.Key,
			Name:        a.Name,
			Description: a.Description,
			Icon:        a.Icon,
			XPReward:    a.XPReward,
		})
	}

	return unlocked, nil
}

// Catalog lists active achievements for a user. Hidden achievements appear only once earned.
func (s *Service) Catalog(ctx context.Context, userID uint) ([]CatalogEntry, error) {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}

	earned, err := s.repo.ListEarned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list earned achievements: %w", err)
	}
	earnedAt := make(map[uint]time.Time, len(earned))
	for _, ua := range earned {
		earnedAt[ua.AchievementID] = ua.EarnedAt
	}

	entries := make([]CatalogEntry, 0, len(active))
	for _, a := range active {
		at, ok := earnedAt[a.ID]
		if a.IsHidden && !ok {
			continue
		}
		entry := CatalogEntry{Achievement: a, Earned: ok}
		if ok {
			entry.EarnedAt = &at
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
