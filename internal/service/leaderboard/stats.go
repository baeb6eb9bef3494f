package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/internal/repository"
	"github.com/ecgtrainer/gamification-engine/internal/service/progression"
)

// UserStats summarizes a user's progression for profile pages.
type UserStats struct {
	UserID           uint                      `json:"user_id"`
	DisplayName      string                    `json:"display_name"`
	TotalXP          int64                     `json:"total_xp"`
	Progress         progression.LevelProgress `json:"progress"`
	CurrentStreak    int                       `json:"current_streak"`
	LongestStreak    int                       `json:"longest_streak"`
	TotalECGs        int                       `json:"total_ecgs"`
	PerfectScores    int                       `json:"perfect_scores"`
	AchievementCount int                       `json:"achievement_count"`
	Rank             int64                     `json:"rank"`
	Percentile       int                       `json:"percentile"`
}

// GetUserStats returns the progression summary for a user.
func (s *Service) GetUserStats(ctx context.Context, userID uint) (*UserStats, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	stats, err := s.statsRepo.GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		stats = models.NewUserStats(userID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}

	rank, total, _, err := s.standing(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &UserStats{
		UserID:        userID,
		TotalXP:       stats.TotalXP,
		Progress:      progression.Progress(stats.TotalXP, cfg),
		CurrentStreak: stats.CurrentStreak,
		LongestStreak: stats.LongestStreak,
		TotalECGs:     stats.TotalECGsCompleted,
		PerfectScores: stats.TotalPerfectScores,
		Rank:          rank,
		Percentile:    Percentile(rank, total),
	}

	earned, err := s.achievementRepo.EarnedIDs(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to get earned achievements")
	} else {
		out.AchievementCount = len(earned)
	}

	names, err := s.profileRepo.DisplayNames(ctx, []uint{userID})
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to get display name")
	} else {
		out.DisplayName = names[userID]
	}

	return out, nil
}
