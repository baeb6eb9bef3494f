// Package leaderboard provides leaderboard and ranking services.
package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/ecgtrainer/gamification-engine/internal/config"
	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/internal/repository"
	"github.com/ecgtrainer/gamification-engine/pkg/logger"
)

// StatsRepository interface for ranking queries.
type StatsRepository interface {
	GetByUserID(ctx context.Context, userID uint) (*models.UserGamificationStats, error)
	Top(ctx context.Context, limit int) ([]models.UserGamificationStats, error)
	CountAbove(ctx context.Context, xp int64) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// ProfileRepository interface for display names.
type ProfileRepository interface {
	DisplayNames(ctx context.Context, userIDs []uint) (map[uint]string, error)
}

// AchievementRepository interface for earned achievement counts.
type AchievementRepository interface {
	EarnedIDs(ctx context.Context, userID uint) ([]uint, error)
}

// ConfigSource supplies the gamification config.
type ConfigSource interface {
	Get(ctx context.Context) (*models.GamificationConfig, error)
}

// Entry represents a single entry in a leaderboard.
type Entry struct {
	UserID      uint   `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"` // empty below the visible cut
	TotalXP     int64  `json:"total_xp"`
	Level       int    `json:"level"`
	Rank        int64  `json:"rank"`
}

// Board is a leaderboard as seen by one user.
type Board struct {
	Entries     []Entry `json:"entries"`
	UserID      uint    `json:"user_id"`
	UserTotalXP int64   `json:"user_total_xp"`
	UserRank    int64   `json:"user_rank"`
	TotalUsers  int64   `json:"total_users"`
	Percentile  int     `json:"percentile"`
	IsInTopN    bool    `json:"is_in_top_n"`
	TopNVisible int     `json:"top_n_visible"`
}

// Service handles leaderboard generation and user standings.
type Service struct {
	statsRepo       StatsRepository
	profileRepo     ProfileRepository
	achievementRepo AchievementRepository
	config          ConfigSource
	limits          config.GamificationConfig
	log             *logger.Logger
}

// NewService creates a new leaderboard service with concrete repository types.
func NewService(
	repos *repository.Repositories,
	cfg ConfigSource,
	limits config.GamificationConfig,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(repos.Stats, repos.Profiles, repos.Achievements, cfg, limits, log)
}

// NewServiceWithInterfaces creates a new leaderboard service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	statsRepo StatsRepository,
	profileRepo ProfileRepository,
	achievementRepo AchievementRepository,
	cfg ConfigSource,
	limits config.GamificationConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		statsRepo:       statsRepo,
		profileRepo:     profileRepo,
		achievementRepo: achievementRepo,
		config:          cfg,
		limits:          limits,
		log:             log,
	}
}

// GetLeaderboard returns the top users by XP together with the requesting user's standing.
// limit is clamped to the configured maximum.
func (s *Service) GetLeaderboard(ctx context.Context, userID uint, limit int) (*Board, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	limit = s.limits.ClampLeaderboardLimit(limit)
	top, err := s.statsRepo.Top(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}

	rank, total, userXP, err := s.standing(ctx, userID)
	if err != nil {
		return nil, err
	}

	board := &Board{
		Entries:     buildEntries(top),
		UserID:      userID,
		UserTotalXP: userXP,
		UserRank:    rank,
		TotalUsers:  total,
		Percentile:  Percentile(rank, total),
		IsInTopN:    rank <= int64(cfg.RankingTopNVisible),
		TopNVisible: cfg.RankingTopNVisible,
	}

	s.attachNames(ctx, board, int64(cfg.RankingTopNVisible))

	return board, nil
}

// GetUserRank returns the user's competition rank: one plus the number of users with more XP.
func (s *Service) GetUserRank(ctx context.Context, userID uint) (int64, error) {
	rank, _, _, err := s.standing(ctx, userID)
	return rank, err
}

// standing computes rank and population. Users without stats rank as a zero-XP user.
func (s *Service) standing(ctx context.Context, userID uint) (rank, total, xp int64, err error) {
	total, err = s.statsRepo.Count(ctx)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count users: %w", err)
	}

	stats, err := s.statsRepo.GetByUserID(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		total++
	case err != nil:
		return 0, 0, 0, fmt.Errorf("failed to get user stats: %w", err)
	default:
		xp = stats.TotalXP
	}

	above, err := s.statsRepo.CountAbove(ctx, xp)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to rank user: %w", err)
	}

	return above + 1, total, xp, nil
}

// buildEntries assigns competition ranks to rows already ordered by XP.
func buildEntries(rows []models.UserGamificationStats) []Entry {
	entries := make([]Entry, 0, len(rows))
	for i, row := range rows {
		rank := int64(i + 1)
		if i > 0 && row.TotalXP == rows[i-1].TotalXP {
			rank = entries[i-1].Rank
		}
		entries = append(entries, Entry{
			UserID:  row.UserID,
			TotalXP: row.TotalXP,
			Level:   row.CurrentLevel,
			Rank:    rank,
		})
	}
	return entries
}

// attachNames fills display names for entries within the visible cut and for the requesting user.
func (s *Service) attachNames(ctx context.Context, board *Board, topN int64) {
	ids := make([]uint, 0, len(board.Entries))
	for _, e := range board.Entries {
		if e.Rank <= topN || e.UserID == board.UserID {
			ids = append(ids, e.UserID)
		}
	}
	if len(ids) == 0 {
		return
	}

	names, err := s.profileRepo.DisplayNames(ctx, ids)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get display names")
		return
	}

	for i := range board.Entries {
		e := &board.Entries[i]
		if e.Rank <= topN || e.UserID == board.UserID {
			e.DisplayName = names[e.UserID]
		}
	}
}

// Percentile is the floored share of users at or below rank.
func Percentile(rank, total int64) int {
	if total <= 0 || rank <= 0 {
		return 0
	}
	if rank > total {
		rank = total
	}
	return int((total - rank + 1) * 100 / total)
}
