package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/ecgtrainer/gamification-engine/internal/models"
)

// StatsRepository handles user gamification stats.
type StatsRepository struct {
	db *DB
}

// NewStatsRepository creates a new stats repository.
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// GetByUserID returns the stats row for a user, or ErrNotFound.
func (r *StatsRepository) GetByUserID(ctx context.Context, userID uint) (*models.UserGamificationStats, error) {
	var stats models.UserGamificationStats
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&stats).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &stats, nil
}

// Create inserts a first stats row. A concurrent insert for the same user yields ErrStaleStats.
func (r *StatsRepository) Create(ctx context.Context, stats *models.UserGamificationStats) error {
	stats.Version = 1
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(stats)
	if res.Error != nil {
		return fmt.Errorf("failed to create stats: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		stats.ID = 0
		return ErrStaleStats
	}
	return nil
}

// Save writes every column of an existing row, guarded by its version.
// On success the version is bumped; on conflict ErrStaleStats is returned and stats is left as it was.
func (r *StatsRepository) Save(ctx context.Context, stats *models.UserGamificationStats) error {
	prev := stats.Version
	stats.Version = prev + 1

	res := r.db.WithContext(ctx).
		Model(stats).
		Where("version = ?", prev).
		Select("*").
		Omit("id", "user_id", "created_at").
		Updates(stats)
	if res.Error != nil {
		stats.Version = prev
		return fmt.Errorf("failed to save stats: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		stats.Version = prev
		return ErrStaleStats
	}
	return nil
}

// Top returns the highest-XP rows, ties broken by user id.
func (r *StatsRepository) Top(ctx context.Context, limit int) ([]models.UserGamificationStats, error) {
	var rows []models.UserGamificationStats
	err := r.db.WithContext(ctx).
		Order("total_xp DESC").
		Order("user_id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// CountAbove counts users with strictly more XP than xp.
func (r *StatsRepository) CountAbove(ctx context.Context, xp int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserGamificationStats{}).
		Where("total_xp > ?", xp).
		Count(&count).Error
	return count, err
}

// Count returns the number of users with a stats row.
func (r *StatsRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserGamificationStats{}).Count(&count).Error
	return count, err
}

// ListLastActiveOn returns users whose last activity fell on the given calendar day.
func (r *StatsRepository) ListLastActiveOn(ctx context.Context, day time.Time) ([]models.UserGamificationStats, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	var rows []models.UserGamificationStats
	err := r.db.WithContext(ctx).
		Where("last_activity_date >= ? AND last_activity_date < ?", start, start.AddDate(0, 0, 1)).
		Order("user_id ASC").
		Find(&rows).Error
	return rows, err
}

// ListActiveStreaks returns users with a running streak whose last activity is on or after since.
func (r *StatsRepository) ListActiveStreaks(ctx context.Context, since time.Time) ([]models.UserGamificationStats, error) {
	var rows []models.UserGamificationStats
	err := r.db.WithContext(ctx).
		Where("current_streak > 0 AND last_activity_date >= ?", since).
		Order("user_id ASC").
		Find(&rows).Error
	return rows, err
}
