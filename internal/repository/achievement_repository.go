package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/ecgtrainer/gamification-engine/internal/models"
)

// AchievementRepository handles achievement definitions and unlocks.
type AchievementRepository struct {
	db *DB
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(db *DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// ListActive retrieves all active achievements.
func (r *AchievementRepository) ListActive(ctx context.Context) ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&achievements).Error
	return achievements, err
}

// GetByKey retrieves an achievement by its key.
func (r *AchievementRepository) GetByKey(ctx context.Context, key string) (*models.Achievement, error) {
	var achievement models.Achievement
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&achievement).Error; err != nil {
		return nil, notFound(err)
	}
	return &achievement, nil
}

// Upsert inserts an achievement or updates the existing row with the same key.
func (r *AchievementRepository) Upsert(ctx context.Context, achievement *models.Achievement) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "icon", "unlock_conditions",
				"xp_reward", "is_active", "is_hidden", "updated_at",
			}),
		}).
		Create(achievement).Error
	if err != nil {
		return fmt.Errorf("failed to upsert achievement %s: %w", achievement.Key, err)
	}
	return nil
}

// EarnedIDs returns the ids of every achievement the user has unlocked.
func (r *AchievementRepository) EarnedIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.UserAchievement{}).
		Where("user_id = ?", userID).
		Pluck("achievement_id", &ids).Error
	return ids, err
}

// ListEarned retrieves a user's unlocks with achievement details preloaded, newest first.
func (r *AchievementRepository) ListEarned(ctx context.Context, userID uint) ([]models.UserAchievement, error) {
	var earned []models.UserAchievement
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Achievement").
		Order("earned_at DESC").
		Find(&earned).Error
	return earned, err
}

// InsertUnlock records an unlock. Returns false when the user already had it.
func (r *AchievementRepository) InsertUnlock(ctx context.Context, unlock *models.UserAchievement) (bool, error) {
	res := r.db.WithContext(ctx).
		Omit("Achievement").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(unlock)
	if res.Error != nil {
		return false, fmt.Errorf("failed to insert unlock: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CountHolders returns the number of users who have unlocked an achievement.
func (r *AchievementRepository) CountHolders(ctx context.Context, achievementID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserAchievement{}).
		Where("achievement_id = ?", achievementID).
		Count(&count).Error
	return count, err
}
