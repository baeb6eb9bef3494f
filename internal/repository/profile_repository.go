package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/ecgtrainer/gamification-engine/internal/models"
)

// ProfileRepository reads the account profile fields the engine needs.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByUserID retrieves a profile, or ErrNotFound.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID uint) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}

// Upsert creates or replaces the profile for a user.
func (r *ProfileRepository) Upsert(ctx context.Context, profile *models.UserProfile) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "practice_context", "account_created_at", "updated_at"}),
		}).
		Create(profile).Error
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// DisplayNames maps user ids to display names. Users without a profile are absent.
func (r *ProfileRepository) DisplayNames(ctx context.Context, userIDs []uint) (map[uint]string, error) {
	names := make(map[uint]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	var profiles []models.UserProfile
	err := r.db.WithContext(ctx).
		Select("user_id", "display_name").
		Where("user_id IN ?", userIDs).
		Find(&profiles).Error
	if err != nil {
		return nil, err
	}

	for _, p := range profiles {
		names[p.UserID] = p.DisplayName
	}
	return names, nil
}
