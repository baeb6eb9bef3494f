package repository

import (
	"context"
	"fmt"

	"github.com/ecgtrainer/gamification-engine/internal/models"
)

// ConfigRepository handles the gamification config singleton.
type ConfigRepository struct {
	db *DB
}

// NewConfigRepository creates a new config repository.
func NewConfigRepository(db *DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Get returns the singleton row, or ErrNotFound if it was never created.
func (r *ConfigRepository) Get(ctx context.Context) (*models.GamificationConfig, error) {
	var cfg models.GamificationConfig
	err := r.db.WithContext(ctx).Order("id ASC").First(&cfg).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &cfg, nil
}

// Create inserts the singleton row.
func (r *ConfigRepository) Create(ctx context.Context, cfg *models.GamificationConfig) error {
	if err := r.db.WithContext(ctx).Create(cfg).Error; err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	return nil
}

// Save overwrites the singleton row.
func (r *ConfigRepository) Save(ctx context.Context, cfg *models.GamificationConfig) error {
	if err := r.db.WithContext(ctx).Save(cfg).Error; err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
