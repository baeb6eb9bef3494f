package mocks

import (
	"context"

	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/internal/repository"
)

// MockProfileRepository is a simple mock for the profile collaborator
type MockProfileRepository struct {
	GetByUserIDFunc  func(ctx context.Context, userID uint) (*models.UserProfile, error)
	DisplayNamesFunc func(ctx context.Context, userIDs []uint) (map[uint]string, error)
}

func (m *MockProfileRepository) GetByUserID(ctx context.Context, userID uint) (*models.UserProfile, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return nil, repository.ErrNotFound
}

func (m *MockProfileRepository) DisplayNames(ctx context.Context, userIDs []uint) (map[uint]string, error) {
	if m.DisplayNamesFunc != nil {
		return m.DisplayNamesFunc(ctx, userIDs)
	}
	return map[uint]string{}, nil
}

// MockConfigRepository keeps the config singleton in memory
type MockConfigRepository struct {
	Config    *models.GamificationConfig
	GetErr    error
	SaveErr   error
	GetCalls  int
	SaveCalls int
}

func (m *MockConfigRepository) Get(ctx context.Context) (*models.GamificationConfig, error) {
	m.GetCalls++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if m.Config == nil {
		return nil, repository.ErrNotFound
	}
	cp := *m.Config
	return &cp, nil
}

func (m *MockConfigRepository) Create(ctx context.Context, cfg *models.GamificationConfig) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cfg.ID = 1
	cp := *cfg
	m.Config = &cp
	return nil
}

func (m *MockConfigRepository) Save(ctx context.Context, cfg *models.GamificationConfig) error {
	m.SaveCalls++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *cfg
	m.Config = &cp
	return nil
}
