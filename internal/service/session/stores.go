package session

import (
	"context"
	"time"

	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/internal/repository"
	"github.com/ecgtrainer/gamification-engine/internal/service/achievements"
	"github.com/ecgtrainer/gamification-engine/internal/service/events"
)

// StatsStore reads and writes the per-user aggregate.
// Create and Save return repository.ErrStaleStats when another attempt won the race.
type StatsStore interface {
	GetByUserID(ctx context.Context, userID uint) (*models.UserGamificationStats, error)
	Create(ctx context.Context, stats *models.UserGamificationStats) error
	Save(ctx context.Context, stats *models.UserGamificationStats) error
}

// EventStore resolves events and records participation.
type EventStore interface {
	events.Store
	RecordParticipation(ctx context.Context, userID, eventID uint, at time.Time) (bool, error)
}

// Stores are the stores bound to one unit of work.
type Stores struct {
	Stats        StatsStore
	Events       EventStore
	Achievements achievements.Store
}

// Transactor runs fn as one atomic unit of work.
type Transactor interface {
	InTx(ctx context.Context, fn func(stores Stores) error) error
}

// GormTransactor runs units of work in a database transaction.
type GormTransactor struct {
	db *repository.DB
}

// NewGormTransactor creates a transactor on db.
func NewGormTransactor(db *repository.DB) *GormTransactor {
	return &GormTransactor{db: db}
}

// InTx implements Transactor.
func (t *GormTransactor) InTx(ctx context.Context, fn func(stores Stores) error) error {
	return t.db.InTx(ctx, func(repos *repository.Repositories) error {
		return fn(Stores{
			Stats:        repos.Stats,
			Events:       repos.Events,
			Achievements: repos.Achievements,
		})
	})
}

// ConfigSource supplies the gamification config.
type ConfigSource interface {
	Get(ctx context.Context) (*models.GamificationConfig, error)
}

// ProfileSource supplies the account profile. It returns repository.ErrNotFound for unknown users.
type ProfileSource interface {
	GetByUserID(ctx context.Context, userID uint) (*models.UserProfile, error)
}

// Unlocker records achievement unlocks through the given store.
type Unlocker interface {
	Unlock(ctx context.Context, store achievements.Store, userID uint, ec achievements.EvalContext) ([]achievements.Unlocked, error)
}
