package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/internal/repository"
	"github.com/ecgtrainer/gamification-engine/pkg/logger"
)

// AdminStore is the persistence needed for event administration.
type AdminStore interface {
	Store
	Create(ctx context.Context, event *models.XPEvent) error
	GetByID(ctx context.Context, id uint) (*models.XPEvent, error)
	Deactivate(ctx context.Context, id uint) error
	Assign(ctx context.Context, userID, eventID uint) (bool, error)
	HasLivePersonalEvent(ctx context.Context, userID uint, now time.Time) (bool, error)
	ListActive(ctx context.Context, now time.Time) ([]models.XPEvent, error)
}

// Service manages XP events.
type Service struct {
	store AdminStore
	log   *logger.Logger
	now   func() time.Time
}

// NewService creates a new event service.
func NewService(repo *repository.EventRepository, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(repo, log)
}

// NewServiceWithInterfaces creates a new event service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(store AdminStore, log *logger.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Resolve returns the event that applies to userID right now.
func (s *Service) Resolve(ctx context.Context, userID uint) (Resolved, error) {
	return ResolveActive(ctx, s.store, userID, s.now())
}

// Create validates and stores a new active event.
func (s *Service) Create(ctx context.Context, event *models.XPEvent) error {
	if event.Source == "" {
		event.Source = models.EventSourceAdmin
	}
	event.IsActive = true

	if err := event.Validate(); err != nil {
		return err
	}

	if err := s.store.Create(ctx, event); err != nil {
		s.log.Error().Err(err).Str("name", event.Name).Msg("Failed to create XP event")
		return fmt.Errorf("failed to create event: %w", err)
	}

	s.log.Info().
		Uint("event_id", event.ID).
		Str("multiplier", string(event.MultiplierType)).
		Str("target", string(event.TargetType)).
		Time("start_at", event.StartAt).
		Time("end_at", event.EndAt).
		Msg("XP event created")

	return nil
}

// Deactivate turns an event off. Returns repository.ErrNotFound for unknown ids.
func (s *Service) Deactivate(ctx context.Context, id uint) error {
	if err := s.store.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to deactivate event %d: %w", id, err)
	}

	s.log.Info().Uint("event_id", id).Msg("XP event deactivated")
	return nil
}

// Enroll assigns userID to an existing event. Returns false if already enrolled.
func (s *Service) Enroll(ctx context.Context, eventID, userID uint) (bool, error) {
	if _, err := s.store.GetByID(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, err
		}
		return false, fmt.Errorf("failed to load event %d: %w", eventID, err)
	}

	created, err := s.store.Assign(ctx, userID, eventID)
	if err != nil {
		return false, err
	}

	if created {
		s.log.Info().Uint("event_id", eventID).Uint("user_id", userID).Msg("User enrolled in XP event")
	}
	return created, nil
}

// CreateReengagementEvent gives an inactive user a personal event starting now.
// Nothing is created when the user already has a live personal event; the bool reports creation.
func (s *Service) CreateReengagementEvent(
	ctx context.Context,
	userID uint,
	multiplier models.MultiplierType,
	duration time.Duration,
	inactiveDays int,
) (*models.XPEvent, bool, error) {
	now := s.now()

	exists, err := s.store.HasLivePersonalEvent(ctx, userID, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check personal events: %w", err)
	}
	if exists {
		s.log.Debug().Uint("user_id", userID).Msg("User already has a personal XP event, skipping")
		return nil, false, nil
	}

	target := userID
	event := &models.XPEvent{
		Name:           fmt.Sprintf("Welcome back (%d days)", inactiveDays),
		MultiplierType: multiplier,
		StartAt:        now,
		EndAt:          now.Add(duration),
		TargetType:     models.TargetUserSpecific,
		TargetUserID:   &target,
		Source:         models.EventSourceReengagement,
		CreatedBy:      "scheduler",
	}
	if err := s.Create(ctx, event); err != nil {
		return nil, false, err
	}

	return event, true, nil
}

// ListActive returns events that are switched on and not yet over.
func (s *Service) ListActive(ctx context.Context) ([]models.XPEvent, error) {
	return s.store.ListActive(ctx, s.now())
}
