package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/ecgtrainer/gamification-engine/internal/models"
)

// EventRepository handles XP events, assignments and participations.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, event *models.XPEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// GetByID retrieves an event by its ID.
func (r *EventRepository) GetByID(ctx context.Context, id uint) (*models.XPEvent, error) {
	var event models.XPEvent
	if err := r.db.WithContext(ctx).First(&event, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &event, nil
}

// Deactivate clears the active flag of an event.
func (r *EventRepository) Deactivate(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.XPEvent{}).
		Where("id = ?", id).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindLive returns active events live at now that are global or target userID directly.
func (r *EventRepository) FindLive(ctx context.Context, userID uint, now time.Time) ([]models.XPEvent, error) {
	var events []models.XPEvent
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND start_at <= ? AND end_at >= ?", true, now, now).
		Where(r.db.Where("target_type = ? AND target_user_id = ?", models.TargetUserSpecific, userID).
			Or("target_type = ? AND target_user_id IS NULL", models.TargetAll)).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

// FindAssignedLive returns active events live at now that userID was enrolled into.
func (r *EventRepository) FindAssignedLive(ctx context.Context, userID uint, now time.Time) ([]models.XPEvent, error) {
	var events []models.XPEvent
	err := r.db.WithContext(ctx).
		Joins("JOIN xp_event_assignments ON xp_event_assignments.event_id = xp_events.id").
		Where("xp_event_assignments.user_id = ?", userID).
		Where("xp_events.is_active = ? AND xp_events.start_at <= ? AND xp_events.end_at >= ?", true, now, now).
		Order("xp_events.id ASC").
		Find(&events).Error
	return events, err
}

// HasLivePersonalEvent reports whether userID already has a user-specific event live at now.
func (r *EventRepository) HasLivePersonalEvent(ctx context.Context, userID uint, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.XPEvent{}).
		Where("target_type = ? AND target_user_id = ?", models.TargetUserSpecific, userID).
		Where("is_active = ? AND start_at <= ? AND end_at >= ?", true, now, now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Assign enrolls a user into an event. Returns false if the user was already enrolled.
func (r *EventRepository) Assign(ctx context.Context, userID, eventID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit("Event").
		Create(&models.EventAssignment{UserID: userID, EventID: eventID})
	if res.Error != nil {
		return false, fmt.Errorf("failed to assign event: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// RecordParticipation stores the first time userID earned XP under eventID.
// Returns false if a participation row already existed.
func (r *EventRepository) RecordParticipation(ctx context.Context, userID, eventID uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.EventParticipation{UserID: userID, EventID: eventID, ParticipatedAt: at})
	if res.Error != nil {
		return false, fmt.Errorf("failed to record participation: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListActive returns every event with the active flag set whose window has not ended.
func (r *EventRepository) ListActive(ctx context.Context, now time.Time) ([]models.XPEvent, error) {
	var events []models.XPEvent
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND end_at >= ?", true, now).
		Order("start_at ASC").
		Find(&events).Error
	return events, err
}
