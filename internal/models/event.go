package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEvent is returned when an XPEvent violates one of its invariants.
var ErrInvalidEvent = errors.New("invalid xp event")

// MultiplierType is the kind of XP event.
type MultiplierType string

// MultiplierType constants.
const (
	MultiplierNone MultiplierType = ""
	Multiplier2x   MultiplierType = "2x"
	Multiplier3x   MultiplierType = "3x"
)

// Rank orders multiplier types so 3x wins over 2x.
func (m MultiplierType) Rank() int {
	switch m {
	case Multiplier3x:
		return 3
	case Multiplier2x:
		return 2
	default:
		return 0
	}
}

// TargetType decides who an XP event applies to.
type TargetType string

// TargetType constants.
const (
	TargetAll          TargetType = "all"
	TargetUserSpecific TargetType = "user_specific"
)

// Event sources.
const (
	EventSourceAdmin        = "admin"
	EventSourceReengagement = "reengagement"
)

// XPEvent is a time-boxed additive XP multiplier.
type XPEvent struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"size:255;not null" json:"name"`
	MultiplierType MultiplierType `gorm:"size:8;not null" json:"multiplier_type"`
	StartAt        time.Time      `gorm:"not null;index" json:"start_at"`
	EndAt          time.Time      `gorm:"not null;index" json:"end_at"`
	TargetType     TargetType     `gorm:"size:20;not null;index" json:"target_type"`
	TargetUserID   *uint          `gorm:"index" json:"target_user_id,omitempty"`
	IsActive       bool           `gorm:"not null" json:"is_active"`
	Source         string         `gorm:"size:50" json:"source"`
	CreatedBy      string         `gorm:"size:255" json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TableName specifies the table name for XPEvent model.
func (XPEvent) TableName() string {
	return "xp_events"
}

// Validate checks the event invariants.
func (e *XPEvent) Validate() error {
	if e.MultiplierType != Multiplier2x && e.MultiplierType != Multiplier3x {
		return fmt.Errorf("%w: multiplier_type must be 2x or 3x", ErrInvalidEvent)
	}
	if !e.StartAt.Before(e.EndAt) {
		return fmt.Errorf("%w: start_at must be before end_at", ErrInvalidEvent)
	}
	switch e.TargetType {
	case TargetAll:
		if e.TargetUserID != nil {
			return fmt.Errorf("%w: global event cannot target a user", ErrInvalidEvent)
		}
	case TargetUserSpecific:
		if e.TargetUserID == nil {
			return fmt.Errorf("%w: user_specific event requires target_user_id", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown target_type %q", ErrInvalidEvent, e.TargetType)
	}
	return nil
}

// LiveAt reports whether the event is active and now falls inside [StartAt, EndAt].
func (e *XPEvent) LiveAt(now time.Time) bool {
	return e.IsActive && !now.Before(e.StartAt) && !now.After(e.EndAt)
}

// EventAssignment enrolls a user into an event without making the event itself user-specific.
type EventAssignment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_event_assignment_user_event" json:"user_id"`
	EventID   uint      `gorm:"not null;uniqueIndex:idx_event_assignment_user_event" json:"event_id"`
	Event     XPEvent   `gorm:"foreignKey:EventID" json:"event,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for EventAssignment model.
func (EventAssignment) TableName() string {
	return "xp_event_assignments"
}

// EventParticipation records that a user earned XP under an event at least once.
type EventParticipation struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_event_participation_user_event" json:"user_id"`
	EventID        uint      `gorm:"not null;uniqueIndex:idx_event_participation_user_event" json:"event_id"`
	ParticipatedAt time.Time `gorm:"not null" json:"participated_at"`
}

// TableName specifies the table name for EventParticipation model.
func (EventParticipation) TableName() string {
	return "xp_event_participations"
}
