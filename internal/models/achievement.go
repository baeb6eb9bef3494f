package models

import (
	"time"

	"gorm.io/datatypes"
)

// Achievement is an immutable unlock rule with an XP reward.
type Achievement struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Key              string         `gorm:"uniqueIndex;not null;size:100" json:"key"`
	Name             string         `gorm:"not null;size:255" json:"name"`
	Description      string         `gorm:"type:text" json:"description"`
	Icon             string         `gorm:"size:50" json:"icon"`
	UnlockConditions datatypes.JSON `gorm:"not null" json:"unlock_conditions"`
	XPReward         int            `gorm:"not null;default:0" json:"xp_reward"`
	IsActive         bool           `gorm:"not null" json:"is_active"`
	IsHidden         bool           `gorm:"not null" json:"is_hidden"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TableName specifies the table name for Achievement model.
func (Achievement) TableName() string {
	return "achievements"
}

// UserAchievement records an unlock. At most one row exists per user and achievement.
type UserAchievement struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	UserID        uint        `gorm:"not null;uniqueIndex:idx_user_achievement" json:"user_id"`
	AchievementID uint        `gorm:"not null;uniqueIndex:idx_user_achievement" json:"achievement_id"`
	Achievement   Achievement `gorm:"foreignKey:AchievementID" json:"achievement,omitempty"`
	EarnedAt      time.Time   `gorm:"not null" json:"earned_at"`
}

// TableName specifies the table name for UserAchievement model.
func (UserAchievement) TableName() string {
	return "user_achievements"
}
