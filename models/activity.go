package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivityDay is one entry of the per-day completion log a streak is recomputed from.
type ActivityDay struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	OwnerKind OwnerKind `gorm:"size:16;not null;uniqueIndex:idx_activity_days_key_day,priority:1" json:"owner_kind"`
	OwnerID   string    `gorm:"size:64;not null;uniqueIndex:idx_activity_days_key_day,priority:2" json:"owner_id"`
	StreakKey string    `gorm:"size:64;not null;uniqueIndex:idx_activity_days_key_day,priority:3" json:"streak_key"`
	Day       string    `gorm:"size:10;not null;uniqueIndex:idx_activity_days_key_day,priority:4" json:"day"`
	Completed bool      `gorm:"not null" json:"completed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HabitStreak caches the last recomputed streak for one streak key.
type HabitStreak struct {
	ID               uint            `gorm:"primaryKey" json:"-"`
	OwnerKind        OwnerKind       `gorm:"size:16;not null;uniqueIndex:idx_habit_streaks_key,priority:1" json:"owner_kind"`
	OwnerID          string          `gorm:"size:64;not null;uniqueIndex:idx_habit_streaks_key,priority:2" json:"owner_id"`
	StreakKey        string          `gorm:"size:64;not null;uniqueIndex:idx_habit_streaks_key,priority:3" json:"streak_key"`
	Current          int             `gorm:"column:current_streak;not null;default:0" json:"current_streak"`
	Longest          int             `gorm:"column:longest_streak;not null;default:0" json:"longest_streak"`
	Multiplier       decimal.Decimal `gorm:"type:decimal(4,2);not null;default:1.00" json:"multiplier"`
	LastCompletedDay string          `gorm:"size:10" json:"last_completed_day,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
