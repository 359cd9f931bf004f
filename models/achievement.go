package models

import (
	"time"

	"gorm.io/datatypes"
)

// AchievementUnlock records the first crossing of an achievement threshold.
// Rows are never updated or deleted.
type AchievementUnlock struct {
	ID             uint              `gorm:"primaryKey" json:"-"`
	OwnerKind      OwnerKind         `gorm:"size:16;not null;uniqueIndex:idx_unlocks_owner_key,priority:1" json:"owner_kind"`
	OwnerID        string            `gorm:"size:64;not null;uniqueIndex:idx_unlocks_owner_key,priority:2" json:"owner_id"`
	AchievementKey string            `gorm:"size:64;not null;uniqueIndex:idx_unlocks_owner_key,priority:3" json:"achievement_key"`
	XPAwarded      int64             `gorm:"not null;default:0" json:"xp_awarded"`
	Snapshot       datatypes.JSONMap `json:"snapshot,omitempty"`
	UnlockedAt     time.Time         `gorm:"not null" json:"unlocked_at"`
}

// OwnerStat carries aggregates owned by other services (guild membership,
// task assignment) that achievement criteria read.
type OwnerStat struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	OwnerKind      OwnerKind `gorm:"size:16;not null;uniqueIndex:idx_owner_stats_owner,priority:1" json:"owner_kind"`
	OwnerID        string    `gorm:"size:64;not null;uniqueIndex:idx_owner_stats_owner,priority:2" json:"owner_id"`
	MemberCount    int64     `gorm:"not null;default:0" json:"member_count"`
	TasksAssigned  int64     `gorm:"not null;default:0" json:"tasks_assigned"`
	TasksCompleted int64     `gorm:"not null;default:0" json:"tasks_completed"`
	UpdatedAt      time.Time `json:"updated_at"`
}
