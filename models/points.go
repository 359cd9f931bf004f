package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Direction of a points transaction.
type Direction string

const (
	DirectionEarn  Direction = "earn"
	DirectionSpend Direction = "spend"
)

// PointsAccount holds a spendable balance. Guild accounts are treasuries.
type PointsAccount struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	OwnerKind      OwnerKind `gorm:"size:16;not null;uniqueIndex:idx_points_accounts_owner,priority:1" json:"owner_kind"`
	OwnerID        string    `gorm:"size:64;not null;uniqueIndex:idx_points_accounts_owner,priority:2" json:"owner_id"`
	Balance        int64     `gorm:"not null;default:0;check:chk_points_balance,balance >= 0" json:"balance"`
	LifetimeEarned int64     `gorm:"not null;default:0" json:"lifetime_earned"`
	LifetimeSpent  int64     `gorm:"not null;default:0" json:"lifetime_spent"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PointsTransaction is an append-only earn or spend record. Amount is always positive.
type PointsTransaction struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerKind   OwnerKind `gorm:"size:16;not null;uniqueIndex:idx_points_tx_source,priority:1;index:idx_points_tx_owner_time,priority:1" json:"owner_kind"`
	OwnerID     string    `gorm:"size:64;not null;uniqueIndex:idx_points_tx_source,priority:2;index:idx_points_tx_owner_time,priority:2" json:"owner_id"`
	ActorID     string    `gorm:"size:64" json:"actor_id,omitempty"`
	Amount      int64     `gorm:"not null" json:"amount"`
	Direction   Direction `gorm:"size:8;not null;uniqueIndex:idx_points_tx_source,priority:3" json:"direction"`
	SourceType  string    `gorm:"size:32;not null;uniqueIndex:idx_points_tx_source,priority:4" json:"source_type"`
	SourceID    *string   `gorm:"size:96;uniqueIndex:idx_points_tx_source,priority:5" json:"source_id,omitempty"`
	Description string    `gorm:"size:255" json:"description"`
	NewBalance  int64     `gorm:"not null" json:"new_balance"`
	CreatedAt   time.Time `gorm:"index:idx_points_tx_owner_time,priority:3" json:"created_at"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (t *PointsTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
