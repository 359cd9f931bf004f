package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reward types offered in shops.
const (
	RewardTitle    = "title"
	RewardBadge    = "badge"
	RewardRole     = "role"
	RewardPriority = "priority"
	RewardPhysical = "physical"
	RewardOther    = "other"
)

// Redemption statuses.
const (
	RedemptionPending   = "pending"
	RedemptionFulfilled = "fulfilled"
)

// Reward is something an owner's points can be exchanged for. Deleting a reward
// only deactivates it so redemption history keeps its reference.
type Reward struct {
	ID                string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerKind         OwnerKind `gorm:"size:16;not null;uniqueIndex:idx_rewards_owner_slug,priority:1;index:idx_rewards_owner,priority:1" json:"owner_kind"`
	OwnerID           string    `gorm:"size:64;not null;uniqueIndex:idx_rewards_owner_slug,priority:2;index:idx_rewards_owner,priority:2" json:"owner_id"`
	Slug              string    `gorm:"size:120;not null;uniqueIndex:idx_rewards_owner_slug,priority:3" json:"slug"`
	Name              string    `gorm:"size:100;not null" json:"name"`
	Description       string    `gorm:"size:500" json:"description"`
	Icon              string    `gorm:"size:16" json:"icon"`
	RewardType        string    `gorm:"size:16;not null;default:other" json:"reward_type"`
	Cost              int64     `gorm:"not null" json:"cost"`
	QuantityAvailable *int64    `json:"quantity_available"`
	MaxPerRedeemer    int       `gorm:"not null;default:1" json:"max_per_redeemer"`
	RedemptionCount   int64     `gorm:"not null;default:0" json:"redemption_count"`
	IsActive          bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedBy         string    `gorm:"size:64" json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (r *Reward) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// SoldOut reports whether the total quantity cap has been reached.
func (r *Reward) SoldOut() bool {
	return r.QuantityAvailable != nil && r.RedemptionCount >= *r.QuantityAvailable
}

// Redemption records a reward exchange. Only the fulfilment fields change after creation.
type Redemption struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	RewardID    *string    `gorm:"size:36;index:idx_redemptions_reward_redeemer,priority:1" json:"reward_id"`
	RewardName  string     `gorm:"size:100;not null" json:"reward_name"`
	RewardIcon  string     `gorm:"size:16" json:"reward_icon"`
	PayerKind   OwnerKind  `gorm:"size:16;not null;index:idx_redemptions_payer,priority:1" json:"payer_kind"`
	PayerID     string     `gorm:"size:64;not null;index:idx_redemptions_payer,priority:2" json:"payer_id"`
	RedeemerID  string     `gorm:"size:64;not null;index:idx_redemptions_reward_redeemer,priority:2" json:"redeemer_id"`
	PointsSpent int64      `gorm:"not null" json:"points_spent"`
	Status      string     `gorm:"size:16;not null;default:pending" json:"status"`
	Notes       string     `gorm:"size:500" json:"notes,omitempty"`
	RedeemedAt  time.Time  `gorm:"not null;index" json:"redeemed_at"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
	FulfilledBy string     `gorm:"size:64" json:"fulfilled_by,omitempty"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (r *Redemption) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
