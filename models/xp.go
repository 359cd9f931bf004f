package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// XPAccount is the cumulative experience aggregate of a user or a guild.
// Level is a cached derivation of TotalXP.
type XPAccount struct {
	ID                uint            `gorm:"primaryKey" json:"-"`
	OwnerKind         OwnerKind       `gorm:"size:16;not null;uniqueIndex:idx_xp_accounts_owner,priority:1" json:"owner_kind"`
	OwnerID           string          `gorm:"size:64;not null;uniqueIndex:idx_xp_accounts_owner,priority:2" json:"owner_id"`
	TotalXP           int64           `gorm:"not null;default:0;index" json:"total_xp"`
	Level             int             `gorm:"not null;default:1" json:"level"`
	TasksXP           int64           `gorm:"not null;default:0" json:"tasks_xp"`
	HabitsXP          int64           `gorm:"not null;default:0" json:"habits_xp"`
	SocialXP          int64           `gorm:"not null;default:0" json:"social_xp"`
	GuildXP           int64           `gorm:"not null;default:0" json:"guild_xp"`
	CurrentStreakDays int             `gorm:"not null;default:0" json:"current_streak_days"`
	LongestStreakDays int             `gorm:"not null;default:0" json:"longest_streak_days"`
	Multiplier        decimal.Decimal `gorm:"type:decimal(4,2);not null;default:1.00" json:"xp_multiplier"`
	LastActivityDate  string          `gorm:"size:10;index" json:"last_activity_date,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// XPTransaction is an append-only record of one XP award.
// (owner, source type, source id) is unique when the source id is set.
type XPTransaction struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerKind   OwnerKind `gorm:"size:16;not null;uniqueIndex:idx_xp_tx_source,priority:1;index:idx_xp_tx_owner_time,priority:1" json:"owner_kind"`
	OwnerID     string    `gorm:"size:64;not null;uniqueIndex:idx_xp_tx_source,priority:2;index:idx_xp_tx_owner_time,priority:2" json:"owner_id"`
	ActorID     string    `gorm:"size:64;index" json:"actor_id,omitempty"`
	Amount      int64     `gorm:"not null" json:"amount"`
	Category    Category  `gorm:"size:16" json:"category,omitempty"`
	SourceType  string    `gorm:"size:32;not null;uniqueIndex:idx_xp_tx_source,priority:3" json:"source_type"`
	SourceID    *string   `gorm:"size:96;uniqueIndex:idx_xp_tx_source,priority:4" json:"source_id,omitempty"`
	Description string    `gorm:"size:255" json:"description"`
	NewTotalXP  int64     `gorm:"not null" json:"new_total_xp"`
	NewLevel    int       `gorm:"not null" json:"new_level"`
	LeveledUp   bool      `gorm:"not null;default:false" json:"leveled_up"`
	CreatedAt   time.Time `gorm:"index:idx_xp_tx_owner_time,priority:3" json:"created_at"`
}

// BeforeCreate assigns a UUID when the caller did not.
func (t *XPTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
