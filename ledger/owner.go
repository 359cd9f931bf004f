package ledger

import (
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/ledger/models"
)

// Owner identifies a user or guild account.
type Owner struct {
	Kind models.OwnerKind `json:"owner_kind"`
	ID   string           `json:"owner_id"`
}

// User returns the owner reference of a user account.
func User(id string) Owner { return Owner{Kind: models.OwnerUser, ID: id} }

// Guild returns the owner reference of a guild account.
func Guild(id string) Owner { return Owner{Kind: models.OwnerGuild, ID: id} }

// Validate rejects unknown kinds and empty or oversized ids.
func (o Owner) Validate() error {
	if !o.Kind.Valid() {
		return ErrInvalidOwner
	}
	id := strings.TrimSpace(o.ID)
	if id == "" || id != o.ID || len(id) > 64 {
		return ErrInvalidOwner
	}
	return nil
}

func (o Owner) String() string { return string(o.Kind) + ":" + o.ID }

func (o Owner) lockKey() string { return "owner:" + o.String() }

func (o Owner) scope(tx *gorm.DB) *gorm.DB {
	return tx.Where("owner_kind = ? AND owner_id = ?", o.Kind, o.ID)
}
