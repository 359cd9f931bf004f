package ledger

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrRewardUnavailable      = errors.New("reward unavailable")
	ErrSoldOut                = errors.New("reward sold out")
	ErrRedemptionLimitReached = errors.New("redemption limit reached")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrRewardNotFound         = errors.New("reward not found")
	ErrInvalidReward          = errors.New("invalid reward")
	ErrRedemptionNotFound     = errors.New("redemption not found")
	ErrInvalidOwner           = errors.New("invalid owner")
	ErrUnknownEvent           = errors.New("unknown event")
	ErrInvalidEvent           = errors.New("invalid event")
	ErrInvalidSource          = errors.New("invalid source reference")
	ErrFutureActivity         = errors.New("activity date is in the future")

	// ErrDuplicateAward aborts a transaction whose insert lost an idempotency
	// race. Public operations report it as a Duplicate result instead.
	ErrDuplicateAward = errors.New("duplicate award")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
