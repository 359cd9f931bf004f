package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/ledger/models"
)

// PointsAward is a request to credit spendable points. A zero Multiplier means 1.00.
type PointsAward struct {
	Owner       Owner
	BaseAmount  int64
	Multiplier  decimal.Decimal
	SourceType  string
	SourceID    *string
	Description string
	ActorID     string
}

// PointsSpend is a request to debit spendable points.
type PointsSpend struct {
	Owner       Owner
	Amount      int64
	SourceType  string
	SourceID    *string
	Description string
	ActorID     string
}

// PointsResult reports the effect of an earn or spend.
type PointsResult struct {
	Requested   int64                     `json:"requested"`
	Applied     int64                     `json:"applied"`
	Duplicate   bool                      `json:"duplicate"`
	Capped      bool                      `json:"capped"`
	Account     models.PointsAccount      `json:"account"`
	Transaction *models.PointsTransaction `json:"transaction,omitempty"`
}

// AwardPoints boosts the base amount by the clamped multiplier, passes it
// through the daily ceiling and credits the owner's balance.
func (l *Ledger) AwardPoints(ctx context.Context, award PointsAward) (*PointsResult, error) {
	if err := award.Owner.Validate(); err != nil {
		return nil, err
	}
	if award.BaseAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	var res *PointsResult
	err := l.atomically(ctx, []string{award.Owner.lockKey()}, func(tx *gorm.DB) error {
		acct, err := l.lockPointsAccount(tx, award.Owner)
		if err != nil {
			return err
		}
		res, err = l.earnLocked(tx, acct, award)
		return err
	})
	if errors.Is(err, ErrDuplicateAward) {
		return &PointsResult{Requested: award.BaseAmount, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	l.publish(pointsNotices(NoticePointsAwarded, award.Owner, award.ActorID, res))
	return res, nil
}

// SpendPoints debits amount, failing with ErrInsufficientBalance when the
// balance cannot cover it.
func (l *Ledger) SpendPoints(ctx context.Context, spend PointsSpend) (*PointsResult, error) {
	if err := spend.Owner.Validate(); err != nil {
		return nil, err
	}
	if spend.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var res *PointsResult
	err := l.atomically(ctx, []string{spend.Owner.lockKey()}, func(tx *gorm.DB) error {
		acct, err := l.lockPointsAccount(tx, spend.Owner)
		if err != nil {
			return err
		}
		res, err = l.spendLocked(tx, acct, spend)
		return err
	})
	if errors.Is(err, ErrDuplicateAward) {
		return &PointsResult{Requested: spend.Amount, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	l.publish(pointsNotices(NoticePointsSpent, spend.Owner, spend.ActorID, res))
	return res, nil
}

func (l *Ledger) earnLocked(tx *gorm.DB, acct *models.PointsAccount, award PointsAward) (*PointsResult, error) {
	mult := l.policy.ClampMultiplier(award.Multiplier)
	boosted := decimal.NewFromInt(award.BaseAmount).Mul(mult).Floor().IntPart()
	sourceType, sourceID, err := normalizeSource(award.SourceType, award.SourceID)
	if err != nil {
		return nil, err
	}

	adm, err := l.gate.Admit(tx, PoolPoints, award.Owner, sourceType, sourceID, boosted)
	if err != nil {
		return nil, err
	}
	res := &PointsResult{Requested: boosted, Duplicate: adm.Duplicate, Capped: adm.Capped}
	if adm.Duplicate || adm.Amount == 0 {
		res.Account = *acct
		return res, nil
	}

	desc := award.Description
	if bonus := mult.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).IntPart(); bonus > 0 {
		desc = fmt.Sprintf("%s (+%d%% streak)", desc, bonus)
	}

	acct.Balance += adm.Amount
	acct.LifetimeEarned += adm.Amount
	txn, err := l.writePoints(tx, acct, models.PointsTransaction{
		OwnerKind:   award.Owner.Kind,
		OwnerID:     award.Owner.ID,
		ActorID:     award.ActorID,
		Amount:      adm.Amount,
		Direction:   models.DirectionEarn,
		SourceType:  sourceType,
		SourceID:    sourceID,
		Description: truncate(desc, 255),
	})
	if err != nil {
		return nil, err
	}
	res.Applied = adm.Amount
	res.Account = *acct
	res.Transaction = txn
	return res, nil
}

func (l *Ledger) spendLocked(tx *gorm.DB, acct *models.PointsAccount, spend PointsSpend) (*PointsResult, error) {
	if spend.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if spend.Amount > acct.Balance {
		return nil, ErrInsufficientBalance
	}
	sourceType, sourceID, err := normalizeSource(spend.SourceType, spend.SourceID)
	if err != nil {
		return nil, err
	}
	acct.Balance -= spend.Amount
	acct.LifetimeSpent += spend.Amount
	txn, err := l.writePoints(tx, acct, models.PointsTransaction{
		OwnerKind:   spend.Owner.Kind,
		OwnerID:     spend.Owner.ID,
		ActorID:     spend.ActorID,
		Amount:      spend.Amount,
		Direction:   models.DirectionSpend,
		SourceType:  sourceType,
		SourceID:    sourceID,
		Description: truncate(spend.Description, 255),
	})
	if err != nil {
		return nil, err
	}
	l.log.Debug("points spent",
		zap.Stringer("owner", spend.Owner),
		zap.Int64("amount", spend.Amount),
		zap.Int64("balance", acct.Balance))
	return &PointsResult{Requested: spend.Amount, Applied: spend.Amount, Account: *acct, Transaction: txn}, nil
}

// writePoints saves the mutated account and appends its transaction.
func (l *Ledger) writePoints(tx *gorm.DB, acct *models.PointsAccount, txn models.PointsTransaction) (*models.PointsTransaction, error) {
	now := l.clock()
	acct.UpdatedAt = now
	if err := tx.Save(acct).Error; err != nil {
		return nil, fmt.Errorf("save points account: %w", err)
	}
	txn.NewBalance = acct.Balance
	txn.CreatedAt = now
	if err := tx.Create(&txn).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAward
		}
		return nil, fmt.Errorf("append points transaction: %w", err)
	}
	return &txn, nil
}

// lockPointsAccount loads the owner's balance FOR UPDATE, creating it on first use.
func (l *Ledger) lockPointsAccount(tx *gorm.DB, owner Owner) (*models.PointsAccount, error) {
	var acct models.PointsAccount
	err := owner.scope(tx.Clauses(clause.Locking{Strength: "UPDATE"})).First(&acct).Error
	if err == nil {
		return &acct, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lock points account: %w", err)
	}
	now := l.clock()
	seed := models.PointsAccount{OwnerKind: owner.Kind, OwnerID: owner.ID, CreatedAt: now, UpdatedAt: now}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("create points account: %w", err)
	}
	if err := owner.scope(tx.Clauses(clause.Locking{Strength: "UPDATE"})).First(&acct).Error; err != nil {
		return nil, fmt.Errorf("lock points account: %w", err)
	}
	return &acct, nil
}

func pointsNotices(kind string, owner Owner, actor string, res *PointsResult) []Notice {
	if res == nil || res.Applied == 0 {
		return nil
	}
	return []Notice{{
		Type:  kind,
		Owner: owner,
		Actor: actor,
		Data: map[string]any{
			"amount":  res.Applied,
			"balance": res.Account.Balance,
		},
	}}
}
