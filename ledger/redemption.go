package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/ledger/models"
)

// SourceRedemption is the points source type of a reward purchase.
const SourceRedemption = "redemption"

// RedeemResult is a successful redemption and the payer's new balance.
type RedeemResult struct {
	Redemption models.Redemption `json:"redemption"`
	Balance    int64             `json:"balance"`
}

// Redeem exchanges points for a reward. Personal rewards are paid by the
// redeemer and only the redeemer may buy them; guild rewards are paid from the
// guild treasury.
func (l *Ledger) Redeem(ctx context.Context, redeemerID, rewardID string) (*RedeemResult, error) {
	return l.RedeemFrom(ctx, Owner{}, redeemerID, rewardID)
}

// RedeemFrom is Redeem restricted to rewards of shop. A zero shop matches any.
func (l *Ledger) RedeemFrom(ctx context.Context, shop Owner, redeemerID, rewardID string) (*RedeemResult, error) {
	if redeemerID == "" || rewardID == "" {
		return nil, ErrRewardNotFound
	}
	var peek models.Reward
	q := l.db.WithContext(ctx).Where("id = ?", rewardID)
	if shop.Kind != "" {
		q = shop.scope(q)
	}
	if err := q.First(&peek).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, fmt.Errorf("load reward: %w", err)
	}
	payer := Owner{Kind: peek.OwnerKind, ID: peek.OwnerID}
	if payer.Kind == models.OwnerUser && payer.ID != redeemerID {
		return nil, ErrRewardNotFound
	}

	var res RedeemResult
	err := l.atomically(ctx, []string{rewardLockKey(rewardID), payer.lockKey()}, func(tx *gorm.DB) error {
		var reward models.Reward
		if err := l.lockReward(tx, payer, rewardID, &reward); err != nil {
			return err
		}
		if !reward.IsActive {
			return ErrRewardUnavailable
		}
		if reward.SoldOut() {
			return ErrSoldOut
		}
		if reward.MaxPerRedeemer > 0 {
			var mine int64
			if err := tx.Model(&models.Redemption{}).
				Where("reward_id = ? AND redeemer_id = ?", reward.ID, redeemerID).
				Count(&mine).Error; err != nil {
				return fmt.Errorf("count redemptions: %w", err)
			}
			if mine >= int64(reward.MaxPerRedeemer) {
				return ErrRedemptionLimitReached
			}
		}

		acct, err := l.lockPointsAccount(tx, payer)
		if err != nil {
			return err
		}
		if acct.Balance < reward.Cost {
			return ErrInsufficientBalance
		}

		redemptionID := uuid.NewString()
		if _, err := l.spendLocked(tx, acct, PointsSpend{
			Owner:       payer,
			Amount:      reward.Cost,
			SourceType:  SourceRedemption,
			SourceID:    &redemptionID,
			Description: truncate("Redeemed: "+reward.Name, 255),
			ActorID:     redeemerID,
		}); err != nil {
			return err
		}

		now := l.clock()
		reward.RedemptionCount++
		reward.UpdatedAt = now
		if err := tx.Model(&reward).Updates(map[string]interface{}{
			"redemption_count": reward.RedemptionCount,
			"updated_at":       now,
		}).Error; err != nil {
			return fmt.Errorf("bump redemption count: %w", err)
		}

		rid := reward.ID
		red := models.Redemption{
			ID:          redemptionID,
			RewardID:    &rid,
			RewardName:  reward.Name,
			RewardIcon:  reward.Icon,
			PayerKind:   payer.Kind,
			PayerID:     payer.ID,
			RedeemerID:  redeemerID,
			PointsSpent: reward.Cost,
			Status:      models.RedemptionPending,
			RedeemedAt:  now,
		}
		if payer.Kind == models.OwnerUser {
			red.Status = models.RedemptionFulfilled
			red.FulfilledAt = &now
			red.FulfilledBy = redeemerID
		}
		if err := tx.Create(&red).Error; err != nil {
			return fmt.Errorf("create redemption: %w", err)
		}
		res = RedeemResult{Redemption: red, Balance: acct.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("reward redeemed",
		zap.String("reward_id", rewardID),
		zap.Stringer("payer", payer),
		zap.String("redeemer_id", redeemerID),
		zap.Int64("cost", res.Redemption.PointsSpent))
	l.publish([]Notice{
		{Type: NoticePointsSpent, Owner: payer, Actor: redeemerID, Data: map[string]any{
			"amount":  res.Redemption.PointsSpent,
			"balance": res.Balance,
		}},
		{Type: NoticeRewardRedeemed, Owner: payer, Actor: redeemerID, Data: map[string]any{
			"redemption_id": res.Redemption.ID,
			"reward_id":     rewardID,
			"reward_name":   res.Redemption.RewardName,
			"status":        res.Redemption.Status,
		}},
	})
	return &res, nil
}

// RedemptionFilter narrows a redemption history query. Empty fields match all.
type RedemptionFilter struct {
	Payer      Owner
	RedeemerID string
	Status     string
}

// Redemptions lists history newest first. page is 1-based.
func (l *Ledger) Redemptions(ctx context.Context, f RedemptionFilter, page, size int) ([]models.Redemption, int64, error) {
	page, size = l.pageBounds(page, size)
	q := l.db.WithContext(ctx).Model(&models.Redemption{})
	if f.Payer.Kind != "" {
		q = q.Where("payer_kind = ? AND payer_id = ?", f.Payer.Kind, f.Payer.ID)
	}
	if f.RedeemerID != "" {
		q = q.Where("redeemer_id = ?", f.RedeemerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count redemptions: %w", err)
	}
	var items []models.Redemption
	if err := q.Order("redeemed_at DESC").Order("id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("list redemptions: %w", err)
	}
	return items, total, nil
}

// FulfillRedemption marks a pending redemption of payer as delivered.
// Fulfilling an already fulfilled redemption returns it unchanged.
func (l *Ledger) FulfillRedemption(ctx context.Context, payer Owner, redemptionID, fulfilledBy, notes string) (*models.Redemption, error) {
	if err := payer.Validate(); err != nil {
		return nil, err
	}
	var (
		red     models.Redemption
		changed bool
	)
	err := l.atomically(ctx, []string{payer.lockKey()}, func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND payer_kind = ? AND payer_id = ?", redemptionID, payer.Kind, payer.ID).
			First(&red).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRedemptionNotFound
		}
		if err != nil {
			return fmt.Errorf("lock redemption: %w", err)
		}
		if red.Status == models.RedemptionFulfilled {
			return nil
		}
		now := l.clock()
		red.Status = models.RedemptionFulfilled
		red.FulfilledAt = &now
		red.FulfilledBy = fulfilledBy
		if notes != "" {
			red.Notes = truncate(notes, 500)
		}
		changed = true
		return tx.Model(&red).Updates(map[string]interface{}{
			"status":       red.Status,
			"fulfilled_at": now,
			"fulfilled_by": fulfilledBy,
			"notes":        red.Notes,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	if changed {
		l.publish([]Notice{{Type: NoticeRedemptionFulfilled, Owner: payer, Actor: fulfilledBy, Data: map[string]any{
			"redemption_id": red.ID,
			"redeemer_id":   red.RedeemerID,
			"reward_name":   red.RewardName,
		}}})
	}
	return &red, nil
}
