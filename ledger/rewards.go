package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/ledger/models"
)

// RewardInput carries the editable fields of a reward. Nil pointers leave the
// stored value untouched on update.
type RewardInput struct {
	Name              *string `json:"name"`
	Description       *string `json:"description"`
	Icon              *string `json:"icon"`
	RewardType        *string `json:"reward_type"`
	Cost              *int64  `json:"cost"`
	QuantityAvailable *int64  `json:"quantity_available"`
	ClearQuantity     bool    `json:"clear_quantity"`
	MaxPerRedeemer    *int    `json:"max_per_redeemer"`
	IsActive          *bool   `json:"is_active"`
}

// RewardView is a reward merged with the viewer's eligibility.
type RewardView struct {
	models.Reward
	UserRedemptions int64  `json:"user_redemptions"`
	CanRedeem       bool   `json:"can_redeem"`
	Reason          string `json:"reason,omitempty"`
}

func validRewardType(t string) bool {
	switch t {
	case models.RewardTitle, models.RewardBadge, models.RewardRole,
		models.RewardPriority, models.RewardPhysical, models.RewardOther:
		return true
	}
	return false
}

func (in RewardInput) apply(r *models.Reward) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return fmt.Errorf("%w: name is required", ErrInvalidReward)
		}
		r.Name = truncate(name, 100)
	}
	if in.Description != nil {
		r.Description = truncate(strings.TrimSpace(*in.Description), 500)
	}
	if in.Icon != nil {
		r.Icon = truncate(strings.TrimSpace(*in.Icon), 16)
	}
	if in.RewardType != nil {
		if !validRewardType(*in.RewardType) {
			return fmt.Errorf("%w: unknown reward type %q", ErrInvalidReward, *in.RewardType)
		}
		r.RewardType = *in.RewardType
	}
	if in.Cost != nil {
		if *in.Cost <= 0 {
			return ErrInvalidAmount
		}
		r.Cost = *in.Cost
	}
	if in.ClearQuantity {
		r.QuantityAvailable = nil
	} else if in.QuantityAvailable != nil {
		if *in.QuantityAvailable < 0 {
			return ErrInvalidAmount
		}
		q := *in.QuantityAvailable
		r.QuantityAvailable = &q
	}
	if in.MaxPerRedeemer != nil {
		if *in.MaxPerRedeemer < 0 {
			return ErrInvalidAmount
		}
		r.MaxPerRedeemer = *in.MaxPerRedeemer
	}
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
	return nil
}

// CreateReward adds a reward to owner's shop. Name and a positive cost are required.
func (l *Ledger) CreateReward(ctx context.Context, owner Owner, createdBy string, in RewardInput) (*models.Reward, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if in.Name == nil {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidReward)
	}
	if in.Cost == nil {
		return nil, ErrInvalidAmount
	}
	r := models.Reward{
		OwnerKind:      owner.Kind,
		OwnerID:        owner.ID,
		RewardType:     models.RewardOther,
		MaxPerRedeemer: 1,
		IsActive:       true,
		CreatedBy:      createdBy,
	}
	if err := in.apply(&r); err != nil {
		return nil, err
	}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := uniqueSlug(tx, owner, r.Name)
		if err != nil {
			return err
		}
		r.Slug = s
		now := l.clock()
		r.CreatedAt, r.UpdatedAt = now, now
		// select all columns or is_active=false falls back to the column default
		return tx.Select("*").Create(&r).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create reward: %w", err)
	}
	return &r, nil
}

func uniqueSlug(tx *gorm.DB, owner Owner, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "reward"
	}
	if len(base) > 100 {
		base = strings.TrimRight(base[:100], "-")
	}
	candidate := base
	for i := 2; ; i++ {
		var n int64
		if err := owner.scope(tx.Model(&models.Reward{})).Where("slug = ?", candidate).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// UpdateReward edits a reward of owner's shop under the reward lock.
func (l *Ledger) UpdateReward(ctx context.Context, owner Owner, rewardID string, in RewardInput) (*models.Reward, error) {
	var r models.Reward
	err := l.atomically(ctx, []string{rewardLockKey(rewardID)}, func(tx *gorm.DB) error {
		if err := l.lockReward(tx, owner, rewardID, &r); err != nil {
			return err
		}
		if err := in.apply(&r); err != nil {
			return err
		}
		r.UpdatedAt = l.clock()
		return tx.Save(&r).Error
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeactivateReward hides a reward from redemption. History keeps pointing at it.
func (l *Ledger) DeactivateReward(ctx context.Context, owner Owner, rewardID string) error {
	inactive := false
	_, err := l.UpdateReward(ctx, owner, rewardID, RewardInput{IsActive: &inactive})
	return err
}

// GetReward loads one reward of owner's shop.
func (l *Ledger) GetReward(ctx context.Context, owner Owner, rewardID string) (*models.Reward, error) {
	var r models.Reward
	err := owner.scope(l.db.WithContext(ctx)).Where("id = ?", rewardID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRewardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load reward: %w", err)
	}
	return &r, nil
}

// ListRewards returns owner's shop, cheapest first, with viewerID's
// eligibility for each entry.
func (l *Ledger) ListRewards(ctx context.Context, owner Owner, viewerID string, includeInactive bool) ([]RewardView, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	db := l.db.WithContext(ctx)
	q := owner.scope(db)
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	var rewards []models.Reward
	if err := q.Order("cost ASC").Order("name ASC").Find(&rewards).Error; err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}

	counts := map[string]int64{}
	if viewerID != "" && len(rewards) > 0 {
		ids := make([]string, len(rewards))
		for i, r := range rewards {
			ids[i] = r.ID
		}
		var rows []struct {
			RewardID string
			N        int64
		}
		if err := db.Model(&models.Redemption{}).
			Select("reward_id, COUNT(*) AS n").
			Where("redeemer_id = ? AND reward_id IN ?", viewerID, ids).
			Group("reward_id").
			Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("count redemptions: %w", err)
		}
		for _, r := range rows {
			counts[r.RewardID] = r.N
		}
	}

	balance, err := l.balanceOf(db, owner)
	if err != nil {
		return nil, err
	}

	views := make([]RewardView, 0, len(rewards))
	for _, r := range rewards {
		v := RewardView{Reward: r, UserRedemptions: counts[r.ID]}
		switch {
		case !r.IsActive:
			v.Reason = "inactive"
		case r.SoldOut():
			v.Reason = "sold_out"
		case r.MaxPerRedeemer > 0 && v.UserRedemptions >= int64(r.MaxPerRedeemer):
			v.Reason = "limit_reached"
		case balance < r.Cost:
			v.Reason = "insufficient_points"
		default:
			v.CanRedeem = true
		}
		views = append(views, v)
	}
	return views, nil
}

func (l *Ledger) balanceOf(db *gorm.DB, owner Owner) (int64, error) {
	var balances []int64
	if err := owner.scope(db.Model(&models.PointsAccount{})).Limit(1).Pluck("balance", &balances).Error; err != nil {
		return 0, fmt.Errorf("load balance: %w", err)
	}
	if len(balances) == 0 {
		return 0, nil
	}
	return balances[0], nil
}

func rewardLockKey(id string) string { return "reward:" + id }

// lockReward loads the reward FOR UPDATE, scoped to owner when owner is set.
func (l *Ledger) lockReward(tx *gorm.DB, owner Owner, rewardID string, out *models.Reward) error {
	q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", rewardID)
	if owner.Kind != "" {
		q = owner.scope(q)
	}
	err := q.First(out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRewardNotFound
	}
	if err != nil {
		return fmt.Errorf("lock reward: %w", err)
	}
	return nil
}
