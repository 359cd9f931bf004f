package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/ledger/models"
)

// pageBounds turns a 1-based page and a size into sane values.
func (l *Ledger) pageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 10
	}
	if size > l.policy.MaxPageSize {
		size = l.policy.MaxPageSize
	}
	return page, size
}

// XPAccount returns owner's XP aggregate. Owners without activity get a
// level 1 zero account; nothing is written.
func (l *Ledger) XPAccount(ctx context.Context, owner Owner) (models.XPAccount, error) {
	acct := models.XPAccount{OwnerKind: owner.Kind, OwnerID: owner.ID, Level: 1, Multiplier: decimal.NewFromInt(1)}
	if err := owner.Validate(); err != nil {
		return acct, err
	}
	err := owner.scope(l.db.WithContext(ctx)).First(&acct).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return acct, fmt.Errorf("load xp account: %w", err)
	}
	return acct, nil
}

// PointsAccount returns owner's balance, zero when the owner never earned.
func (l *Ledger) PointsAccount(ctx context.Context, owner Owner) (models.PointsAccount, error) {
	acct := models.PointsAccount{OwnerKind: owner.Kind, OwnerID: owner.ID}
	if err := owner.Validate(); err != nil {
		return acct, err
	}
	err := owner.scope(l.db.WithContext(ctx)).First(&acct).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return acct, fmt.Errorf("load points account: %w", err)
	}
	return acct, nil
}

// DailyAllowance reports how much more XP and points owner may earn today.
// -1 means uncapped.
type DailyAllowance struct {
	XPEarned        int64 `json:"xp_earned_today"`
	XPRemaining     int64 `json:"xp_remaining_today"`
	PointsEarned    int64 `json:"points_earned_today"`
	PointsRemaining int64 `json:"points_remaining_today"`
}

// Allowance computes owner's daily cap usage.
func (l *Ledger) Allowance(ctx context.Context, owner Owner) (DailyAllowance, error) {
	var a DailyAllowance
	db := l.db.WithContext(ctx)
	var err error
	if a.XPEarned, err = l.gate.EarnedToday(db, PoolXP, owner); err != nil {
		return a, err
	}
	if a.XPRemaining, err = l.gate.Remaining(db, PoolXP, owner); err != nil {
		return a, err
	}
	if a.PointsEarned, err = l.gate.EarnedToday(db, PoolPoints, owner); err != nil {
		return a, err
	}
	if a.PointsRemaining, err = l.gate.Remaining(db, PoolPoints, owner); err != nil {
		return a, err
	}
	return a, nil
}

// XPHistory lists owner's XP transactions, most recent first.
func (l *Ledger) XPHistory(ctx context.Context, owner Owner, page, size int) ([]models.XPTransaction, int64, error) {
	page, size = l.pageBounds(page, size)
	q := owner.scope(l.db.WithContext(ctx).Model(&models.XPTransaction{}))
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count xp history: %w", err)
	}
	var items []models.XPTransaction
	if err := q.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("list xp history: %w", err)
	}
	return items, total, nil
}

// PointsHistory lists owner's points transactions, most recent first.
func (l *Ledger) PointsHistory(ctx context.Context, owner Owner, page, size int) ([]models.PointsTransaction, int64, error) {
	page, size = l.pageBounds(page, size)
	q := owner.scope(l.db.WithContext(ctx).Model(&models.PointsTransaction{}))
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count points history: %w", err)
	}
	var items []models.PointsTransaction
	if err := q.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("list points history: %w", err)
	}
	return items, total, nil
}

// AchievementView is a catalog entry merged with owner's unlock state.
type AchievementView struct {
	Definition
	Unlocked   bool       `json:"is_unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
	Progress   float64    `json:"progress"`
	Current    float64    `json:"current_value"`
}

// Achievements returns the catalog for owner's kind with unlock state and
// progress. Hidden entries appear only once unlocked.
func (l *Ledger) Achievements(ctx context.Context, owner Owner) ([]AchievementView, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	db := l.db.WithContext(ctx)
	var unlocks []models.AchievementUnlock
	if err := owner.scope(db).Find(&unlocks).Error; err != nil {
		return nil, fmt.Errorf("load unlocks: %w", err)
	}
	at := make(map[string]time.Time, len(unlocks))
	for _, u := range unlocks {
		at[u.AchievementKey] = u.UnlockedAt
	}
	acct, err := l.XPAccount(ctx, owner)
	if err != nil {
		return nil, err
	}
	snap, err := l.snapshot(db, owner, &acct)
	if err != nil {
		return nil, err
	}

	defs := l.catalog.For(owner.Kind)
	out := make([]AchievementView, 0, len(defs))
	for _, d := range defs {
		v := AchievementView{Definition: d}
		if t, ok := at[d.Key]; ok {
			v.Unlocked = true
			v.UnlockedAt = &t
			v.Progress = 100
		} else if d.Hidden {
			continue
		}
		if cur, ok := snap.Value(d.Criteria); ok {
			v.Current = cur
			if !v.Unlocked && d.Criteria.Target > 0 {
				v.Progress = cur * 100 / d.Criteria.Target
				if v.Progress > 100 {
					v.Progress = 100
				}
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// LeaderboardEntry is one ranked account.
type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	OwnerID string `json:"owner_id"`
	TotalXP int64  `json:"total_xp"`
	Level   int    `json:"level"`
}

// Leaderboard is the top of an owner kind plus the viewer's own rank.
type Leaderboard struct {
	Kind     models.OwnerKind   `json:"scope"`
	Entries  []LeaderboardEntry `json:"entries"`
	YourRank int                `json:"your_rank,omitempty"`
}

// Leaderboard ranks accounts of kind by total XP. Equal totals share a rank.
// viewerID is optional.
func (l *Ledger) Leaderboard(ctx context.Context, kind models.OwnerKind, limit int, viewerID string) (*Leaderboard, error) {
	if !kind.Valid() {
		return nil, ErrInvalidOwner
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	db := l.db.WithContext(ctx)
	var accts []models.XPAccount
	if err := db.Where("owner_kind = ? AND total_xp > 0", kind).
		Order("total_xp DESC").Order("owner_id ASC").
		Limit(limit).Find(&accts).Error; err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	board := &Leaderboard{Kind: kind, Entries: make([]LeaderboardEntry, 0, len(accts))}
	for i, a := range accts {
		rank := i + 1
		if i > 0 && a.TotalXP == accts[i-1].TotalXP {
			rank = board.Entries[i-1].Rank
		}
		board.Entries = append(board.Entries, LeaderboardEntry{Rank: rank, OwnerID: a.OwnerID, TotalXP: a.TotalXP, Level: a.Level})
	}
	if viewerID != "" {
		rank, err := l.rankOf(db, Owner{Kind: kind, ID: viewerID})
		if err != nil {
			return nil, err
		}
		board.YourRank = rank
	}
	return board, nil
}

// Rank is the owner's position on its kind's leaderboard; 0 when unranked.
func (l *Ledger) Rank(ctx context.Context, owner Owner) (int, error) {
	if err := owner.Validate(); err != nil {
		return 0, err
	}
	return l.rankOf(l.db.WithContext(ctx), owner)
}

// rankOf is 1 + the number of accounts with strictly more XP; 0 when unranked.
func (l *Ledger) rankOf(db *gorm.DB, owner Owner) (int, error) {
	var totals []int64
	if err := owner.scope(db.Model(&models.XPAccount{})).Limit(1).Pluck("total_xp", &totals).Error; err != nil {
		return 0, fmt.Errorf("load rank: %w", err)
	}
	if len(totals) == 0 || totals[0] <= 0 {
		return 0, nil
	}
	var ahead int64
	if err := db.Model(&models.XPAccount{}).
		Where("owner_kind = ? AND total_xp > ?", owner.Kind, totals[0]).
		Count(&ahead).Error; err != nil {
		return 0, fmt.Errorf("count rank: %w", err)
	}
	return int(ahead) + 1, nil
}

// Contributor is a guild member's share of the guild's XP.
type Contributor struct {
	ActorID string `json:"user_id"`
	XP      int64  `json:"xp"`
	Events  int64  `json:"events"`
}

// Contributors ranks the members whose actions earned the guild XP.
func (l *Ledger) Contributors(ctx context.Context, guildID string, limit int) ([]Contributor, error) {
	owner := Guild(guildID)
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []Contributor
	if err := owner.scope(l.db.WithContext(ctx).Model(&models.XPTransaction{})).
		Select("actor_id, SUM(amount) AS xp, COUNT(*) AS events").
		Where("actor_id <> ''").
		Group("actor_id").
		Order("xp DESC").Order("actor_id ASC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load contributors: %w", err)
	}
	return rows, nil
}

// HabitStreaks lists owner's cached per-key streaks, longest running first.
func (l *Ledger) HabitStreaks(ctx context.Context, owner Owner) ([]models.HabitStreak, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	var out []models.HabitStreak
	if err := owner.scope(l.db.WithContext(ctx)).
		Order("current_streak DESC").Order("streak_key ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load habit streaks: %w", err)
	}
	return out, nil
}

// OwnerStats are the counters collaborators report for criteria the ledger
// cannot derive itself.
type OwnerStats struct {
	MemberCount    *int64 `json:"member_count"`
	TasksAssigned  *int64 `json:"tasks_assigned"`
	TasksCompleted *int64 `json:"tasks_completed"`
}

// UpdateOwnerStats stores the reported counters and re-evaluates achievements.
func (l *Ledger) UpdateOwnerStats(ctx context.Context, owner Owner, in OwnerStats) ([]string, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	for _, v := range []*int64{in.MemberCount, in.TasksAssigned, in.TasksCompleted} {
		if v != nil && *v < 0 {
			return nil, ErrInvalidAmount
		}
	}
	err := l.atomically(ctx, []string{owner.lockKey()}, func(tx *gorm.DB) error {
		var stat models.OwnerStat
		err := owner.scope(tx.Clauses(clause.Locking{Strength: "UPDATE"})).First(&stat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			stat = models.OwnerStat{OwnerKind: owner.Kind, OwnerID: owner.ID}
		} else if err != nil {
			return fmt.Errorf("lock owner stats: %w", err)
		}
		if in.MemberCount != nil {
			stat.MemberCount = *in.MemberCount
		}
		if in.TasksAssigned != nil {
			stat.TasksAssigned = *in.TasksAssigned
		}
		if in.TasksCompleted != nil {
			stat.TasksCompleted = *in.TasksCompleted
		}
		stat.UpdatedAt = l.clock()
		return tx.Save(&stat).Error
	})
	if err != nil {
		return nil, err
	}
	return l.Evaluate(ctx, owner)
}
