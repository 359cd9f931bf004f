package ledger

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/ledger/models"
)

// Pool selects which daily ceiling an award counts against.
type Pool string

const (
	PoolXP     Pool = "xp"
	PoolPoints Pool = "points"
)

// Admission is the gate's verdict on a requested award.
type Admission struct {
	Requested int64
	Amount    int64
	Duplicate bool
	Capped    bool
}

// Gate enforces idempotency and daily ceilings. It must run inside the same
// transaction as the ledger write it guards.
type Gate struct {
	policy Policy
	now    func() time.Time
}

// NewGate builds a gate over policy using now as the clock.
func NewGate(policy Policy, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{policy: policy.normalized(), now: now}
}

// Admit decides how much of requested may be applied for owner.
func (g *Gate) Admit(tx *gorm.DB, pool Pool, owner Owner, sourceType string, sourceID *string, requested int64) (Admission, error) {
	adm := Admission{Requested: requested}
	if requested <= 0 {
		return adm, nil
	}
	if sourceID != nil {
		seen, err := g.Seen(tx, pool, owner, sourceType, *sourceID)
		if err != nil {
			return adm, err
		}
		if seen {
			adm.Duplicate = true
			return adm, nil
		}
	}

	limit := g.cap(pool)
	if limit <= 0 || capExempt(pool, sourceType) {
		adm.Amount = requested
		return adm, nil
	}
	earned, err := g.EarnedToday(tx, pool, owner)
	if err != nil {
		return adm, err
	}
	remaining := limit - earned
	if remaining < 0 {
		remaining = 0
	}
	adm.Amount = requested
	if adm.Amount > remaining {
		adm.Amount = remaining
		adm.Capped = true
	}
	return adm, nil
}

// Seen reports whether an award already exists for the idempotency key.
func (g *Gate) Seen(tx *gorm.DB, pool Pool, owner Owner, sourceType, sourceID string) (bool, error) {
	var (
		count int64
		q     *gorm.DB
	)
	switch pool {
	case PoolXP:
		q = tx.Model(&models.XPTransaction{})
	default:
		q = tx.Model(&models.PointsTransaction{}).Where("direction = ?", models.DirectionEarn)
	}
	err := owner.scope(q).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check idempotency key: %w", err)
	}
	return count > 0, nil
}

// EarnedToday sums what owner received from pool since the start of the
// calendar day. Achievement rewards do not count.
func (g *Gate) EarnedToday(tx *gorm.DB, pool Pool, owner Owner) (int64, error) {
	var (
		total int64
		q     *gorm.DB
	)
	switch pool {
	case PoolXP:
		q = tx.Model(&models.XPTransaction{}).Where("source_type <> ?", SourceAchievement)
	default:
		q = tx.Model(&models.PointsTransaction{}).Where("direction = ?", models.DirectionEarn)
	}
	err := owner.scope(q).
		Where("created_at >= ?", g.dayStart()).
		Select("COALESCE(SUM(amount),0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum daily %s: %w", pool, err)
	}
	return total, nil
}

// Remaining is how much more owner may earn from pool today; -1 when uncapped.
func (g *Gate) Remaining(tx *gorm.DB, pool Pool, owner Owner) (int64, error) {
	limit := g.cap(pool)
	if limit <= 0 {
		return -1, nil
	}
	earned, err := g.EarnedToday(tx, pool, owner)
	if err != nil {
		return 0, err
	}
	if earned >= limit {
		return 0, nil
	}
	return limit - earned, nil
}

// capExempt reports awards the daily ceiling never applies to. An unlock is
// recorded once, so its XP reward would otherwise be lost for good.
func capExempt(pool Pool, sourceType string) bool {
	return pool == PoolXP && sourceType == SourceAchievement
}

func (g *Gate) cap(pool Pool) int64 {
	if pool == PoolXP {
		return g.policy.DailyXPCap
	}
	return g.policy.DailyPointsCap
}

// today is the current calendar day in the policy location.
func (g *Gate) today() time.Time {
	return g.now().In(g.policy.Location)
}

// dayStart is local midnight expressed in UTC, matching stored timestamps.
func (g *Gate) dayStart() time.Time {
	t := g.today()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, g.policy.Location).UTC()
}
