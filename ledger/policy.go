package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Policy carries the anti-abuse limits and calendar settings of a ledger.
type Policy struct {
	DailyXPCap     int64
	DailyPointsCap int64
	MaxTaskPoints  int64
	MaxHabitPoints int64
	MaxMultiplier  decimal.Decimal
	// Location defines the calendar day used by caps and streaks.
	Location *time.Location
	// MaxPageSize bounds history queries.
	MaxPageSize int
}

// DefaultPolicy returns the reference limits.
func DefaultPolicy() Policy {
	return Policy{
		DailyXPCap:     500,
		DailyPointsCap: 1000,
		MaxTaskPoints:  500,
		MaxHabitPoints: 100,
		MaxMultiplier:  decimal.RequireFromString("1.50"),
		Location:       time.UTC,
		MaxPageSize:    50,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.Location == nil {
		p.Location = def.Location
	}
	if p.MaxMultiplier.LessThan(decimal.NewFromInt(1)) || p.MaxMultiplier.GreaterThan(def.MaxMultiplier) {
		p.MaxMultiplier = def.MaxMultiplier
	}
	if p.MaxPageSize <= 0 {
		p.MaxPageSize = def.MaxPageSize
	}
	return p
}

// ClampTaskPoints bounds the points a single task may be worth.
func (p Policy) ClampTaskPoints(v int64) int64 {
	return clampPoints(v, p.MaxTaskPoints)
}

// ClampHabitPoints bounds the points a single habit completion may be worth.
func (p Policy) ClampHabitPoints(v int64) int64 {
	return clampPoints(v, p.MaxHabitPoints)
}

// ClampMultiplier keeps m within [1.00, MaxMultiplier]. A zero value means 1.00.
func (p Policy) ClampMultiplier(m decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if m.LessThan(one) {
		return one
	}
	limit := p.MaxMultiplier
	if limit.IsZero() {
		limit = DefaultPolicy().MaxMultiplier
	}
	if m.GreaterThan(limit) {
		return limit
	}
	return m
}

func clampPoints(v, limit int64) int64 {
	if v < 0 {
		return 0
	}
	if limit > 0 && v > limit {
		return limit
	}
	return v
}
