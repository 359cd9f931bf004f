package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayLayout is the calendar-day format stored in activity logs.
const DayLayout = "2006-01-02"

// StreakTier is one rung of the multiplier ladder.
type StreakTier struct {
	MinDays    int             `json:"min_days"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

// streakTiers is ordered from the highest rung down.
var streakTiers = []StreakTier{
	{MinDays: 90, Multiplier: decimal.RequireFromString("1.50")},
	{MinDays: 60, Multiplier: decimal.RequireFromString("1.40")},
	{MinDays: 30, Multiplier: decimal.RequireFromString("1.30")},
	{MinDays: 14, Multiplier: decimal.RequireFromString("1.20")},
	{MinDays: 7, Multiplier: decimal.RequireFromString("1.10")},
	{MinDays: 0, Multiplier: decimal.RequireFromString("1.00")},
}

// StreakTiers returns the ladder in ascending order.
func StreakTiers() []StreakTier {
	out := make([]StreakTier, 0, len(streakTiers))
	for i := len(streakTiers) - 1; i >= 0; i-- {
		out = append(out, streakTiers[i])
	}
	return out
}

// MultiplierFor maps a streak length to its ladder multiplier.
func MultiplierFor(streakDays int) decimal.Decimal {
	for _, t := range streakTiers {
		if streakDays >= t.MinDays {
			return t.Multiplier
		}
	}
	return decimal.NewFromInt(1)
}

// CurrentStreak walks backward from ref one calendar day at a time and counts
// days whose record exists and is complete. days is keyed by DayLayout.
func CurrentStreak(days map[string]bool, ref time.Time) int {
	d := dateOf(ref)
	n := 0
	for {
		done, ok := days[d.Format(DayLayout)]
		if !ok || !done {
			return n
		}
		n++
		d = d.AddDate(0, 0, -1)
	}
}

// dateOf truncates t to midnight of its calendar day, keeping the wall date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(dateOf(b).Sub(dateOf(a)).Hours() / 24)
}
