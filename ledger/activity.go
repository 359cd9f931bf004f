package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/ledger/models"
)

// ActivityEntry marks one calendar day of a streak key as completed or not.
type ActivityEntry struct {
	Owner     Owner
	StreakKey string
	// Day is YYYY-MM-DD; empty means today.
	Day       string
	Completed bool
}

// LogActivity records the day and recomputes the key's streak from the full log,
// so retroactive edits shrink or grow the streak correctly.
func (l *Ledger) LogActivity(ctx context.Context, entry ActivityEntry) (*models.HabitStreak, error) {
	if err := entry.Owner.Validate(); err != nil {
		return nil, err
	}
	var streak *models.HabitStreak
	err := l.atomically(ctx, []string{entry.Owner.lockKey()}, func(tx *gorm.DB) error {
		var err error
		streak, err = l.logActivityLocked(tx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return streak, nil
}

func (l *Ledger) logActivityLocked(tx *gorm.DB, entry ActivityEntry) (*models.HabitStreak, error) {
	key := strings.TrimSpace(entry.StreakKey)
	if key == "" {
		key = "default"
	}
	key = truncate(key, 64)

	today := l.today()
	day := today.Format(DayLayout)
	if entry.Day != "" {
		parsed, err := time.Parse(DayLayout, entry.Day)
		if err != nil {
			return nil, fmt.Errorf("parse activity day %q: %w", entry.Day, err)
		}
		if daysBetween(today, parsed) > 0 {
			return nil, ErrFutureActivity
		}
		day = parsed.Format(DayLayout)
	}

	now := l.clock()
	rec := models.ActivityDay{
		OwnerKind: entry.Owner.Kind,
		OwnerID:   entry.Owner.ID,
		StreakKey: key,
		Day:       day,
		Completed: entry.Completed,
		UpdatedAt: now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_kind"}, {Name: "owner_id"}, {Name: "streak_key"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"completed", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	var log []models.ActivityDay
	if err := entry.Owner.scope(tx).
		Where("streak_key = ? AND day <= ?", key, today.Format(DayLayout)).
		Order("day DESC").
		Find(&log).Error; err != nil {
		return nil, fmt.Errorf("load activity log: %w", err)
	}
	days := make(map[string]bool, len(log))
	lastCompleted := ""
	for _, d := range log {
		days[d.Day] = d.Completed
		if d.Completed && d.Day > lastCompleted {
			lastCompleted = d.Day
		}
	}

	current := CurrentStreak(days, streakReference(days, today))

	var streak models.HabitStreak
	err = entry.Owner.scope(tx.Clauses(clause.Locking{Strength: "UPDATE"})).
		Where("streak_key = ?", key).
		First(&streak).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		streak = models.HabitStreak{OwnerKind: entry.Owner.Kind, OwnerID: entry.Owner.ID, StreakKey: key}
	case err != nil:
		return nil, fmt.Errorf("lock habit streak: %w", err)
	}
	streak.Current = current
	if current > streak.Longest {
		streak.Longest = current
	}
	streak.Multiplier = MultiplierFor(current)
	streak.LastCompletedDay = lastCompleted
	streak.UpdatedAt = now
	if err := tx.Save(&streak).Error; err != nil {
		return nil, fmt.Errorf("save habit streak: %w", err)
	}
	return &streak, nil
}

// streakReference starts the walk at today, or at yesterday while today has
// no record yet so an unfinished day does not read as a break.
func streakReference(days map[string]bool, today time.Time) time.Time {
	if _, ok := days[today.Format(DayLayout)]; ok {
		return today
	}
	return today.AddDate(0, 0, -1)
}

// ExpireStreaks resets account streaks whose last activity is older than
// yesterday. It returns the number of accounts touched.
func (l *Ledger) ExpireStreaks(ctx context.Context) (int64, error) {
	cutoff := l.today().AddDate(0, 0, -1).Format(DayLayout)
	res := l.db.WithContext(ctx).Model(&models.XPAccount{}).
		Where("last_activity_date < ? AND current_streak_days > 0", cutoff).
		Updates(map[string]interface{}{
			"current_streak_days": 0,
			"multiplier":          decimal.NewFromInt(1),
			"updated_at":          l.clock(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("expire streaks: %w", res.Error)
	}
	habits := l.db.WithContext(ctx).Model(&models.HabitStreak{}).
		Where("last_completed_day < ? AND current_streak > 0", cutoff).
		Updates(map[string]interface{}{
			"current_streak": 0,
			"multiplier":     decimal.NewFromInt(1),
			"updated_at":     l.clock(),
		})
	if habits.Error != nil {
		return 0, fmt.Errorf("expire habit streaks: %w", habits.Error)
	}
	if n := res.RowsAffected + habits.RowsAffected; n > 0 {
		l.log.Info("streaks expired",
			zap.Int64("accounts", res.RowsAffected),
			zap.Int64("habits", habits.RowsAffected))
	}
	return res.RowsAffected, nil
}
