package ledger

import (
	"context"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/ledger/models"
)

// Snapshot is the aggregate state achievement criteria are checked against.
type Snapshot struct {
	Level           int              `json:"level"`
	TotalXP         int64            `json:"total_xp"`
	CurrentStreak   int              `json:"current_streak"`
	LongestStreak   int              `json:"longest_streak"`
	BestHabitStreak int              `json:"best_habit_streak"`
	Completed       map[string]int64 `json:"completed"`
	MemberCount     int64            `json:"member_count"`
	TasksAssigned   int64            `json:"tasks_assigned"`
	TasksCompleted  int64            `json:"tasks_completed"`
}

// Value returns the statistic c refers to. ok is false for unknown criteria types.
func (s Snapshot) Value(c Criteria) (v float64, ok bool) {
	switch c.Type {
	case CriteriaMemberCount:
		return float64(s.MemberCount), true
	case CriteriaLevel:
		return float64(s.Level), true
	case CriteriaCompletedCount:
		if c.Metric == "" {
			var total int64
			for _, n := range s.Completed {
				total += n
			}
			return float64(total), true
		}
		return float64(s.Completed[c.Metric]), true
	case CriteriaRate:
		if s.TasksAssigned == 0 || s.TasksAssigned < c.MinSample {
			return 0, true
		}
		return float64(s.TasksCompleted) * 100 / float64(s.TasksAssigned), true
	case CriteriaStreak:
		if c.Metric == "habit" {
			return float64(s.BestHabitStreak), true
		}
		return float64(s.CurrentStreak), true
	default:
		return 0, false
	}
}

// Met reports whether v crosses the target.
func (c Criteria) Met(v float64) bool {
	return v >= c.Target
}

// Evaluate unlocks every achievement owner now qualifies for and grants the
// XP rewards. It returns the newly unlocked keys.
func (l *Ledger) Evaluate(ctx context.Context, owner Owner) ([]string, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	var (
		unlocked []string
		leveled  bool
		acct     *models.XPAccount
	)
	err := l.atomically(ctx, []string{owner.lockKey()}, func(tx *gorm.DB) error {
		var err error
		acct, err = l.lockXPAccount(tx, owner)
		if err != nil {
			return err
		}
		unlocked, leveled, err = l.evaluateLocked(tx, owner, acct)
		return err
	})
	if err != nil {
		return nil, err
	}
	notices := make([]Notice, 0, len(unlocked)+1)
	for _, key := range unlocked {
		notices = append(notices, Notice{Type: NoticeAchievementUnlocked, Owner: owner, Data: map[string]any{"achievement_key": key}})
	}
	if leveled {
		notices = append(notices, Notice{Type: NoticeLevelUp, Owner: owner, Data: map[string]any{"level": acct.Level}})
	}
	l.publish(notices)
	return unlocked, nil
}

// evaluateLocked runs unlock rounds until nothing new unlocks, since reward XP
// can itself cross a level threshold. The caller holds the owner lock.
func (l *Ledger) evaluateLocked(tx *gorm.DB, owner Owner, acct *models.XPAccount) ([]string, bool, error) {
	defs := l.catalog.For(owner.Kind)
	have, err := unlockedKeys(tx, owner)
	if err != nil {
		return nil, false, err
	}

	var (
		newly   []string
		leveled bool
	)
	for round := 0; round <= len(defs); round++ {
		snap, err := l.snapshot(tx, owner, acct)
		if err != nil {
			return nil, false, err
		}
		progressed := false
		for _, def := range defs {
			if have[def.Key] {
				continue
			}
			v, ok := snap.Value(def.Criteria)
			if !ok || !def.Criteria.Met(v) {
				continue
			}
			unlock := models.AchievementUnlock{
				OwnerKind:      owner.Kind,
				OwnerID:        owner.ID,
				AchievementKey: def.Key,
				XPAwarded:      def.XPReward,
				Snapshot: datatypes.JSONMap{
					"criteria": def.Criteria.Type,
					"metric":   def.Criteria.Metric,
					"value":    v,
					"target":   def.Criteria.Target,
				},
				UnlockedAt: l.clock(),
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&unlock)
			if res.Error != nil {
				return nil, false, fmt.Errorf("record unlock %s: %w", def.Key, res.Error)
			}
			have[def.Key] = true
			if res.RowsAffected == 0 {
				continue
			}
			newly = append(newly, def.Key)
			progressed = true

			if def.XPReward > 0 {
				key := def.Key
				r, err := l.applyXP(tx, acct, XPAward{
					Owner:       owner,
					Amount:      def.XPReward,
					SourceType:  SourceAchievement,
					SourceID:    &key,
					Description: truncate("Achievement unlocked: "+def.Name, 255),
				})
				if err != nil {
					return nil, false, err
				}
				leveled = leveled || r.LeveledUp
			}
		}
		if !progressed {
			break
		}
	}
	return newly, leveled, nil
}

func unlockedKeys(db *gorm.DB, owner Owner) (map[string]bool, error) {
	var keys []string
	if err := owner.scope(db.Model(&models.AchievementUnlock{})).Pluck("achievement_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("load unlocks: %w", err)
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}

// snapshot gathers the owner's statistics from the ledger tables and the
// collaborator-fed owner stats.
func (l *Ledger) snapshot(db *gorm.DB, owner Owner, acct *models.XPAccount) (Snapshot, error) {
	snap := Snapshot{
		Level:         acct.Level,
		TotalXP:       acct.TotalXP,
		CurrentStreak: acct.CurrentStreakDays,
		LongestStreak: acct.LongestStreakDays,
		Completed:     map[string]int64{},
	}

	var rows []struct {
		SourceType string
		N          int64
	}
	if err := owner.scope(db.Model(&models.XPTransaction{})).
		Select("source_type, COUNT(*) AS n").
		Group("source_type").
		Scan(&rows).Error; err != nil {
		return snap, fmt.Errorf("count completions: %w", err)
	}
	for _, r := range rows {
		snap.Completed[r.SourceType] = r.N
	}

	if err := owner.scope(db.Model(&models.HabitStreak{})).
		Select("COALESCE(MAX(current_streak),0)").
		Scan(&snap.BestHabitStreak).Error; err != nil {
		return snap, fmt.Errorf("best habit streak: %w", err)
	}

	var stats []models.OwnerStat
	if err := owner.scope(db).Limit(1).Find(&stats).Error; err != nil {
		return snap, fmt.Errorf("load owner stats: %w", err)
	}
	if len(stats) == 1 {
		snap.MemberCount = stats[0].MemberCount
		snap.TasksAssigned = stats[0].TasksAssigned
		snap.TasksCompleted = stats[0].TasksCompleted
	}
	return snap, nil
}
