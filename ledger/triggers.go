package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/ledger/models"
)

// EventKind names a collaborator event the ledger reacts to.
type EventKind string

const (
	EventTaskCompleted           EventKind = "task_completed"
	EventHabitLogged             EventKind = "habit_logged"
	EventHabitUnlogged           EventKind = "habit_unlogged"
	EventGoalProgress            EventKind = "goal_progress"
	EventGoalCompleted           EventKind = "goal_completed"
	EventGuildTaskCompleted      EventKind = "guild_task_completed"
	EventGuildHabitCompleted     EventKind = "guild_habit_completed"
	EventGuildChallengeCompleted EventKind = "guild_challenge_completed"
	EventSocialAction            EventKind = "social_action"
)

// XP source types written by the triggers. Achievement criteria count these.
const (
	SourceTaskComplete           = "task_complete"
	SourceHabitLog               = "habit_log"
	SourceGoalComplete           = "goal_complete"
	SourceGoalProgress           = "goal_progress"
	SourceGuildTaskComplete      = "guild_task_complete"
	SourceGuildHabitComplete     = "guild_habit_complete"
	SourceGuildChallengeComplete = "guild_challenge_complete"
	SourceSocial                 = "social"
)

// Points source types.
const (
	PointsSourceTask      = "task"
	PointsSourceHabit     = "habit"
	PointsSourceGuildTask = "guild_task"
)

var taskXPByPriority = map[string]int64{
	"low":    10,
	"medium": 25,
	"high":   40,
	"urgent": 50,
}

const (
	defaultTaskXP     = 20
	habitXP           = 10
	goalCompletedXP   = 50
	goalProgressXP    = 5
	socialXP          = 5
	guildTaskXP       = 25
	guildHabitXP      = 10
	guildChallengeXP  = 100
	titleDisplayRunes = 50
)

// Event is a fact reported by a task, habit, goal, guild or social service.
type Event struct {
	Kind       EventKind `json:"kind"`
	Owner      Owner     `json:"owner"`
	ActorID    string    `json:"actor_id"`
	SourceID   string    `json:"source_id"`
	Title      string    `json:"title"`
	Priority   string    `json:"priority,omitempty"`
	PointValue int64     `json:"point_value,omitempty"`
	XPReward   int64     `json:"xp_reward,omitempty"`
	HabitKey   string    `json:"habit_key,omitempty"`
	Day        string    `json:"day,omitempty"`
}

// EventOutcome collects what an event produced. Nil parts were not touched.
type EventOutcome struct {
	XP        *XPResult           `json:"xp,omitempty"`
	Points    *PointsResult       `json:"points,omitempty"`
	Streak    *models.HabitStreak `json:"streak,omitempty"`
	Duplicate bool                `json:"duplicate"`
}

// TaskXP is the XP a completed task of the given priority is worth.
func TaskXP(priority string) int64 {
	if xp, ok := taskXPByPriority[strings.ToLower(priority)]; ok {
		return xp
	}
	return defaultTaskXP
}

// HabitXP is the XP of one habit completion at the given habit streak.
func HabitXP(streak int) int64 {
	switch {
	case streak >= 30:
		return habitXP + 15
	case streak >= 7:
		return habitXP + 5
	default:
		return habitXP
	}
}

func (e Event) ownerKindOK() bool {
	switch e.Kind {
	case EventGuildTaskCompleted, EventGuildHabitCompleted, EventGuildChallengeCompleted:
		return e.Owner.Kind == models.OwnerGuild
	case EventTaskCompleted, EventHabitLogged, EventHabitUnlogged,
		EventGoalProgress, EventGoalCompleted, EventSocialAction:
		return e.Owner.Kind == models.OwnerUser
	}
	return true
}

// checkRefs rejects events that lack the fields their idempotency key is built
// from. Habit logs fall back to the default streak key and today's date.
func (e Event) checkRefs() error {
	switch e.Kind {
	case EventTaskCompleted, EventGuildTaskCompleted, EventGoalCompleted, EventGoalProgress,
		EventGuildChallengeCompleted, EventSocialAction:
		if strings.TrimSpace(e.SourceID) == "" {
			return fmt.Errorf("%w: %s needs a source_id", ErrInvalidEvent, e.Kind)
		}
	case EventGuildHabitCompleted:
		if strings.TrimSpace(habitKey(e)) == "" || strings.TrimSpace(e.ActorID) == "" {
			return fmt.Errorf("%w: %s needs a habit and an actor_id", ErrInvalidEvent, e.Kind)
		}
	}
	return nil
}

func (e Event) xpOr(def int64) int64 {
	if e.XPReward > 0 {
		return e.XPReward
	}
	return def
}

func (e Event) label(prefix string) string {
	t := strings.TrimSpace(e.Title)
	if t == "" {
		return prefix
	}
	return prefix + ": " + truncate(t, titleDisplayRunes)
}

func sourceRef(parts ...string) *string {
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return nil
		}
	}
	s := strings.Join(parts, ":")
	return &s
}

// HandleEvent translates a collaborator event into XP, points and streak
// updates, all committed together under the owner's lock.
func (l *Ledger) HandleEvent(ctx context.Context, evt Event) (*EventOutcome, error) {
	if err := evt.Owner.Validate(); err != nil {
		return nil, err
	}
	if !evt.ownerKindOK() {
		return nil, ErrInvalidOwner
	}
	if evt.ActorID == "" && evt.Owner.Kind == models.OwnerUser {
		evt.ActorID = evt.Owner.ID
	}
	if err := evt.checkRefs(); err != nil {
		return nil, err
	}

	out := &EventOutcome{}
	err := l.atomically(ctx, []string{evt.Owner.lockKey()}, func(tx *gorm.DB) error {
		switch evt.Kind {
		case EventTaskCompleted:
			return l.onTask(tx, evt, out, SourceTaskComplete, PointsSourceTask, models.CategoryTasks,
				evt.xpOr(TaskXP(evt.Priority)), "Completed task")
		case EventGuildTaskCompleted:
			return l.onTask(tx, evt, out, SourceGuildTaskComplete, PointsSourceGuildTask, models.CategoryGuild,
				evt.xpOr(guildTaskXP), "Guild task completed")
		case EventHabitLogged:
			return l.onHabit(tx, evt, out)
		case EventHabitUnlogged:
			streak, err := l.logActivityLocked(tx, ActivityEntry{Owner: evt.Owner, StreakKey: habitKey(evt), Day: evt.Day})
			out.Streak = streak
			return err
		case EventGoalCompleted:
			return l.onXP(tx, evt, out, SourceGoalComplete, sourceRef(evt.SourceID), models.CategoryTasks,
				evt.xpOr(goalCompletedXP), "Completed goal")
		case EventGoalProgress:
			day := l.today().Format(DayLayout)
			return l.onXP(tx, evt, out, SourceGoalProgress, sourceRef(evt.SourceID, day), models.CategoryTasks,
				evt.xpOr(goalProgressXP), "Goal progress")
		case EventGuildHabitCompleted:
			day := evt.Day
			if day == "" {
				day = l.today().Format(DayLayout)
			}
			return l.onXP(tx, evt, out, SourceGuildHabitComplete, sourceRef(habitKey(evt), evt.ActorID, day), models.CategoryGuild,
				evt.xpOr(guildHabitXP), "Guild habit")
		case EventGuildChallengeCompleted:
			return l.onXP(tx, evt, out, SourceGuildChallengeComplete, sourceRef(evt.SourceID), models.CategoryGuild,
				evt.xpOr(guildChallengeXP), "Guild challenge completed")
		case EventSocialAction:
			return l.onXP(tx, evt, out, SourceSocial, sourceRef(evt.SourceID), models.CategorySocial,
				evt.xpOr(socialXP), "Social")
		default:
			return fmt.Errorf("%w: %q", ErrUnknownEvent, evt.Kind)
		}
	})
	if errors.Is(err, ErrDuplicateAward) {
		return &EventOutcome{Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if out.XP != nil && out.XP.Duplicate {
		out.Duplicate = true
	}

	l.log.Debug("event handled",
		zap.String("kind", string(evt.Kind)),
		zap.Stringer("owner", evt.Owner),
		zap.Bool("duplicate", out.Duplicate))
	notices := xpNotices(evt.Owner, evt.ActorID, out.XP)
	notices = append(notices, pointsNotices(NoticePointsAwarded, evt.Owner, evt.ActorID, out.Points)...)
	l.publish(notices)
	return out, nil
}

func habitKey(evt Event) string {
	if evt.HabitKey != "" {
		return evt.HabitKey
	}
	return evt.SourceID
}

func (l *Ledger) onXP(tx *gorm.DB, evt Event, out *EventOutcome, sourceType string, sourceID *string, cat models.Category, amount int64, prefix string) error {
	sourceType, sourceID, err := normalizeSource(sourceType, sourceID)
	if err != nil {
		return err
	}
	acct, err := l.lockXPAccount(tx, evt.Owner)
	if err != nil {
		return err
	}
	out.XP, err = l.creditXP(tx, acct, XPAward{
		Owner:       evt.Owner,
		Amount:      amount,
		Category:    cat,
		SourceType:  sourceType,
		SourceID:    sourceID,
		Description: evt.label(prefix),
		ActorID:     evt.ActorID,
	})
	return err
}

func (l *Ledger) onTask(tx *gorm.DB, evt Event, out *EventOutcome, xpSource, pointsSource string, cat models.Category, amount int64, prefix string) error {
	ref := sourceRef(evt.SourceID)
	if err := l.onXP(tx, evt, out, xpSource, ref, cat, amount, prefix); err != nil {
		return err
	}
	if out.XP.Duplicate {
		return nil
	}
	return l.earnFor(tx, evt, out, pointsSource, ref, l.policy.ClampTaskPoints(evt.PointValue), decimal.NewFromInt(1), prefix)
}

func (l *Ledger) onHabit(tx *gorm.DB, evt Event, out *EventOutcome) error {
	key := habitKey(evt)
	streak, err := l.logActivityLocked(tx, ActivityEntry{Owner: evt.Owner, StreakKey: key, Day: evt.Day, Completed: true})
	if err != nil {
		return err
	}
	out.Streak = streak

	day := evt.Day
	if day == "" {
		day = l.today().Format(DayLayout)
	}
	ref := sourceRef(streak.StreakKey, day)
	if err := l.onXP(tx, evt, out, SourceHabitLog, ref, models.CategoryHabits, evt.xpOr(HabitXP(streak.Current)), "Habit"); err != nil {
		return err
	}
	if out.XP.Duplicate {
		return nil
	}
	return l.earnFor(tx, evt, out, PointsSourceHabit, ref, l.policy.ClampHabitPoints(evt.PointValue), MultiplierFor(streak.Current), "Habit")
}

func (l *Ledger) earnFor(tx *gorm.DB, evt Event, out *EventOutcome, sourceType string, ref *string, base int64, mult decimal.Decimal, prefix string) error {
	if base <= 0 {
		return nil
	}
	acct, err := l.lockPointsAccount(tx, evt.Owner)
	if err != nil {
		return err
	}
	out.Points, err = l.earnLocked(tx, acct, PointsAward{
		Owner:       evt.Owner,
		BaseAmount:  base,
		Multiplier:  mult,
		SourceType:  sourceType,
		SourceID:    ref,
		Description: evt.label(prefix),
		ActorID:     evt.ActorID,
	})
	return err
}
