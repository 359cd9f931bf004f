package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cppla/ledger/models"
)

func TestTaskXP(t *testing.T) {
	cases := map[string]int64{"low": 10, "medium": 25, "HIGH": 40, "urgent": 50, "": 20, "someday": 20}
	for priority, want := range cases {
		if got := TaskXP(priority); got != want {
			t.Errorf("TaskXP(%q) = %d, want %d", priority, got, want)
		}
	}
}

func TestHabitXP(t *testing.T) {
	cases := []struct {
		streak int
		want   int64
	}{{1, 10}, {6, 10}, {7, 15}, {29, 15}, {30, 25}}
	for _, tc := range cases {
		if got := HabitXP(tc.streak); got != tc.want {
			t.Errorf("HabitXP(%d) = %d, want %d", tc.streak, got, tc.want)
		}
	}
}

func TestTaskEventAwardsXPAndPoints(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	owner := User("alice")

	evt := Event{Kind: EventTaskCompleted, Owner: owner, SourceID: "task-7", Title: "Ship it", Priority: "high", PointValue: 900}
	out, err := l.HandleEvent(ctx, evt)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if out.XP.Applied != 40 || out.XP.Transaction.Category != models.CategoryTasks {
		t.Errorf("xp = %+v", out.XP)
	}
	if out.Points == nil || out.Points.Applied != 500 {
		t.Fatalf("points = %+v, want 500 after clamping", out.Points)
	}
	if out.XP.Transaction.Description != "Completed task: Ship it" {
		t.Errorf("description = %q", out.XP.Transaction.Description)
	}

	again, err := l.HandleEvent(ctx, evt)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !again.Duplicate {
		t.Error("replayed event not reported as duplicate")
	}
	acct, _ := l.PointsAccount(ctx, owner)
	if acct.Balance != 500 {
		t.Errorf("balance = %d, want 500", acct.Balance)
	}
}

func TestHabitEventUsesStreakTier(t *testing.T) {
	l, clock := newTestLedger(t, uncapped())
	ctx := context.Background()
	owner := User("alice")

	for offset := -7; offset <= -1; offset++ {
		if _, err := l.LogActivity(ctx, ActivityEntry{Owner: owner, StreakKey: "h1", Day: clock.Day(offset), Completed: true}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	out, err := l.HandleEvent(ctx, Event{Kind: EventHabitLogged, Owner: owner, HabitKey: "h1", Title: "Meditate", PointValue: 20})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if out.Streak == nil || out.Streak.Current != 8 {
		t.Fatalf("streak = %+v, want 8", out.Streak)
	}
	if out.XP.Transaction.Amount != 15 {
		t.Errorf("habit xp = %d, want 15", out.XP.Transaction.Amount)
	}
	if out.Points.Applied != 22 {
		t.Errorf("habit points = %d, want floor(20*1.10)=22", out.Points.Applied)
	}
	if out.XP.Account.HabitsXP < 15 {
		t.Errorf("habits bucket = %d", out.XP.Account.HabitsXP)
	}

	again, err := l.HandleEvent(ctx, Event{Kind: EventHabitLogged, Owner: owner, HabitKey: "h1", PointValue: 20})
	if err != nil {
		t.Fatalf("same-day relog: %v", err)
	}
	if !again.Duplicate {
		t.Error("same-day relog awarded twice")
	}

	undo, err := l.HandleEvent(ctx, Event{Kind: EventHabitUnlogged, Owner: owner, HabitKey: "h1", Day: clock.Day(-3)})
	if err != nil {
		t.Fatalf("unlog: %v", err)
	}
	if undo.Streak.Current != 3 || undo.Streak.Longest != 8 {
		t.Errorf("after unlog current=%d longest=%d, want 3/8", undo.Streak.Current, undo.Streak.Longest)
	}
}

func TestGoalProgressOncePerDay(t *testing.T) {
	l, clock := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	owner := User("alice")
	evt := Event{Kind: EventGoalProgress, Owner: owner, SourceID: "goal-1"}

	first, err := l.HandleEvent(ctx, evt)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	second, err := l.HandleEvent(ctx, evt)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if first.XP.Applied != 5 || !second.Duplicate {
		t.Fatalf("first=%d second duplicate=%v", first.XP.Applied, second.Duplicate)
	}
	clock.Advance(24 * time.Hour)
	third, err := l.HandleEvent(ctx, evt)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if third.XP.Applied != 5 {
		t.Errorf("next day applied %d, want 5", third.XP.Applied)
	}
}

func TestGuildEvents(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	guild := Guild("g1")

	out, err := l.HandleEvent(ctx, Event{Kind: EventGuildTaskCompleted, Owner: guild, ActorID: "u1", SourceID: "gt-1", PointValue: 30})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if out.XP.Transaction.Amount != 25 || out.XP.Transaction.ActorID != "u1" {
		t.Errorf("guild task xp = %+v", out.XP.Transaction)
	}
	if !contains(out.XP.Unlocked, "guild_first_task") {
		t.Errorf("unlocked = %v", out.XP.Unlocked)
	}
	if out.Points.Account.Balance != 30 {
		t.Errorf("treasury = %d, want 30", out.Points.Account.Balance)
	}

	if _, err := l.HandleEvent(ctx, Event{Kind: EventGuildChallengeCompleted, Owner: guild, ActorID: "u2", SourceID: "c1", XPReward: 60}); err != nil {
		t.Fatalf("challenge: %v", err)
	}
	contributors, err := l.Contributors(ctx, "g1", 10)
	if err != nil {
		t.Fatalf("Contributors: %v", err)
	}
	if len(contributors) != 2 || contributors[0].ActorID != "u2" || contributors[0].XP != 60 {
		t.Errorf("contributors = %+v", contributors)
	}
}

func TestHandleEventValidation(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	if _, err := l.HandleEvent(ctx, Event{Kind: EventGuildTaskCompleted, Owner: User("alice")}); !errors.Is(err, ErrInvalidOwner) {
		t.Errorf("guild event on user err = %v", err)
	}
	if _, err := l.HandleEvent(ctx, Event{Kind: EventTaskCompleted, Owner: Guild("g1")}); !errors.Is(err, ErrInvalidOwner) {
		t.Errorf("user event on guild err = %v", err)
	}
	if _, err := l.HandleEvent(ctx, Event{Kind: "teleported", Owner: User("alice")}); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("unknown kind err = %v", err)
	}
}

func TestEventsWithoutSourceAreRejected(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	cases := []Event{
		{Kind: EventTaskCompleted, Owner: User("alice")},
		{Kind: EventGoalCompleted, Owner: User("alice"), SourceID: "  "},
		{Kind: EventGoalProgress, Owner: User("alice")},
		{Kind: EventSocialAction, Owner: User("alice")},
		{Kind: EventGuildTaskCompleted, Owner: Guild("g1"), ActorID: "u1"},
		{Kind: EventGuildChallengeCompleted, Owner: Guild("g1"), ActorID: "u1"},
		{Kind: EventGuildHabitCompleted, Owner: Guild("g1"), SourceID: "habit-1", HabitKey: "habit-1"},
		{Kind: EventGuildHabitCompleted, Owner: Guild("g1"), ActorID: "u1"},
	}
	for _, evt := range cases {
		if _, err := l.HandleEvent(ctx, evt); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("%s %+v: err = %v, want ErrInvalidEvent", evt.Kind, evt, err)
		}
	}
	acct, err := l.XPAccount(ctx, Guild("g1"))
	if err != nil {
		t.Fatalf("XPAccount: %v", err)
	}
	if acct.TotalXP != 0 {
		t.Errorf("rejected events credited %d xp", acct.TotalXP)
	}
}

func TestGuildHabitReplayAppliesOnce(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	guild := Guild("g1")
	evt := Event{Kind: EventGuildHabitCompleted, Owner: guild, ActorID: "u1", SourceID: "habit-1", HabitKey: "habit-1"}

	for i := 0; i < 3; i++ {
		out, err := l.HandleEvent(ctx, evt)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if i > 0 && (!out.Duplicate || out.XP.Applied != 0) {
			t.Errorf("attempt %d = %+v, want duplicate", i, out.XP)
		}
	}
	acct, err := l.XPAccount(ctx, guild)
	if err != nil {
		t.Fatalf("XPAccount: %v", err)
	}
	if acct.TotalXP != guildHabitXP {
		t.Errorf("guild total = %d, want %d", acct.TotalXP, guildHabitXP)
	}

	// another member completing the same habit counts separately
	evt.ActorID = "u2"
	out, err := l.HandleEvent(ctx, evt)
	if err != nil {
		t.Fatalf("second member: %v", err)
	}
	if out.Duplicate || out.XP.Applied != guildHabitXP {
		t.Errorf("second member = %+v", out.XP)
	}
}

func TestNotifierReceivesCommittedNotices(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	clock := newFakeClock()
	l := New(newTestLedgerDB(t), DefaultPolicy(), WithClock(clock.Now), WithNotifier(NotifierFunc(func(n Notice) {
		mu.Lock()
		seen = append(seen, n.Type)
		mu.Unlock()
	})))
	ctx := context.Background()
	if _, err := l.HandleEvent(ctx, Event{Kind: EventTaskCompleted, Owner: User("alice"), SourceID: "t1", PointValue: 5}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if _, err := l.SpendPoints(ctx, PointsSpend{Owner: User("alice"), Amount: 50}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("SpendPoints err = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{NoticeXPAwarded, NoticeAchievementUnlocked, NoticePointsAwarded}
	if len(seen) != len(want) {
		t.Fatalf("notices = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("notice %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestLeaderboardRanks(t *testing.T) {
	l, _ := newTestLedger(t, uncapped())
	ctx := context.Background()
	for id, xp := range map[string]int64{"a": 100, "b": 250, "c": 100, "d": 20} {
		if _, err := l.AwardXP(ctx, XPAward{Owner: User(id), Amount: xp, SourceType: "seed"}); err != nil {
			t.Fatalf("AwardXP: %v", err)
		}
	}
	board, err := l.Leaderboard(ctx, models.OwnerUser, 3, "d")
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(board.Entries))
	}
	if board.Entries[0].OwnerID != "b" || board.Entries[1].Rank != 2 || board.Entries[2].Rank != 2 {
		t.Errorf("entries = %+v", board.Entries)
	}
	if board.YourRank != 4 {
		t.Errorf("your rank = %d, want 4", board.YourRank)
	}
}
