package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/ledger/models"
)

func TestAwardXPWithinFirstLevel(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	res, err := l.AwardXP(context.Background(), XPAward{Owner: User("alice"), Amount: 150, Category: models.CategoryTasks, SourceType: "manual"})
	if err != nil {
		t.Fatalf("AwardXP: %v", err)
	}
	if res.Applied != 150 || res.Account.TotalXP != 150 {
		t.Fatalf("applied=%d total=%d, want 150/150", res.Applied, res.Account.TotalXP)
	}
	if res.Account.Level != 1 || res.LeveledUp {
		t.Errorf("level=%d leveled_up=%v, want 1/false", res.Account.Level, res.LeveledUp)
	}
	if res.Account.TasksXP != 150 {
		t.Errorf("tasks bucket = %d, want 150", res.Account.TasksXP)
	}
	if res.Account.CurrentStreakDays != 1 {
		t.Errorf("streak = %d, want 1", res.Account.CurrentStreakDays)
	}
	if res.Transaction == nil || res.Transaction.NewTotalXP != 150 || res.Transaction.NewLevel != 1 {
		t.Errorf("unexpected transaction snapshot: %+v", res.Transaction)
	}
}

func TestAwardXPLevelsUp(t *testing.T) {
	l, _ := newTestLedger(t, uncapped())
	ctx := context.Background()
	owner := User("alice")

	res, err := l.AwardXP(ctx, XPAward{Owner: owner, Amount: 650, SourceType: "manual"})
	if err != nil {
		t.Fatalf("AwardXP: %v", err)
	}
	if res.Account.Level != 3 || !res.LeveledUp {
		t.Fatalf("level=%d leveled_up=%v, want 3/true", res.Account.Level, res.LeveledUp)
	}
	want, _ := LevelFor(res.Account.TotalXP)
	if res.Account.Level != want {
		t.Errorf("cached level %d drifted from LevelFor=%d", res.Account.Level, want)
	}
}

func TestAwardXPUnknownCategoryCountsTowardTotal(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	res, err := l.AwardXP(context.Background(), XPAward{Owner: User("eve"), Amount: 40, Category: "bogus"})
	if err != nil {
		t.Fatalf("AwardXP: %v", err)
	}
	a := res.Account
	if a.TotalXP != 40 || a.TasksXP+a.HabitsXP+a.SocialXP+a.GuildXP != 0 {
		t.Errorf("unexpected buckets: %+v", a)
	}
	if res.Transaction.SourceType != "other" {
		t.Errorf("source type = %q, want other", res.Transaction.SourceType)
	}
}

func TestAwardXPDailyCap(t *testing.T) {
	l, clock := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	owner := User("grinder")

	res, err := l.AwardXP(ctx, XPAward{Owner: owner, Amount: 10000, SourceType: "manual"})
	if err != nil {
		t.Fatalf("AwardXP: %v", err)
	}
	if res.Applied != 500 || !res.Capped {
		t.Fatalf("applied=%d capped=%v, want 500/true", res.Applied, res.Capped)
	}

	res, err = l.AwardXP(ctx, XPAward{Owner: owner, Amount: 50, SourceType: "manual"})
	if err != nil {
		t.Fatalf("AwardXP: %v", err)
	}
	if res.Applied != 0 || res.Transaction != nil {
		t.Fatalf("second award applied %d, want 0 and no transaction", res.Applied)
	}

	var n int64
	l.db.Model(&models.XPTransaction{}).Where("owner_id = ?", owner.ID).Count(&n)
	if n != 1 {
		t.Errorf("transactions = %d, want 1", n)
	}

	clock.Advance(24 * time.Hour)
	res, err = l.AwardXP(ctx, XPAward{Owner: owner, Amount: 100, SourceType: "manual"})
	if err != nil {
		t.Fatalf("AwardXP next day: %v", err)
	}
	if res.Applied != 100 {
		t.Errorf("next day applied %d, want 100", res.Applied)
	}
	if res.Account.CurrentStreakDays != 2 {
		t.Errorf("streak = %d, want 2", res.Account.CurrentStreakDays)
	}
}

func TestAwardXPPoolsAreIndependentPerOwner(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	for _, owner := range []Owner{User("u1"), Guild("u1")} {
		res, err := l.AwardXP(ctx, XPAward{Owner: owner, Amount: 500, SourceType: "manual"})
		if err != nil {
			t.Fatalf("AwardXP %s: %v", owner, err)
		}
		if res.Applied != 500 {
			t.Errorf("%s applied %d, want 500", owner, res.Applied)
		}
	}
}

func TestAwardXPIdempotent(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	award := XPAward{Owner: User("alice"), Amount: 25, SourceType: "task_complete", SourceID: strPtr("task-1")}

	first, err := l.AwardXP(ctx, award)
	if err != nil {
		t.Fatalf("first award: %v", err)
	}
	second, err := l.AwardXP(ctx, award)
	if err != nil {
		t.Fatalf("second award: %v", err)
	}
	if first.Applied != 25 || first.Duplicate {
		t.Errorf("first = %+v", first)
	}
	if second.Applied != 0 || !second.Duplicate {
		t.Errorf("second applied=%d duplicate=%v, want 0/true", second.Applied, second.Duplicate)
	}
	acct, _ := l.XPAccount(ctx, User("alice"))
	if acct.TotalXP != first.Account.TotalXP {
		t.Errorf("total changed on replay: %d -> %d", first.Account.TotalXP, acct.TotalXP)
	}
}

func TestAwardXPIdempotentUnderConcurrency(t *testing.T) {
	l, _ := newTestLedger(t, uncapped())
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.AwardXP(ctx, XPAward{Owner: User("racer"), Amount: 30, SourceType: "manual", SourceID: strPtr("same")})
			if err != nil {
				t.Errorf("AwardXP: %v", err)
				return
			}
			if res.Applied > 0 {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if applied != 1 {
		t.Fatalf("applied %d times, want 1", applied)
	}
	var n int64
	l.db.Model(&models.XPTransaction{}).Where("owner_id = ? AND source_id = ?", "racer", "same").Count(&n)
	if n != 1 {
		t.Errorf("transactions = %d, want 1", n)
	}
}

func TestAwardXPRejectsOversizedSource(t *testing.T) {
	l, _ := newTestLedger(t, uncapped())
	ctx := context.Background()
	owner := User("alice")
	shared := strings.Repeat("a", maxSourceIDRunes)

	res, err := l.AwardXP(ctx, XPAward{Owner: owner, Amount: 10, SourceType: "task", SourceID: strPtr(shared)})
	if err != nil || res.Applied != 10 {
		t.Fatalf("id at the limit: res=%+v err=%v", res, err)
	}
	// Longer ids sharing the prefix must not land on the stored key.
	for _, id := range []string{shared + "1", shared + "2"} {
		if _, err := l.AwardXP(ctx, XPAward{Owner: owner, Amount: 10, SourceType: "task", SourceID: strPtr(id)}); !errors.Is(err, ErrInvalidSource) {
			t.Errorf("id of %d runes: err = %v, want ErrInvalidSource", len(id), err)
		}
	}
	if _, err := l.AwardXP(ctx, XPAward{Owner: owner, Amount: 10, SourceType: strings.Repeat("t", maxSourceTypeRunes+1)}); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("long source type: err = %v, want ErrInvalidSource", err)
	}
	if _, err := l.AwardPoints(ctx, PointsAward{Owner: owner, BaseAmount: 10, SourceType: "task", SourceID: strPtr(shared + "1")}); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("points with long id: err = %v, want ErrInvalidSource", err)
	}

	acct, _ := l.XPAccount(ctx, owner)
	if acct.TotalXP != 10 {
		t.Errorf("total = %d, want 10", acct.TotalXP)
	}
}

func TestUniqueIndexRejectsRepeatedSource(t *testing.T) {
	db := newTestLedgerDB(t)
	row := func() *models.XPTransaction {
		return &models.XPTransaction{OwnerKind: models.OwnerUser, OwnerID: "alice", Amount: 5, SourceType: "task", SourceID: strPtr("t1")}
	}
	if err := db.Create(row()).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := db.Create(row()).Error
	if !isUniqueViolation(err) {
		t.Fatalf("second insert err = %v, want a unique violation", err)
	}

	// Rows without a source id are never deduplicated.
	for i := 0; i < 2; i++ {
		if err := db.Create(&models.XPTransaction{OwnerKind: models.OwnerUser, OwnerID: "alice", Amount: 5, SourceType: "manual"}).Error; err != nil {
			t.Fatalf("sourceless insert %d: %v", i, err)
		}
	}
}

// A writer on another process can commit the same source between the
// existence check and the insert. The index turns that into a duplicate.
func TestAwardXPLosesInsertRace(t *testing.T) {
	db := newTestLedgerDB(t)
	l := New(db, DefaultPolicy())
	ctx := context.Background()

	fired := false
	err := db.Callback().Create().Before("gorm:create").Register("ledger_test:rival_insert", func(tx *gorm.DB) {
		txn, ok := tx.Statement.Dest.(*models.XPTransaction)
		if !ok || fired || txn.SourceID == nil || *txn.SourceID != "raced" {
			return
		}
		fired = true
		rival := models.XPTransaction{
			OwnerKind:  txn.OwnerKind,
			OwnerID:    txn.OwnerID,
			Amount:     txn.Amount,
			SourceType: txn.SourceType,
			SourceID:   txn.SourceID,
			CreatedAt:  txn.CreatedAt,
		}
		if err := tx.Session(&gorm.Session{NewDB: true}).Create(&rival).Error; err != nil {
			tx.AddError(err)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	res, err := l.AwardXP(ctx, XPAward{Owner: User("alice"), Amount: 25, SourceType: "task", SourceID: strPtr("raced")})
	if err != nil {
		t.Fatalf("AwardXP: %v", err)
	}
	if !fired {
		t.Fatal("rival insert never ran")
	}
	if !res.Duplicate || res.Applied != 0 {
		t.Fatalf("res = %+v, want a duplicate with nothing applied", res)
	}
	acct, _ := l.XPAccount(ctx, User("alice"))
	if acct.TotalXP != 0 {
		t.Errorf("total = %d, want 0 after the rolled back award", acct.TotalXP)
	}
}

func TestAwardXPRejectsBadInput(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	if _, err := l.AwardXP(ctx, XPAward{Owner: User("a"), Amount: 0}); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount err = %v", err)
	}
	if _, err := l.AwardXP(ctx, XPAward{Owner: User("a"), Amount: -5}); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount err = %v", err)
	}
	if _, err := l.AwardXP(ctx, XPAward{Owner: Owner{Kind: "team", ID: "a"}, Amount: 5}); !errors.Is(err, ErrInvalidOwner) {
		t.Errorf("bad kind err = %v", err)
	}
	if _, err := l.AwardXP(ctx, XPAward{Owner: User(""), Amount: 5}); !errors.Is(err, ErrInvalidOwner) {
		t.Errorf("empty id err = %v", err)
	}
}

func TestStreakResetsAfterMissedDay(t *testing.T) {
	l, clock := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	owner := User("sam")

	for i := 0; i < 3; i++ {
		if _, err := l.AwardXP(ctx, XPAward{Owner: owner, Amount: 5, SourceType: "manual"}); err != nil {
			t.Fatalf("AwardXP: %v", err)
		}
		clock.Advance(24 * time.Hour)
	}
	clock.Advance(24 * time.Hour)
	res, err := l.AwardXP(ctx, XPAward{Owner: owner, Amount: 5, SourceType: "manual"})
	if err != nil {
		t.Fatalf("AwardXP: %v", err)
	}
	if res.Account.CurrentStreakDays != 1 || res.Account.LongestStreakDays != 3 {
		t.Errorf("current=%d longest=%d, want 1/3", res.Account.CurrentStreakDays, res.Account.LongestStreakDays)
	}
}

func TestGateRemaining(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	owner := User("quota")
	if _, err := l.AwardXP(ctx, XPAward{Owner: owner, Amount: 120, SourceType: "manual"}); err != nil {
		t.Fatalf("AwardXP: %v", err)
	}
	a, err := l.Allowance(ctx, owner)
	if err != nil {
		t.Fatalf("Allowance: %v", err)
	}
	if a.XPEarned != 120 || a.XPRemaining != 380 {
		t.Errorf("xp allowance = %+v", a)
	}
	if a.PointsEarned != 0 || a.PointsRemaining != 1000 {
		t.Errorf("points allowance = %+v", a)
	}

	free, _ := newTestLedger(t, uncapped())
	a, err = free.Allowance(ctx, owner)
	if err != nil {
		t.Fatalf("Allowance: %v", err)
	}
	if a.XPRemaining != -1 {
		t.Errorf("uncapped remaining = %d, want -1", a.XPRemaining)
	}
}
