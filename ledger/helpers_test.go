package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/ledger/testutil"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Day(offset int) string {
	return c.Now().AddDate(0, 0, offset).Format(DayLayout)
}

func newTestLedger(t *testing.T, policy Policy) (*Ledger, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return New(newTestLedgerDB(t), policy, WithClock(clock.Now)), clock
}

func newTestLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.OpenTestDB(t)
}

func uncapped() Policy {
	p := DefaultPolicy()
	p.DailyXPCap = 0
	p.DailyPointsCap = 0
	return p
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func mustPoints(t *testing.T, l *Ledger, owner Owner, amount int64) {
	t.Helper()
	res, err := l.AwardPoints(context.Background(), PointsAward{Owner: owner, BaseAmount: amount, SourceType: "seed"})
	if err != nil {
		t.Fatalf("seed points: %v", err)
	}
	if res.Applied != amount {
		t.Fatalf("seed points applied %d, want %d", res.Applied, amount)
	}
}
