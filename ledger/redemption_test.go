package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cppla/ledger/models"
)

func newReward(t *testing.T, l *Ledger, owner Owner, name string, cost int64, mutate func(*RewardInput)) *models.Reward {
	t.Helper()
	in := RewardInput{Name: strPtr(name), Cost: int64Ptr(cost)}
	if mutate != nil {
		mutate(&in)
	}
	r, err := l.CreateReward(context.Background(), owner, owner.ID, in)
	if err != nil {
		t.Fatalf("CreateReward: %v", err)
	}
	return r
}

func TestCreateRewardSlugs(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	owner := User("alice")
	a := newReward(t, l, owner, "Coffee Break", 50, nil)
	b := newReward(t, l, owner, "Coffee Break", 60, nil)
	other := newReward(t, l, User("bob"), "Coffee Break", 60, nil)
	if a.Slug != "coffee-break" || b.Slug != "coffee-break-2" || other.Slug != "coffee-break" {
		t.Errorf("slugs = %q %q %q", a.Slug, b.Slug, other.Slug)
	}
	if a.MaxPerRedeemer != 1 || !a.IsActive || a.RewardType != models.RewardOther {
		t.Errorf("defaults not applied: %+v", a)
	}

	_, err := l.CreateReward(context.Background(), owner, "alice", RewardInput{Name: strPtr("Free"), Cost: int64Ptr(0)})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero cost err = %v", err)
	}
}

func TestRedeemInsufficientBalance(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	owner := User("alice")
	mustPoints(t, l, owner, 40)
	r := newReward(t, l, owner, "Movie night", 50, nil)

	if _, err := l.Redeem(ctx, "alice", r.ID); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	acct, _ := l.PointsAccount(ctx, owner)
	if acct.Balance != 40 {
		t.Errorf("balance = %d, want 40", acct.Balance)
	}
	var n int64
	l.db.Model(&models.Redemption{}).Count(&n)
	if n != 0 {
		t.Errorf("redemptions = %d, want 0", n)
	}
}

func TestRedeemPersonalReward(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	owner := User("alice")
	mustPoints(t, l, owner, 100)
	r := newReward(t, l, owner, "Dessert", 30, nil)

	if _, err := l.Redeem(ctx, "mallory", r.ID); !errors.Is(err, ErrRewardNotFound) {
		t.Fatalf("foreign redeemer err = %v, want ErrRewardNotFound", err)
	}

	res, err := l.Redeem(ctx, "alice", r.ID)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Balance != 70 || res.Redemption.PointsSpent != 30 {
		t.Errorf("result = %+v", res)
	}
	if res.Redemption.Status != models.RedemptionFulfilled || res.Redemption.FulfilledAt == nil {
		t.Errorf("personal redemption not fulfilled: %+v", res.Redemption)
	}

	if _, err := l.Redeem(ctx, "alice", r.ID); !errors.Is(err, ErrRedemptionLimitReached) {
		t.Fatalf("second redeem err = %v, want ErrRedemptionLimitReached", err)
	}

	if err := l.DeactivateReward(ctx, owner, r.ID); err != nil {
		t.Fatalf("DeactivateReward: %v", err)
	}
	if _, err := l.Redeem(ctx, "alice", r.ID); !errors.Is(err, ErrRewardUnavailable) {
		t.Fatalf("inactive redeem err = %v, want ErrRewardUnavailable", err)
	}
	if _, err := l.Redeem(ctx, "alice", "missing"); !errors.Is(err, ErrRewardNotFound) {
		t.Fatalf("missing reward err = %v", err)
	}

	acct, _ := l.PointsAccount(ctx, owner)
	if acct.Balance != acct.LifetimeEarned-acct.LifetimeSpent {
		t.Errorf("balance invariant broken: %+v", acct)
	}
}

func TestRedeemSoldOutUnderConcurrency(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	guild := Guild("g1")
	mustPoints(t, l, guild, 1000)
	r := newReward(t, l, guild, "Team lunch", 10, func(in *RewardInput) {
		in.QuantityAvailable = int64Ptr(3)
		in.MaxPerRedeemer = intPtr(0)
	})

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		ok, soldOut int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Redeem(ctx, fmt.Sprintf("member-%d", i), r.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrSoldOut):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if ok != 3 || soldOut != 7 {
		t.Fatalf("ok=%d sold_out=%d, want 3/7", ok, soldOut)
	}

	treasury, _ := l.PointsAccount(ctx, guild)
	if treasury.Balance != 970 {
		t.Errorf("treasury = %d, want 970", treasury.Balance)
	}
	got, err := l.GetReward(ctx, guild, r.ID)
	if err != nil {
		t.Fatalf("GetReward: %v", err)
	}
	if got.RedemptionCount != 3 || !got.SoldOut() {
		t.Errorf("reward = %+v", got)
	}
}

func TestGuildRedemptionFulfilment(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	guild := Guild("g1")
	mustPoints(t, l, guild, 200)
	r := newReward(t, l, guild, "Custom role", 100, nil)

	res, err := l.Redeem(ctx, "member-1", r.ID)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Redemption.Status != models.RedemptionPending {
		t.Fatalf("status = %s, want pending", res.Redemption.Status)
	}

	pending, total, err := l.Redemptions(ctx, RedemptionFilter{Payer: guild, Status: models.RedemptionPending}, 1, 10)
	if err != nil {
		t.Fatalf("Redemptions: %v", err)
	}
	if total != 1 || len(pending) != 1 {
		t.Fatalf("pending = %d/%d, want 1", len(pending), total)
	}

	done, err := l.FulfillRedemption(ctx, guild, res.Redemption.ID, "admin-1", "granted")
	if err != nil {
		t.Fatalf("FulfillRedemption: %v", err)
	}
	if done.Status != models.RedemptionFulfilled || done.FulfilledBy != "admin-1" || done.Notes != "granted" {
		t.Errorf("fulfilled = %+v", done)
	}
	if _, err := l.FulfillRedemption(ctx, Guild("g2"), res.Redemption.ID, "admin-2", ""); !errors.Is(err, ErrRedemptionNotFound) {
		t.Errorf("other guild err = %v, want ErrRedemptionNotFound", err)
	}
}

func TestListRewardsEligibility(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	owner := User("alice")
	mustPoints(t, l, owner, 60)
	cheap := newReward(t, l, owner, "Sticker", 10, nil)
	newReward(t, l, owner, "Console", 5000, nil)

	if _, err := l.Redeem(ctx, "alice", cheap.ID); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	views, err := l.ListRewards(ctx, owner, "alice", false)
	if err != nil {
		t.Fatalf("ListRewards: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2", len(views))
	}
	if views[0].Name != "Sticker" || views[0].CanRedeem || views[0].Reason != "limit_reached" || views[0].UserRedemptions != 1 {
		t.Errorf("sticker view = %+v", views[0])
	}
	if views[1].CanRedeem || views[1].Reason != "insufficient_points" {
		t.Errorf("console view = %+v", views[1])
	}
}

func TestUpdateReward(t *testing.T) {
	l, _ := newTestLedger(t, DefaultPolicy())
	ctx := context.Background()
	owner := User("alice")
	r := newReward(t, l, owner, "Nap", 20, nil)

	got, err := l.UpdateReward(ctx, owner, r.ID, RewardInput{Cost: int64Ptr(25), RewardType: strPtr(models.RewardBadge)})
	if err != nil {
		t.Fatalf("UpdateReward: %v", err)
	}
	if got.Cost != 25 || got.RewardType != models.RewardBadge || got.Name != "Nap" {
		t.Errorf("updated = %+v", got)
	}
	if _, err := l.UpdateReward(ctx, User("bob"), r.ID, RewardInput{Cost: int64Ptr(1)}); !errors.Is(err, ErrRewardNotFound) {
		t.Errorf("foreign update err = %v", err)
	}
	if _, err := l.UpdateReward(ctx, owner, r.ID, RewardInput{RewardType: strPtr("car")}); !errors.Is(err, ErrInvalidReward) {
		t.Errorf("bad type err = %v", err)
	}
}
