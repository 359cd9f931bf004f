// Package ledger awards XP and points, tracks streaks, unlocks achievements and
// redeems rewards for users and guilds. Every mutation for an owner runs in a
// single database transaction that holds the owner's row lock.
package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notice is published after a committed ledger mutation.
type Notice struct {
	Type  string         `json:"type"`
	Owner Owner          `json:"owner"`
	Actor string         `json:"actor_id,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	At    time.Time      `json:"at"`
}

// Notice types.
const (
	NoticeXPAwarded           = "xp_awarded"
	NoticeLevelUp             = "level_up"
	NoticeAchievementUnlocked = "achievement_unlocked"
	NoticePointsAwarded       = "points_awarded"
	NoticePointsSpent         = "points_spent"
	NoticeRewardRedeemed      = "reward_redeemed"
	NoticeRedemptionFulfilled = "redemption_fulfilled"
)

// Notifier receives notices once their transaction has committed.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Ledger is the entry point for all award, query and redemption operations.
type Ledger struct {
	db       *gorm.DB
	policy   Policy
	gate     *Gate
	catalog  *Catalog
	locks    *keyedLocker
	log      *zap.Logger
	now      func() time.Time
	notifier Notifier
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(lg *Ledger) {
		if l != nil {
			lg.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(lg *Ledger) {
		if now != nil {
			lg.now = now
		}
	}
}

// WithCatalog replaces the embedded achievement catalog.
func WithCatalog(c *Catalog) Option {
	return func(lg *Ledger) {
		if c != nil {
			lg.catalog = c
		}
	}
}

// WithNotifier registers the receiver of post-commit notices.
func WithNotifier(n Notifier) Option {
	return func(lg *Ledger) { lg.notifier = n }
}

// New builds a Ledger on db. The schema must already be migrated.
func New(db *gorm.DB, policy Policy, opts ...Option) *Ledger {
	l := &Ledger{
		db:      db,
		policy:  policy.normalized(),
		catalog: DefaultCatalog(),
		locks:   newKeyedLocker(),
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.gate = NewGate(l.policy, l.clock)
	return l
}

// Policy returns the effective limits.
func (l *Ledger) Policy() Policy { return l.policy }

// Catalog returns the achievement catalog in use.
func (l *Ledger) Catalog() *Catalog { return l.catalog }

// Ping checks that the database answers.
func (l *Ledger) Ping(ctx context.Context) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// clock returns the current instant in UTC; stored timestamps are UTC.
func (l *Ledger) clock() time.Time { return l.now().UTC() }

// today is the current calendar day in the policy location.
func (l *Ledger) today() time.Time { return l.now().In(l.policy.Location) }

// atomically runs fn in one transaction while holding the keyed locks.
func (l *Ledger) atomically(ctx context.Context, keys []string, fn func(tx *gorm.DB) error) error {
	unlock := l.locks.Lock(keys...)
	defer unlock()
	return l.db.WithContext(ctx).Transaction(fn)
}

func (l *Ledger) publish(notices []Notice) {
	if l.notifier == nil {
		return
	}
	for _, n := range notices {
		if n.At.IsZero() {
			n.At = l.clock()
		}
		l.notifier.Notify(n)
	}
}
