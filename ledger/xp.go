package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/ledger/models"
)

// SourceAchievement is the source type of XP granted by an unlock.
const SourceAchievement = "achievement"

// XPAward is a request to credit XP to an owner.
type XPAward struct {
	Owner       Owner
	Amount      int64
	Category    models.Category
	SourceType  string
	SourceID    *string
	Description string
	ActorID     string
}

// XPResult reports what an award actually did.
type XPResult struct {
	Requested   int64                 `json:"requested"`
	Applied     int64                 `json:"applied"`
	LeveledUp   bool                  `json:"leveled_up"`
	Duplicate   bool                  `json:"duplicate"`
	Capped      bool                  `json:"capped"`
	Unlocked    []string              `json:"unlocked,omitempty"`
	Account     models.XPAccount      `json:"account"`
	Transaction *models.XPTransaction `json:"transaction,omitempty"`
}

func (a *XPAward) normalize() error {
	if err := a.Owner.Validate(); err != nil {
		return err
	}
	if a.Amount <= 0 {
		return ErrInvalidAmount
	}
	a.Category = models.ParseCategory(string(a.Category))
	var err error
	if a.SourceType, a.SourceID, err = normalizeSource(a.SourceType, a.SourceID); err != nil {
		return err
	}
	a.Description = truncate(a.Description, 255)
	return nil
}

// AwardXP credits XP through the gate, levels the account up, refreshes its
// streak and evaluates achievements, all in one transaction. A replayed source
// event returns a Duplicate result rather than an error.
func (l *Ledger) AwardXP(ctx context.Context, award XPAward) (*XPResult, error) {
	if err := award.normalize(); err != nil {
		return nil, err
	}
	var res *XPResult
	err := l.atomically(ctx, []string{award.Owner.lockKey()}, func(tx *gorm.DB) error {
		acct, err := l.lockXPAccount(tx, award.Owner)
		if err != nil {
			return err
		}
		res, err = l.creditXP(tx, acct, award)
		return err
	})
	if errors.Is(err, ErrDuplicateAward) {
		return &XPResult{Requested: award.Amount, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if res.Applied > 0 {
		l.log.Debug("xp awarded",
			zap.Stringer("owner", award.Owner),
			zap.Int64("applied", res.Applied),
			zap.Int64("total_xp", res.Account.TotalXP),
			zap.Bool("leveled_up", res.LeveledUp))
	}
	l.publish(xpNotices(award.Owner, award.ActorID, res))
	return res, nil
}

// creditXP applies an award and evaluates achievements. The caller holds the owner lock.
func (l *Ledger) creditXP(tx *gorm.DB, acct *models.XPAccount, award XPAward) (*XPResult, error) {
	res, err := l.applyXP(tx, acct, award)
	if err != nil || res.Applied == 0 {
		return res, err
	}
	unlocked, leveled, err := l.evaluateLocked(tx, award.Owner, acct)
	if err != nil {
		return nil, err
	}
	res.Unlocked = unlocked
	res.LeveledUp = res.LeveledUp || leveled
	res.Account = *acct
	return res, nil
}

// applyXP runs the gate and writes the account and transaction rows.
func (l *Ledger) applyXP(tx *gorm.DB, acct *models.XPAccount, award XPAward) (*XPResult, error) {
	adm, err := l.gate.Admit(tx, PoolXP, award.Owner, award.SourceType, award.SourceID, award.Amount)
	if err != nil {
		return nil, err
	}
	res := &XPResult{Requested: award.Amount, Duplicate: adm.Duplicate, Capped: adm.Capped}
	if adm.Duplicate || adm.Amount == 0 {
		res.Account = *acct
		return res, nil
	}

	acct.TotalXP += adm.Amount
	switch award.Category {
	case models.CategoryTasks:
		acct.TasksXP += adm.Amount
	case models.CategoryHabits:
		acct.HabitsXP += adm.Amount
	case models.CategorySocial:
		acct.SocialXP += adm.Amount
	case models.CategoryGuild:
		acct.GuildXP += adm.Amount
	}
	acct.Level, res.LeveledUp = climb(acct.Level, acct.TotalXP)
	l.touchStreak(acct)

	now := l.clock()
	acct.UpdatedAt = now
	if err := tx.Save(acct).Error; err != nil {
		return nil, fmt.Errorf("save xp account: %w", err)
	}

	txn := models.XPTransaction{
		OwnerKind:   award.Owner.Kind,
		OwnerID:     award.Owner.ID,
		ActorID:     award.ActorID,
		Amount:      adm.Amount,
		Category:    award.Category,
		SourceType:  award.SourceType,
		SourceID:    award.SourceID,
		Description: award.Description,
		NewTotalXP:  acct.TotalXP,
		NewLevel:    acct.Level,
		LeveledUp:   res.LeveledUp,
		CreatedAt:   now,
	}
	if err := tx.Create(&txn).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateAward
		}
		return nil, fmt.Errorf("append xp transaction: %w", err)
	}
	res.Applied = adm.Amount
	res.Account = *acct
	res.Transaction = &txn
	return res, nil
}

// touchStreak advances the account's daily activity streak to today.
func (l *Ledger) touchStreak(acct *models.XPAccount) {
	today := l.today()
	if acct.LastActivityDate == "" {
		acct.CurrentStreakDays = 1
	} else if last, err := time.Parse(DayLayout, acct.LastActivityDate); err != nil {
		acct.CurrentStreakDays = 1
	} else {
		switch gap := daysBetween(last, today); {
		case gap < 0:
			return
		case gap == 1:
			acct.CurrentStreakDays++
		case gap > 1:
			acct.CurrentStreakDays = 1
		}
		if acct.CurrentStreakDays < 1 {
			acct.CurrentStreakDays = 1
		}
	}
	if acct.CurrentStreakDays > acct.LongestStreakDays {
		acct.LongestStreakDays = acct.CurrentStreakDays
	}
	acct.Multiplier = MultiplierFor(acct.CurrentStreakDays)
	acct.LastActivityDate = today.Format(DayLayout)
}

// lockXPAccount loads the owner's account FOR UPDATE, creating it on first use.
func (l *Ledger) lockXPAccount(tx *gorm.DB, owner Owner) (*models.XPAccount, error) {
	var acct models.XPAccount
	err := owner.scope(tx.Clauses(clause.Locking{Strength: "UPDATE"})).First(&acct).Error
	if err == nil {
		return &acct, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lock xp account: %w", err)
	}
	now := l.clock()
	seed := models.XPAccount{
		OwnerKind:  owner.Kind,
		OwnerID:    owner.ID,
		Level:      1,
		Multiplier: decimal.NewFromInt(1),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("create xp account: %w", err)
	}
	if err := owner.scope(tx.Clauses(clause.Locking{Strength: "UPDATE"})).First(&acct).Error; err != nil {
		return nil, fmt.Errorf("lock xp account: %w", err)
	}
	return &acct, nil
}

func xpNotices(owner Owner, actor string, res *XPResult) []Notice {
	if res == nil || res.Applied == 0 {
		return nil
	}
	out := []Notice{{
		Type:  NoticeXPAwarded,
		Owner: owner,
		Actor: actor,
		Data: map[string]any{
			"amount":   res.Applied,
			"capped":   res.Capped,
			"total_xp": res.Account.TotalXP,
			"level":    res.Account.Level,
		},
	}}
	if res.LeveledUp {
		out = append(out, Notice{Type: NoticeLevelUp, Owner: owner, Actor: actor, Data: map[string]any{"level": res.Account.Level}})
	}
	for _, key := range res.Unlocked {
		out = append(out, Notice{Type: NoticeAchievementUnlocked, Owner: owner, Actor: actor, Data: map[string]any{"achievement_key": key}})
	}
	return out
}

// Column widths of the idempotency key.
const (
	maxSourceTypeRunes = 32
	maxSourceIDRunes   = 96
)

// normalizeSource trims the idempotency key parts. Oversized parts are
// rejected, never cut, so distinct ids cannot collide on a shared prefix.
func normalizeSource(sourceType string, id *string) (string, *string, error) {
	st := strings.TrimSpace(sourceType)
	if st == "" {
		st = "other"
	}
	if utf8.RuneCountInString(st) > maxSourceTypeRunes {
		return "", nil, fmt.Errorf("%w: source_type longer than %d characters", ErrInvalidSource, maxSourceTypeRunes)
	}
	if id == nil {
		return st, nil, nil
	}
	s := strings.TrimSpace(*id)
	if s == "" {
		return st, nil, nil
	}
	if utf8.RuneCountInString(s) > maxSourceIDRunes {
		return "", nil, fmt.Errorf("%w: source_id longer than %d characters", ErrInvalidSource, maxSourceIDRunes)
	}
	return st, &s, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
