package utils

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/cppla/ledger/config"
	"github.com/cppla/ledger/ledger"
	"github.com/cppla/ledger/models"
)

// StartLedgerJobs schedules the nightly streak sweep and, when a cache TTL is
// set, periodic leaderboard warm-up. Callers shut the scheduler down on exit.
func StartLedgerJobs(l *ledger.Ledger, cfg config.AppConfig) (gocron.Scheduler, error) {
	hour, minute, err := parseClock(cfg.StreakSweepAt)
	if err != nil {
		return nil, err
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(l.Policy().Location))
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), uint(minute), 0))),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			n, err := l.ExpireStreaks(ctx)
			if err != nil {
				Sugar.Errorf("[Scheduler] streak sweep failed: %v", err)
				return
			}
			Sugar.Infof("[Scheduler] streak sweep reset %d accounts", n)
		}),
		gocron.WithName("streak-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule streak sweep: %w", err)
	}

	if ttl := cfg.LeaderboardTTL(); ttl > 0 && GetRedis() != nil {
		size := cfg.LeaderboardSize
		_, err = sched.NewJob(
			gocron.DurationJob(ttl),
			gocron.NewTask(func() { WarmLeaderboards(l, size, ttl) }),
			gocron.WithName("leaderboard-warmup"),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule leaderboard warm-up: %w", err)
		}
	}

	sched.Start()
	return sched, nil
}

// WarmLeaderboards recomputes both global boards into the cache.
func WarmLeaderboards(l *ledger.Ledger, size int, ttl time.Duration) {
	for _, kind := range []models.OwnerKind{models.OwnerUser, models.OwnerGuild} {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		board, err := l.Leaderboard(ctx, kind, size, "")
		cancel()
		if err != nil {
			Sugar.Warnf("[Scheduler] leaderboard %s warm-up failed: %v", kind, err)
			continue
		}
		CacheSetJSON(LeaderboardCacheKey(string(kind), size), board.Entries, ttl)
	}
}

// parseClock reads "HH:MM".
func parseClock(s string) (int, int, error) {
	if s == "" {
		s = "00:05"
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("STREAK_SWEEP_AT %q: want HH:MM", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("STREAK_SWEEP_AT %q: want HH:MM", s)
	}
	return h, m, nil
}
