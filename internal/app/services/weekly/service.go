// Package weekly implements the week-close batch job: streak bonuses,
// missed-review penalties, the current-week counter reset, the leaderboard
// snapshot and retention housekeeping. The job is idempotent per week:
// bonus and penalty ledger entries are keyed by (user, week, type), so a
// re-run skips whatever the first run already applied.
package weekly

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/scholarxp/xp-engine/internal/app/cache"
	"github.com/scholarxp/xp-engine/internal/app/domain/leaderboard"
	"github.com/scholarxp/xp-engine/internal/app/domain/ledger"
	"github.com/scholarxp/xp-engine/internal/app/domain/notification"
	"github.com/scholarxp/xp-engine/internal/app/domain/user"
	"github.com/scholarxp/xp-engine/internal/app/domain/week"
	"github.com/scholarxp/xp-engine/internal/app/metrics"
	"github.com/scholarxp/xp-engine/internal/app/storage"
	"github.com/scholarxp/xp-engine/pkg/logger"
)

// Store bundles the persistence the weekly job needs.
type Store interface {
	storage.UserStore
	storage.SubmissionStore
	storage.ReviewStore
	storage.LedgerStore
	storage.WeeklyStore
	storage.LeaderboardStore
	storage.NotificationStore
	storage.RateLimitStore
}

// Config carries the tunable policy knobs.
type Config struct {
	StreakBaseBonus       int64
	StreakBonusCap        int64
	PenaltyAmount         int64
	ActivityThreshold     int
	NotificationRetention time.Duration
	RateLimitRetention    time.Duration
}

// Result summarises one weekly reset run.
type Result struct {
	WeekNumber              int   `json:"week_number"`
	UsersProcessed          int   `json:"users_processed"`
	StreaksAwarded          int   `json:"streaks_awarded"`
	PenaltiesApplied        int   `json:"penalties_applied"`
	OverdueReviews          int   `json:"overdue_reviews"`
	LeaderboardGenerated    bool  `json:"leaderboard_generated"`
	RateLimitRecordsCleaned int64 `json:"rate_limit_records_cleaned"`
	NotificationsCleaned    int64 `json:"notifications_cleaned"`
}

// Summary renders the run for humans.
func (r Result) Summary() string {
	return fmt.Sprintf("Processed %d users for week %d, awarded %d streaks, applied %d penalties, %d reviews overdue",
		r.UsersProcessed, r.WeekNumber, r.StreaksAwarded, r.PenaltiesApplied, r.OverdueReviews)
}

// Service runs the weekly reset.
type Service struct {
	store       Store
	invalidator cache.Invalidator
	cfg         Config
	log         *logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates the weekly job service.
func New(store Store, invalidator cache.Invalidator, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("weekly")
	}
	if cfg.StreakBaseBonus <= 0 {
		cfg.StreakBaseBonus = 10
	}
	if cfg.StreakBonusCap <= 0 {
		cfg.StreakBonusCap = 100
	}
	if cfg.PenaltyAmount <= 0 {
		cfg.PenaltyAmount = 25
	}
	if cfg.ActivityThreshold <= 0 {
		cfg.ActivityThreshold = 1
	}
	return &Service{
		store:       store,
		invalidator: invalidator,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// ProcessWeeklyReset closes out the most recently completed week. Each
// user's mutations commit in their own transaction; a failure for one user
// is logged and the batch continues. The current-week counter reset runs
// strictly after that user's streak and penalty steps, because the closing
// balance feeds those calculations.
func (s *Service) ProcessWeeklyReset(ctx context.Context) (Result, error) {
	now := s.now().UTC()
	closing := week.Of(now) - 1
	if closing < 1 {
		closing = 1
	}
	result := Result{WeekNumber: closing}

	users, err := s.store.ListUsers(ctx, true)
	if err != nil {
		return result, fmt.Errorf("list active users: %w", err)
	}

	// The missed-review sweep runs as part of the same trigger: its count
	// is part of the run report and its assignments feed the penalties.
	result.OverdueReviews, err = s.CheckMissedReviews(ctx)
	if err != nil {
		return result, fmt.Errorf("check missed reviews: %w", err)
	}

	overdueByReviewer, err := s.overdueByReviewer(ctx, now)
	if err != nil {
		return result, fmt.Errorf("collect overdue assignments: %w", err)
	}

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("week %d aborted after %d users: %w", closing, result.UsersProcessed, err)
		}
		awarded, penalized, err := s.processUser(ctx, u, closing, overdueByReviewer[u.ID])
		if err != nil {
			s.log.WithError(err).WithField("user_id", u.ID).Error("weekly processing failed for user")
			continue
		}
		result.UsersProcessed++
		if awarded {
			result.StreaksAwarded++
		}
		if penalized {
			result.PenaltiesApplied++
		}
	}

	if err := s.generateSnapshot(ctx, closing); err != nil {
		s.log.WithError(err).WithField("week", closing).Error("leaderboard snapshot failed")
	} else {
		result.LeaderboardGenerated = true
	}

	// Housekeeping is best-effort: a failure here never fails the run.
	result.NotificationsCleaned = s.purgeNotifications(ctx, now)
	result.RateLimitRecordsCleaned = s.purgeRateLimits(ctx, now)

	if s.invalidator != nil {
		inv := s.invalidator.Invalidate(ctx, cache.ScopeAnalytics, cache.ScopeLeaderboard, "admin:")
		metrics.RecordCacheInvalidation(inv.OK())
		if !inv.OK() {
			s.log.WithField("warnings", inv.Warnings).Warn("cache invalidation incomplete")
		}
	}

	s.log.WithField("week", closing).
		WithField("users", result.UsersProcessed).
		WithField("streaks", result.StreaksAwarded).
		WithField("penalties", result.PenaltiesApplied).
		Info("weekly reset complete")
	return result, nil
}

// CheckMissedReviews returns the number of assignments currently overdue.
func (s *Service) CheckMissedReviews(ctx context.Context) (int, error) {
	overdue, err := s.store.ListOverdueAssignments(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("list overdue assignments: %w", err)
	}
	return len(overdue), nil
}

func (s *Service) overdueByReviewer(ctx context.Context, asOf time.Time) (map[string][]string, error) {
	overdue, err := s.store.ListOverdueAssignments(ctx, asOf)
	if err != nil {
		return nil, err
	}
	byReviewer := make(map[string][]string)
	for _, a := range overdue {
		byReviewer[a.ReviewerID] = append(byReviewer[a.ReviewerID], a.ID)
	}
	return byReviewer, nil
}

func (s *Service) processUser(ctx context.Context, u user.User, closing int, overdue []string) (awarded, penalized bool, err error) {
	active, err := s.metActivityThreshold(ctx, u.ID, closing)
	if err != nil {
		return false, false, err
	}

	if active {
		newStreak := u.StreakWeeks + 1
		bonus := s.cfg.StreakBaseBonus * int64(newStreak)
		if bonus > s.cfg.StreakBonusCap {
			bonus = s.cfg.StreakBonusCap
		}
		applied, err := s.store.ApplyWeeklyAward(ctx, ledger.Entry{
			UserID:     u.ID,
			Amount:     bonus,
			Type:       ledger.TypeWeeklyStreak,
			WeekNumber: closing,
		}, newStreak)
		if err != nil {
			return false, false, fmt.Errorf("apply streak: %w", err)
		}
		if applied {
			awarded = true
			s.notify(ctx, u.ID, notification.KindStreakAwarded,
				fmt.Sprintf("Week %d streak: %d weeks, +%d XP", closing, newStreak, bonus))
		}
	} else {
		if err := s.store.ResetStreak(ctx, u.ID); err != nil {
			return false, false, fmt.Errorf("reset streak: %w", err)
		}
	}

	if len(overdue) > 0 {
		applied, err := s.store.ApplyWeeklyAward(ctx, ledger.Entry{
			UserID:     u.ID,
			Amount:     -s.cfg.PenaltyAmount,
			Type:       ledger.TypeWeeklyPenalty,
			SourceID:   overdue[0],
			WeekNumber: closing,
		}, -1)
		if err != nil {
			return awarded, false, fmt.Errorf("apply penalty: %w", err)
		}
		if applied {
			penalized = true
			s.notify(ctx, u.ID, notification.KindPenaltyApplied,
				fmt.Sprintf("Missed %d review assignment(s): -%d XP", len(overdue), s.cfg.PenaltyAmount))
		}
	}

	// Must run after the streak and penalty steps: the closing week's
	// balance is an input to them.
	if err := s.store.ResetCurrentWeekXP(ctx, u.ID); err != nil {
		return awarded, penalized, fmt.Errorf("reset current week xp: %w", err)
	}
	return awarded, penalized, nil
}

func (s *Service) metActivityThreshold(ctx context.Context, userID string, closing int) (bool, error) {
	finalized, err := s.store.CountFinalizedInWeek(ctx, userID, closing)
	if err != nil {
		return false, fmt.Errorf("count finalized: %w", err)
	}
	if finalized >= s.cfg.ActivityThreshold {
		return true, nil
	}
	completed, err := s.store.CountCompletedInWeek(ctx, userID, closing)
	if err != nil {
		return false, fmt.Errorf("count completed reviews: %w", err)
	}
	return finalized+completed >= s.cfg.ActivityThreshold, nil
}

// generateSnapshot ranks the closing week from the ledger and writes the
// snapshot in one transaction, so historical readers never observe a
// half-written week.
func (s *Service) generateSnapshot(ctx context.Context, closing int) error {
	users, err := s.store.ListUsers(ctx, true)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var standings []leaderboard.Standing
	for _, u := range users {
		weekXP, err := s.store.SumEntriesForWeek(ctx, u.ID, closing)
		if err != nil {
			return fmt.Errorf("sum week entries for %s: %w", u.ID, err)
		}
		standings = append(standings, leaderboard.Standing{
			UserID:  u.ID,
			Handle:  u.Handle,
			WeekXP:  weekXP,
			TotalXP: u.TotalXP,
		})
	}

	sortStandings(standings)
	for i := range standings {
		standings[i].Rank = i + 1
	}

	_, err = s.store.SaveSnapshot(ctx, leaderboard.Snapshot{
		WeekNumber: closing,
		Entries:    standings,
	})
	return err
}

func (s *Service) purgeNotifications(ctx context.Context, now time.Time) int64 {
	cleaned, err := s.store.PurgeNotificationsBefore(ctx, now.Add(-s.cfg.NotificationRetention))
	if err != nil {
		s.log.WithError(err).Warn("notification purge failed")
		return 0
	}
	return cleaned
}

func (s *Service) purgeRateLimits(ctx context.Context, now time.Time) int64 {
	cleaned, err := s.store.PurgeCountersBefore(ctx, now.Add(-s.cfg.RateLimitRetention))
	if err != nil {
		s.log.WithError(err).Warn("rate limit purge failed")
		return 0
	}
	return cleaned
}

func (s *Service) notify(ctx context.Context, userID string, kind notification.Kind, body string) {
	if _, err := s.store.CreateNotification(ctx, notification.Notification{
		UserID: userID,
		Kind:   kind,
		Body:   body,
	}); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("notification write failed")
	}
}

func sortStandings(standings []leaderboard.Standing) {
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].WeekXP != standings[j].WeekXP {
			return standings[i].WeekXP > standings[j].WeekXP
		}
		return standings[i].UserID < standings[j].UserID
	})
}
