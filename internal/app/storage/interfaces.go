package storage

import (
	"context"
	"time"

	"github.com/scholarxp/xp-engine/internal/app/domain/automation"
	"github.com/scholarxp/xp-engine/internal/app/domain/leaderboard"
	"github.com/scholarxp/xp-engine/internal/app/domain/ledger"
	"github.com/scholarxp/xp-engine/internal/app/domain/notification"
	"github.com/scholarxp/xp-engine/internal/app/domain/review"
	"github.com/scholarxp/xp-engine/internal/app/domain/submission"
	"github.com/scholarxp/xp-engine/internal/app/domain/user"
)

// UserStore persists user records.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	ListUsers(ctx context.Context, activeOnly bool) ([]user.User, error)
}

// SubmissionStore persists submissions.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub submission.Submission) (submission.Submission, error)
	UpdateSubmission(ctx context.Context, sub submission.Submission) (submission.Submission, error)
	GetSubmission(ctx context.Context, id string) (submission.Submission, error)
	ListSubmissions(ctx context.Context, userID string) ([]submission.Submission, error)

	// ListReadyForFinalization returns under-peer-review submissions whose
	// count of non-superseded reviews has reached the quorum.
	ListReadyForFinalization(ctx context.Context, quorum int) ([]submission.Submission, error)
	// CountFinalizedInWeek counts a user's submissions finalized in a week.
	CountFinalizedInWeek(ctx context.Context, userID string, weekNumber int) (int, error)
}

// ReviewStore persists peer reviews and review assignments.
type ReviewStore interface {
	// CreateReview stores a review, superseding any earlier live review by
	// the same reviewer for the same submission.
	CreateReview(ctx context.Context, rev review.Review) (review.Review, error)
	// ListReviews returns the non-superseded reviews for a submission.
	ListReviews(ctx context.Context, submissionID string) ([]review.Review, error)

	CreateAssignment(ctx context.Context, a review.Assignment) (review.Assignment, error)
	UpdateAssignment(ctx context.Context, a review.Assignment) (review.Assignment, error)
	GetAssignment(ctx context.Context, id string) (review.Assignment, error)
	// ListAssignments returns every assignment for a submission.
	ListAssignments(ctx context.Context, submissionID string) ([]review.Assignment, error)
	// ListOverdueAssignments returns pending assignments past their deadline.
	ListOverdueAssignments(ctx context.Context, asOf time.Time) ([]review.Assignment, error)
	// CountCompletedInWeek counts assignments a reviewer completed in a week.
	CountCompletedInWeek(ctx context.Context, reviewerID string, weekNumber int) (int, error)
}

// LedgerStore persists the append-only XP transaction log.
type LedgerStore interface {
	AppendEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
	ListEntries(ctx context.Context, userID string) ([]ledger.Entry, error)
	SumEntries(ctx context.Context, userID string) (int64, error)
	// SumEntriesForWeek sums a user's entries tagged with the given week.
	SumEntriesForWeek(ctx context.Context, userID string, weekNumber int) (int64, error)
}

// FinalizationStore applies a submission finalization atomically: the
// submission row update, the ledger append, and the user balance bump
// commit together or not at all.
type FinalizationStore interface {
	ApplyFinalization(ctx context.Context, sub submission.Submission, entry ledger.Entry) error
}

// AdjustmentStore applies an admin XP adjustment atomically: the ledger
// append and the user balance bump commit together.
type AdjustmentStore interface {
	ApplyAdjustment(ctx context.Context, entry ledger.Entry) error
}

// WeeklyStore holds the weekly job's per-user transactional mutations.
// Awards are keyed by (user, week, type); re-running a week skips entries
// that already exist, which is what makes the job idempotent.
type WeeklyStore interface {
	// ApplyWeeklyAward inserts the keyed ledger entry and, only when the
	// insert lands, bumps the user's total XP by the entry amount and sets
	// streakWeeks (negative streakWeeks leaves the counter untouched).
	// Returns false when the entry already existed.
	ApplyWeeklyAward(ctx context.Context, entry ledger.Entry, streakWeeks int) (bool, error)
	// ResetStreak zeroes a user's streak counter.
	ResetStreak(ctx context.Context, userID string) error
	// ResetCurrentWeekXP zeroes a user's current-week counter.
	ResetCurrentWeekXP(ctx context.Context, userID string) error
}

// LeaderboardStore persists weekly snapshots. SaveSnapshot replaces any
// existing snapshot for the week in a single transaction, so readers see
// either the old snapshot or the complete new one.
type LeaderboardStore interface {
	SaveSnapshot(ctx context.Context, snap leaderboard.Snapshot) (leaderboard.Snapshot, error)
	GetSnapshot(ctx context.Context, weekNumber int) (leaderboard.Snapshot, error)
}

// AutomationLogStore persists automation run records.
type AutomationLogStore interface {
	CreateLogEntry(ctx context.Context, e automation.LogEntry) (automation.LogEntry, error)
	ListLogEntries(ctx context.Context, jobName string) ([]automation.LogEntry, error)
}

// NotificationStore persists user notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	ListNotifications(ctx context.Context, userID string) ([]notification.Notification, error)
	PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RateLimitStore persists request counters for the trigger surface.
type RateLimitStore interface {
	IncrementCounter(ctx context.Context, key string, windowStart time.Time) (int64, error)
	PurgeCountersBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AnalyticsStore serves the read-side aggregate queries.
type AnalyticsStore interface {
	// CurrentStandings ranks active users by current-week XP.
	CurrentStandings(ctx context.Context, limit int) ([]leaderboard.Standing, error)
	// LedgerTotals returns the per-user sum over the whole ledger.
	LedgerTotals(ctx context.Context) (map[string]int64, error)
}
