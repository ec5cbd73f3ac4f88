package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/scholarxp/xp-engine/internal/app/domain/automation"
	"github.com/scholarxp/xp-engine/internal/app/domain/leaderboard"
	"github.com/scholarxp/xp-engine/internal/app/domain/ledger"
	"github.com/scholarxp/xp-engine/internal/app/domain/notification"
	"github.com/scholarxp/xp-engine/internal/app/domain/review"
	"github.com/scholarxp/xp-engine/internal/app/domain/submission"
	"github.com/scholarxp/xp-engine/internal/app/domain/user"
	"github.com/scholarxp/xp-engine/internal/app/domain/week"
	"github.com/scholarxp/xp-engine/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.SubmissionStore = (*Store)(nil)
var _ storage.ReviewStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.FinalizationStore = (*Store)(nil)
var _ storage.AdjustmentStore = (*Store)(nil)
var _ storage.WeeklyStore = (*Store)(nil)
var _ storage.LeaderboardStore = (*Store)(nil)
var _ storage.AutomationLogStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.RateLimitStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = user.RoleMember
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, handle, role, active, total_xp, current_week_xp, streak_weeks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.Handle, u.Role, u.Active, u.TotalXP, u.CurrentWeekXP, u.StreakWeeks, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET handle = $2, role = $3, active = $4, total_xp = $5, current_week_xp = $6, streak_weeks = $7, updated_at = $8
		WHERE id = $1
	`, u.ID, u.Handle, u.Role, u.Active, u.TotalXP, u.CurrentWeekXP, u.StreakWeeks, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, handle, role, active, total_xp, current_week_xp, streak_weeks, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)

	var u user.User
	if err := row.Scan(&u.ID, &u.Handle, &u.Role, &u.Active, &u.TotalXP, &u.CurrentWeekXP, &u.StreakWeeks, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, activeOnly bool) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, handle, role, active, total_xp, current_week_xp, streak_weeks, created_at, updated_at
		FROM users
		WHERE NOT $1 OR active
		ORDER BY created_at
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []user.User
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Handle, &u.Role, &u.Active, &u.TotalXP, &u.CurrentWeekXP, &u.StreakWeeks, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

// --- SubmissionStore --------------------------------------------------------

func (s *Store) CreateSubmission(ctx context.Context, sub submission.Submission) (submission.Submission, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, user_id, title, status, ai_xp, peer_xp, final_xp, week_number, created_at, updated_at, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sub.ID, sub.UserID, sub.Title, sub.Status, sub.AIXP, sub.PeerXP, sub.FinalXP, sub.WeekNumber, sub.CreatedAt, sub.UpdatedAt, toNullTime(sub.FinalizedAt))
	if err != nil {
		return submission.Submission{}, err
	}
	return sub, nil
}

func (s *Store) UpdateSubmission(ctx context.Context, sub submission.Submission) (submission.Submission, error) {
	existing, err := s.GetSubmission(ctx, sub.ID)
	if err != nil {
		return submission.Submission{}, err
	}
	sub.UserID = existing.UserID
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET title = $2, status = $3, ai_xp = $4, peer_xp = $5, final_xp = $6, week_number = $7, updated_at = $8, finalized_at = $9
		WHERE id = $1
	`, sub.ID, sub.Title, sub.Status, sub.AIXP, sub.PeerXP, sub.FinalXP, sub.WeekNumber, sub.UpdatedAt, toNullTime(sub.FinalizedAt))
	if err != nil {
		return submission.Submission{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return submission.Submission{}, sql.ErrNoRows
	}
	return sub, nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (submission.Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, status, ai_xp, peer_xp, final_xp, week_number, created_at, updated_at, finalized_at
		FROM submissions
		WHERE id = $1
	`, id)
	return scanSubmission(row)
}

func (s *Store) ListSubmissions(ctx context.Context, userID string) ([]submission.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, status, ai_xp, peer_xp, final_xp, week_number, created_at, updated_at, finalized_at
		FROM submissions
		WHERE $1 = '' OR user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

func (s *Store) ListReadyForFinalization(ctx context.Context, quorum int) ([]submission.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.title, s.status, s.ai_xp, s.peer_xp, s.final_xp, s.week_number, s.created_at, s.updated_at, s.finalized_at
		FROM submissions s
		WHERE s.status = $1
		  AND (SELECT COUNT(*) FROM peer_reviews r WHERE r.submission_id = s.id AND NOT r.superseded) >= $2
		ORDER BY s.created_at
	`, submission.StatusUnderPeerReview, quorum)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubmissions(rows)
}

func (s *Store) CountFinalizedInWeek(ctx context.Context, userID string, weekNumber int) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM submissions
		WHERE user_id = $1 AND status = $2 AND week_number = $3
	`, userID, submission.StatusFinalized, weekNumber)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (submission.Submission, error) {
	var (
		sub         submission.Submission
		finalizedAt sql.NullTime
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.Title, &sub.Status, &sub.AIXP, &sub.PeerXP, &sub.FinalXP, &sub.WeekNumber, &sub.CreatedAt, &sub.UpdatedAt, &finalizedAt); err != nil {
		return submission.Submission{}, err
	}
	if finalizedAt.Valid {
		sub.FinalizedAt = finalizedAt.Time.UTC()
	}
	return sub, nil
}

func collectSubmissions(rows *sql.Rows) ([]submission.Submission, error) {
	var result []submission.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

// --- ReviewStore ------------------------------------------------------------

func (s *Store) CreateReview(ctx context.Context, rev review.Review) (review.Review, error) {
	if rev.ID == "" {
		rev.ID = uuid.NewString()
	}
	rev.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return review.Review{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE peer_reviews
		SET superseded = TRUE
		WHERE submission_id = $1 AND reviewer_id = $2 AND NOT superseded
	`, rev.SubmissionID, rev.ReviewerID)
	if err != nil {
		return review.Review{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO peer_reviews (id, submission_id, reviewer_id, score, comments, superseded, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`, rev.ID, rev.SubmissionID, rev.ReviewerID, rev.Score, rev.Comments, rev.CreatedAt)
	if err != nil {
		return review.Review{}, err
	}

	if err := tx.Commit(); err != nil {
		return review.Review{}, err
	}
	return rev, nil
}

func (s *Store) ListReviews(ctx context.Context, submissionID string) ([]review.Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, submission_id, reviewer_id, score, comments, superseded, created_at
		FROM peer_reviews
		WHERE submission_id = $1 AND NOT superseded
		ORDER BY created_at
	`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []review.Review
	for rows.Next() {
		var rev review.Review
		if err := rows.Scan(&rev.ID, &rev.SubmissionID, &rev.ReviewerID, &rev.Score, &rev.Comments, &rev.Superseded, &rev.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, rev)
	}
	return result, rows.Err()
}

func (s *Store) CreateAssignment(ctx context.Context, a review.Assignment) (review.Assignment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = review.AssignmentPending
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_assignments (id, submission_id, reviewer_id, status, deadline, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.SubmissionID, a.ReviewerID, a.Status, a.Deadline, a.CreatedAt, toNullTime(a.CompletedAt))
	if err != nil {
		return review.Assignment{}, err
	}
	return a, nil
}

func (s *Store) UpdateAssignment(ctx context.Context, a review.Assignment) (review.Assignment, error) {
	existing, err := s.GetAssignment(ctx, a.ID)
	if err != nil {
		return review.Assignment{}, err
	}
	a.SubmissionID = existing.SubmissionID
	a.ReviewerID = existing.ReviewerID
	a.CreatedAt = existing.CreatedAt

	result, err := s.db.ExecContext(ctx, `
		UPDATE review_assignments
		SET status = $2, deadline = $3, completed_at = $4
		WHERE id = $1
	`, a.ID, a.Status, a.Deadline, toNullTime(a.CompletedAt))
	if err != nil {
		return review.Assignment{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return review.Assignment{}, sql.ErrNoRows
	}
	return a, nil
}

func (s *Store) GetAssignment(ctx context.Context, id string) (review.Assignment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, submission_id, reviewer_id, status, deadline, created_at, completed_at
		FROM review_assignments
		WHERE id = $1
	`, id)

	var (
		a           review.Assignment
		completedAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.SubmissionID, &a.ReviewerID, &a.Status, &a.Deadline, &a.CreatedAt, &completedAt); err != nil {
		return review.Assignment{}, err
	}
	if completedAt.Valid {
		a.CompletedAt = completedAt.Time.UTC()
	}
	return a, nil
}

func (s *Store) ListAssignments(ctx context.Context, submissionID string) ([]review.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, submission_id, reviewer_id, status, deadline, created_at, completed_at
		FROM review_assignments
		WHERE submission_id = $1
		ORDER BY created_at
	`, submissionID)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

func (s *Store) ListOverdueAssignments(ctx context.Context, asOf time.Time) ([]review.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, submission_id, reviewer_id, status, deadline, created_at, completed_at
		FROM review_assignments
		WHERE status = $1 AND deadline < $2
		ORDER BY deadline
	`, review.AssignmentPending, asOf.UTC())
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

func collectAssignments(rows *sql.Rows) ([]review.Assignment, error) {
	defer rows.Close()

	var result []review.Assignment
	for rows.Next() {
		var (
			a           review.Assignment
			completedAt sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.ReviewerID, &a.Status, &a.Deadline, &a.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			a.CompletedAt = completedAt.Time.UTC()
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) CountCompletedInWeek(ctx context.Context, reviewerID string, weekNumber int) (int, error) {
	start := week.Start(weekNumber)
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM review_assignments
		WHERE reviewer_id = $1 AND status = $2 AND completed_at >= $3 AND completed_at < $4
	`, reviewerID, review.AssignmentCompleted, start, start.AddDate(0, 0, 7))

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// --- LedgerStore ------------------------------------------------------------

func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO xp_transactions (id, user_id, amount, type, source_id, week_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.UserID, e.Amount, e.Type, e.SourceID, e.WeekNumber, e.CreatedAt)
	if err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func (s *Store) ListEntries(ctx context.Context, userID string) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, type, source_id, week_number, created_at
		FROM xp_transactions
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Type, &e.SourceID, &e.WeekNumber, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) SumEntries(ctx context.Context, userID string) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM xp_transactions WHERE user_id = $1
	`, userID)

	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

func (s *Store) SumEntriesForWeek(ctx context.Context, userID string, weekNumber int) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM xp_transactions WHERE user_id = $1 AND week_number = $2
	`, userID, weekNumber)

	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

// --- FinalizationStore ------------------------------------------------------

// ApplyFinalization commits the submission update, the ledger append and the
// balance bump in one transaction. A zero-amount entry updates only the
// submission row (re-finalization with an unchanged score).
func (s *Store) ApplyFinalization(ctx context.Context, sub submission.Submission, entry ledger.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE submissions
		SET status = $2, peer_xp = $3, final_xp = $4, updated_at = $5, finalized_at = $6
		WHERE id = $1
	`, sub.ID, sub.Status, sub.PeerXP, sub.FinalXP, time.Now().UTC(), toNullTime(sub.FinalizedAt))
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}

	if entry.Amount != 0 {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO xp_transactions (id, user_id, amount, type, source_id, week_number, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, entry.ID, entry.UserID, entry.Amount, entry.Type, entry.SourceID, entry.WeekNumber, entry.CreatedAt)
		if err != nil {
			return err
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE users
			SET total_xp = total_xp + $2, current_week_xp = current_week_xp + $2, updated_at = $3
			WHERE id = $1
		`, entry.UserID, entry.Amount, time.Now().UTC())
		if err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return sql.ErrNoRows
		}
	}

	return tx.Commit()
}

// --- AdjustmentStore --------------------------------------------------------

func (s *Store) ApplyAdjustment(ctx context.Context, entry ledger.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO xp_transactions (id, user_id, amount, type, source_id, week_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.UserID, entry.Amount, entry.Type, entry.SourceID, entry.WeekNumber, entry.CreatedAt)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE users SET total_xp = total_xp + $2, updated_at = $3 WHERE id = $1
	`, entry.UserID, entry.Amount, time.Now().UTC())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}

// --- WeeklyStore ------------------------------------------------------------

// ApplyWeeklyAward relies on the unique (user_id, week_number, type) index on
// weekly entry types: the insert lands at most once per week, and the balance
// bump only runs when it does.
func (s *Store) ApplyWeeklyAward(ctx context.Context, entry ledger.Entry, streakWeeks int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	result, err := tx.ExecContext(ctx, `
		INSERT INTO xp_transactions (id, user_id, amount, type, source_id, week_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, week_number, type) WHERE type IN ('weekly-streak', 'weekly-penalty') DO NOTHING
	`, entry.ID, entry.UserID, entry.Amount, entry.Type, entry.SourceID, entry.WeekNumber, entry.CreatedAt)
	if err != nil {
		return false, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return false, tx.Commit()
	}

	if streakWeeks >= 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE users SET total_xp = total_xp + $2, streak_weeks = $3, updated_at = $4 WHERE id = $1
		`, entry.UserID, entry.Amount, streakWeeks, time.Now().UTC())
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE users SET total_xp = total_xp + $2, updated_at = $3 WHERE id = $1
		`, entry.UserID, entry.Amount, time.Now().UTC())
	}
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (s *Store) ResetStreak(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET streak_weeks = 0, updated_at = $2 WHERE id = $1
	`, userID, time.Now().UTC())
	return err
}

func (s *Store) ResetCurrentWeekXP(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET current_week_xp = 0, updated_at = $2 WHERE id = $1
	`, userID, time.Now().UTC())
	return err
}

// --- LeaderboardStore -------------------------------------------------------

func (s *Store) SaveSnapshot(ctx context.Context, snap leaderboard.Snapshot) (leaderboard.Snapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	snap.GeneratedAt = time.Now().UTC()

	entriesJSON, err := json.Marshal(snap.Entries)
	if err != nil {
		return leaderboard.Snapshot{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leaderboard_snapshots (id, week_number, generated_at, entries)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (week_number) DO UPDATE SET generated_at = EXCLUDED.generated_at, entries = EXCLUDED.entries
	`, snap.ID, snap.WeekNumber, snap.GeneratedAt, entriesJSON)
	if err != nil {
		return leaderboard.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) GetSnapshot(ctx context.Context, weekNumber int) (leaderboard.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, week_number, generated_at, entries
		FROM leaderboard_snapshots
		WHERE week_number = $1
	`, weekNumber)

	var (
		snap       leaderboard.Snapshot
		entriesRaw []byte
	)
	if err := row.Scan(&snap.ID, &snap.WeekNumber, &snap.GeneratedAt, &entriesRaw); err != nil {
		return leaderboard.Snapshot{}, err
	}
	if len(entriesRaw) > 0 {
		_ = json.Unmarshal(entriesRaw, &snap.Entries)
	}
	return snap, nil
}

// --- AutomationLogStore -----------------------------------------------------

func (s *Store) CreateLogEntry(ctx context.Context, e automation.LogEntry) (automation.LogEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_logs (id, job_name, triggered_by, status, result, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.JobName, e.TriggeredBy, e.Status, e.Result, e.Error, e.Duration.Milliseconds(), e.CreatedAt)
	if err != nil {
		return automation.LogEntry{}, err
	}
	return e, nil
}

func (s *Store) ListLogEntries(ctx context.Context, jobName string) ([]automation.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_name, triggered_by, status, result, error, duration_ms, created_at
		FROM automation_logs
		WHERE $1 = '' OR job_name = $1
		ORDER BY created_at DESC
	`, jobName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []automation.LogEntry
	for rows.Next() {
		var (
			e          automation.LogEntry
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &e.JobName, &e.TriggeredBy, &e.Status, &e.Result, &e.Error, &durationMS, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		result = append(result, e)
	}
	return result, rows.Err()
}

// --- NotificationStore ------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, n.ID, n.UserID, n.Kind, n.Body, n.CreatedAt)
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]notification.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, body, created_at
		FROM notifications
		WHERE $1 = '' OR user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []notification.Notification
	for rows.Next() {
		var n notification.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (s *Store) PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE created_at < $1
	`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// --- RateLimitStore ---------------------------------------------------------

func (s *Store) IncrementCounter(ctx context.Context, key string, windowStart time.Time) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO rate_limit_counters (key, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN rate_limit_counters.window_start = EXCLUDED.window_start THEN rate_limit_counters.count + 1 ELSE 1 END,
			window_start = EXCLUDED.window_start
		RETURNING count
	`, key, windowStart.UTC())

	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) PurgeCountersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM rate_limit_counters WHERE window_start < $1
	`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
