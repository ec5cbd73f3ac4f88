package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

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

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu             sync.RWMutex
	nextID         int64
	users          map[string]user.User
	submissions    map[string]submission.Submission
	reviews        map[string][]review.Review
	assignments    map[string]review.Assignment
	entries        map[string][]ledger.Entry
	weeklyKeys     map[string]bool
	snapshots      map[int]leaderboard.Snapshot
	automationLogs []automation.LogEntry
	notifications  map[string]notification.Notification
	counters       map[string]counter
}

type counter struct {
	windowStart time.Time
	count       int64
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
var _ storage.AnalyticsStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		users:         make(map[string]user.User),
		submissions:   make(map[string]submission.Submission),
		reviews:       make(map[string][]review.Review),
		assignments:   make(map[string]review.Assignment),
		entries:       make(map[string][]ledger.Entry),
		weeklyKeys:    make(map[string]bool),
		snapshots:     make(map[int]leaderboard.Snapshot),
		notifications: make(map[string]notification.Notification),
		counters:      make(map[string]counter),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func weeklyKey(userID string, weekNumber int, typ ledger.EntryType) string {
	return fmt.Sprintf("%s/%d/%s", userID, weekNumber, typ)
}

// UserStore implementation ----------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = s.nextIDLocked()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, fmt.Errorf("user %s already exists", u.ID)
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, fmt.Errorf("user %s not found", u.ID)
	}
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, fmt.Errorf("user %s not found", id)
	}
	return u, nil
}

func (s *Store) ListUsers(_ context.Context, activeOnly bool) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []user.User
	for _, u := range s.users {
		if activeOnly && !u.Active {
			continue
		}
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// SubmissionStore implementation ----------------------------------------------

func (s *Store) CreateSubmission(_ context.Context, sub submission.Submission) (submission.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = s.nextIDLocked()
	} else if _, exists := s.submissions[sub.ID]; exists {
		return submission.Submission{}, fmt.Errorf("submission %s already exists", sub.ID)
	}

	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	s.submissions[sub.ID] = sub
	return sub, nil
}

func (s *Store) UpdateSubmission(_ context.Context, sub submission.Submission) (submission.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.submissions[sub.ID]
	if !ok {
		return submission.Submission{}, fmt.Errorf("submission %s not found", sub.ID)
	}
	sub.CreatedAt = original.CreatedAt
	sub.UpdatedAt = time.Now().UTC()
	s.submissions[sub.ID] = sub
	return sub, nil
}

func (s *Store) GetSubmission(_ context.Context, id string) (submission.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.submissions[id]
	if !ok {
		return submission.Submission{}, fmt.Errorf("submission %s not found", id)
	}
	return sub, nil
}

func (s *Store) ListSubmissions(_ context.Context, userID string) ([]submission.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []submission.Submission
	for _, sub := range s.submissions {
		if userID == "" || sub.UserID == userID {
			result = append(result, sub)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) ListReadyForFinalization(_ context.Context, quorum int) ([]submission.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []submission.Submission
	for _, sub := range s.submissions {
		if sub.Status != submission.StatusUnderPeerReview {
			continue
		}
		live := 0
		for _, rev := range s.reviews[sub.ID] {
			if !rev.Superseded {
				live++
			}
		}
		if live >= quorum {
			result = append(result, sub)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) CountFinalizedInWeek(_ context.Context, userID string, weekNumber int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sub := range s.submissions {
		if sub.UserID == userID && sub.Status == submission.StatusFinalized && sub.WeekNumber == weekNumber {
			count++
		}
	}
	return count, nil
}

// ReviewStore implementation --------------------------------------------------

func (s *Store) CreateReview(_ context.Context, rev review.Review) (review.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rev.ID == "" {
		rev.ID = s.nextIDLocked()
	}
	rev.CreatedAt = time.Now().UTC()

	existing := s.reviews[rev.SubmissionID]
	for i := range existing {
		if existing[i].ReviewerID == rev.ReviewerID && !existing[i].Superseded {
			existing[i].Superseded = true
		}
	}
	s.reviews[rev.SubmissionID] = append(existing, rev)
	return rev, nil
}

func (s *Store) ListReviews(_ context.Context, submissionID string) ([]review.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []review.Review
	for _, rev := range s.reviews[submissionID] {
		if !rev.Superseded {
			result = append(result, rev)
		}
	}
	return result, nil
}

func (s *Store) CreateAssignment(_ context.Context, a review.Assignment) (review.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = s.nextIDLocked()
	} else if _, exists := s.assignments[a.ID]; exists {
		return review.Assignment{}, fmt.Errorf("assignment %s already exists", a.ID)
	}
	a.CreatedAt = time.Now().UTC()
	if a.Status == "" {
		a.Status = review.AssignmentPending
	}
	s.assignments[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAssignment(_ context.Context, a review.Assignment) (review.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.assignments[a.ID]
	if !ok {
		return review.Assignment{}, fmt.Errorf("assignment %s not found", a.ID)
	}
	a.CreatedAt = original.CreatedAt
	s.assignments[a.ID] = a
	return a, nil
}

func (s *Store) GetAssignment(_ context.Context, id string) (review.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[id]
	if !ok {
		return review.Assignment{}, fmt.Errorf("assignment %s not found", id)
	}
	return a, nil
}

func (s *Store) ListAssignments(_ context.Context, submissionID string) ([]review.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []review.Assignment
	for _, a := range s.assignments {
		if a.SubmissionID == submissionID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) ListOverdueAssignments(_ context.Context, asOf time.Time) ([]review.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []review.Assignment
	for _, a := range s.assignments {
		if a.Overdue(asOf) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) CountCompletedInWeek(_ context.Context, reviewerID string, weekNumber int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, a := range s.assignments {
		if a.ReviewerID != reviewerID || a.Status != review.AssignmentCompleted {
			continue
		}
		if week.Of(a.CompletedAt) == weekNumber {
			count++
		}
	}
	return count, nil
}

// LedgerStore implementation --------------------------------------------------

func (s *Store) AppendEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendEntryLocked(e)
}

func (s *Store) appendEntryLocked(e ledger.Entry) (ledger.Entry, error) {
	if e.ID == "" {
		e.ID = s.nextIDLocked()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.entries[e.UserID] = append(s.entries[e.UserID], e)
	return e, nil
}

func (s *Store) ListEntries(_ context.Context, userID string) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ledger.Entry, len(s.entries[userID]))
	copy(result, s.entries[userID])
	return result, nil
}

func (s *Store) SumEntries(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, e := range s.entries[userID] {
		sum += e.Amount
	}
	return sum, nil
}

func (s *Store) SumEntriesForWeek(_ context.Context, userID string, weekNumber int) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, e := range s.entries[userID] {
		if e.WeekNumber == weekNumber {
			sum += e.Amount
		}
	}
	return sum, nil
}

// FinalizationStore implementation --------------------------------------------

func (s *Store) ApplyFinalization(_ context.Context, sub submission.Submission, entry ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.submissions[sub.ID]
	if !ok {
		return fmt.Errorf("submission %s not found", sub.ID)
	}
	u, ok := s.users[entry.UserID]
	if !ok {
		return fmt.Errorf("user %s not found", entry.UserID)
	}

	sub.CreatedAt = original.CreatedAt
	sub.UpdatedAt = time.Now().UTC()
	s.submissions[sub.ID] = sub

	if entry.Amount != 0 {
		if _, err := s.appendEntryLocked(entry); err != nil {
			return err
		}
		u.TotalXP += entry.Amount
		u.CurrentWeekXP += entry.Amount
		u.UpdatedAt = time.Now().UTC()
		s.users[u.ID] = u
	}
	return nil
}

// AdjustmentStore implementation ----------------------------------------------

func (s *Store) ApplyAdjustment(_ context.Context, entry ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[entry.UserID]
	if !ok {
		return fmt.Errorf("user %s not found", entry.UserID)
	}
	if _, err := s.appendEntryLocked(entry); err != nil {
		return err
	}
	u.TotalXP += entry.Amount
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return nil
}

// WeeklyStore implementation --------------------------------------------------

func (s *Store) ApplyWeeklyAward(_ context.Context, entry ledger.Entry, streakWeeks int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := weeklyKey(entry.UserID, entry.WeekNumber, entry.Type)
	if s.weeklyKeys[key] {
		return false, nil
	}
	u, ok := s.users[entry.UserID]
	if !ok {
		return false, fmt.Errorf("user %s not found", entry.UserID)
	}
	if _, err := s.appendEntryLocked(entry); err != nil {
		return false, err
	}
	s.weeklyKeys[key] = true
	u.TotalXP += entry.Amount
	if streakWeeks >= 0 {
		u.StreakWeeks = streakWeeks
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return true, nil
}

func (s *Store) ResetStreak(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s not found", userID)
	}
	u.StreakWeeks = 0
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) ResetCurrentWeekXP(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s not found", userID)
	}
	u.CurrentWeekXP = 0
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

// LeaderboardStore implementation ---------------------------------------------

func (s *Store) SaveSnapshot(_ context.Context, snap leaderboard.Snapshot) (leaderboard.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.ID == "" {
		snap.ID = s.nextIDLocked()
	}
	snap.GeneratedAt = time.Now().UTC()
	entries := make([]leaderboard.Standing, len(snap.Entries))
	copy(entries, snap.Entries)
	snap.Entries = entries
	s.snapshots[snap.WeekNumber] = snap
	return snap, nil
}

func (s *Store) GetSnapshot(_ context.Context, weekNumber int) (leaderboard.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[weekNumber]
	if !ok {
		return leaderboard.Snapshot{}, fmt.Errorf("snapshot for week %d not found", weekNumber)
	}
	return snap, nil
}

// AutomationLogStore implementation -------------------------------------------

func (s *Store) CreateLogEntry(_ context.Context, e automation.LogEntry) (automation.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = s.nextIDLocked()
	}
	e.CreatedAt = time.Now().UTC()
	s.automationLogs = append(s.automationLogs, e)
	return e, nil
}

func (s *Store) ListLogEntries(_ context.Context, jobName string) ([]automation.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []automation.LogEntry
	for _, e := range s.automationLogs {
		if jobName == "" || e.JobName == jobName {
			result = append(result, e)
		}
	}
	return result, nil
}

// NotificationStore implementation --------------------------------------------

func (s *Store) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = s.nextIDLocked()
	}
	n.CreatedAt = time.Now().UTC()
	s.notifications[n.ID] = n
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []notification.Notification
	for _, n := range s.notifications {
		if userID == "" || n.UserID == userID {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) PurgeNotificationsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, n := range s.notifications {
		if n.CreatedAt.Before(cutoff) {
			delete(s.notifications, id)
			purged++
		}
	}
	return purged, nil
}

// RateLimitStore implementation -----------------------------------------------

func (s *Store) IncrementCounter(_ context.Context, key string, windowStart time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.counters[key]
	if !c.windowStart.Equal(windowStart) {
		c = counter{windowStart: windowStart}
	}
	c.count++
	s.counters[key] = c
	return c.count, nil
}

func (s *Store) PurgeCountersBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for key, c := range s.counters {
		if c.windowStart.Before(cutoff) {
			delete(s.counters, key)
			purged++
		}
	}
	return purged, nil
}

// AnalyticsStore implementation -----------------------------------------------

func (s *Store) CurrentStandings(_ context.Context, limit int) ([]leaderboard.Standing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var standings []leaderboard.Standing
	for _, u := range s.users {
		if !u.Active {
			continue
		}
		standings = append(standings, leaderboard.Standing{
			UserID:  u.ID,
			Handle:  u.Handle,
			WeekXP:  u.CurrentWeekXP,
			TotalXP: u.TotalXP,
		})
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].WeekXP != standings[j].WeekXP {
			return standings[i].WeekXP > standings[j].WeekXP
		}
		return standings[i].UserID < standings[j].UserID
	})
	if limit > 0 && len(standings) > limit {
		standings = standings[:limit]
	}
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings, nil
}

func (s *Store) LedgerTotals(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]int64, len(s.entries))
	for userID, entries := range s.entries {
		var sum int64
		for _, e := range entries {
			sum += e.Amount
		}
		totals[userID] = sum
	}
	return totals, nil
}
