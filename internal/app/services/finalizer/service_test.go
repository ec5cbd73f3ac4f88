package finalizer

import (
	"context"
	"errors"
	"testing"

	"github.com/scholarxp/xp-engine/internal/app/domain/ledger"
	"github.com/scholarxp/xp-engine/internal/app/domain/review"
	"github.com/scholarxp/xp-engine/internal/app/domain/submission"
	"github.com/scholarxp/xp-engine/internal/app/domain/user"
	"github.com/scholarxp/xp-engine/internal/app/storage/memory"
)

func seedSubmission(t *testing.T, store *memory.Store, scores ...int64) (user.User, submission.Submission) {
	t.Helper()
	ctx := context.Background()

	author, err := store.CreateUser(ctx, user.User{Handle: "author", Role: user.RoleMember, Active: true, TotalXP: 100})
	if err != nil {
		t.Fatalf("create author: %v", err)
	}
	sub, err := store.CreateSubmission(ctx, submission.Submission{
		UserID: author.ID,
		Title:  "weekly essay",
		Status: submission.StatusUnderPeerReview,
	})
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}
	for i, score := range scores {
		reviewer, err := store.CreateUser(ctx, user.User{Handle: "rev", Role: user.RoleMember, Active: true})
		if err != nil {
			t.Fatalf("create reviewer %d: %v", i, err)
		}
		if _, err := store.CreateReview(ctx, review.Review{
			SubmissionID: sub.ID,
			ReviewerID:   reviewer.ID,
			Score:        score,
		}); err != nil {
			t.Fatalf("create review %d: %v", i, err)
		}
	}
	return author, sub
}

func TestFinalizeAppliesMeanAndDelta(t *testing.T) {
	store := memory.New()
	author, sub := seedSubmission(t, store, 70, 80, 90)

	svc := New(store, nil, nil, 3, nil)
	finalized, err := svc.FinalizeReadySubmissions(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalized != 1 {
		t.Fatalf("finalized = %d, want 1", finalized)
	}

	got, err := store.GetSubmission(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if got.Status != submission.StatusFinalized {
		t.Fatalf("status = %s", got.Status)
	}
	if got.FinalXP != 80 {
		t.Fatalf("final xp = %d, want 80", got.FinalXP)
	}
	if got.FinalizedAt.IsZero() {
		t.Fatal("finalized_at not set")
	}

	u, err := store.GetUser(context.Background(), author.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.TotalXP != 180 {
		t.Fatalf("total xp = %d, want 180", u.TotalXP)
	}
	if u.CurrentWeekXP != 80 {
		t.Fatalf("current week xp = %d, want 80", u.CurrentWeekXP)
	}

	entries, err := store.ListEntries(context.Background(), author.ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != ledger.TypeSubmissionFinalize || entries[0].Amount != 80 {
		t.Fatalf("unexpected ledger entries: %+v", entries)
	}
	if entries[0].SourceID != sub.ID {
		t.Fatalf("ledger entry source = %s, want %s", entries[0].SourceID, sub.ID)
	}

	notifs, err := store.ListNotifications(context.Background(), author.ID)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifs) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifs))
	}
}

func TestFinalizeBelowQuorumDoesNothing(t *testing.T) {
	store := memory.New()
	author, sub := seedSubmission(t, store, 70, 80)

	svc := New(store, nil, nil, 3, nil)
	finalized, err := svc.FinalizeReadySubmissions(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalized != 0 {
		t.Fatalf("finalized = %d, want 0", finalized)
	}

	got, _ := store.GetSubmission(context.Background(), sub.ID)
	if got.Status != submission.StatusUnderPeerReview {
		t.Fatalf("status changed to %s", got.Status)
	}
	u, _ := store.GetUser(context.Background(), author.ID)
	if u.TotalXP != 100 {
		t.Fatalf("total xp moved to %d", u.TotalXP)
	}
}

func TestFinalizeRerunIsNoOp(t *testing.T) {
	store := memory.New()
	author, _ := seedSubmission(t, store, 60, 60, 60)

	svc := New(store, nil, nil, 3, nil)
	if _, err := svc.FinalizeReadySubmissions(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	finalized, err := svc.FinalizeReadySubmissions(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if finalized != 0 {
		t.Fatalf("second run finalized %d", finalized)
	}

	u, _ := store.GetUser(context.Background(), author.ID)
	if u.TotalXP != 160 {
		t.Fatalf("total xp = %d after rerun, want 160", u.TotalXP)
	}
	entries, _ := store.ListEntries(context.Background(), author.ID)
	if len(entries) != 1 {
		t.Fatalf("rerun appended entries: %d", len(entries))
	}
}

// failingFinalizations wraps the memory store and fails ApplyFinalization
// for one submission id.
type failingFinalizations struct {
	*memory.Store
	failID string
}

func (f *failingFinalizations) ApplyFinalization(ctx context.Context, sub submission.Submission, entry ledger.Entry) error {
	if sub.ID == f.failID {
		return errors.New("injected storage failure")
	}
	return f.Store.ApplyFinalization(ctx, sub, entry)
}

func TestFinalizePartialFailureIsolated(t *testing.T) {
	store := memory.New()
	authorA, subA := seedSubmission(t, store, 50, 50, 50)
	authorB, subB := seedSubmission(t, store, 90, 90, 90)

	svc := New(&failingFinalizations{Store: store, failID: subA.ID}, nil, nil, 3, nil)
	finalized, err := svc.FinalizeReadySubmissions(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if finalized != 1 {
		t.Fatalf("finalized = %d, want 1", finalized)
	}

	gotA, _ := store.GetSubmission(context.Background(), subA.ID)
	if gotA.Status != submission.StatusUnderPeerReview {
		t.Fatalf("failed submission should stay ready, got %s", gotA.Status)
	}
	uA, _ := store.GetUser(context.Background(), authorA.ID)
	if uA.TotalXP != 100 {
		t.Fatalf("failed submission moved balance: %d", uA.TotalXP)
	}

	gotB, _ := store.GetSubmission(context.Background(), subB.ID)
	if gotB.Status != submission.StatusFinalized {
		t.Fatalf("healthy submission not finalized: %s", gotB.Status)
	}
	uB, _ := store.GetUser(context.Background(), authorB.ID)
	if uB.TotalXP != 190 {
		t.Fatalf("healthy submission balance = %d, want 190", uB.TotalXP)
	}

	// The failed row is retried on the next run.
	svc = New(store, nil, nil, 3, nil)
	finalized, err = svc.FinalizeReadySubmissions(context.Background())
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if finalized != 1 {
		t.Fatalf("retry finalized = %d, want 1", finalized)
	}
}

func TestMeanScoringRounding(t *testing.T) {
	mk := func(scores ...int64) []review.Review {
		revs := make([]review.Review, len(scores))
		for i, sc := range scores {
			revs[i].Score = sc
		}
		return revs
	}

	cases := []struct {
		scores []int64
		want   int64
	}{
		{nil, 0},
		{[]int64{10}, 10},
		{[]int64{10, 11}, 11},
		{[]int64{70, 80, 90}, 80},
		{[]int64{1, 2}, 2},
		{[]int64{-1, -2}, -2},
	}
	for _, tc := range cases {
		if got := (MeanScoring{}).Score(mk(tc.scores...)); got != tc.want {
			t.Errorf("mean%v = %d, want %d", tc.scores, got, tc.want)
		}
	}
}

func TestWeightedScoring(t *testing.T) {
	revs := []review.Review{{SubmissionID: "s1", Score: 80}, {SubmissionID: "s1", Score: 80}}
	w := WeightedScoring{PeerWeight: 3, AIWeight: 1, AIScore: func(string) int64 { return 40 }}
	if got := w.Score(revs); got != 70 {
		t.Fatalf("weighted score = %d, want 70", got)
	}
	// Without an AI source the peer mean stands alone.
	w.AIScore = nil
	if got := w.Score(revs); got != 80 {
		t.Fatalf("fallback score = %d, want 80", got)
	}
}
