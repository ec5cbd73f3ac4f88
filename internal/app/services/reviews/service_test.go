package reviews

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scholarxp/xp-engine/internal/app/domain/review"
	"github.com/scholarxp/xp-engine/internal/app/domain/submission"
	"github.com/scholarxp/xp-engine/internal/app/domain/user"
	"github.com/scholarxp/xp-engine/internal/app/storage/memory"
)

func seed(t *testing.T, store *memory.Store) (author, reviewer user.User, sub submission.Submission) {
	t.Helper()
	ctx := context.Background()
	author, _ = store.CreateUser(ctx, user.User{Handle: "author", Active: true})
	reviewer, _ = store.CreateUser(ctx, user.User{Handle: "reviewer", Active: true})
	sub, _ = store.CreateSubmission(ctx, submission.Submission{
		UserID: author.ID,
		Title:  "essay",
		Status: submission.StatusUnderPeerReview,
	})
	return author, reviewer, sub
}

func TestSubmitReviewSupersedesEarlier(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()
	_, reviewer, sub := seed(t, store)

	if _, err := svc.SubmitReview(ctx, sub.ID, reviewer.ID, 70, "solid"); err != nil {
		t.Fatalf("first review: %v", err)
	}
	if _, err := svc.SubmitReview(ctx, sub.ID, reviewer.ID, 85, "revised"); err != nil {
		t.Fatalf("second review: %v", err)
	}

	live, err := svc.ListReviews(ctx, sub.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(live) != 1 {
		t.Fatalf("live reviews = %d, want 1", len(live))
	}
	if live[0].Score != 85 {
		t.Fatalf("live score = %d, want the replacement", live[0].Score)
	}
}

func TestSubmitReviewRejectsSelfReview(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()
	author, _, sub := seed(t, store)

	if _, err := svc.SubmitReview(ctx, sub.ID, author.ID, 100, "great work"); !errors.Is(err, ErrValidation) {
		t.Fatalf("self review: %v", err)
	}
}

func TestSubmitReviewRequiresPeerReviewStatus(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()
	author, reviewer, _ := seed(t, store)

	pending, _ := store.CreateSubmission(ctx, submission.Submission{
		UserID: author.ID, Title: "draft", Status: submission.StatusPending,
	})
	if _, err := svc.SubmitReview(ctx, pending.ID, reviewer.ID, 50, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("review of pending submission: %v", err)
	}
}

func TestSubmitReviewCompletesAssignment(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()
	_, reviewer, sub := seed(t, store)

	a, err := svc.Assign(ctx, sub.ID, reviewer.ID, time.Time{})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if a.Status != review.AssignmentPending || a.Deadline.IsZero() {
		t.Fatalf("unexpected assignment: %+v", a)
	}

	if _, err := svc.SubmitReview(ctx, sub.ID, reviewer.ID, 75, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, _ := store.GetAssignment(ctx, a.ID)
	if got.Status != review.AssignmentCompleted {
		t.Fatalf("assignment status = %s, want completed", got.Status)
	}
	if got.CompletedAt.IsZero() {
		t.Fatal("completed_at not set")
	}
}

func TestReassignRetiresOldAssignment(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()
	_, reviewer, sub := seed(t, store)
	other, _ := store.CreateUser(ctx, user.User{Handle: "other", Active: true})

	a, _ := svc.Assign(ctx, sub.ID, reviewer.ID, time.Now().Add(-time.Hour))

	replacement, err := svc.Reassign(ctx, a.ID, other.ID)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if replacement.ReviewerID != other.ID || replacement.Status != review.AssignmentPending {
		t.Fatalf("unexpected replacement: %+v", replacement)
	}

	old, _ := store.GetAssignment(ctx, a.ID)
	if old.Status != review.AssignmentReassigned {
		t.Fatalf("old status = %s, want reassigned", old.Status)
	}

	// The retired assignment no longer counts as overdue.
	overdue, _ := svc.ListOverdue(ctx)
	if len(overdue) != 0 {
		t.Fatalf("overdue = %d, want 0", len(overdue))
	}

	if _, err := svc.Reassign(ctx, a.ID, reviewer.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("reassign of retired assignment: %v", err)
	}
}

func TestAssignRejectsAuthor(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)
	ctx := context.Background()
	author, _, sub := seed(t, store)

	if _, err := svc.Assign(ctx, sub.ID, author.ID, time.Time{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("author assignment: %v", err)
	}
}
