// Package reviews manages peer reviews and review assignments. A reviewer
// re-scoring a submission supersedes their earlier review; only live
// reviews count toward the finalization quorum.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scholarxp/xp-engine/internal/app/domain/review"
	"github.com/scholarxp/xp-engine/internal/app/domain/submission"
	"github.com/scholarxp/xp-engine/internal/app/storage"
	"github.com/scholarxp/xp-engine/pkg/logger"
)

// ErrValidation marks a rejected request payload.
var ErrValidation = errors.New("validation failed")

// DefaultDeadline is how long a reviewer gets when no deadline is given.
const DefaultDeadline = 72 * time.Hour

// Store bundles the persistence the reviews service needs.
type Store interface {
	storage.UserStore
	storage.SubmissionStore
	storage.ReviewStore
}

// Service exposes review operations.
type Service struct {
	store Store
	log   *logger.Logger

	now func() time.Time
}

// New creates the reviews service.
func New(store Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reviews")
	}
	return &Service{store: store, log: log, now: time.Now}
}

// SubmitReview records a reviewer's score for a submission. Any earlier
// live review by the same reviewer is superseded, and a matching pending
// assignment is marked completed.
func (s *Service) SubmitReview(ctx context.Context, submissionID, reviewerID string, score int64, comments string) (review.Review, error) {
	if score < 0 {
		return review.Review{}, fmt.Errorf("%w: score must be non-negative", ErrValidation)
	}
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return review.Review{}, err
	}
	if sub.Status != submission.StatusUnderPeerReview {
		return review.Review{}, fmt.Errorf("%w: submission %s is not under peer review", ErrValidation, submissionID)
	}
	if sub.UserID == reviewerID {
		return review.Review{}, fmt.Errorf("%w: reviewers cannot score their own submission", ErrValidation)
	}
	if _, err := s.store.GetUser(ctx, reviewerID); err != nil {
		return review.Review{}, err
	}

	created, err := s.store.CreateReview(ctx, review.Review{
		SubmissionID: submissionID,
		ReviewerID:   reviewerID,
		Score:        score,
		Comments:     comments,
	})
	if err != nil {
		return review.Review{}, fmt.Errorf("create review: %w", err)
	}

	if err := s.completeAssignment(ctx, submissionID, reviewerID); err != nil {
		s.log.WithError(err).WithField("submission_id", submissionID).Warn("assignment completion failed")
	}

	s.log.WithField("submission_id", submissionID).
		WithField("reviewer_id", reviewerID).
		Info("review submitted")
	return created, nil
}

// ListReviews returns the live reviews for a submission.
func (s *Service) ListReviews(ctx context.Context, submissionID string) ([]review.Review, error) {
	return s.store.ListReviews(ctx, submissionID)
}

// Assign asks a reviewer to score a submission. A zero deadline gets the
// default window.
func (s *Service) Assign(ctx context.Context, submissionID, reviewerID string, deadline time.Time) (review.Assignment, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return review.Assignment{}, err
	}
	if sub.UserID == reviewerID {
		return review.Assignment{}, fmt.Errorf("%w: authors cannot review their own submission", ErrValidation)
	}
	if _, err := s.store.GetUser(ctx, reviewerID); err != nil {
		return review.Assignment{}, err
	}
	if deadline.IsZero() {
		deadline = s.now().UTC().Add(DefaultDeadline)
	}
	created, err := s.store.CreateAssignment(ctx, review.Assignment{
		SubmissionID: submissionID,
		ReviewerID:   reviewerID,
		Status:       review.AssignmentPending,
		Deadline:     deadline,
	})
	if err != nil {
		return review.Assignment{}, fmt.Errorf("create assignment: %w", err)
	}
	s.log.WithField("assignment_id", created.ID).WithField("reviewer_id", reviewerID).Info("review assigned")
	return created, nil
}

// Reassign moves a pending assignment to a new reviewer. The old row is
// marked reassigned so it stops counting as missed, and a fresh assignment
// with a fresh deadline is created.
func (s *Service) Reassign(ctx context.Context, assignmentID, newReviewerID string) (review.Assignment, error) {
	old, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return review.Assignment{}, err
	}
	if old.Status != review.AssignmentPending {
		return review.Assignment{}, fmt.Errorf("%w: assignment %s is not pending", ErrValidation, assignmentID)
	}
	old.Status = review.AssignmentReassigned
	if _, err := s.store.UpdateAssignment(ctx, old); err != nil {
		return review.Assignment{}, fmt.Errorf("update assignment: %w", err)
	}
	return s.Assign(ctx, old.SubmissionID, newReviewerID, time.Time{})
}

// ListOverdue returns pending assignments past their deadline.
func (s *Service) ListOverdue(ctx context.Context) ([]review.Assignment, error) {
	return s.store.ListOverdueAssignments(ctx, s.now().UTC())
}

func (s *Service) completeAssignment(ctx context.Context, submissionID, reviewerID string) error {
	assignments, err := s.store.ListAssignments(ctx, submissionID)
	if err != nil {
		return err
	}
	for _, a := range assignments {
		if a.ReviewerID != reviewerID || a.Status != review.AssignmentPending {
			continue
		}
		a.Status = review.AssignmentCompleted
		a.CompletedAt = s.now().UTC()
		_, err := s.store.UpdateAssignment(ctx, a)
		return err
	}
	return nil
}
