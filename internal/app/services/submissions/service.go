// Package submissions manages the submission lifecycle up to and beyond
// finalization. Status moves are validated against the pipeline order, and
// post-finalization corrections go through the ledger as compensating
// entries rather than edits to history.
package submissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scholarxp/xp-engine/internal/app/cache"
	"github.com/scholarxp/xp-engine/internal/app/domain/ledger"
	"github.com/scholarxp/xp-engine/internal/app/domain/submission"
	"github.com/scholarxp/xp-engine/internal/app/domain/week"
	"github.com/scholarxp/xp-engine/internal/app/metrics"
	"github.com/scholarxp/xp-engine/internal/app/storage"
	"github.com/scholarxp/xp-engine/pkg/logger"
)

// ErrValidation marks a rejected request payload.
var ErrValidation = errors.New("validation failed")

// ErrInvalidTransition marks a status move the pipeline does not allow.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store bundles the persistence the submissions service needs.
type Store interface {
	storage.UserStore
	storage.SubmissionStore
	storage.FinalizationStore
}

// Service exposes submission operations.
type Service struct {
	store       Store
	invalidator cache.Invalidator
	log         *logger.Logger
}

// New creates the submissions service.
func New(store Store, invalidator cache.Invalidator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("submissions")
	}
	return &Service{store: store, invalidator: invalidator, log: log}
}

// Create records a new pending submission tagged with the current week.
func (s *Service) Create(ctx context.Context, userID, title string) (submission.Submission, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return submission.Submission{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return submission.Submission{}, err
	}
	if !u.Active {
		return submission.Submission{}, fmt.Errorf("%w: user %s is inactive", ErrValidation, userID)
	}
	created, err := s.store.CreateSubmission(ctx, submission.Submission{
		UserID:     userID,
		Title:      title,
		Status:     submission.StatusPending,
		WeekNumber: week.Current(),
	})
	if err != nil {
		return submission.Submission{}, fmt.Errorf("create submission: %w", err)
	}
	s.log.WithField("submission_id", created.ID).WithField("user_id", userID).Info("submission created")
	return created, nil
}

// Get fetches a single submission.
func (s *Service) Get(ctx context.Context, id string) (submission.Submission, error) {
	return s.store.GetSubmission(ctx, id)
}

// List returns a user's submissions.
func (s *Service) List(ctx context.Context, userID string) ([]submission.Submission, error) {
	return s.store.ListSubmissions(ctx, userID)
}

// Transition moves a submission along the pipeline. Moves never go
// backwards and terminal states admit no further moves. The ai-reviewed
// step records the AI score that seeds later scoring.
func (s *Service) Transition(ctx context.Context, id string, to submission.Status, aiXP *int64) (submission.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return submission.Submission{}, err
	}
	if !submission.CanTransition(sub.Status, to) {
		return submission.Submission{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, to)
	}
	if to == submission.StatusAIReviewed {
		if aiXP == nil {
			return submission.Submission{}, fmt.Errorf("%w: ai-reviewed requires an AI score", ErrValidation)
		}
		sub.AIXP = *aiXP
	}
	if to == submission.StatusFinalized {
		// Finalization carries XP side effects and must go through the
		// finalizer, not a bare status edit.
		return submission.Submission{}, fmt.Errorf("%w: finalization is quorum-driven", ErrInvalidTransition)
	}
	sub.Status = to
	updated, err := s.store.UpdateSubmission(ctx, sub)
	if err != nil {
		return submission.Submission{}, fmt.Errorf("update submission: %w", err)
	}
	s.log.WithField("submission_id", id).WithField("status", to).Info("submission transitioned")
	return updated, nil
}

// AdminOverride corrects a finalized submission's XP. The stored final
// value moves to newFinalXP and the difference lands in the ledger as a
// compensating finalize entry, so the ledger keeps summing to the balance.
func (s *Service) AdminOverride(ctx context.Context, id string, newFinalXP int64) (submission.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return submission.Submission{}, err
	}
	if sub.Status != submission.StatusFinalized {
		return submission.Submission{}, fmt.Errorf("%w: submission %s is not finalized", ErrValidation, id)
	}
	delta := newFinalXP - sub.FinalXP
	if delta == 0 {
		return sub, nil
	}
	sub.FinalXP = newFinalXP
	entry := ledger.Entry{
		UserID:     sub.UserID,
		Amount:     delta,
		Type:       ledger.TypeSubmissionFinalize,
		SourceID:   sub.ID,
		WeekNumber: week.Current(),
	}
	if err := s.store.ApplyFinalization(ctx, sub, entry); err != nil {
		return submission.Submission{}, fmt.Errorf("apply override: %w", err)
	}

	if s.invalidator != nil {
		inv := s.invalidator.Invalidate(ctx, cache.ScopeAnalytics, cache.ScopeLeaderboard)
		metrics.RecordCacheInvalidation(inv.OK())
		if !inv.OK() {
			s.log.WithField("warnings", inv.Warnings).Warn("cache invalidation incomplete")
		}
	}
	s.log.WithField("submission_id", id).WithField("delta", delta).Info("admin override applied")
	return sub, nil
}
