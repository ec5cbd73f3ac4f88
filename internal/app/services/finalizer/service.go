// Package finalizer closes out submissions that have gathered a quorum of
// peer reviews. Each submission commits independently, so one bad row never
// blocks the rest of the batch, and re-runs are safe because the applied
// delta is computed against the stored final score.
package finalizer

import (
	"context"
	"fmt"
	"time"

	"github.com/scholarxp/xp-engine/internal/app/cache"
	"github.com/scholarxp/xp-engine/internal/app/domain/ledger"
	"github.com/scholarxp/xp-engine/internal/app/domain/notification"
	"github.com/scholarxp/xp-engine/internal/app/domain/submission"
	"github.com/scholarxp/xp-engine/internal/app/metrics"
	"github.com/scholarxp/xp-engine/internal/app/storage"
	"github.com/scholarxp/xp-engine/pkg/logger"
)

// Store bundles the persistence the finalizer needs.
type Store interface {
	storage.SubmissionStore
	storage.ReviewStore
	storage.FinalizationStore
	storage.NotificationStore
}

// Service finalizes review-complete submissions.
type Service struct {
	store       Store
	invalidator cache.Invalidator
	scoring     ScoringStrategy
	quorum      int
	log         *logger.Logger
}

// New creates a finalizer. A nil scoring strategy defaults to the mean.
func New(store Store, invalidator cache.Invalidator, scoring ScoringStrategy, quorum int, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("finalizer")
	}
	if scoring == nil {
		scoring = MeanScoring{}
	}
	if quorum < 1 {
		quorum = 3
	}
	return &Service{
		store:       store,
		invalidator: invalidator,
		scoring:     scoring,
		quorum:      quorum,
		log:         log,
	}
}

// FinalizeReadySubmissions finalizes every submission whose live review
// count has reached the quorum. Returns the number actually finalized.
// A failed submission is logged and skipped; it stays ready and the next
// run retries it.
func (s *Service) FinalizeReadySubmissions(ctx context.Context) (int, error) {
	ready, err := s.store.ListReadyForFinalization(ctx, s.quorum)
	if err != nil {
		return 0, fmt.Errorf("list ready submissions: %w", err)
	}

	finalized := 0
	for _, sub := range ready {
		if err := s.finalizeOne(ctx, sub); err != nil {
			s.log.WithError(err).
				WithField("submission_id", sub.ID).
				Error("finalization failed, skipping")
			continue
		}
		finalized++
	}

	if finalized > 0 && s.invalidator != nil {
		// One invalidation for the whole batch, after the last commit.
		result := s.invalidator.Invalidate(ctx, cache.ScopeAnalytics, cache.ScopeLeaderboard)
		metrics.RecordCacheInvalidation(result.OK())
		if !result.OK() {
			s.log.WithField("warnings", result.Warnings).Warn("cache invalidation incomplete")
		}
	}

	metrics.RecordFinalizations(finalized)
	if len(ready) > 0 {
		s.log.WithField("ready", len(ready)).
			WithField("finalized", finalized).
			Info("finalization batch complete")
	}
	return finalized, nil
}

func (s *Service) finalizeOne(ctx context.Context, sub submission.Submission) error {
	reviews, err := s.store.ListReviews(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("list reviews: %w", err)
	}
	if len(reviews) < s.quorum {
		return fmt.Errorf("quorum not met: %d of %d reviews", len(reviews), s.quorum)
	}

	finalXP := s.scoring.Score(reviews)
	delta := finalXP - sub.FinalXP
	if sub.Status == submission.StatusFinalized && delta == 0 {
		return nil
	}

	now := time.Now().UTC()
	sub.Status = submission.StatusFinalized
	sub.PeerXP = finalXP
	sub.FinalXP = finalXP
	if sub.FinalizedAt.IsZero() {
		sub.FinalizedAt = now
	}

	entry := ledger.Entry{
		UserID:     sub.UserID,
		Amount:     delta,
		Type:       ledger.TypeSubmissionFinalize,
		SourceID:   sub.ID,
		WeekNumber: sub.WeekNumber,
	}
	if err := s.store.ApplyFinalization(ctx, sub, entry); err != nil {
		return fmt.Errorf("apply finalization: %w", err)
	}

	if _, err := s.store.CreateNotification(ctx, notification.Notification{
		UserID: sub.UserID,
		Kind:   notification.KindSubmissionFinalized,
		Body:   fmt.Sprintf("%q finalized for %d XP", sub.Title, finalXP),
	}); err != nil {
		// Notification loss is acceptable; the ledger already committed.
		s.log.WithError(err).WithField("submission_id", sub.ID).Warn("notification write failed")
	}

	s.log.WithField("submission_id", sub.ID).
		WithField("user_id", sub.UserID).
		WithField("final_xp", finalXP).
		WithField("delta", delta).
		Info("submission finalized")
	return nil
}
