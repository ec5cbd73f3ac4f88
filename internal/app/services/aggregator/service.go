// Package aggregator reconciles cached user balances against the ledger.
// The ledger is the source of truth; total_xp on the user row is a derived
// number that can drift if an operator hand-edits data or a bug slips a
// write past the transactional paths. The aggregate job detects and repairs
// that drift.
package aggregator

import (
	"context"
	"fmt"

	"github.com/scholarxp/xp-engine/internal/app/cache"
	"github.com/scholarxp/xp-engine/internal/app/metrics"
	"github.com/scholarxp/xp-engine/internal/app/storage"
	"github.com/scholarxp/xp-engine/pkg/logger"
)

// Store bundles the persistence the aggregate job needs.
type Store interface {
	storage.UserStore
	storage.AnalyticsStore
}

// Result summarises one reconciliation run.
type Result struct {
	UsersChecked  int `json:"users_checked"`
	DriftDetected int `json:"drift_detected"`
	DriftRepaired int `json:"drift_repaired"`
}

// Summary renders the run for humans.
func (r Result) Summary() string {
	return fmt.Sprintf("Checked %d users, repaired %d of %d drifted balances",
		r.UsersChecked, r.DriftRepaired, r.DriftDetected)
}

// Service recomputes balances from the ledger.
type Service struct {
	store       Store
	invalidator cache.Invalidator
	log         *logger.Logger
}

// New creates the aggregator service.
func New(store Store, invalidator cache.Invalidator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("aggregator")
	}
	return &Service{store: store, invalidator: invalidator, log: log}
}

// RecomputeBalances compares every user's stored total against the ledger
// sum and rewrites the rows that disagree. Users with no ledger entries
// reconcile to zero.
func (s *Service) RecomputeBalances(ctx context.Context) (Result, error) {
	var result Result

	totals, err := s.store.LedgerTotals(ctx)
	if err != nil {
		return result, fmt.Errorf("ledger totals: %w", err)
	}
	users, err := s.store.ListUsers(ctx, false)
	if err != nil {
		return result, fmt.Errorf("list users: %w", err)
	}

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("recompute aborted after %d users: %w", result.UsersChecked, err)
		}
		result.UsersChecked++
		want := totals[u.ID]
		if u.TotalXP == want {
			continue
		}
		result.DriftDetected++
		s.log.WithField("user_id", u.ID).
			WithField("stored", u.TotalXP).
			WithField("ledger", want).
			Warn("balance drift detected")
		u.TotalXP = want
		if _, err := s.store.UpdateUser(ctx, u); err != nil {
			s.log.WithError(err).WithField("user_id", u.ID).Error("balance repair failed")
			continue
		}
		result.DriftRepaired++
	}

	if result.DriftRepaired > 0 && s.invalidator != nil {
		inv := s.invalidator.Invalidate(ctx, cache.ScopeAnalytics, cache.ScopeLeaderboard)
		metrics.RecordCacheInvalidation(inv.OK())
	}

	s.log.WithField("checked", result.UsersChecked).
		WithField("repaired", result.DriftRepaired).
		Info("balance recompute complete")
	return result, nil
}
