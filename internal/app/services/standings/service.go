// Package standings serves leaderboard reads through the cache: the live
// current-week ranking and the immutable per-week snapshots. Cache misses
// fall through to the store and repopulate; cache failures degrade to
// uncached reads.
package standings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scholarxp/xp-engine/internal/app/cache"
	"github.com/scholarxp/xp-engine/internal/app/domain/leaderboard"
	"github.com/scholarxp/xp-engine/internal/app/storage"
	"github.com/scholarxp/xp-engine/pkg/logger"
)

// Store bundles the persistence the standings reads need.
type Store interface {
	storage.LeaderboardStore
	storage.AnalyticsStore
}

// Service serves leaderboard reads.
type Service struct {
	store Store
	cache cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

// New creates the standings service. A nil cache disables caching.
func New(store Store, c cache.Cache, ttl time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("standings")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{store: store, cache: c, ttl: ttl, log: log}
}

// Current returns the live current-week ranking, cached briefly because it
// changes with every finalization.
func (s *Service) Current(ctx context.Context, limit int) ([]leaderboard.Standing, error) {
	key := cache.ScopeLeaderboard + "current"
	if cached, ok := s.cacheGet(ctx, key); ok {
		var out []leaderboard.Standing
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
	}
	out, err := s.store.CurrentStandings(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("current standings: %w", err)
	}
	s.cacheSet(ctx, key, out)
	return out, nil
}

// Snapshot returns a closed week's ranking. Snapshots never change after
// the weekly job writes them, so the cache TTL is generous only because
// invalidation clears the scope on every rewrite anyway.
func (s *Service) Snapshot(ctx context.Context, weekNumber int) (leaderboard.Snapshot, error) {
	key := fmt.Sprintf("%sweek:%d", cache.ScopeLeaderboard, weekNumber)
	if cached, ok := s.cacheGet(ctx, key); ok {
		var out leaderboard.Snapshot
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
	}
	snap, err := s.store.GetSnapshot(ctx, weekNumber)
	if err != nil {
		return leaderboard.Snapshot{}, err
	}
	s.cacheSet(ctx, key, snap)
	return snap, nil
}

func (s *Service) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, key)
}

func (s *Service) cacheSet(ctx context.Context, key string, v interface{}) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache encode failed")
		return
	}
	s.cache.Set(ctx, key, payload, s.ttl)
}
