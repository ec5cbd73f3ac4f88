// Package users manages user accounts and admin XP adjustments.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scholarxp/xp-engine/internal/app/cache"
	"github.com/scholarxp/xp-engine/internal/app/domain/ledger"
	"github.com/scholarxp/xp-engine/internal/app/domain/user"
	"github.com/scholarxp/xp-engine/internal/app/domain/week"
	"github.com/scholarxp/xp-engine/internal/app/metrics"
	"github.com/scholarxp/xp-engine/internal/app/storage"
	"github.com/scholarxp/xp-engine/pkg/logger"
)

// ErrValidation marks a rejected request payload.
var ErrValidation = errors.New("validation failed")

// Store bundles the persistence the users service needs.
type Store interface {
	storage.UserStore
	storage.AdjustmentStore
	storage.LedgerStore
}

// Service exposes user account operations.
type Service struct {
	store       Store
	invalidator cache.Invalidator
	log         *logger.Logger
}

// New creates the users service.
func New(store Store, invalidator cache.Invalidator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{store: store, invalidator: invalidator, log: log}
}

// Create registers a new user.
func (s *Service) Create(ctx context.Context, handle string, role user.Role) (user.User, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return user.User{}, fmt.Errorf("%w: handle is required", ErrValidation)
	}
	if role == "" {
		role = user.RoleMember
	}
	if role != user.RoleMember && role != user.RoleAdmin {
		return user.User{}, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	created, err := s.store.CreateUser(ctx, user.User{
		Handle: handle,
		Role:   role,
		Active: true,
	})
	if err != nil {
		return user.User{}, fmt.Errorf("create user: %w", err)
	}
	s.log.WithField("user_id", created.ID).WithField("handle", handle).Info("user created")
	return created, nil
}

// Get fetches a single user.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.store.GetUser(ctx, id)
}

// List returns users, optionally only active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]user.User, error) {
	return s.store.ListUsers(ctx, activeOnly)
}

// Deactivate marks a user inactive. Inactive users keep their history but
// are skipped by the weekly job and the standings.
func (s *Service) Deactivate(ctx context.Context, id string) (user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	if !u.Active {
		return u, nil
	}
	u.Active = false
	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, fmt.Errorf("deactivate user: %w", err)
	}
	s.log.WithField("user_id", id).Info("user deactivated")
	return updated, nil
}

// Adjust applies an admin XP adjustment through the ledger. The entry and
// the balance bump commit in one transaction; zero amounts are rejected
// because they would record nothing.
func (s *Service) Adjust(ctx context.Context, userID string, amount int64, reason string) (ledger.Entry, error) {
	if amount == 0 {
		return ledger.Entry{}, fmt.Errorf("%w: amount must be non-zero", ErrValidation)
	}
	if strings.TrimSpace(reason) == "" {
		return ledger.Entry{}, fmt.Errorf("%w: reason is required", ErrValidation)
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return ledger.Entry{}, err
	}

	entry := ledger.Entry{
		UserID:     userID,
		Amount:     amount,
		Type:       ledger.TypeAdminAdjust,
		SourceID:   reason,
		WeekNumber: week.Current(),
	}
	if err := s.store.ApplyAdjustment(ctx, entry); err != nil {
		return ledger.Entry{}, fmt.Errorf("apply adjustment: %w", err)
	}

	if s.invalidator != nil {
		inv := s.invalidator.Invalidate(ctx, cache.ScopeAnalytics, cache.ScopeLeaderboard)
		metrics.RecordCacheInvalidation(inv.OK())
		if !inv.OK() {
			s.log.WithField("warnings", inv.Warnings).Warn("cache invalidation incomplete")
		}
	}
	s.log.WithField("user_id", userID).WithField("amount", amount).Info("admin adjustment applied")
	return entry, nil
}

// Ledger returns a user's full transaction history.
func (s *Service) Ledger(ctx context.Context, userID string) ([]ledger.Entry, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListEntries(ctx, userID)
}
