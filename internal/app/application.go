// Package app wires the domain services together and manages their
// lifecycle.
package app

import (
	"context"

	"github.com/scholarxp/xp-engine/internal/app/cache"
	"github.com/scholarxp/xp-engine/internal/app/scheduler"
	aggregatorsvc "github.com/scholarxp/xp-engine/internal/app/services/aggregator"
	dispatchsvc "github.com/scholarxp/xp-engine/internal/app/services/dispatch"
	finalizersvc "github.com/scholarxp/xp-engine/internal/app/services/finalizer"
	reviewssvc "github.com/scholarxp/xp-engine/internal/app/services/reviews"
	standingssvc "github.com/scholarxp/xp-engine/internal/app/services/standings"
	submissionssvc "github.com/scholarxp/xp-engine/internal/app/services/submissions"
	userssvc "github.com/scholarxp/xp-engine/internal/app/services/users"
	weeklysvc "github.com/scholarxp/xp-engine/internal/app/services/weekly"
	"github.com/scholarxp/xp-engine/internal/app/storage"
	"github.com/scholarxp/xp-engine/internal/app/storage/memory"
	"github.com/scholarxp/xp-engine/internal/app/system"
	"github.com/scholarxp/xp-engine/internal/config"
	"github.com/scholarxp/xp-engine/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation, which keeps tests and local development free
// of external services.
type Stores struct {
	Users          storage.UserStore
	Submissions    storage.SubmissionStore
	Reviews        storage.ReviewStore
	Ledger         storage.LedgerStore
	Finalizations  storage.FinalizationStore
	Adjustments    storage.AdjustmentStore
	Weekly         storage.WeeklyStore
	Leaderboards   storage.LeaderboardStore
	AutomationLogs storage.AutomationLogStore
	Notifications  storage.NotificationStore
	RateLimits     storage.RateLimitStore
	Analytics      storage.AnalyticsStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Stores Stores

	Users       *userssvc.Service
	Submissions *submissionssvc.Service
	Reviews     *reviewssvc.Service
	Finalizer   *finalizersvc.Service
	Weekly      *weeklysvc.Service
	Aggregator  *aggregatorsvc.Service
	Standings   *standingssvc.Service
	Dispatch    *dispatchsvc.Service
}

// New builds a fully initialised application. invalidator and dataCache
// may be nil, which disables cache invalidation and cached reads.
func New(cfg config.Config, stores Stores, invalidator cache.Invalidator, dataCache cache.Cache, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Submissions == nil {
		stores.Submissions = mem
	}
	if stores.Reviews == nil {
		stores.Reviews = mem
	}
	if stores.Ledger == nil {
		stores.Ledger = mem
	}
	if stores.Finalizations == nil {
		stores.Finalizations = mem
	}
	if stores.Adjustments == nil {
		stores.Adjustments = mem
	}
	if stores.Weekly == nil {
		stores.Weekly = mem
	}
	if stores.Leaderboards == nil {
		stores.Leaderboards = mem
	}
	if stores.AutomationLogs == nil {
		stores.AutomationLogs = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}
	if stores.RateLimits == nil {
		stores.RateLimits = mem
	}
	if stores.Analytics == nil {
		stores.Analytics = mem
	}

	app := &Application{
		manager: system.NewManager(log),
		log:     log,
		Stores:  stores,
	}

	app.Users = userssvc.New(struct {
		storage.UserStore
		storage.AdjustmentStore
		storage.LedgerStore
	}{stores.Users, stores.Adjustments, stores.Ledger}, invalidator, log)

	app.Submissions = submissionssvc.New(struct {
		storage.UserStore
		storage.SubmissionStore
		storage.FinalizationStore
	}{stores.Users, stores.Submissions, stores.Finalizations}, invalidator, log)

	app.Reviews = reviewssvc.New(struct {
		storage.UserStore
		storage.SubmissionStore
		storage.ReviewStore
	}{stores.Users, stores.Submissions, stores.Reviews}, log)

	app.Finalizer = finalizersvc.New(struct {
		storage.SubmissionStore
		storage.ReviewStore
		storage.FinalizationStore
		storage.NotificationStore
	}{stores.Submissions, stores.Reviews, stores.Finalizations, stores.Notifications},
		invalidator, finalizersvc.MeanScoring{}, cfg.ReviewQuorum, log)

	app.Weekly = weeklysvc.New(struct {
		storage.UserStore
		storage.SubmissionStore
		storage.ReviewStore
		storage.LedgerStore
		storage.WeeklyStore
		storage.LeaderboardStore
		storage.NotificationStore
		storage.RateLimitStore
	}{stores.Users, stores.Submissions, stores.Reviews, stores.Ledger, stores.Weekly,
		stores.Leaderboards, stores.Notifications, stores.RateLimits},
		invalidator, weeklysvc.Config{
			StreakBaseBonus:       cfg.StreakBaseBonus,
			StreakBonusCap:        cfg.StreakBonusCap,
			PenaltyAmount:         cfg.PenaltyAmount,
			ActivityThreshold:     cfg.ActivityThreshold,
			NotificationRetention: cfg.NotificationRetention,
			RateLimitRetention:    cfg.RateLimitRetention,
		}, log)

	app.Aggregator = aggregatorsvc.New(struct {
		storage.UserStore
		storage.AnalyticsStore
	}{stores.Users, stores.Analytics}, invalidator, log)

	app.Standings = standingssvc.New(struct {
		storage.LeaderboardStore
		storage.AnalyticsStore
	}{stores.Leaderboards, stores.Analytics}, dataCache, cfg.CacheTTL, log)

	app.Dispatch = dispatchsvc.New(app.Finalizer, app.Weekly, app.Aggregator, invalidator, stores.AutomationLogs, cfg.JobDeadline, log)

	app.manager.Register(scheduler.New(app.Dispatch, scheduler.Config{
		FinalizeSchedule:  cfg.FinalizeSchedule,
		WeeklySchedule:    cfg.WeeklySchedule,
		AggregateSchedule: cfg.AggregateSchedule,
	}, log))

	return app, nil
}

// Start brings background services up.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop shuts background services down.
func (a *Application) Stop(ctx context.Context) {
	a.manager.Stop(ctx)
}
