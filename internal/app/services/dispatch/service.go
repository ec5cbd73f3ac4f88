// Package dispatch is the single entry point for triggering batch jobs.
// Both the HTTP trigger surface and the scheduler go through Run, so every
// run gets the same deadline, the same metrics and exactly one automation
// log row, success or not.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scholarxp/xp-engine/internal/app/cache"
	"github.com/scholarxp/xp-engine/internal/app/domain/automation"
	"github.com/scholarxp/xp-engine/internal/app/metrics"
	"github.com/scholarxp/xp-engine/internal/app/services/aggregator"
	"github.com/scholarxp/xp-engine/internal/app/services/finalizer"
	"github.com/scholarxp/xp-engine/internal/app/services/weekly"
	"github.com/scholarxp/xp-engine/internal/app/storage"
	"github.com/scholarxp/xp-engine/pkg/logger"
)

// Job actions accepted by Run.
const (
	ActionFinalize  = "finalize"
	ActionWeekly    = "weekly"
	ActionAggregate = "aggregate"
	ActionRefresh   = "refresh"
)

// ErrUnknownAction marks an action Run does not dispatch.
var ErrUnknownAction = errors.New("unknown action")

// FinalizeResult summarises one finalization batch.
type FinalizeResult struct {
	SubmissionsFinalized int `json:"submissions_finalized"`
}

// RunResult is the outcome of one dispatched run. Exactly one of the
// detail fields is set, matching the action, and Summary carries the
// human-readable rendering for admin callers and the automation log.
type RunResult struct {
	Action    string                    `json:"action"`
	Status    automation.RunStatus      `json:"status"`
	Summary   string                    `json:"summary"`
	Duration  time.Duration             `json:"duration"`
	Finalize  *FinalizeResult           `json:"finalize,omitempty"`
	Weekly    *weekly.Result            `json:"weekly,omitempty"`
	Aggregate *aggregator.Result        `json:"aggregate,omitempty"`
	Refresh   *cache.InvalidationResult `json:"refresh,omitempty"`
	Err       string                    `json:"error,omitempty"`
}

func (r RunResult) describe() string {
	switch {
	case r.Finalize != nil:
		return fmt.Sprintf("Finalized %d submissions", r.Finalize.SubmissionsFinalized)
	case r.Weekly != nil:
		return r.Weekly.Summary()
	case r.Aggregate != nil:
		return r.Aggregate.Summary()
	case r.Refresh != nil:
		return fmt.Sprintf("Removed %d cached keys across %d scopes", r.Refresh.KeysRemoved, len(r.Refresh.Scopes))
	default:
		return ""
	}
}

// Service dispatches batch jobs.
type Service struct {
	finalizer   *finalizer.Service
	weekly      *weekly.Service
	aggregator  *aggregator.Service
	invalidator cache.Invalidator
	logs        storage.AutomationLogStore
	deadline    time.Duration
	log         *logger.Logger
}

// New creates the dispatcher. deadline caps each run; zero means 5 minutes.
func New(finalizerSvc *finalizer.Service, weeklySvc *weekly.Service, aggSvc *aggregator.Service, invalidator cache.Invalidator, logs storage.AutomationLogStore, deadline time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("dispatch")
	}
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}
	return &Service{
		finalizer:   finalizerSvc,
		weekly:      weeklySvc,
		aggregator:  aggSvc,
		invalidator: invalidator,
		logs:        logs,
		deadline:    deadline,
		log:         log,
	}
}

// Run executes the named action under the job deadline and records the
// outcome. triggeredBy identifies the caller, "cron" for scheduler runs or
// the admin's user id for manual ones. The automation log write is
// best-effort: a log failure never turns a successful run into a failed
// one.
func (s *Service) Run(ctx context.Context, action, triggeredBy string) (RunResult, error) {
	result := RunResult{Action: action}
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	var err error
	switch action {
	case ActionFinalize:
		var finalized int
		finalized, err = s.finalizer.FinalizeReadySubmissions(runCtx)
		result.Finalize = &FinalizeResult{SubmissionsFinalized: finalized}
	case ActionWeekly:
		var wr weekly.Result
		wr, err = s.weekly.ProcessWeeklyReset(runCtx)
		result.Weekly = &wr
	case ActionAggregate:
		var ar aggregator.Result
		ar, err = s.aggregator.RecomputeBalances(runCtx)
		result.Aggregate = &ar
	case ActionRefresh:
		inv := cache.InvalidationResult{Warnings: []string{"no cache configured"}}
		if s.invalidator != nil {
			inv = s.invalidator.Invalidate(runCtx, cache.ScopeAnalytics, cache.ScopeLeaderboard)
		}
		metrics.RecordCacheInvalidation(inv.OK())
		result.Refresh = &inv
		// Refresh is best-effort: partial invalidation surfaces as
		// warnings in the result, not as a failed run.
	default:
		return result, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	result.Duration = time.Since(start)
	result.Status = statusFor(runCtx, err)
	result.Summary = result.describe()
	if err != nil {
		result.Err = err.Error()
	}
	metrics.RecordJobRun(action, string(result.Status), result.Duration)
	s.writeLog(ctx, result, triggeredBy)

	if err != nil {
		return result, fmt.Errorf("run %s: %w", action, err)
	}
	return result, nil
}

func statusFor(runCtx context.Context, err error) automation.RunStatus {
	switch {
	case err == nil:
		return automation.RunSuccess
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return automation.RunTimedOut
	default:
		return automation.RunFailed
	}
}

// writeLog records the run. It deliberately does not use the run context,
// which may already be past its deadline.
func (s *Service) writeLog(ctx context.Context, result RunResult, triggeredBy string) {
	detail := result.Summary
	if payload, err := json.Marshal(result); err == nil {
		detail = string(payload)
	}
	if _, err := s.logs.CreateLogEntry(ctx, automation.LogEntry{
		JobName:     result.Action,
		TriggeredBy: triggeredBy,
		Status:      result.Status,
		Result:      detail,
		Error:       result.Err,
		Duration:    result.Duration,
	}); err != nil {
		s.log.WithError(err).WithField("job", result.Action).Error("automation log write failed")
	}
}

// History returns the recorded runs for a job, newest first.
func (s *Service) History(ctx context.Context, jobName string) ([]automation.LogEntry, error) {
	return s.logs.ListLogEntries(ctx, jobName)
}
