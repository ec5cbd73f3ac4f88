package automation

import "time"

// RunStatus is the recorded outcome of an automated run.
type RunStatus string

const (
	RunSuccess  RunStatus = "success"
	RunFailed   RunStatus = "failed"
	RunTimedOut RunStatus = "timed_out"
)

// TriggeredByCron marks unattended scheduler runs in the log.
const TriggeredByCron = "cron"

// LogEntry records one weekly-reset or aggregation run. Every cron-triggered
// run produces exactly one entry, written even on failure.
type LogEntry struct {
	ID          string
	JobName     string
	TriggeredBy string
	Status      RunStatus
	Result      string
	Error       string
	Duration    time.Duration
	CreatedAt   time.Time
}
