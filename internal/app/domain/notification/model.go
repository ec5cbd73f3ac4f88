package notification

import "time"

// Kind classifies a notification.
type Kind string

const (
	KindSubmissionFinalized Kind = "submission-finalized"
	KindStreakAwarded       Kind = "streak-awarded"
	KindPenaltyApplied      Kind = "penalty-applied"
)

// Notification is a short message queued for a user. Old notifications are
// purged by weekly housekeeping after a retention window.
type Notification struct {
	ID        string
	UserID    string
	Kind      Kind
	Body      string
	CreatedAt time.Time
}
