// Package ledger defines the append-only XP transaction log. The ledger is
// the source of truth for balances: entries are never edited or deleted,
// corrections are new entries with inverse sign.
package ledger

import "time"

// EntryType tags the cause of an XP delta.
type EntryType string

const (
	TypeSubmissionFinalize EntryType = "submission-finalize"
	TypeAdminAdjust        EntryType = "admin-adjust"
	TypeWeeklyStreak       EntryType = "weekly-streak"
	TypeWeeklyPenalty      EntryType = "weekly-penalty"
)

// Entry is one signed XP movement for a user.
type Entry struct {
	ID         string
	UserID     string
	Amount     int64
	Type       EntryType
	SourceID   string
	WeekNumber int
	CreatedAt  time.Time
}
