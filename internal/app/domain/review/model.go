package review

import "time"

// Review is one reviewer's scored verdict on a submission. Reviews are
// immutable once written; a replacement supersedes the old row instead of
// editing it.
type Review struct {
	ID           string
	SubmissionID string
	ReviewerID   string
	Score        int64
	Comments     string
	Superseded   bool
	CreatedAt    time.Time
}

// AssignmentStatus tracks the lifecycle of a review assignment.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentReassigned AssignmentStatus = "reassigned"
)

// Assignment asks a reviewer to score a submission before a deadline.
// Pending assignments past their deadline count as missed and feed the
// weekly penalty step.
type Assignment struct {
	ID           string
	SubmissionID string
	ReviewerID   string
	Status       AssignmentStatus
	Deadline     time.Time
	CreatedAt    time.Time
	CompletedAt  time.Time
}

// Overdue reports whether the assignment is pending past its deadline.
func (a Assignment) Overdue(now time.Time) bool {
	return a.Status == AssignmentPending && now.After(a.Deadline)
}
