package submission

import "time"

// Status is the review pipeline state of a submission. Transitions are
// monotonic: a finalized submission never returns to an earlier state.
type Status string

const (
	StatusPending         Status = "pending"
	StatusAIReviewed      Status = "ai-reviewed"
	StatusUnderPeerReview Status = "under-peer-review"
	StatusFinalized       Status = "finalized"
	StatusFlagged         Status = "flagged"
	StatusRejected        Status = "rejected"
)

// rank orders the pipeline states; terminal states share the top rank.
var rank = map[Status]int{
	StatusPending:         0,
	StatusAIReviewed:      1,
	StatusUnderPeerReview: 2,
	StatusFinalized:       3,
	StatusFlagged:         3,
	StatusRejected:        3,
}

// CanTransition reports whether moving between the two states respects the
// monotonic pipeline ordering. Terminal states admit no further moves.
func CanTransition(from, to Status) bool {
	fr, ok := rank[from]
	if !ok {
		return false
	}
	tr, ok := rank[to]
	if !ok {
		return false
	}
	if fr == 3 {
		return false
	}
	return tr > fr
}

// Submission is one unit of user-submitted work moving through review.
type Submission struct {
	ID          string
	UserID      string
	Title       string
	Status      Status
	AIXP        int64
	PeerXP      int64
	FinalXP     int64
	WeekNumber  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinalizedAt time.Time
}
