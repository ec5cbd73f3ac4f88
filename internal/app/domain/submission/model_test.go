package submission

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusAIReviewed},
		{StatusPending, StatusRejected},
		{StatusAIReviewed, StatusUnderPeerReview},
		{StatusAIReviewed, StatusFlagged},
		{StatusUnderPeerReview, StatusFinalized},
		{StatusUnderPeerReview, StatusRejected},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusAIReviewed, StatusPending},
		{StatusUnderPeerReview, StatusAIReviewed},
		{StatusFinalized, StatusUnderPeerReview},
		{StatusFinalized, StatusFlagged},
		{StatusRejected, StatusPending},
		{StatusFlagged, StatusFinalized},
		{StatusPending, StatusPending},
		{Status("bogus"), StatusFinalized},
		{StatusPending, Status("bogus")},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}
