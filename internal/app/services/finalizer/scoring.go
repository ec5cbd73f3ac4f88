package finalizer

import "github.com/scholarxp/xp-engine/internal/app/domain/review"

// ScoringStrategy reduces a set of peer review scores to a final XP value.
// The formula is a deployment concern; the pipeline only requires that the
// same inputs always produce the same output.
type ScoringStrategy interface {
	Score(reviews []review.Review) int64
}

// MeanScoring averages the review scores, rounding half away from zero.
type MeanScoring struct{}

func (MeanScoring) Score(reviews []review.Review) int64 {
	if len(reviews) == 0 {
		return 0
	}
	var sum int64
	for _, r := range reviews {
		sum += r.Score
	}
	n := int64(len(reviews))
	if sum >= 0 {
		return (sum + n/2) / n
	}
	return (sum - n/2) / n
}

// WeightedScoring blends the peer mean with a preliminary score, weighted
// peerWeight : aiWeight. Used by deployments that want the machine estimate
// to dampen outlier review rounds.
type WeightedScoring struct {
	PeerWeight int64
	AIWeight   int64
	AIScore    func(submissionID string) int64
}

func (w WeightedScoring) Score(reviews []review.Review) int64 {
	peer := MeanScoring{}.Score(reviews)
	total := w.PeerWeight + w.AIWeight
	if total == 0 || w.AIScore == nil || len(reviews) == 0 {
		return peer
	}
	ai := w.AIScore(reviews[0].SubmissionID)
	return (peer*w.PeerWeight + ai*w.AIWeight) / total
}
