package scoring

import (
	"fmt"

	"travelguard/antifraud/internal/domain"
)

// Thresholds map a total score to a recommendation.
type Thresholds struct {
	Block  int // total >= Block recommends block
	Review int // total >= Review recommends review
}

// DefaultThresholds returns the stock cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{Block: 80, Review: 50}
}

// Validate requires 0 < Review <= Block <= 100.
func (t Thresholds) Validate() error {
	if t.Review <= 0 || t.Review > t.Block || t.Block > 100 {
		return fmt.Errorf("thresholds: need 0 < review (%d) <= block (%d) <= 100", t.Review, t.Block)
	}
	return nil
}

// Recommend maps a total score to a recommendation.
func Recommend(total int, th Thresholds) domain.Recommendation {
	switch {
	case total >= th.Block:
		return domain.RecommendBlock
	case total >= th.Review:
		return domain.RecommendReview
	default:
		return domain.RecommendAllow
	}
}

// Aggregate folds rule outcomes into a result. Negative deltas count as
// zero, the sum is clamped to [0, 100] and flags keep first-seen order
// without repeats.
func Aggregate(outcomes []domain.RuleOutcome, th Thresholds) domain.ScoreResult {
	total := 0
	flags := make([]string, 0, len(outcomes))
	seen := make(map[string]struct{}, len(outcomes))

	for _, o := range outcomes {
		if o.ScoreDelta > 0 {
			total += o.ScoreDelta
		}
		if o.Flag == "" {
			continue
		}
		if _, dup := seen[o.Flag]; dup {
			continue
		}
		seen[o.Flag] = struct{}{}
		flags = append(flags, o.Flag)
	}

	total = clamp(total, 0, 100)
	return domain.ScoreResult{
		TotalScore:     total,
		Flags:          flags,
		Recommendation: Recommend(total, th),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
