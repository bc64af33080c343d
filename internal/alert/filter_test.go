package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"travelguard/antifraud/internal/domain"
)

func TestFilter_Match(t *testing.T) {
	review := &domain.Alert{Result: domain.ScoreResult{TotalScore: 60, Recommendation: domain.RecommendReview}}
	block := &domain.Alert{Result: domain.ScoreResult{TotalScore: 90, Recommendation: domain.RecommendBlock}}

	assert.True(t, Filter{}.match(review))
	assert.False(t, Filter{MinScore: 80}.match(review))
	assert.True(t, Filter{MinScore: 80}.match(block))

	onlyBlock := Filter{Recommendations: []domain.Recommendation{domain.RecommendBlock}}
	assert.False(t, onlyBlock.match(review))
	assert.True(t, onlyBlock.match(block))
}
