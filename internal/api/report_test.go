package api

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelguard/antifraud/internal/domain"
)

func rec(ip string, score int, rec domain.Recommendation, flags ...string) *domain.CheckRecord {
	return &domain.CheckRecord{IP: ip, RiskScore: score, Recommendation: rec, Flags: flags}
}

func TestBuildSummary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	checks := []*domain.CheckRecord{
		rec("1.1.1.1", 0, domain.RecommendAllow),
		rec("2.2.2.2", 55, domain.RecommendReview, domain.FlagGeoMismatch, domain.FlagTimezoneMismatch),
		rec("2.2.2.2", 85, domain.RecommendBlock, domain.FlagGeoMismatch, domain.FlagIPBlacklisted),
		rec("3.3.3.3", 60, domain.RecommendReview, domain.FlagTemporaryEmail),
	}

	s := buildSummary(checks, 7, 50, now)

	assert.Equal(t, now, s.GeneratedAt)
	assert.Equal(t, "last_7_days", s.Period)
	assert.Equal(t, 4, s.TotalChecks)
	assert.Equal(t, map[string]int{"allow": 1, "review": 2, "block": 1}, s.Distribution)
	assert.InDelta(t, 50.0, s.AvgRiskScore, 0.001)

	require.NotEmpty(t, s.TopFlags)
	assert.Equal(t, domain.FlagCount{Flag: domain.FlagGeoMismatch, Count: 2}, s.TopFlags[0])

	require.Len(t, s.SuspiciousIPs, 2)
	assert.Equal(t, domain.IPActivity{IP: "2.2.2.2", Checks: 2, AvgRiskScore: 70, MaxRiskScore: 85}, s.SuspiciousIPs[0])
	assert.Equal(t, "3.3.3.3", s.SuspiciousIPs[1].IP)
}

func TestBuildSummary_Empty(t *testing.T) {
	s := buildSummary(nil, 1, 50, time.Now())
	assert.Zero(t, s.TotalChecks)
	assert.Zero(t, s.AvgRiskScore)
	assert.Equal(t, 0, s.Distribution["block"])
	assert.NotNil(t, s.TopFlags)
	assert.NotNil(t, s.SuspiciousIPs)
}

func TestBuildSummary_Limits(t *testing.T) {
	var checks []*domain.CheckRecord
	for i := 0; i < 15; i++ {
		checks = append(checks, rec(fmt.Sprintf("10.0.0.%d", i), 90, domain.RecommendBlock, fmt.Sprintf("flag_%02d", i)))
	}
	s := buildSummary(checks, 7, 50, time.Now())
	assert.Len(t, s.TopFlags, topFlagsLimit)
	assert.Len(t, s.SuspiciousIPs, suspiciousIPsLimit)
	assert.Equal(t, "flag_00", s.TopFlags[0].Flag)
	assert.Equal(t, "10.0.0.0", s.SuspiciousIPs[0].IP)
}

func TestListAnomalies(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mk := func(id string, anomalyScore int, at time.Time, flags ...string) *domain.CheckRecord {
		return &domain.CheckRecord{
			ID:              id,
			AnomalyScore:    anomalyScore,
			Flags:           flags,
			CreatedAt:       at,
			AnomalyFeatures: map[string]float64{"typing_speed": 1200},
		}
	}
	checks := []*domain.CheckRecord{
		mk("quiet", 20, now),
		mk("low", 25, now, domain.FlagGeoMismatch, domain.FlagAnomalyLowRisk),
		mk("high-old", 80, now.Add(-time.Hour), domain.FlagAnomalyHighRisk),
		mk("high-new", 80, now, domain.FlagAnomalyHighRisk),
		mk("medium", 45, now, domain.FlagAnomalyMediumRisk),
	}

	got := listAnomalies(checks, 10)
	require.Len(t, got, 4, "a score of exactly 20 is not anomalous")
	ids := make([]string, len(got))
	for i, a := range got {
		ids[i] = a.CheckID
	}
	assert.Equal(t, []string{"high-new", "high-old", "medium", "low"}, ids)
	assert.Equal(t, domain.FlagAnomalyLowRisk, got[3].AnomalyType)
	assert.Equal(t, 1200.0, got[0].Features["typing_speed"])

	assert.Len(t, listAnomalies(checks, 2), 2)
	assert.NotNil(t, listAnomalies(nil, 10))
}
