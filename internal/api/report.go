package api

import (
	"fmt"
	"sort"
	"time"

	"travelguard/antifraud/internal/anomaly"
	"travelguard/antifraud/internal/domain"
)

const (
	topFlagsLimit      = 10
	suspiciousIPsLimit = 10
)

// Anomaly is one entry of the anomaly listing.
type Anomaly struct {
	CheckID      string             `json:"check_id"`
	Email        string             `json:"email"`
	IP           string             `json:"ip,omitempty"`
	AnomalyScore int                `json:"anomaly_score"`
	AnomalyType  string             `json:"anomaly_type"`
	RiskScore    int                `json:"risk_score"`
	Features     map[string]float64 `json:"features"`
	CreatedAt    time.Time          `json:"created_at"`
}

// listAnomalies keeps checks whose anomaly score raised a flag, highest
// score first and newest first among equals, up to limit.
func listAnomalies(checks []*domain.CheckRecord, limit int) []Anomaly {
	out := []Anomaly{}
	for _, c := range checks {
		if c.AnomalyScore <= anomaly.LowRiskAbove {
			continue
		}
		features := c.AnomalyFeatures
		if features == nil {
			features = map[string]float64{}
		}
		out = append(out, Anomaly{
			CheckID:      c.ID,
			Email:        c.Email,
			IP:           c.IP,
			AnomalyScore: c.AnomalyScore,
			AnomalyType:  anomalyType(c.Flags),
			RiskScore:    c.RiskScore,
			Features:     features,
			CreatedAt:    c.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AnomalyScore != out[j].AnomalyScore {
			return out[i].AnomalyScore > out[j].AnomalyScore
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func anomalyType(flags []string) string {
	for _, f := range flags {
		switch f {
		case domain.FlagAnomalyHighRisk, domain.FlagAnomalyMediumRisk, domain.FlagAnomalyLowRisk:
			return f
		}
	}
	return ""
}

// buildSummary aggregates checks into the analytics view. An IP is
// suspicious once any of its checks scored at or above review.
func buildSummary(checks []*domain.CheckRecord, days, review int, now time.Time) domain.Summary {
	dist := map[string]int{
		string(domain.RecommendAllow):  0,
		string(domain.RecommendReview): 0,
		string(domain.RecommendBlock):  0,
	}
	flagCounts := make(map[string]int)
	byIP := make(map[string]*ipAgg)
	var totalScore int

	for _, c := range checks {
		dist[string(c.Recommendation)]++
		totalScore += c.RiskScore
		for _, f := range c.Flags {
			flagCounts[f]++
		}
		if c.IP == "" {
			continue
		}
		agg := byIP[c.IP]
		if agg == nil {
			agg = &ipAgg{}
			byIP[c.IP] = agg
		}
		agg.checks++
		agg.total += c.RiskScore
		agg.max = max(agg.max, c.RiskScore)
	}

	var avg float64
	if len(checks) > 0 {
		avg = float64(totalScore) / float64(len(checks))
	}

	return domain.Summary{
		GeneratedAt:   now,
		Period:        fmt.Sprintf("last_%d_days", days),
		TotalChecks:   len(checks),
		Distribution:  dist,
		AvgRiskScore:  avg,
		TopFlags:      topFlags(flagCounts),
		SuspiciousIPs: suspiciousIPs(byIP, review),
	}
}

type ipAgg struct {
	checks, total, max int
}

// topFlags sorts by count descending, then flag name.
func topFlags(counts map[string]int) []domain.FlagCount {
	out := make([]domain.FlagCount, 0, len(counts))
	for f, n := range counts {
		out = append(out, domain.FlagCount{Flag: f, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Flag < out[j].Flag
	})
	if len(out) > topFlagsLimit {
		out = out[:topFlagsLimit]
	}
	return out
}

// suspiciousIPs sorts by max score, then check count, then IP.
func suspiciousIPs(byIP map[string]*ipAgg, review int) []domain.IPActivity {
	out := make([]domain.IPActivity, 0)
	for ip, a := range byIP {
		if a.max < review {
			continue
		}
		out = append(out, domain.IPActivity{
			IP:           ip,
			Checks:       a.checks,
			AvgRiskScore: float64(a.total) / float64(a.checks),
			MaxRiskScore: a.max,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		switch {
		case out[i].MaxRiskScore != out[j].MaxRiskScore:
			return out[i].MaxRiskScore > out[j].MaxRiskScore
		case out[i].Checks != out[j].Checks:
			return out[i].Checks > out[j].Checks
		default:
			return out[i].IP < out[j].IP
		}
	})
	if len(out) > suspiciousIPsLimit {
		out = out[:suspiciousIPsLimit]
	}
	return out
}
