// Package anomaly scores how far a checkout's behavior strays from the
// ranges seen in ordinary human sessions. It is deterministic feature
// thresholding; nothing is learned.
package anomaly

import (
	"fmt"
	"math"

	"travelguard/antifraud/internal/domain"
	"travelguard/antifraud/internal/rules"
)

// RuleName labels the scorer's outcome.
const RuleName = "anomaly"

// Feature names.
const (
	FeatureTypingSpeed      = "typing_speed"
	FeaturePointerMoves     = "pointer_moves"
	FeatureSessionDuration  = "session_duration"
	FeatureFirstClick       = "first_click_time"
	FeatureDeviceUniqueness = "device_uniqueness"
	FeatureGeoMismatch      = "geo_mismatch"
)

// Range is the inclusive band of normal values for a feature.
type Range struct {
	Min, Max float64
}

// Fixed penalties.
const (
	penaltyCommonDevice = 30
	penaltyGeoMismatch  = 25
	penaltyAutomation   = 40

	commonDeviceBelow = 0.1
)

// Config parameterizes a Scorer.
type Config struct {
	Weights  map[string]float64
	Ranges   map[string]Range
	MaxDelta int // score delta at an anomaly score of 100
}

// DefaultConfig returns the stock weights and ranges.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			FeatureTypingSpeed:      0.15,
			FeaturePointerMoves:     0.20,
			FeatureSessionDuration:  0.10,
			FeatureFirstClick:       0.15,
			FeatureDeviceUniqueness: 0.25,
			FeatureGeoMismatch:      0.15,
		},
		Ranges: map[string]Range{
			FeatureTypingSpeed:     {50, 200},  // chars per minute
			FeaturePointerMoves:    {10, 100},  // moves per session
			FeatureSessionDuration: {30, 1800}, // seconds
			FeatureFirstClick:      {1, 30},    // seconds
		},
		MaxDelta: 20,
	}
}

// Deviation is one feature outside its normal range.
type Deviation struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Score   float64 `json:"score"` // 0..1
	Kind    string  `json:"type"`  // low_<feature> or high_<feature>
}

// Report is the full result of scoring one event.
type Report struct {
	Score      int                `json:"score"`
	Flag       string             `json:"flag,omitempty"`
	Features   map[string]float64 `json:"features"`
	Deviations []Deviation        `json:"deviations,omitempty"`
	Penalties  []string           `json:"penalties,omitempty"`
}

// Scorer computes anomaly reports.
type Scorer struct {
	cfg Config
}

// New creates a scorer.
func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score extracts features from the event and its evidence and scores them.
// Metrics the client did not report are left out rather than read as zero.
func (s *Scorer) Score(event *domain.Event, ev *rules.Evidence) Report {
	features := Extract(event, ev)
	r := Report{Features: features}

	total := 0
	for _, name := range []string{FeatureTypingSpeed, FeaturePointerMoves, FeatureSessionDuration, FeatureFirstClick} {
		v, present := features[name]
		rng, ranged := s.cfg.Ranges[name]
		if !present || !ranged {
			continue
		}
		d, kind := deviation(v, rng)
		if d == 0 {
			continue
		}
		r.Deviations = append(r.Deviations, Deviation{Feature: name, Value: v, Score: d, Kind: kind + "_" + name})
		total += int(d * 50 * s.cfg.Weights[name])
	}

	if u, ok := features[FeatureDeviceUniqueness]; ok && u < commonDeviceBelow {
		total += penaltyCommonDevice
		r.Penalties = append(r.Penalties, "common_device")
	}
	if features[FeatureGeoMismatch] == 1 {
		total += penaltyGeoMismatch
		r.Penalties = append(r.Penalties, "geo_mismatch")
	}
	if automationCombo(features) {
		total += penaltyAutomation
		r.Penalties = append(r.Penalties, "automation_combo")
	}

	r.Score = clamp(total, 0, 100)
	r.Flag = flagFor(r.Score)
	return r
}

// Outcome turns a report into a rule outcome. The delta is the anomaly score
// scaled into [0, MaxDelta].
func (s *Scorer) Outcome(r Report) domain.RuleOutcome {
	out := domain.RuleOutcome{
		Rule: RuleName,
		Details: map[string]any{
			"anomaly_score": r.Score,
			"features":      r.Features,
		},
	}
	if len(r.Deviations) > 0 {
		out.Details["deviations"] = r.Deviations
	}
	if len(r.Penalties) > 0 {
		out.Details["penalties"] = r.Penalties
	}
	if r.Flag == "" {
		return out
	}
	out.Flag = r.Flag
	out.ScoreDelta = int(math.Round(float64(r.Score) * float64(max(s.cfg.MaxDelta, 0)) / 100))
	return out
}

// Extract derives the scoring features. Absent inputs produce absent keys.
func Extract(event *domain.Event, ev *rules.Evidence) map[string]float64 {
	f := make(map[string]float64, 6)
	b := event.Behavior

	if b.TypingIntervalMS != nil && *b.TypingIntervalMS > 0 {
		f[FeatureTypingSpeed] = 60000 / float64(*b.TypingIntervalMS)
	}
	if b.PointerMoves != nil {
		f[FeaturePointerMoves] = float64(*b.PointerMoves)
	}
	if b.SessionDurationMS != nil {
		f[FeatureSessionDuration] = float64(*b.SessionDurationMS) / 1000
	}
	if b.FirstInteractionMS != nil {
		f[FeatureFirstClick] = float64(*b.FirstInteractionMS) / 1000
	}
	if ev.Fingerprint != "" {
		f[FeatureDeviceUniqueness] = 1 / (1 + float64(ev.FingerprintSeen))
	}
	if ev.IPCountry.OK() && ev.IssuerCountry.OK() {
		f[FeatureGeoMismatch] = 0
		if ev.IPCountry.Country != ev.IssuerCountry.Country {
			f[FeatureGeoMismatch] = 1
		}
	}
	return f
}

// deviation returns min(1, distance/bound) for a value outside rng.
func deviation(v float64, rng Range) (float64, string) {
	switch {
	case v < rng.Min:
		if rng.Min == 0 {
			return 1, "low"
		}
		return math.Min(1, (rng.Min-v)/rng.Min), "low"
	case v > rng.Max:
		if rng.Max == 0 {
			return 1, "high"
		}
		return math.Min(1, (v-rng.Max)/rng.Max), "high"
	default:
		return 0, ""
	}
}

// automationCombo requires all three signals: typing faster than any person,
// almost no pointer movement and a near-instant first click.
func automationCombo(f map[string]float64) bool {
	typing, okT := f[FeatureTypingSpeed]
	pointer, okP := f[FeaturePointerMoves]
	click, okC := f[FeatureFirstClick]
	return okT && okP && okC && typing > 300 && pointer < 5 && click < 0.5
}

// LowRiskAbove is the score above which a run counts as anomalous.
const LowRiskAbove = 20

func flagFor(score int) string {
	switch {
	case score > 70:
		return domain.FlagAnomalyHighRisk
	case score > 40:
		return domain.FlagAnomalyMediumRisk
	case score > LowRiskAbove:
		return domain.FlagAnomalyLowRisk
	default:
		return ""
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

// String renders the report compactly for logs.
func (r Report) String() string {
	return fmt.Sprintf("anomaly score=%d flag=%q deviations=%d penalties=%v", r.Score, r.Flag, len(r.Deviations), r.Penalties)
}
