// Package domain contains the types shared by the scoring pipeline and its
// collaborators. Keeping them in one place keeps the rule set easy to reason about.
package domain

import "time"

// ─── Recommendations ─────────────────────────────────────────────────────────

// Recommendation is the final verdict derived from the total score.
type Recommendation string

const (
	RecommendAllow  Recommendation = "allow"  // below the review threshold
	RecommendReview Recommendation = "review" // route to manual review
	RecommendBlock  Recommendation = "block"  // reject the checkout
)

// Rank orders recommendations by severity so callers can compare them.
func (r Recommendation) Rank() int {
	switch r {
	case RecommendBlock:
		return 2
	case RecommendReview:
		return 1
	default:
		return 0
	}
}

// ─── Flags ───────────────────────────────────────────────────────────────────

// Flags emitted by the rule set and the anomaly scorer.
const (
	FlagGeoMismatch         = "geo_mismatch"
	FlagTimezoneMismatch    = "timezone_mismatch"
	FlagTemporaryEmail      = "temporary_email"
	FlagSuspiciousEmail     = "suspicious_email"
	FlagInvalidEmail        = "invalid_email"
	FlagTooManyAttempts     = "too_many_attempts"
	FlagBotLikeActivity     = "bot_like_activity"
	FlagAutofillOrBot       = "autofill_or_bot"
	FlagSuspiciousDevice    = "suspicious_device"
	FlagSuspiciousUserAgent = "suspicious_user_agent"
	FlagSuspiciousScreen    = "suspicious_screen_resolution"
	FlagFrequentDevice      = "frequent_device_fingerprint"
	FlagIPBlacklisted       = "ip_blacklisted"
	FlagAnomalyHighRisk     = "ml_high_risk"
	FlagAnomalyMediumRisk   = "ml_medium_risk"
	FlagAnomalyLowRisk      = "ml_low_risk"
)

// ─── Scoring input ───────────────────────────────────────────────────────────

// Behavior holds client-side interaction metrics. Every field is optional;
// a nil pointer means the client did not report the metric.
type Behavior struct {
	SessionDurationMS  *int `json:"session_duration_ms,omitempty"`
	TypingIntervalMS   *int `json:"typing_speed_ms_avg,omitempty"` // average gap between keystrokes
	PointerMoves       *int `json:"mouse_moves_count,omitempty"`
	FirstInteractionMS *int `json:"first_click_delay_ms,omitempty"`
}

// Event is the immutable input to one scoring run. Behavior metrics are
// flattened into the JSON object the checkout widget posts.
type Event struct {
	Email      string         `json:"email"`
	IP         string         `json:"ip,omitempty"`
	CardPrefix string         `json:"bin,omitempty"` // first six digits of the card
	UserAgent  string         `json:"user_agent,omitempty"`
	Timezone   string         `json:"timezone,omitempty"` // IANA zone declared by the browser
	Language   string         `json:"language,omitempty"`
	Device     map[string]any `json:"device_info,omitempty"`
	Behavior
}

// Int returns a pointer to v. Handy for building Behavior values.
func Int(v int) *int { return &v }

// ─── Scoring output ──────────────────────────────────────────────────────────

// RuleOutcome is what a single rule (or the anomaly scorer) contributes.
// A zero ScoreDelta with an empty Flag means "no evidence".
type RuleOutcome struct {
	Rule       string         `json:"rule"`
	ScoreDelta int            `json:"score_delta"`
	Flag       string         `json:"flag,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Triggered reports whether the outcome carries a flag.
func (o RuleOutcome) Triggered() bool { return o.Flag != "" }

// ScoreResult is the externally visible artifact of a scoring run.
type ScoreResult struct {
	TotalScore     int            `json:"risk_score"`
	Flags          []string       `json:"fraud_flags"`
	Recommendation Recommendation `json:"recommendation"`
}

// HasFlag reports whether flag is present in the result.
func (r ScoreResult) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// ─── Records ─────────────────────────────────────────────────────────────────

// CheckRecord is one completed scoring run as kept by the record store.
// The velocity rule counts these; reports aggregate over them.
type CheckRecord struct {
	ID             string         `json:"check_id"`
	Email          string         `json:"email"`
	IP             string         `json:"ip"`
	CardPrefix     string         `json:"bin,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	IPCountry      string         `json:"ip_country,omitempty"`
	IssuerCountry  string         `json:"bin_country,omitempty"`
	Timezone       string         `json:"timezone,omitempty"`
	RiskScore      int            `json:"risk_score"`
	Flags          []string       `json:"fraud_flags"`
	Recommendation Recommendation `json:"recommendation"`
	AnomalyScore   int            `json:"anomaly_score"`
	CreatedAt      time.Time      `json:"created_at"`

	// AnomalyFeatures are the behaviour features the anomaly scorer saw.
	AnomalyFeatures map[string]float64 `json:"anomaly_features,omitempty"`
}

// BlacklistEntry marks an IP address as known-bad.
type BlacklistEntry struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ─── Alerts ──────────────────────────────────────────────────────────────────

// EventSummary is the subset of an Event that is safe to ship to observers.
type EventSummary struct {
	CheckID string `json:"check_id,omitempty"`
	Email   string `json:"email"`
	IP      string `json:"ip,omitempty"`
}

// Alert is the payload fanned out when a score crosses the review threshold.
type Alert struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"` // always "fraud_alert"
	TriggeredAt  time.Time    `json:"timestamp"`
	Result       ScoreResult  `json:"result"`
	Event        EventSummary `json:"event"`
	AnomalyScore int          `json:"anomaly_score"`
}

// AlertType is the Type of every Alert.
const AlertType = "fraud_alert"

// ─── Reporting ───────────────────────────────────────────────────────────────

// Summary is the read-only analytics view over recent checks.
type Summary struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	Period        string         `json:"period"`
	TotalChecks   int            `json:"total_checks"`
	Distribution  map[string]int `json:"risk_distribution"` // recommendation → count
	AvgRiskScore  float64        `json:"avg_risk_score"`
	TopFlags      []FlagCount    `json:"top_flags"`
	SuspiciousIPs []IPActivity   `json:"suspicious_ips"`
}

// FlagCount is how often a flag fired in the summary window.
type FlagCount struct {
	Flag  string `json:"flag"`
	Count int    `json:"count"`
}

// IPActivity aggregates checks that came from one IP.
type IPActivity struct {
	IP           string  `json:"ip"`
	Checks       int     `json:"checks"`
	AvgRiskScore float64 `json:"avg_risk_score"`
	MaxRiskScore int     `json:"max_risk_score"`
}
