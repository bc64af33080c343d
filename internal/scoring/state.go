package scoring

import (
	"errors"
	"maps"
	"time"

	"travelguard/antifraud/internal/anomaly"
	"travelguard/antifraud/internal/domain"
	"travelguard/antifraud/internal/rules"
)

// State is a step of a scoring run.
type State string

const (
	StateRateLimited  State = "rate_limited"
	StateAdmitted     State = "admitted"
	StateRulesRunning State = "rules_running"
	StateAggregating  State = "aggregating"
	StateCompleted    State = "completed"
)

// next lists the legal successors of each state. RateLimited and Completed
// are terminal.
var next = map[State]State{
	StateAdmitted:     StateRulesRunning,
	StateRulesRunning: StateAggregating,
	StateAggregating:  StateCompleted,
}

// ErrRateLimited is matched by every *RateLimitedError.
var ErrRateLimited = errors.New("rate limited")

// RateLimitedError reports which gate rejected the run.
type RateLimitedError struct {
	Scope string // "ip" or "email"
	Key   string
}

func (e *RateLimitedError) Error() string { return "rate limited: " + e.Scope }

// Is makes errors.Is(err, ErrRateLimited) hold.
func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// Assessment is the full trace of one run.
type Assessment struct {
	ID          string
	Event       *domain.Event
	Evidence    rules.Evidence
	Outcomes    []domain.RuleOutcome // rules in order, then the anomaly outcome
	Anomaly     anomaly.Report
	Result      domain.ScoreResult
	States      []State
	StartedAt   time.Time
	CompletedAt time.Time
}

// State returns the current state.
func (a *Assessment) State() State {
	if len(a.States) == 0 {
		return ""
	}
	return a.States[len(a.States)-1]
}

// advance moves to the successor of the current state. It reports false,
// leaving the assessment unchanged, if to is not that successor.
func (a *Assessment) advance(to State) bool {
	if want, ok := next[a.State()]; !ok || want != to {
		return false
	}
	a.States = append(a.States, to)
	return true
}

// Record converts a completed assessment into the record the store keeps.
func (a *Assessment) Record() *domain.CheckRecord {
	return &domain.CheckRecord{
		ID:             a.ID,
		Email:          a.Event.Email,
		IP:             a.Event.IP,
		CardPrefix:     a.Event.CardPrefix,
		UserAgent:      a.Event.UserAgent,
		IPCountry:      a.Evidence.IPCountry.Country,
		IssuerCountry:  a.Evidence.IssuerCountry.Country,
		Timezone:       a.Event.Timezone,
		RiskScore:      a.Result.TotalScore,
		Flags:          append([]string{}, a.Result.Flags...),
		Recommendation: a.Result.Recommendation,
		AnomalyScore:   a.Anomaly.Score,
		CreatedAt:      a.CompletedAt,

		AnomalyFeatures: maps.Clone(a.Anomaly.Features),
	}
}
