// Package rules holds the detection rules of the scoring pipeline.
//
// Rules are pure: every lookup and store read happens before evaluation and
// arrives through Evidence. A rule emits at most one flag and never more than
// its configured delta; missing or degraded evidence yields the zero outcome.
package rules

import (
	"time"

	"travelguard/antifraud/internal/domain"
	"travelguard/antifraud/internal/lookup"
)

// Rule names, in evaluation order.
const (
	NameGeo       = "geo"
	NameTimezone  = "timezone"
	NameEmail     = "email"
	NameVelocity  = "velocity"
	NameBot       = "bot"
	NameDevice    = "device"
	NameBlacklist = "blacklist"
)

// Rule is one detector.
type Rule interface {
	Name() string
	Evaluate(event *domain.Event, ev *Evidence) domain.RuleOutcome
}

// Evidence is everything the rules need beyond the event itself.
type Evidence struct {
	IPCountry     lookup.Result
	IssuerCountry lookup.Result

	// Prior checks inside the velocity window, not counting this one. A
	// count whose read failed carries its error and is ignored.
	EmailAttempts    int
	IPAttempts       int
	EmailAttemptsErr error
	IPAttemptsErr    error

	IPBlacklisted bool
	BlacklistErr  error

	Fingerprint     string
	FingerprintSeen int // prior sightings inside the fingerprint window
}

// Deltas are the score contributions of each flag.
type Deltas struct {
	GeoMismatch      int
	TimezoneMismatch int
	InvalidEmail     int
	TemporaryEmail   int
	SuspiciousEmail  int
	Velocity         int
	BotActivity      int
	TypingTooFast    int
	SuspiciousDevice int
	FrequentDevice   int
	IPBlacklisted    int
}

// DefaultDeltas returns the stock contributions.
func DefaultDeltas() Deltas {
	return Deltas{
		GeoMismatch:      30,
		TimezoneMismatch: 20,
		InvalidEmail:     25,
		TemporaryEmail:   25,
		SuspiciousEmail:  15,
		Velocity:         20,
		BotActivity:      20,
		TypingTooFast:    15,
		SuspiciousDevice: 10,
		FrequentDevice:   15,
		IPBlacklisted:    40,
	}
}

// Velocity and fingerprint defaults.
const (
	DefaultVelocityWindow   = 5 * time.Minute
	DefaultVelocityLimit    = 3
	DefaultFingerprintLimit = 10
)

// Config assembles a rule set.
type Config struct {
	Deltas            Deltas
	DisposableDomains []string // merged with DefaultDisposableDomains
	BotSignatures     []string // merged with DefaultBotSignatures
	VelocityLimit     int
	FingerprintLimit  int
}

// DefaultConfig returns the stock rule configuration.
func DefaultConfig() Config {
	return Config{
		Deltas:           DefaultDeltas(),
		VelocityLimit:    DefaultVelocityLimit,
		FingerprintLimit: DefaultFingerprintLimit,
	}
}

// NewSet builds the rules in evaluation order: geo, timezone, email,
// velocity, bot, device, blacklist.
func NewSet(cfg Config) []Rule {
	if cfg.VelocityLimit <= 0 {
		cfg.VelocityLimit = DefaultVelocityLimit
	}
	if cfg.FingerprintLimit <= 0 {
		cfg.FingerprintLimit = DefaultFingerprintLimit
	}
	d := cfg.Deltas
	return []Rule{
		&GeoRule{Delta: d.GeoMismatch},
		&TimezoneRule{Delta: d.TimezoneMismatch, Zones: CountryTimezones},
		NewEmailRule(d, cfg.DisposableDomains),
		&VelocityRule{Delta: d.Velocity, Limit: cfg.VelocityLimit},
		&BotRule{ActivityDelta: d.BotActivity, TypingDelta: d.TypingTooFast},
		NewDeviceRule(d, cfg.BotSignatures, cfg.FingerprintLimit),
		&BlacklistRule{Delta: d.IPBlacklisted},
	}
}

func none(rule string) domain.RuleOutcome {
	return domain.RuleOutcome{Rule: rule}
}

func noEvidence(rule, reason string) domain.RuleOutcome {
	return domain.RuleOutcome{Rule: rule, Details: map[string]any{"reason": reason}}
}

func flagged(rule, flag string, delta int, details map[string]any) domain.RuleOutcome {
	if delta < 0 {
		delta = 0
	}
	return domain.RuleOutcome{Rule: rule, ScoreDelta: delta, Flag: flag, Details: details}
}

// strongest folds the triggered conditions of a multi-flag rule, given in
// precedence order, into one outcome. The flag and details come from the
// first hit; the delta is the largest among all hits, so a further condition
// never lowers the rule's contribution.
func strongest(rule string, hits []domain.RuleOutcome) domain.RuleOutcome {
	if len(hits) == 0 {
		return none(rule)
	}
	out := hits[0]
	if len(hits) == 1 {
		return out
	}
	details := make(map[string]any, len(out.Details)+1)
	for k, v := range out.Details {
		details[k] = v
	}
	also := make([]string, 0, len(hits)-1)
	for _, h := range hits[1:] {
		out.ScoreDelta = max(out.ScoreDelta, h.ScoreDelta)
		also = append(also, h.Flag)
	}
	details["also"] = also
	out.Details = details
	return out
}
