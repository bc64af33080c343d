// Package scoring runs the risk-scoring pipeline.
//
// A run moves through admission (IP gate, then account gate), evidence
// gathering (lookups and store reads in parallel), the rules in their static
// order, the anomaly scorer and aggregation. The engine never writes to the
// record store; the caller persists Assessment.Record() after a run so the
// current check is not counted against itself.
package scoring

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"travelguard/antifraud/internal/anomaly"
	"travelguard/antifraud/internal/cache"
	"travelguard/antifraud/internal/domain"
	"travelguard/antifraud/internal/logging"
	"travelguard/antifraud/internal/lookup"
	"travelguard/antifraud/internal/metrics"
	"travelguard/antifraud/internal/ratelimit"
	"travelguard/antifraud/internal/rules"
	"travelguard/antifraud/internal/store"
	"travelguard/antifraud/internal/traces"
)

// History is the read side of the record store the engine needs.
type History interface {
	CountSince(ctx context.Context, field store.Field, value string, since time.Time) (int, error)
	IsBlacklisted(ctx context.Context, ip string) (bool, error)
}

// CountryLookup resolves a key to a country.
type CountryLookup interface {
	Lookup(ctx context.Context, key string) lookup.Result
}

// Notifier receives alerts for risky results. Notify must not block.
type Notifier interface {
	Notify(alert domain.Alert)
}

// Config holds the engine's tunables.
type Config struct {
	Thresholds     Thresholds
	VelocityWindow time.Duration // default 5m
	StoreTimeout   time.Duration // per store read, default 1s
	FingerprintTTL time.Duration // default 1h
}

// Deps are the engine's collaborators. Alerts may be nil.
type Deps struct {
	IPGate       *ratelimit.Gate
	AccountGate  *ratelimit.Gate
	Geo          CountryLookup
	Issuer       CountryLookup
	History      History
	Fingerprints *cache.Counter
	Rules        []rules.Rule
	Anomaly      *anomaly.Scorer
	Alerts       Notifier
	Logger       *slog.Logger
}

// Engine scores checkout events.
type Engine struct {
	cfg  Config
	deps Deps
	now  func() time.Time
}

// New creates an engine.
func New(cfg Config, deps Deps) *Engine {
	if cfg.VelocityWindow <= 0 {
		cfg.VelocityWindow = rules.DefaultVelocityWindow
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = time.Second
	}
	if cfg.FingerprintTTL <= 0 {
		cfg.FingerprintTTL = time.Hour
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{cfg: cfg, deps: deps, now: time.Now}
}

// Thresholds returns the configured cut-offs.
func (e *Engine) Thresholds() Thresholds { return e.cfg.Thresholds }

// Score runs the pipeline and returns only the result.
func (e *Engine) Score(ctx context.Context, event *domain.Event) (domain.ScoreResult, error) {
	a, err := e.Evaluate(ctx, event)
	if err != nil {
		return domain.ScoreResult{}, err
	}
	return a.Result, nil
}

// Evaluate runs the pipeline and returns its full trace. The only error is a
// *RateLimitedError; lookup and store failures degrade to "no evidence".
func (e *Engine) Evaluate(ctx context.Context, event *domain.Event) (*Assessment, error) {
	start := e.now()
	a := &Assessment{ID: uuid.NewString(), Event: event, StartedAt: start}

	ctx, span := traces.StartSpan(ctx, "scoring.evaluate", traces.CheckID(a.ID))
	defer span.End()
	log := e.deps.Logger.With("check_id", a.ID)
	if id := logging.RequestID(ctx); id != "" {
		log = log.With("request_id", id)
	}

	if rl := e.admit(ctx, event); rl != nil {
		a.States = []State{StateRateLimited}
		metrics.RateLimitedTotal.WithLabelValues(rl.Scope).Inc()
		span.SetAttributes(traces.Scope(rl.Scope))
		log.Info("check rate limited", "scope", rl.Scope)
		return a, rl
	}
	a.States = []State{StateAdmitted}

	a.Evidence = e.gather(ctx, event)

	a.advance(StateRulesRunning)
	a.Outcomes = make([]domain.RuleOutcome, 0, len(e.deps.Rules)+1)
	for _, r := range e.deps.Rules {
		a.Outcomes = append(a.Outcomes, r.Evaluate(event, &a.Evidence))
	}
	if e.deps.Anomaly != nil {
		a.Anomaly = e.deps.Anomaly.Score(event, &a.Evidence)
		a.Outcomes = append(a.Outcomes, e.deps.Anomaly.Outcome(a.Anomaly))
	}
	for _, o := range a.Outcomes {
		if o.Triggered() {
			metrics.RuleTriggersTotal.WithLabelValues(o.Rule, o.Flag).Inc()
			log.Debug("rule triggered", "rule", o.Rule, "flag", o.Flag, "delta", o.ScoreDelta)
		}
	}

	a.advance(StateAggregating)
	a.Result = Aggregate(a.Outcomes, e.cfg.Thresholds)

	a.advance(StateCompleted)
	a.CompletedAt = e.now()

	metrics.ChecksTotal.WithLabelValues(string(a.Result.Recommendation)).Inc()
	metrics.ScoreDuration.Observe(a.CompletedAt.Sub(start).Seconds())
	span.SetAttributes(traces.Score(a.Result.TotalScore), traces.Recommendation(string(a.Result.Recommendation)))
	log.Info("check scored",
		"risk_score", a.Result.TotalScore,
		"recommendation", a.Result.Recommendation,
		"flags", a.Result.Flags,
		"anomaly_score", a.Anomaly.Score,
	)

	if a.Result.TotalScore >= e.cfg.Thresholds.Review && e.deps.Alerts != nil {
		e.deps.Alerts.Notify(domain.Alert{
			ID:           uuid.NewString(),
			Type:         domain.AlertType,
			TriggeredAt:  a.CompletedAt.UTC(),
			Result:       a.Result,
			Event:        domain.EventSummary{CheckID: a.ID, Email: event.Email, IP: event.IP},
			AnomalyScore: a.Anomaly.Score,
		})
	}
	return a, nil
}

// admit checks the IP gate, then the account gate.
func (e *Engine) admit(ctx context.Context, event *domain.Event) *RateLimitedError {
	ipKey := strings.TrimSpace(event.IP)
	if ipKey == "" {
		ipKey = ratelimit.UnknownKey
	}
	if g := e.deps.IPGate; g != nil && !g.Admit(ctx, ipKey) {
		return &RateLimitedError{Scope: g.Scope, Key: ipKey}
	}

	email := strings.ToLower(strings.TrimSpace(event.Email))
	if g := e.deps.AccountGate; g != nil && email != "" && !g.Admit(ctx, email) {
		return &RateLimitedError{Scope: g.Scope, Key: email}
	}
	return nil
}

// gather collects evidence concurrently. Every branch folds its own failure
// into the evidence, so the group never returns an error.
func (e *Engine) gather(ctx context.Context, event *domain.Event) rules.Evidence {
	ctx, span := traces.StartSpan(ctx, "scoring.gather")
	defer span.End()

	var (
		ev                    rules.Evidence
		emailCount, ipCount   int
		emailErr, ipErr       error
		blacklisted           bool
		blacklistErr          error
		ipCountry, binCountry lookup.Result
	)
	since := e.now().Add(-e.cfg.VelocityWindow)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ipCountry = e.lookup(gctx, e.deps.Geo, event.IP)
		return nil
	})
	g.Go(func() error {
		binCountry = e.lookup(gctx, e.deps.Issuer, event.CardPrefix)
		return nil
	})
	if e.deps.History != nil {
		g.Go(func() error {
			emailCount, emailErr = e.count(gctx, store.FieldEmail, strings.TrimSpace(event.Email), since)
			return nil
		})
		g.Go(func() error {
			ipCount, ipErr = e.count(gctx, store.FieldIP, strings.TrimSpace(event.IP), since)
			return nil
		})
		g.Go(func() error {
			blacklisted, blacklistErr = e.blacklisted(gctx, strings.TrimSpace(event.IP))
			return nil
		})
	}
	_ = g.Wait()

	ev.IPCountry, ev.IssuerCountry = ipCountry, binCountry
	ev.EmailAttempts, ev.IPAttempts = emailCount, ipCount
	ev.EmailAttemptsErr, ev.IPAttemptsErr = emailErr, ipErr
	ev.IPBlacklisted, ev.BlacklistErr = blacklisted, blacklistErr

	if fp := rules.Fingerprint(event); fp != "" && e.deps.Fingerprints != nil {
		ev.Fingerprint = fp
		ev.FingerprintSeen = e.deps.Fingerprints.Incr(fp, e.cfg.FingerprintTTL)
	}
	return ev
}

func (e *Engine) lookup(ctx context.Context, c CountryLookup, key string) lookup.Result {
	if c == nil {
		return lookup.Degraded("lookup not configured")
	}
	return c.Lookup(ctx, key)
}

func (e *Engine) count(ctx context.Context, field store.Field, value string, since time.Time) (int, error) {
	if value == "" {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	n, err := e.deps.History.CountSince(ctx, field, value, since)
	if err != nil {
		e.deps.Logger.Warn("velocity count failed", "field", field, "error", err)
		return 0, err
	}
	return n, nil
}

func (e *Engine) blacklisted(ctx context.Context, ip string) (bool, error) {
	if ip == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	ok, err := e.deps.History.IsBlacklisted(ctx, ip)
	if err != nil {
		e.deps.Logger.Warn("blacklist check failed", "error", err)
		return false, err
	}
	return ok, nil
}
