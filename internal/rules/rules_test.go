package rules_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelguard/antifraud/internal/domain"
	"travelguard/antifraud/internal/lookup"
	"travelguard/antifraud/internal/rules"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// baseEvent returns a clean, human-looking checkout from Brazil.
func baseEvent() *domain.Event {
	return &domain.Event{
		Email:      "maria.silva@example.com",
		IP:         "177.10.20.30",
		CardPrefix: "453211",
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/122.0 Safari/537.36",
		Timezone:   "America/Sao_Paulo",
		Device: map[string]any{
			"platform": "Win32",
			"screen":   map[string]any{"width": 1920.0, "height": 1080.0},
		},
		Behavior: domain.Behavior{
			SessionDurationMS:  domain.Int(95000),
			TypingIntervalMS:   domain.Int(180),
			PointerMoves:       domain.Int(64),
			FirstInteractionMS: domain.Int(4200),
		},
	}
}

func baseEvidence() *rules.Evidence {
	return &rules.Evidence{
		IPCountry:     lookup.Found("BR", "ipapi"),
		IssuerCountry: lookup.Found("BR", "bintable"),
		Fingerprint:   "abc",
	}
}

func ruleByName(t *testing.T, name string) rules.Rule {
	t.Helper()
	for _, r := range rules.NewSet(rules.DefaultConfig()) {
		if r.Name() == name {
			return r
		}
	}
	t.Fatalf("no rule %q", name)
	return nil
}

func eval(t *testing.T, name string, event *domain.Event, ev *rules.Evidence) domain.RuleOutcome {
	t.Helper()
	out := ruleByName(t, name).Evaluate(event, ev)
	assert.Equal(t, name, out.Rule)
	return out
}

// ─── Set ─────────────────────────────────────────────────────────────────────

func TestNewSet_Order(t *testing.T) {
	var names []string
	for _, r := range rules.NewSet(rules.DefaultConfig()) {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"geo", "timezone", "email", "velocity", "bot", "device", "blacklist"}, names)
}

func TestCleanEvent_NoRuleFires(t *testing.T) {
	for _, r := range rules.NewSet(rules.DefaultConfig()) {
		out := r.Evaluate(baseEvent(), baseEvidence())
		assert.False(t, out.Triggered(), "rule %s fired: %+v", r.Name(), out)
		assert.Zero(t, out.ScoreDelta, r.Name())
	}
}

// ─── Geo ─────────────────────────────────────────────────────────────────────

func TestGeo_Mismatch(t *testing.T) {
	ev := baseEvidence()
	ev.IssuerCountry = lookup.Found("US", "bintable")

	out := eval(t, rules.NameGeo, baseEvent(), ev)
	assert.Equal(t, domain.FlagGeoMismatch, out.Flag)
	assert.Equal(t, 30, out.ScoreDelta)
	assert.Equal(t, "BR", out.Details["ip_country"])
	assert.Equal(t, "US", out.Details["bin_country"])
}

func TestGeo_DegradedLookupIsNoEvidence(t *testing.T) {
	ev := baseEvidence()
	ev.IPCountry = lookup.TimedOut("ipapi: context deadline exceeded")

	out := eval(t, rules.NameGeo, baseEvent(), ev)
	assert.False(t, out.Triggered())
	assert.Zero(t, out.ScoreDelta)
	assert.Contains(t, out.Details["reason"], "deadline")
}

// ─── Timezone ────────────────────────────────────────────────────────────────

func TestTimezone_Mismatch(t *testing.T) {
	e := baseEvent()
	e.Timezone = "Asia/Tokyo"
	out := eval(t, rules.NameTimezone, e, baseEvidence())
	assert.Equal(t, domain.FlagTimezoneMismatch, out.Flag)
	assert.Equal(t, 20, out.ScoreDelta)
}

func TestTimezone_CaseInsensitiveMatch(t *testing.T) {
	e := baseEvent()
	e.Timezone = "america/sao_paulo"
	assert.False(t, eval(t, rules.NameTimezone, e, baseEvidence()).Triggered())
}

func TestTimezone_UnknownCountryNeverFlags(t *testing.T) {
	ev := baseEvidence()
	ev.IPCountry = lookup.Found("KE", "ipapi")
	e := baseEvent()
	e.Timezone = "Europe/Paris"
	assert.False(t, eval(t, rules.NameTimezone, e, ev).Triggered())
}

func TestTimezone_FallsBackToDeviceInfo(t *testing.T) {
	e := baseEvent()
	e.Timezone = ""
	e.Device["timezone"] = "Europe/Berlin"
	assert.True(t, eval(t, rules.NameTimezone, e, baseEvidence()).Triggered())
}

func TestTimezone_EmptyTimezone(t *testing.T) {
	e := baseEvent()
	e.Timezone = ""
	assert.False(t, eval(t, rules.NameTimezone, e, baseEvidence()).Triggered())
}

// ─── Email ───────────────────────────────────────────────────────────────────

func TestEmail(t *testing.T) {
	tests := []struct {
		email string
		flag  string
		delta int
	}{
		{"maria.silva@example.com", "", 0},
		{"not-an-email", domain.FlagInvalidEmail, 25},
		{"user@localhost", domain.FlagInvalidEmail, 25},
		{"", domain.FlagInvalidEmail, 25},
		{"Bob <bob@example.com>", domain.FlagInvalidEmail, 25},
		{"maria@mailinator.com", domain.FlagTemporaryEmail, 25},
		{"MARIA@YopMail.com", domain.FlagTemporaryEmail, 25},
		{"12345@mailinator.com", domain.FlagTemporaryEmail, 25}, // disposable outranks pattern
		{"ab@example.com", domain.FlagSuspiciousEmail, 15},
		{"1234567@example.com", domain.FlagSuspiciousEmail, 15},
		{"john1234567@example.com", domain.FlagSuspiciousEmail, 15},
		{"xkcdqrtz@example.com", domain.FlagSuspiciousEmail, 15},
		{"a.very.long.local.part.that.goes.on.and.on.x@example.com", domain.FlagSuspiciousEmail, 15},
		{"john1985@example.com", "", 0},
	}
	for _, tt := range tests {
		e := baseEvent()
		e.Email = tt.email
		out := eval(t, rules.NameEmail, e, baseEvidence())
		assert.Equal(t, tt.flag, out.Flag, tt.email)
		assert.Equal(t, tt.delta, out.ScoreDelta, tt.email)
	}
}

func TestEmail_ExtraDisposableDomains(t *testing.T) {
	r := rules.NewEmailRule(rules.DefaultDeltas(), []string{" Burner.IO "})
	e := baseEvent()
	e.Email = "maria@burner.io"
	assert.Equal(t, domain.FlagTemporaryEmail, r.Evaluate(e, baseEvidence()).Flag)
}

// ─── Velocity ────────────────────────────────────────────────────────────────

func TestVelocity_ThirdAttemptPasses_FourthTriggers(t *testing.T) {
	ev := baseEvidence()
	ev.EmailAttempts = 2
	assert.False(t, eval(t, rules.NameVelocity, baseEvent(), ev).Triggered())

	ev.EmailAttempts = 3
	out := eval(t, rules.NameVelocity, baseEvent(), ev)
	assert.Equal(t, domain.FlagTooManyAttempts, out.Flag)
	assert.Equal(t, 20, out.ScoreDelta)
}

func TestVelocity_IPAloneTriggers(t *testing.T) {
	ev := baseEvidence()
	ev.IPAttempts = 5
	assert.True(t, eval(t, rules.NameVelocity, baseEvent(), ev).Triggered())
}

func TestVelocity_StoreErrorIsNoEvidence(t *testing.T) {
	ev := baseEvidence()
	ev.EmailAttempts = 10
	ev.EmailAttemptsErr = errors.New("store timeout")
	ev.IPAttemptsErr = errors.New("store timeout")
	out := eval(t, rules.NameVelocity, baseEvent(), ev)
	assert.False(t, out.Triggered())
	assert.Equal(t, "store timeout", out.Details["reason"])
}

func TestVelocity_FailedEmailCountStillJudgesIP(t *testing.T) {
	ev := baseEvidence()
	ev.EmailAttemptsErr = errors.New("store timeout")
	ev.IPAttempts = 5
	out := eval(t, rules.NameVelocity, baseEvent(), ev)
	assert.Equal(t, domain.FlagTooManyAttempts, out.Flag)
	assert.Equal(t, 20, out.ScoreDelta)
	assert.Equal(t, 6, out.Details["ip_attempts"])
	assert.Equal(t, "store timeout", out.Details["email_error"])
	assert.NotContains(t, out.Details, "email_attempts")
}

func TestVelocity_FailedIPCountStillJudgesEmail(t *testing.T) {
	ev := baseEvidence()
	ev.IPAttemptsErr = errors.New("store timeout")
	ev.EmailAttempts = 3
	assert.True(t, eval(t, rules.NameVelocity, baseEvent(), ev).Triggered())

	ev.EmailAttempts = 1
	out := eval(t, rules.NameVelocity, baseEvent(), ev)
	assert.False(t, out.Triggered())
	assert.Equal(t, "store timeout", out.Details["reason"])
}

// ─── Bot ─────────────────────────────────────────────────────────────────────

func TestBot(t *testing.T) {
	tests := []struct {
		name     string
		behavior domain.Behavior
		flag     string
		delta    int
	}{
		{"short session no pointer", domain.Behavior{SessionDurationMS: domain.Int(1500), PointerMoves: domain.Int(0)}, domain.FlagBotLikeActivity, 20},
		{"short session with pointer", domain.Behavior{SessionDurationMS: domain.Int(1500), PointerMoves: domain.Int(12)}, "", 0},
		{"long session no pointer", domain.Behavior{SessionDurationMS: domain.Int(60000), PointerMoves: domain.Int(0)}, "", 0},
		{"instant click", domain.Behavior{FirstInteractionMS: domain.Int(50)}, domain.FlagBotLikeActivity, 20},
		{"fast typing", domain.Behavior{TypingIntervalMS: domain.Int(15)}, domain.FlagAutofillOrBot, 15},
		{"activity outranks typing", domain.Behavior{FirstInteractionMS: domain.Int(10), TypingIntervalMS: domain.Int(5)}, domain.FlagBotLikeActivity, 20},
		{"no metrics", domain.Behavior{}, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := baseEvent()
			e.Behavior = tt.behavior
			out := eval(t, rules.NameBot, e, baseEvidence())
			assert.Equal(t, tt.flag, out.Flag)
			assert.Equal(t, tt.delta, out.ScoreDelta)
		})
	}
}

// ─── Device ──────────────────────────────────────────────────────────────────

func TestDevice_HeadlessLinuxPattern(t *testing.T) {
	e := baseEvent()
	e.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/120.0"
	e.Device["platform"] = "Linux"
	out := eval(t, rules.NameDevice, e, baseEvidence())
	assert.Equal(t, domain.FlagSuspiciousDevice, out.Flag, "pattern precedes signature list")
	assert.Equal(t, 10, out.ScoreDelta)
}

func TestDevice_UserAgentSignature(t *testing.T) {
	e := baseEvent()
	e.UserAgent = "python-requests/2.31"
	assert.Equal(t, domain.FlagSuspiciousUserAgent, eval(t, rules.NameDevice, e, baseEvidence()).Flag)
}

func TestDevice_ExtraSignature(t *testing.T) {
	r := rules.NewDeviceRule(rules.DefaultDeltas(), []string{"MyScraper"}, 10)
	e := baseEvent()
	e.UserAgent = "myscraper/1.0"
	assert.Equal(t, domain.FlagSuspiciousUserAgent, r.Evaluate(e, baseEvidence()).Flag)
}

func TestDevice_SuspiciousScreen(t *testing.T) {
	e := baseEvent()
	e.Device["screen"] = map[string]any{"width": 800, "height": 600}
	out := eval(t, rules.NameDevice, e, baseEvidence())
	assert.Equal(t, domain.FlagSuspiciousScreen, out.Flag)
	assert.Equal(t, "800x600", out.Details["screen"])
}

func TestDevice_FrequentFingerprint(t *testing.T) {
	ev := baseEvidence()
	ev.FingerprintSeen = 10
	assert.False(t, eval(t, rules.NameDevice, baseEvent(), ev).Triggered(), "10 prior sightings is still allowed")

	ev.FingerprintSeen = 11
	out := eval(t, rules.NameDevice, baseEvent(), ev)
	assert.Equal(t, domain.FlagFrequentDevice, out.Flag)
	assert.Equal(t, 15, out.ScoreDelta)
}

func TestDevice_SuspiciousTraitKeepsFrequentDelta(t *testing.T) {
	e := baseEvent()
	e.Device["screen"] = map[string]any{"width": 800, "height": 600}
	ev := baseEvidence()
	ev.FingerprintSeen = 11

	out := eval(t, rules.NameDevice, e, ev)
	assert.Equal(t, domain.FlagSuspiciousScreen, out.Flag, "trait names the flag")
	assert.Equal(t, 15, out.ScoreDelta, "frequent fingerprint delta is kept")
	assert.Equal(t, []string{domain.FlagFrequentDevice}, out.Details["also"])
	assert.Equal(t, "800x600", out.Details["screen"])
}

func TestDevice_NoDeviceData(t *testing.T) {
	e := baseEvent()
	e.Device = nil
	e.UserAgent = ""
	ev := baseEvidence()
	ev.FingerprintSeen = 100
	assert.False(t, eval(t, rules.NameDevice, e, ev).Triggered())
}

func TestFingerprint(t *testing.T) {
	a, b := baseEvent(), baseEvent()
	require.NotEmpty(t, rules.Fingerprint(a))
	assert.Equal(t, rules.Fingerprint(a), rules.Fingerprint(b))

	b.Device["screen"] = map[string]any{"width": 1366, "height": 768}
	assert.NotEqual(t, rules.Fingerprint(a), rules.Fingerprint(b))

	empty := &domain.Event{Email: "x@example.com"}
	assert.Empty(t, rules.Fingerprint(empty))
}

// ─── Blacklist ───────────────────────────────────────────────────────────────

func TestBlacklist(t *testing.T) {
	ev := baseEvidence()
	ev.IPBlacklisted = true
	out := eval(t, rules.NameBlacklist, baseEvent(), ev)
	assert.Equal(t, domain.FlagIPBlacklisted, out.Flag)
	assert.Equal(t, 40, out.ScoreDelta)

	ev.BlacklistErr = errors.New("db down")
	assert.False(t, eval(t, rules.NameBlacklist, baseEvent(), ev).Triggered())
}

// ─── Deltas ──────────────────────────────────────────────────────────────────

// Adding a lower-precedence condition to a rule that already fires on a
// higher-delta one must never lower the rule's delta, whatever the deltas.
func TestMultiFlagRules_TakeLargestDelta(t *testing.T) {
	d := rules.DefaultDeltas()
	d.TemporaryEmail, d.SuspiciousEmail = 5, 30
	d.BotActivity, d.TypingTooFast = 5, 30
	d.SuspiciousDevice, d.FrequentDevice = 5, 30
	set := rules.NewSet(rules.Config{Deltas: d})
	byName := make(map[string]rules.Rule, len(set))
	for _, r := range set {
		byName[r.Name()] = r
	}

	tests := []struct {
		name string
		rule string
		mod  func(*domain.Event, *rules.Evidence)
		flag string
	}{
		{"disposable and suspicious local part", rules.NameEmail, func(e *domain.Event, _ *rules.Evidence) {
			e.Email = "xkcdqrtz@mailinator.com"
		}, domain.FlagTemporaryEmail},
		{"instant click and fast typing", rules.NameBot, func(e *domain.Event, _ *rules.Evidence) {
			e.Behavior.FirstInteractionMS = domain.Int(10)
			e.Behavior.TypingIntervalMS = domain.Int(5)
		}, domain.FlagBotLikeActivity},
		{"bot user agent and frequent fingerprint", rules.NameDevice, func(e *domain.Event, ev *rules.Evidence) {
			e.UserAgent = "python-requests/2.31"
			ev.FingerprintSeen = 50
		}, domain.FlagSuspiciousUserAgent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ev := baseEvent(), baseEvidence()
			tt.mod(e, ev)
			out := byName[tt.rule].Evaluate(e, ev)
			assert.Equal(t, tt.flag, out.Flag)
			assert.Equal(t, 30, out.ScoreDelta)
		})
	}
}

func TestCustomDeltas_NeverExceeded(t *testing.T) {
	cfg := rules.DefaultConfig()
	cfg.Deltas.IPBlacklisted = 7
	cfg.Deltas.GeoMismatch = -5
	set := rules.NewSet(cfg)

	ev := baseEvidence()
	ev.IPBlacklisted = true
	ev.IssuerCountry = lookup.Found("US", "bintable")
	for _, r := range set {
		out := r.Evaluate(baseEvent(), ev)
		switch r.Name() {
		case rules.NameBlacklist:
			assert.Equal(t, 7, out.ScoreDelta)
		case rules.NameGeo:
			assert.Equal(t, 0, out.ScoreDelta, "negative deltas clamp to zero")
			assert.True(t, out.Triggered())
		}
	}
}
