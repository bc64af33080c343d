package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"travelguard/antifraud/internal/domain"
)

// DefaultBotSignatures are user-agent fragments of automation tooling.
var DefaultBotSignatures = []string{
	"headlesschrome",
	"phantomjs",
	"selenium",
	"webdriver",
	"puppeteer",
	"playwright",
	"python-requests",
	"python-urllib",
	"curl/",
	"wget/",
	"scrapy",
	"go-http-client",
	"java/",
	"okhttp",
}

// DefaultSuspiciousScreens are resolutions reported by emulators and
// headless browsers.
var DefaultSuspiciousScreens = []string{"0x0", "1x1", "800x600"}

// devicePattern matches a platform exactly and a lower-cased UA fragment.
type devicePattern struct {
	platform string
	uaHas    string
}

var devicePatterns = []devicePattern{
	{platform: "Linux", uaHas: "headless"},
	{platform: "Other", uaHas: "bot"},
}

// DeviceRule checks the device for known-bad traits, then for reuse of its
// fingerprint. The first matching trait names the flag; the delta is the
// largest among everything that matched.
type DeviceRule struct {
	SuspiciousDelta int
	FrequentDelta   int
	FrequentLimit   int
	signatures      []string
	screens         map[string]struct{}
}

// NewDeviceRule builds the rule with DefaultBotSignatures plus extra.
func NewDeviceRule(d Deltas, extra []string, frequentLimit int) *DeviceRule {
	r := &DeviceRule{
		SuspiciousDelta: d.SuspiciousDevice,
		FrequentDelta:   d.FrequentDevice,
		FrequentLimit:   frequentLimit,
		screens:         make(map[string]struct{}),
	}
	for _, list := range [][]string{DefaultBotSignatures, extra} {
		for _, sig := range list {
			if sig = strings.ToLower(strings.TrimSpace(sig)); sig != "" {
				r.signatures = append(r.signatures, sig)
			}
		}
	}
	for _, s := range DefaultSuspiciousScreens {
		r.screens[s] = struct{}{}
	}
	return r
}

func (r *DeviceRule) Name() string { return NameDevice }

func (r *DeviceRule) Evaluate(event *domain.Event, ev *Evidence) domain.RuleOutcome {
	if len(event.Device) == 0 && event.UserAgent == "" {
		return none(NameDevice)
	}
	ua := strings.ToLower(event.UserAgent)
	platform := devicePlatform(event)

	var hits []domain.RuleOutcome
	for _, p := range devicePatterns {
		if p.platform == platform && strings.Contains(ua, p.uaHas) {
			hits = append(hits, flagged(NameDevice, domain.FlagSuspiciousDevice, r.SuspiciousDelta, map[string]any{
				"platform": platform,
				"pattern":  p.uaHas,
			}))
			break
		}
	}
	for _, sig := range r.signatures {
		if strings.Contains(ua, sig) {
			hits = append(hits, flagged(NameDevice, domain.FlagSuspiciousUserAgent, r.SuspiciousDelta, map[string]any{"signature": sig}))
			break
		}
	}
	if res, ok := screenResolution(event); ok {
		if _, bad := r.screens[res]; bad {
			hits = append(hits, flagged(NameDevice, domain.FlagSuspiciousScreen, r.SuspiciousDelta, map[string]any{"screen": res}))
		}
	}
	if ev.Fingerprint != "" && ev.FingerprintSeen > r.FrequentLimit {
		hits = append(hits, flagged(NameDevice, domain.FlagFrequentDevice, r.FrequentDelta, map[string]any{
			"fingerprint": ev.Fingerprint,
			"seen":        ev.FingerprintSeen,
		}))
	}
	return strongest(NameDevice, hits)
}

// Fingerprint summarizes the user agent, platform and screen of an event.
// Events with neither device info nor a user agent have no fingerprint.
func Fingerprint(event *domain.Event) string {
	if len(event.Device) == 0 && event.UserAgent == "" {
		return ""
	}
	screen, _ := screenResolution(event)
	sum := sha256.Sum256([]byte(strings.Join([]string{
		strings.ToLower(event.UserAgent),
		devicePlatform(event),
		screen,
	}, "|")))
	return hex.EncodeToString(sum[:16])
}

func devicePlatform(event *domain.Event) string {
	s, _ := event.Device["platform"].(string)
	return strings.TrimSpace(s)
}

// screenResolution reads device.screen.{width,height} as "WxH".
func screenResolution(event *domain.Event) (string, bool) {
	screen, ok := event.Device["screen"].(map[string]any)
	if !ok {
		return "", false
	}
	w, okW := asInt(screen["width"])
	h, okH := asInt(screen["height"])
	if !okW || !okH {
		return "", false
	}
	return fmt.Sprintf("%dx%d", w, h), true
}

// asInt accepts the number shapes JSON decoding and Go literals produce.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
