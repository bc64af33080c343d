package rules

import (
	"net/mail"
	"strings"

	"travelguard/antifraud/internal/domain"
)

// DefaultDisposableDomains are throwaway mailbox providers.
var DefaultDisposableDomains = []string{
	"mailinator.com",
	"yopmail.com",
	"tempmail.com",
	"10minutemail.com",
	"guerrillamail.com",
	"sharklasers.com",
	"trashmail.com",
	"getnada.com",
	"temp-mail.org",
	"dispostable.com",
	"maildrop.cc",
	"throwawaymail.com",
}

// EmailRule checks address format, domain reputation and local-part shape,
// in that order.
type EmailRule struct {
	InvalidDelta    int
	TemporaryDelta  int
	SuspiciousDelta int
	disposable      map[string]struct{}
}

// NewEmailRule builds the rule with DefaultDisposableDomains plus extra.
func NewEmailRule(d Deltas, extra []string) *EmailRule {
	r := &EmailRule{
		InvalidDelta:    d.InvalidEmail,
		TemporaryDelta:  d.TemporaryEmail,
		SuspiciousDelta: d.SuspiciousEmail,
		disposable:      make(map[string]struct{}),
	}
	for _, list := range [][]string{DefaultDisposableDomains, extra} {
		for _, dom := range list {
			if dom = strings.ToLower(strings.TrimSpace(dom)); dom != "" {
				r.disposable[dom] = struct{}{}
			}
		}
	}
	return r
}

func (r *EmailRule) Name() string { return NameEmail }

func (r *EmailRule) Evaluate(event *domain.Event, _ *Evidence) domain.RuleOutcome {
	local, host, ok := splitAddress(event.Email)
	if !ok {
		return flagged(NameEmail, domain.FlagInvalidEmail, r.InvalidDelta, map[string]any{"email": event.Email})
	}
	var hits []domain.RuleOutcome
	if _, bad := r.disposable[host]; bad {
		hits = append(hits, flagged(NameEmail, domain.FlagTemporaryEmail, r.TemporaryDelta, map[string]any{"domain": host}))
	}
	if why := suspiciousLocalPart(local); why != "" {
		hits = append(hits, flagged(NameEmail, domain.FlagSuspiciousEmail, r.SuspiciousDelta, map[string]any{"pattern": why}))
	}
	return strongest(NameEmail, hits)
}

// splitAddress accepts a bare addr-spec whose domain has at least one dot.
func splitAddress(email string) (local, host string, ok bool) {
	email = strings.TrimSpace(email)
	if email == "" || strings.ContainsAny(email, " <>") {
		return "", "", false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" {
		return "", "", false
	}
	at := strings.LastIndexByte(addr.Address, '@')
	local, host = addr.Address[:at], strings.ToLower(addr.Address[at+1:])
	if local == "" || !strings.Contains(host, ".") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return "", "", false
	}
	return local, host, true
}

// suspiciousLocalPart names the first structural pattern the local part
// matches, or returns "".
func suspiciousLocalPart(local string) string {
	switch {
	case len(local) < 3:
		return "too_short"
	case len(local) > 40:
		return "too_long"
	case allDigits(local):
		return "all_digits"
	case longestRun(local, isDigit) >= 6:
		return "digit_run"
	case longestRun(strings.ToLower(local), isConsonant) >= 6:
		return "consonant_run"
	}
	return ""
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isConsonant(c byte) bool {
	if c < 'a' || c > 'z' {
		return false
	}
	return !strings.ContainsRune("aeiouy", rune(c))
}

func allDigits(s string) bool {
	return s != "" && longestRun(s, isDigit) == len(s)
}

func longestRun(s string, match func(byte) bool) int {
	best, cur := 0, 0
	for i := 0; i < len(s); i++ {
		if match(s[i]) {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 0
		}
	}
	return best
}
