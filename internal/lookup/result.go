// Package lookup resolves IP addresses and card BINs to ISO country codes.
//
// A Client consults its cache, then an ordered list of providers, each under
// its own timeout. The answer is three-valued: ok with a country, degraded
// when no provider produced a usable answer, or timeout when every attempted
// provider ran out of time. Callers treat anything but ok as "no evidence".
package lookup

import "strings"

// Status is the outcome class of a lookup.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusTimeout  Status = "timeout"
)

// SourceCache is the Source of a result served from the client cache.
const SourceCache = "cache"

// Result is the answer to one lookup.
type Result struct {
	Status  Status `json:"status"`
	Country string `json:"country,omitempty"` // ISO 3166-1 alpha-2, set only when Status is ok
	Source  string `json:"source,omitempty"`  // provider name or "cache"
	Reason  string `json:"reason,omitempty"`
}

// OK reports whether the result carries a country.
func (r Result) OK() bool { return r.Status == StatusOK && r.Country != "" }

// Found returns an ok result.
func Found(country, source string) Result {
	return Result{Status: StatusOK, Country: country, Source: source}
}

// Degraded returns a degraded result with the given reason.
func Degraded(reason string) Result {
	return Result{Status: StatusDegraded, Reason: reason}
}

// TimedOut returns a timeout result with the given reason.
func TimedOut(reason string) Result {
	return Result{Status: StatusTimeout, Reason: reason}
}

// NormalizeCountry accepts exactly two ASCII letters and upper-cases them.
func NormalizeCountry(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) != 2 {
		return "", false
	}
	for i := 0; i < 2; i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return "", false
		}
	}
	return strings.ToUpper(s), true
}
