package rules

import (
	"strings"

	"travelguard/antifraud/internal/domain"
)

// CountryTimezones lists the IANA zones expected for each country. Countries
// not listed are never flagged.
var CountryTimezones = map[string][]string{
	"US": {"America/New_York", "America/Chicago", "America/Denver", "America/Phoenix", "America/Los_Angeles", "America/Anchorage", "Pacific/Honolulu"},
	"CA": {"America/Toronto", "America/Vancouver", "America/Edmonton", "America/Winnipeg", "America/Halifax", "America/St_Johns"},
	"MX": {"America/Mexico_City", "America/Tijuana", "America/Monterrey", "America/Cancun"},
	"BR": {"America/Sao_Paulo", "America/Manaus", "America/Fortaleza", "America/Recife", "America/Bahia"},
	"AR": {"America/Argentina/Buenos_Aires"},
	"CO": {"America/Bogota"},
	"CL": {"America/Santiago"},
	"GB": {"Europe/London"},
	"IE": {"Europe/Dublin"},
	"DE": {"Europe/Berlin"},
	"FR": {"Europe/Paris"},
	"IT": {"Europe/Rome"},
	"ES": {"Europe/Madrid", "Atlantic/Canary"},
	"PT": {"Europe/Lisbon", "Atlantic/Azores"},
	"NL": {"Europe/Amsterdam"},
	"PL": {"Europe/Warsaw"},
	"RU": {"Europe/Moscow", "Europe/Samara", "Asia/Yekaterinburg", "Asia/Novosibirsk", "Asia/Vladivostok"},
	"TR": {"Europe/Istanbul"},
	"IN": {"Asia/Kolkata", "Asia/Calcutta"},
	"CN": {"Asia/Shanghai"},
	"JP": {"Asia/Tokyo"},
	"KR": {"Asia/Seoul"},
	"SG": {"Asia/Singapore"},
	"AE": {"Asia/Dubai"},
	"AU": {"Australia/Sydney", "Australia/Melbourne", "Australia/Brisbane", "Australia/Perth", "Australia/Adelaide"},
	"NZ": {"Pacific/Auckland"},
	"ZA": {"Africa/Johannesburg"},
}

// TimezoneRule flags a declared browser timezone that does not belong to the
// IP's country.
type TimezoneRule struct {
	Delta int
	Zones map[string][]string
}

func (r *TimezoneRule) Name() string { return NameTimezone }

func (r *TimezoneRule) Evaluate(event *domain.Event, ev *Evidence) domain.RuleOutcome {
	tz := declaredTimezone(event)
	if tz == "" {
		return none(NameTimezone)
	}
	if !ev.IPCountry.OK() {
		return noEvidence(NameTimezone, "ip country: "+ev.IPCountry.Reason)
	}
	zones, known := r.Zones[ev.IPCountry.Country]
	if !known {
		return none(NameTimezone)
	}
	for _, z := range zones {
		if strings.EqualFold(z, tz) {
			return none(NameTimezone)
		}
	}
	return flagged(NameTimezone, domain.FlagTimezoneMismatch, r.Delta, map[string]any{
		"timezone":   tz,
		"ip_country": ev.IPCountry.Country,
	})
}

// declaredTimezone prefers the top-level field over the device map.
func declaredTimezone(event *domain.Event) string {
	if tz := strings.TrimSpace(event.Timezone); tz != "" {
		return tz
	}
	if s, ok := event.Device["timezone"].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
