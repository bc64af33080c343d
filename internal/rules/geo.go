package rules

import "travelguard/antifraud/internal/domain"

// GeoRule flags an IP country that differs from the card issuer's country.
type GeoRule struct {
	Delta int
}

func (r *GeoRule) Name() string { return NameGeo }

func (r *GeoRule) Evaluate(_ *domain.Event, ev *Evidence) domain.RuleOutcome {
	if !ev.IPCountry.OK() || !ev.IssuerCountry.OK() {
		return noEvidence(NameGeo, degradedReason(ev))
	}
	if ev.IPCountry.Country == ev.IssuerCountry.Country {
		return none(NameGeo)
	}
	return flagged(NameGeo, domain.FlagGeoMismatch, r.Delta, map[string]any{
		"ip_country":  ev.IPCountry.Country,
		"bin_country": ev.IssuerCountry.Country,
	})
}

func degradedReason(ev *Evidence) string {
	switch {
	case !ev.IPCountry.OK() && ev.IPCountry.Reason != "":
		return "ip country: " + ev.IPCountry.Reason
	case !ev.IssuerCountry.OK() && ev.IssuerCountry.Reason != "":
		return "bin country: " + ev.IssuerCountry.Reason
	default:
		return "country unavailable"
	}
}
