package rules

import "travelguard/antifraud/internal/domain"

// BlacklistRule flags IPs on the blacklist.
type BlacklistRule struct {
	Delta int
}

func (r *BlacklistRule) Name() string { return NameBlacklist }

func (r *BlacklistRule) Evaluate(event *domain.Event, ev *Evidence) domain.RuleOutcome {
	if ev.BlacklistErr != nil {
		return noEvidence(NameBlacklist, ev.BlacklistErr.Error())
	}
	if !ev.IPBlacklisted {
		return none(NameBlacklist)
	}
	return flagged(NameBlacklist, domain.FlagIPBlacklisted, r.Delta, map[string]any{"ip": event.IP})
}
