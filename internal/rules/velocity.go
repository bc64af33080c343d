package rules

import "travelguard/antifraud/internal/domain"

// VelocityRule flags an email or IP with too many checks in the velocity
// window. The current check counts toward the limit. A count that could not
// be read is skipped; the rule still judges the other one.
type VelocityRule struct {
	Delta int
	Limit int
}

func (r *VelocityRule) Name() string { return NameVelocity }

func (r *VelocityRule) Evaluate(_ *domain.Event, ev *Evidence) domain.RuleOutcome {
	emailOK, ipOK := ev.EmailAttemptsErr == nil, ev.IPAttemptsErr == nil
	if !emailOK && !ipOK {
		return noEvidence(NameVelocity, ev.EmailAttemptsErr.Error())
	}

	details := map[string]any{"limit": r.Limit}
	over := false
	if emailOK {
		n := ev.EmailAttempts + 1
		details["email_attempts"] = n
		over = over || n > r.Limit
	} else {
		details["email_error"] = ev.EmailAttemptsErr.Error()
	}
	if ipOK {
		n := ev.IPAttempts + 1
		details["ip_attempts"] = n
		over = over || n > r.Limit
	} else {
		details["ip_error"] = ev.IPAttemptsErr.Error()
	}

	switch {
	case over:
		return flagged(NameVelocity, domain.FlagTooManyAttempts, r.Delta, details)
	case !emailOK:
		return noEvidence(NameVelocity, ev.EmailAttemptsErr.Error())
	case !ipOK:
		return noEvidence(NameVelocity, ev.IPAttemptsErr.Error())
	}
	return none(NameVelocity)
}
