package routing

import (
	"time"

	pentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
)

// IsEligible reports whether p may receive leads at now. All of the
// following must hold: eligible flag set, VERIFIED, not opted out, and an
// unexpired ACTIVE trial or a payment method on file.
func IsEligible(p *pentity.Provider, now time.Time) bool {
	return Ineligibility(p, now) == ""
}

// Ineligibility returns the first failing condition, or "" when eligible.
func Ineligibility(p *pentity.Provider, now time.Time) string {
	switch {
	case !p.EligibleForLeads:
		return "not_eligible_for_leads"
	case p.Status != pentity.StatusVerified:
		return "not_verified"
	case p.OptedOutAt != nil:
		return "opted_out"
	case activeTrial(p, now) || p.HasPaymentMethod():
		return ""
	default:
		return "no_trial_or_payment"
	}
}

func activeTrial(p *pentity.Provider, now time.Time) bool {
	return p.TrialStatus == pentity.TrialActive && p.TrialExpiresAt != nil && p.TrialExpiresAt.After(now)
}
