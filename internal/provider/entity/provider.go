package entity

import (
	"strings"
	"time"
)

// Status is the verification state of a listing.
type Status string

const (
	StatusUnverified Status = "UNVERIFIED"
	StatusPending    Status = "PENDING"
	StatusVerified   Status = "VERIFIED"
	StatusSuspended  Status = "SUSPENDED"
)

// Tier is the listing level used for ranking.
type Tier string

const (
	TierBasic    Tier = "BASIC"
	TierPremium  Tier = "PREMIUM"
	TierFeatured Tier = "FEATURED"
)

// Rank orders tiers FEATURED > PREMIUM > BASIC. Unknown tiers rank below BASIC.
func (t Tier) Rank() int {
	switch t {
	case TierFeatured:
		return 3
	case TierPremium:
		return 2
	case TierBasic:
		return 1
	default:
		return 0
	}
}

type TrialStatus string

const (
	TrialNone    TrialStatus = "NONE"
	TrialActive  TrialStatus = "ACTIVE"
	TrialExpired TrialStatus = "EXPIRED"
)

// Coverage links a provider to a state and optionally a city. An empty City
// means statewide coverage.
type Coverage struct {
	ProviderID string `db:"provider_id" json:"provider_id"`
	State      string `db:"state" json:"state"`
	City       string `db:"city" json:"city,omitempty"`
}

// Statewide reports whether the record covers the whole state.
func (c Coverage) Statewide() bool {
	return strings.TrimSpace(c.City) == ""
}

// Provider is a row in the providers table plus its coverage records.
type Provider struct {
	ID                string      `db:"id"`
	Name              string      `db:"name"`
	Slug              string      `db:"slug"`
	Email             *string     `db:"email"`
	ClaimEmail        *string     `db:"claim_email"`
	NotificationEmail *string     `db:"notification_email"`
	Phone             *string     `db:"phone"`
	ZipCodes          ZipSet      `db:"zip_codes"`
	ServiceRadius     *float64    `db:"service_radius_miles"`
	HomeLat           *float64    `db:"home_lat"`
	HomeLng           *float64    `db:"home_lng"`
	ListingTier       Tier        `db:"listing_tier"`
	IsFeatured        bool        `db:"is_featured"`
	Status            Status      `db:"status"`
	TrialStatus       TrialStatus `db:"trial_status"`
	TrialExpiresAt    *time.Time  `db:"trial_expires_at"`
	PaymentMethodRef  *string     `db:"payment_method_ref"`
	EligibleForLeads  bool        `db:"eligible_for_leads"`
	OptedOutAt        *time.Time  `db:"opted_out_at"`
	ClaimToken        *string     `db:"claim_token"`
	ClaimVerifiedAt   *time.Time  `db:"claim_verified_at"`
	LoginNonce        *string     `db:"login_nonce"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`

	Coverage []Coverage `db:"-"`
}

// Claimable reports whether the listing still awaits claim verification.
func (p *Provider) Claimable() bool {
	return p.ClaimToken != nil && *p.ClaimToken != "" && p.ClaimVerifiedAt == nil
}

// HasPaymentMethod reports whether a payment method reference is on file.
func (p *Provider) HasPaymentMethod() bool {
	return p.PaymentMethodRef != nil && strings.TrimSpace(*p.PaymentMethodRef) != ""
}

// HasRadius reports whether the provider declares a service radius around a home location.
func (p *Provider) HasRadius() bool {
	return p.ServiceRadius != nil && *p.ServiceRadius > 0 && p.HomeLat != nil && p.HomeLng != nil
}

// ContactEmail returns the address lead notifications go to:
// notificationEmail, then claimEmail, then the legacy email. Empty when none is set.
func (p *Provider) ContactEmail() string {
	for _, e := range []*string{p.NotificationEmail, p.ClaimEmail, p.Email} {
		if e != nil && strings.TrimSpace(*e) != "" {
			return strings.TrimSpace(*e)
		}
	}
	return ""
}

// SessionEmail is the address carried in a provider session: claimEmail, then email.
func (p *Provider) SessionEmail() string {
	for _, e := range []*string{p.ClaimEmail, p.Email} {
		if e != nil && strings.TrimSpace(*e) != "" {
			return strings.TrimSpace(*e)
		}
	}
	return ""
}

// Profile is the public projection of a provider returned by the API.
type Profile struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Slug        string      `json:"slug"`
	Email       string      `json:"email,omitempty"`
	ListingTier Tier        `json:"listing_tier"`
	IsFeatured  bool        `json:"is_featured"`
	Status      Status      `json:"status"`
	TrialStatus TrialStatus `json:"trial_status"`
	TrialEndsAt *time.Time  `json:"trial_expires_at,omitempty"`
	ZipCodes    []string    `json:"zip_codes,omitempty"`
	Coverage    []Coverage  `json:"coverage,omitempty"`
	VerifiedAt  *time.Time  `json:"claim_verified_at,omitempty"`
}

// ToProfile drops tokens, nonces and payment references.
func (p *Provider) ToProfile() Profile {
	return Profile{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Email:       p.SessionEmail(),
		ListingTier: p.ListingTier,
		IsFeatured:  p.IsFeatured,
		Status:      p.Status,
		TrialStatus: p.TrialStatus,
		TrialEndsAt: p.TrialExpiresAt,
		ZipCodes:    p.ZipCodes.Sorted(),
		Coverage:    p.Coverage,
		VerifiedAt:  p.ClaimVerifiedAt,
	}
}
