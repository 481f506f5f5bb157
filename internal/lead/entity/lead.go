package entity

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	pentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
)

type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusClaimed Status = "CLAIMED"
)

type Urgency string

const (
	UrgencyStandard Urgency = "STANDARD"
	UrgencyStat     Urgency = "STAT"
)

// Prices in cents.
const (
	PriceStandardCents = 2000
	PriceStatCents     = 5000
)

// PriceFor returns the lead price for an urgency. Unknown urgencies price as STANDARD.
func PriceFor(u Urgency) int {
	if u == UrgencyStat {
		return PriceStatCents
	}
	return PriceStandardCents
}

// Lead is a consumer service request. It moves OPEN -> CLAIMED exactly once.
type Lead struct {
	ID         string     `db:"id" json:"id"`
	FullName   string     `db:"full_name" json:"full_name"`
	Phone      string     `db:"phone" json:"phone"`
	Email      *string    `db:"email" json:"email,omitempty"`
	Address1   *string    `db:"address1" json:"address1,omitempty"`
	City       string     `db:"city" json:"city"`
	State      string     `db:"state" json:"state"`
	Zip        string     `db:"zip" json:"zip"`
	Lat        *float64   `db:"lat" json:"lat,omitempty"`
	Lng        *float64   `db:"lng" json:"lng,omitempty"`
	Urgency    Urgency    `db:"urgency" json:"urgency"`
	PriceCents int        `db:"price_cents" json:"price_cents"`
	Notes      *string    `db:"notes" json:"notes,omitempty"`
	Source     *string    `db:"source" json:"source,omitempty"`
	Status     Status     `db:"status" json:"status"`
	RoutedToID *string    `db:"routed_to_id" json:"routed_to_id,omitempty"`
	RoutedAt   *time.Time `db:"routed_at" json:"routed_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

func (l *Lead) HasLocation() bool { return l.Lat != nil && l.Lng != nil }

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

// ValidationErrors is returned when a submission fails validation.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Submission is the consumer-supplied input for a new lead.
type Submission struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Address1 string `json:"address1"`
	City     string `json:"city"`
	State    string `json:"state"`
	Zip      string `json:"zip"`
	Urgency  string `json:"urgency"`
	Notes    string `json:"notes"`
	Source   string `json:"source"`
}

func digits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// Validate checks the submission and returns a normalized OPEN lead without
// an ID. Every failing field is reported.
func (s Submission) Validate() (*Lead, error) {
	var errs ValidationErrors
	name := strings.TrimSpace(s.FullName)
	if len([]rune(name)) < 2 {
		errs = append(errs, ValidationError{Field: "full_name", Message: "must be at least 2 characters"})
	}
	phone := strings.TrimSpace(s.Phone)
	if digits(phone) < 7 {
		errs = append(errs, ValidationError{Field: "phone", Message: "must contain at least 7 digits"})
	}
	city := strings.TrimSpace(s.City)
	if city == "" {
		errs = append(errs, ValidationError{Field: "city", Message: "is required"})
	}
	state := pentity.NormalizeState(s.State)
	if state == "" {
		errs = append(errs, ValidationError{Field: "state", Message: "must be a US state"})
	}
	zip := pentity.NormalizeZip(s.Zip)
	if zip == "" {
		errs = append(errs, ValidationError{Field: "zip", Message: "must be a 5 digit ZIP code"})
	}
	urgency := UrgencyStandard
	switch strings.ToUpper(strings.TrimSpace(s.Urgency)) {
	case "", string(UrgencyStandard):
	case string(UrgencyStat):
		urgency = UrgencyStat
	default:
		errs = append(errs, ValidationError{Field: "urgency", Message: "must be STANDARD or STAT"})
	}
	var email *string
	if e := strings.TrimSpace(s.Email); e != "" {
		if addr, err := mail.ParseAddress(e); err != nil || addr.Address != e {
			errs = append(errs, ValidationError{Field: "email", Message: "is not a valid address"})
		} else {
			email = &e
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return &Lead{
		FullName:   name,
		Phone:      phone,
		Email:      email,
		Address1:   optional(s.Address1),
		City:       city,
		State:      state,
		Zip:        zip,
		Urgency:    urgency,
		PriceCents: PriceFor(urgency),
		Notes:      optional(s.Notes),
		Source:     optional(s.Source),
		Status:     StatusOpen,
	}, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Stats summarizes the leads routed to one provider.
type Stats struct {
	TotalRouted  int `db:"total_routed" json:"total_routed"`
	RoutedLast30 int `db:"routed_last_30" json:"routed_last_30_days"`
}
