package routing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	lentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/entity"
	pentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
)

// ErrInvalidLead is returned for a nil lead or one without an ID.
var ErrInvalidLead = errors.New("invalid lead")

// Candidates supplies the provider snapshot considered for routing.
type Candidates interface {
	FindCandidateProviders(ctx context.Context) ([]*pentity.Provider, error)
}

// Assigner performs the conditional OPEN -> CLAIMED write. When assigned is
// false, current is the provider already holding the lead.
type Assigner interface {
	AssignIfOpen(ctx context.Context, leadID, providerID string) (assigned bool, current string, err error)
}

// Notifier tells the winning provider about a routed lead. Unserved-lead
// alerts belong to lead intake, not to the engine.
type Notifier interface {
	LeadRouted(ctx context.Context, l *lentity.Lead, p *pentity.Provider, to string) error
}

type Config struct {
	NationwideFallback bool
}

// ConfigFromEnv reads ROUTING_NATIONWIDE_FALLBACK (default true).
func ConfigFromEnv() Config {
	cfg := Config{NationwideFallback: true}
	if v, err := strconv.ParseBool(os.Getenv("ROUTING_NATIONWIDE_FALLBACK")); err == nil {
		cfg.NationwideFallback = v
	}
	return cfg
}

// Result is the routing outcome for one lead. AlreadyAssigned is set when
// the lead was CLAIMED before this call; Notified reports whether the
// winning provider was sent a notification.
type Result struct {
	LeadID          string    `json:"lead_id"`
	ProviderID      string    `json:"provider_id,omitempty"`
	Routed          bool      `json:"routed"`
	Match           MatchKind `json:"match,omitempty"`
	AlreadyAssigned bool      `json:"already_assigned,omitempty"`
	Notified        bool      `json:"notified"`
	Candidates      int       `json:"candidates"`
}

// Engine routes a lead to at most one provider.
type Engine struct {
	geo      GeoMatcher
	source   Candidates
	assigner Assigner
	notifier Notifier
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewEngine(cfg Config, source Candidates, assigner Assigner, notifier Notifier, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		geo:      GeoMatcher{NationwideFallback: cfg.NationwideFallback},
		source:   source,
		assigner: assigner,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source used for trial expiry checks.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Select returns the ranked eligible, matching providers for l along with
// the rule each one matched by.
func (e *Engine) Select(ctx context.Context, l *lentity.Lead) ([]*pentity.Provider, map[string]MatchKind, error) {
	all, err := e.source.FindCandidateProviders(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load candidates: %w", err)
	}
	now := e.now()
	var picked []*pentity.Provider
	kinds := map[string]MatchKind{}
	for _, p := range all {
		if !IsEligible(p, now) {
			continue
		}
		m := e.geo.Match(p, l)
		if m == MatchNone {
			continue
		}
		picked = append(picked, p)
		kinds[p.ID] = m
	}
	return Rank(picked), kinds, nil
}

// Route assigns l to the top-ranked eligible provider. A lead that is
// already CLAIMED returns its existing assignment without side effects. A
// failed assignment write returns the error and leaves the lead OPEN.
func (e *Engine) Route(ctx context.Context, l *lentity.Lead) (Result, error) {
	if l == nil || l.ID == "" {
		return Result{}, ErrInvalidLead
	}
	res := Result{LeadID: l.ID}
	if l.Status == lentity.StatusClaimed && l.RoutedToID != nil {
		res.ProviderID = *l.RoutedToID
		res.Routed = true
		res.AlreadyAssigned = true
		recordOutcome("already_assigned")
		return res, nil
	}

	ranked, kinds, err := e.Select(ctx, l)
	if err != nil {
		recordOutcome("error")
		return res, err
	}
	res.Candidates = len(ranked)
	routingCandidates.Observe(float64(len(ranked)))

	if len(ranked) == 0 {
		recordOutcome("unserved")
		e.logger.Infow("lead unserved", "lead_id", l.ID, "zip", l.Zip, "state", l.State)
		return res, nil
	}

	winner := ranked[0]
	assigned, current, err := e.assigner.AssignIfOpen(ctx, l.ID, winner.ID)
	if err != nil {
		recordOutcome("error")
		e.logger.Errorw("lead assignment failed", "lead_id", l.ID, "provider_id", winner.ID, "err", err)
		return res, fmt.Errorf("assign lead %s: %w", l.ID, err)
	}
	if !assigned {
		recordOutcome("already_assigned")
		res.ProviderID = current
		res.Routed = current != ""
		res.AlreadyAssigned = true
		e.logger.Debugw("lead already assigned", "lead_id", l.ID, "provider_id", current)
		return res, nil
	}

	now := e.now()
	l.Status = lentity.StatusClaimed
	l.RoutedToID = &winner.ID
	l.RoutedAt = &now

	res.ProviderID = winner.ID
	res.Routed = true
	res.Match = kinds[winner.ID]
	recordOutcome("routed")
	routingMatches.WithLabelValues(string(res.Match)).Inc()

	if res.Match == MatchNationwide {
		e.logger.Infow("lead routed", "lead_id", l.ID, "provider_id", winner.ID, "candidates", len(ranked), "match", res.Match)
	} else {
		e.logger.Debugw("lead routed", "lead_id", l.ID, "provider_id", winner.ID, "candidates", len(ranked), "match", res.Match)
	}

	to := winner.ContactEmail()
	if to == "" {
		e.logger.Warnw("routed provider has no contact email", "lead_id", l.ID, "provider_id", winner.ID)
		return res, nil
	}
	if e.notifier != nil {
		if err := e.notifier.LeadRouted(ctx, l, winner, to); err != nil {
			e.logger.Warnw("lead notification failed", "lead_id", l.ID, "provider_id", winner.ID, "err", err)
		} else {
			res.Notified = true
		}
	}
	return res, nil
}
