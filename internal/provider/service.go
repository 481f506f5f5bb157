package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	lentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/entity"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
	prepo "github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/repo"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/routing"
)

var ErrNotFound = errors.New("provider not found")

// Store loads providers.
type Store interface {
	GetByID(ctx context.Context, id string) (*entity.Provider, error)
}

// LeadStats reports routed-lead counts for a provider.
type LeadStats interface {
	StatsForProvider(ctx context.Context, providerID string) (lentity.Stats, error)
}

// Eligibility is the lead-receipt state shown on the dashboard.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// Dashboard is the signed-in provider's overview.
type Dashboard struct {
	Profile     entity.Profile `json:"profile"`
	Eligibility Eligibility    `json:"eligibility"`
	Stats       lentity.Stats  `json:"stats"`
}

type Service struct {
	store  Store
	stats  LeadStats
	now    func() time.Time
	logger *zap.SugaredLogger
}

func NewService(store Store, stats LeadStats, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, stats: stats, now: time.Now, logger: logger}
}

// WithClock overrides the clock used for trial checks.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Dashboard(ctx context.Context, providerID string) (*Dashboard, error) {
	p, err := s.store.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, prepo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}
	st, err := s.stats.StatsForProvider(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("lead stats: %w", err)
	}
	now := s.now()
	return &Dashboard{
		Profile:     p.ToProfile(),
		Eligibility: Eligibility{Eligible: routing.IsEligible(p, now), Reason: routing.Ineligibility(p, now)},
		Stats:       st,
	}, nil
}
