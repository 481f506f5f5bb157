package lead

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/entity"
	leadrepo "github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/repo"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/routing"
	"github.com/ovaphlow/pitchfork/service-directory-go/pkg/utilities"
)

var ErrNotFound = errors.New("lead not found")

// Store is the lead persistence used by the service.
type Store interface {
	Create(ctx context.Context, l *entity.Lead) error
	GetByID(ctx context.Context, id string) (*entity.Lead, error)
	ListByStatus(ctx context.Context, status entity.Status, limit, offset int) ([]entity.Lead, error)
}

// Locator resolves a ZIP code to coordinates.
type Locator interface {
	Lookup(ctx context.Context, zip string) (lat, lng float64, ok bool, err error)
}

// Router routes one lead.
type Router interface {
	Route(ctx context.Context, l *entity.Lead) (routing.Result, error)
}

// Alerter is told about leads no provider could take.
type Alerter interface {
	LeadUnserved(ctx context.Context, l *entity.Lead) error
}

// Service handles lead intake and manual routing.
type Service struct {
	store   Store
	locator Locator
	router  Router
	alerter Alerter
	logger  *zap.SugaredLogger
}

func NewService(store Store, locator Locator, router Router, alerter Alerter, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, locator: locator, router: router, alerter: alerter, logger: logger}
}

// Submit validates and stores a lead, then routes it. A validation failure
// returns entity.ValidationErrors before anything is stored. A routing
// failure after the lead is stored is returned alongside the OPEN lead so
// the caller can report it as pending. The unserved alert is sent here, once
// per lead; later re-routing of the same lead does not repeat it.
func (s *Service) Submit(ctx context.Context, sub entity.Submission) (*entity.Lead, routing.Result, error) {
	l, err := sub.Validate()
	if err != nil {
		return nil, routing.Result{}, err
	}
	l.ID = utilities.NewSnowflakeID()
	if s.locator != nil {
		lat, lng, ok, lerr := s.locator.Lookup(ctx, l.Zip)
		switch {
		case lerr != nil:
			s.logger.Warnw("zip lookup failed", "zip", l.Zip, "err", lerr)
		case ok:
			l.Lat, l.Lng = &lat, &lng
		}
	}
	if err := s.store.Create(ctx, l); err != nil {
		return nil, routing.Result{}, fmt.Errorf("create lead: %w", err)
	}
	s.logger.Debugw("lead created", "lead_id", l.ID, "zip", l.Zip, "urgency", l.Urgency)

	res, err := s.router.Route(ctx, l)
	if err != nil {
		return l, res, fmt.Errorf("route lead: %w", err)
	}
	if !res.Routed && s.alerter != nil {
		if aerr := s.alerter.LeadUnserved(ctx, l); aerr != nil {
			s.logger.Warnw("unserved alert failed", "lead_id", l.ID, "err", aerr)
		}
	}
	return l, res, nil
}

func (s *Service) Get(ctx context.Context, id string) (*entity.Lead, error) {
	l, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, leadrepo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return l, nil
}

// RouteByID re-runs routing for a stored lead. Routing a CLAIMED lead
// returns its existing assignment.
func (s *Service) RouteByID(ctx context.Context, id string) (routing.Result, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return routing.Result{}, err
	}
	return s.router.Route(ctx, l)
}

// RouteOpen routes up to limit OPEN leads, oldest first, and returns how many
// were assigned. It stops at the first storage error.
func (s *Service) RouteOpen(ctx context.Context, limit int) (routed int, attempted int, err error) {
	leads, err := s.store.ListByStatus(ctx, entity.StatusOpen, limit, 0)
	if err != nil {
		return 0, 0, err
	}
	for i := range leads {
		if err := ctx.Err(); err != nil {
			return routed, attempted, err
		}
		attempted++
		res, err := s.router.Route(ctx, &leads[i])
		if err != nil {
			return routed, attempted, err
		}
		if res.Routed && !res.AlreadyAssigned {
			routed++
		}
	}
	return routed, attempted, nil
}

func (s *Service) List(ctx context.Context, status entity.Status, limit, offset int) ([]entity.Lead, error) {
	return s.store.ListByStatus(ctx, status, limit, offset)
}
