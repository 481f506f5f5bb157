// Package app wires repositories, services and notifiers for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-directory-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/lead"
	leadrepo "github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/repo"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/notify"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/provider"
	prepo "github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/repo"
	"github.com/ovaphlow/pitchfork/service-directory-go/internal/routing"
)

// App holds the assembled components.
type App struct {
	DB        *sqlx.DB
	AuthCfg   auth.Config
	Providers *prepo.ProviderRepo
	Leads     *leadrepo.LeadRepo
	Zips      *leadrepo.ZipRepo
	Tokens    *auth.TokenAuthority
	Gate      *auth.SessionGate
	Auth      *auth.Service
	Engine    *routing.Engine
	LeadSvc   *lead.Service
	Dashboard *provider.Service

	publisher *notify.Publisher
	logger    *zap.SugaredLogger
}

// New reads auth, mail, routing and AMQP settings from the environment and
// builds every component on top of db. SMTP delivery is used when MAIL_HOST
// is set, otherwise messages are only logged. Lead events are additionally
// published when AMQP_URL is set.
func New(db *sqlx.DB, logger *zap.SugaredLogger) (*App, error) {
	acfg := auth.ConfigFromEnv()
	if err := acfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		DB:        db,
		AuthCfg:   acfg,
		Providers: prepo.NewProviderRepo(db),
		Leads:     leadrepo.NewLeadRepo(db),
		Zips:      leadrepo.NewZipRepo(db),
		logger:    logger,
	}

	var (
		identity notify.Identity
		primary  notify.LeadNotifier
	)
	if mcfg := notify.MailConfigFromEnv(); mcfg.Enabled() {
		m := notify.NewMailer(mcfg)
		identity, primary = m, m
		logger.Infow("smtp delivery enabled", "host", mcfg.Host, "port", mcfg.Port)
	} else {
		ln := notify.NewLogNotifier(logger)
		identity, primary = ln, ln
		logger.Warnw("MAIL_HOST not set; emails are logged only")
	}
	var secondaries []notify.LeadNotifier
	if url := notify.AMQPURLFromEnv(); url != "" {
		pub, err := notify.DialPublisher(url)
		if err != nil {
			return nil, fmt.Errorf("lead events: %w", err)
		}
		a.publisher = pub
		secondaries = append(secondaries, pub)
		logger.Infow("lead event publishing enabled", "exchange", notify.ExchangeName)
	}
	leadNotifier := notify.NewFanout(logger, primary, secondaries...)

	a.Tokens = auth.NewTokenAuthority(acfg)
	admin := auth.NewAdminSecret(acfg)
	a.Gate = auth.NewSessionGate(a.Tokens, admin, logger)
	a.Auth = auth.NewService(acfg, a.Providers, a.Tokens, admin, identity, logger)
	a.Engine = routing.NewEngine(routing.ConfigFromEnv(), a.Providers, a.Leads, leadNotifier, logger)
	a.LeadSvc = lead.NewService(a.Leads, a.Zips, a.Engine, leadNotifier, logger)
	a.Dashboard = provider.NewService(a.Providers, a.Leads, logger)
	return a, nil
}

// Migrate creates every table the service uses.
func (a *App) Migrate(ctx context.Context) error {
	steps := []struct {
		name   string
		ensure func(context.Context) error
	}{
		{"providers", a.Providers.EnsureTable},
		{"leads", a.Leads.EnsureTable},
		{"zip_centroids", a.Zips.EnsureTable},
	}
	for _, s := range steps {
		if err := s.ensure(ctx); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
	}
	return nil
}

// Close releases the AMQP connection, if any. The database is owned by the caller.
func (a *App) Close() error {
	if a.publisher != nil {
		return a.publisher.Close()
	}
	return nil
}
