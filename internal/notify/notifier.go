package notify

import (
	"context"

	"go.uber.org/zap"

	lentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/entity"
	pentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
)

// LeadNotifier receives routing side effects.
type LeadNotifier interface {
	LeadRouted(ctx context.Context, l *lentity.Lead, p *pentity.Provider, to string) error
	LeadUnserved(ctx context.Context, l *lentity.Lead) error
}

// Identity sends claim and login emails.
type Identity interface {
	SendClaimVerification(ctx context.Context, to, providerName, link string) error
	SendMagicLink(ctx context.Context, to, providerName, link string) error
}

// LogNotifier stands in for SMTP when no mail host is configured. Links are
// logged at debug level so local development can follow them.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendClaimVerification(ctx context.Context, to, providerName, link string) error {
	n.logger.Debugw("claim verification email", "to", to, "provider", providerName, "link", link)
	return nil
}

func (n *LogNotifier) SendMagicLink(ctx context.Context, to, providerName, link string) error {
	n.logger.Debugw("magic link email", "to", to, "provider", providerName, "link", link)
	return nil
}

func (n *LogNotifier) LeadRouted(ctx context.Context, l *lentity.Lead, p *pentity.Provider, to string) error {
	n.logger.Infow("lead notification", "lead_id", l.ID, "provider_id", p.ID, "to", to)
	return nil
}

func (n *LogNotifier) LeadUnserved(ctx context.Context, l *lentity.Lead) error {
	n.logger.Infow("unserved lead alert", "lead_id", l.ID, "zip", l.Zip)
	return nil
}

// Fanout delivers to a primary notifier, whose result is returned, and to
// any number of secondaries whose failures are only logged.
type Fanout struct {
	primary     LeadNotifier
	secondaries []LeadNotifier
	logger      *zap.SugaredLogger
}

func NewFanout(logger *zap.SugaredLogger, primary LeadNotifier, secondaries ...LeadNotifier) *Fanout {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Fanout{primary: primary, secondaries: secondaries, logger: logger}
}

func (f *Fanout) LeadRouted(ctx context.Context, l *lentity.Lead, p *pentity.Provider, to string) error {
	err := f.primary.LeadRouted(ctx, l, p, to)
	for _, s := range f.secondaries {
		if serr := s.LeadRouted(ctx, l, p, to); serr != nil {
			f.logger.Warnw("secondary lead notification failed", "lead_id", l.ID, "err", serr)
		}
	}
	return err
}

func (f *Fanout) LeadUnserved(ctx context.Context, l *lentity.Lead) error {
	err := f.primary.LeadUnserved(ctx, l)
	for _, s := range f.secondaries {
		if serr := s.LeadUnserved(ctx, l); serr != nil {
			f.logger.Warnw("secondary unserved alert failed", "lead_id", l.ID, "err", serr)
		}
	}
	return err
}
