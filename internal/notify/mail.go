package notify

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"text/template"

	"gopkg.in/gomail.v2"

	lentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/entity"
	pentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
)

type MailConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	AdminEmail string
}

// MailConfigFromEnv reads MAIL_* and ADMIN_EMAIL.
func MailConfigFromEnv() MailConfig {
	port := 587
	if v, err := strconv.Atoi(os.Getenv("MAIL_PORT")); err == nil && v > 0 {
		port = v
	}
	from := os.Getenv("MAIL_FROM")
	if from == "" {
		from = "no-reply@localhost"
	}
	return MailConfig{
		Host:       os.Getenv("MAIL_HOST"),
		Port:       port,
		User:       os.Getenv("MAIL_USER"),
		Password:   os.Getenv("MAIL_PASS"),
		From:       from,
		AdminEmail: os.Getenv("ADMIN_EMAIL"),
	}
}

// Enabled reports whether an SMTP host is configured.
func (c MailConfig) Enabled() bool { return c.Host != "" }

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

var templates = template.Must(template.New("mail").Parse(`
{{define "claim_subject"}}Verify your listing for {{.Name}}{{end}}
{{define "claim_body"}}Hello,

Someone asked to claim the listing "{{.Name}}" using this address.
Confirm the claim by opening this link:

{{.Link}}

If you did not request this, ignore this email.
{{end}}
{{define "login_subject"}}Your sign-in link{{end}}
{{define "login_body"}}Hello {{.Name}},

Use this link to sign in. It expires in 15 minutes and works once.

{{.Link}}
{{end}}
{{define "lead_subject"}}New {{if eq .Lead.Urgency "STAT"}}URGENT {{end}}lead in {{.Lead.City}}, {{.Lead.State}}{{end}}
{{define "lead_body"}}Hello {{.Provider.Name}},

A new lead was routed to you.

Name:    {{.Lead.FullName}}
Phone:   {{.Lead.Phone}}
{{- with .Lead.Email}}
Email:   {{.}}{{end}}
Location: {{.Lead.City}}, {{.Lead.State}} {{.Lead.Zip}}
Urgency: {{.Lead.Urgency}}
{{- with .Lead.Notes}}
Notes:   {{.}}{{end}}
{{end}}
{{define "unserved_subject"}}Unserved lead {{.Lead.ID}} ({{.Lead.Zip}}){{end}}
{{define "unserved_body"}}No eligible provider matched lead {{.Lead.ID}}.

Location: {{.Lead.City}}, {{.Lead.State}} {{.Lead.Zip}}
Urgency: {{.Lead.Urgency}}
Price:   {{.Lead.PriceCents}} cents

The lead remains OPEN.
{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Mailer sends identity and lead emails over SMTP.
type Mailer struct {
	cfg    MailConfig
	dialer Dialer
}

func NewMailer(cfg MailConfig) *Mailer {
	return &Mailer{cfg: cfg, dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)}
}

// NewMailerWithDialer is used by tests.
func NewMailerWithDialer(cfg MailConfig, d Dialer) *Mailer {
	return &Mailer{cfg: cfg, dialer: d}
}

func (m *Mailer) send(ctx context.Context, to, tmpl string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, err := render(tmpl+"_subject", data)
	if err != nil {
		return err
	}
	body, err := render(tmpl+"_body", data)
	if err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

type linkData struct {
	Name string
	Link string
}

func (m *Mailer) SendClaimVerification(ctx context.Context, to, providerName, link string) error {
	return m.send(ctx, to, "claim", linkData{Name: providerName, Link: link})
}

func (m *Mailer) SendMagicLink(ctx context.Context, to, providerName, link string) error {
	return m.send(ctx, to, "login", linkData{Name: providerName, Link: link})
}

type leadData struct {
	Lead     *lentity.Lead
	Provider *pentity.Provider
}

// LeadRouted emails the lead details to the provider's contact address.
func (m *Mailer) LeadRouted(ctx context.Context, l *lentity.Lead, p *pentity.Provider, to string) error {
	return m.send(ctx, to, "lead", leadData{Lead: l, Provider: p})
}

// LeadUnserved alerts ADMIN_EMAIL. It is a no-op when no admin address is set.
func (m *Mailer) LeadUnserved(ctx context.Context, l *lentity.Lead) error {
	if m.cfg.AdminEmail == "" {
		return nil
	}
	return m.send(ctx, m.cfg.AdminEmail, "unserved", leadData{Lead: l})
}
