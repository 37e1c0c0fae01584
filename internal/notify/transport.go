package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"queue-monitor/internal/config"
	"queue-monitor/internal/models"
)

// NewTransport resolves a configured transport name. "default" and "smtp"
// send through the SMTP settings; "log" only writes the alert to the log.
func NewTransport(name string, cfg config.SMTP, logger *slog.Logger) (Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "default", "smtp", "":
		return NewSMTPMailer(cfg)
	case "log":
		return NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown mailer transport %q", models.ErrConfiguration, name)
	}
}

// SMTPMailer sends messages through an SMTP relay, one connection per send.
type SMTPMailer struct {
	cfg    config.SMTP
	policy gomail.TLSPolicy
}

func NewSMTPMailer(cfg config.SMTP) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("%w: smtp host is required", models.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("%w: smtp from address is required", models.ErrConfiguration)
	}
	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	return &SMTPMailer{cfg: cfg, policy: policy}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	mm := gomail.NewMsg()
	if err := mm.From(m.cfg.From); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := mm.To(msg.To...); err != nil {
		return fmt.Errorf("set recipients: %w", err)
	}
	mm.Subject(msg.Subject)
	mm.SetBodyString(gomail.TypeTextPlain, msg.Body)

	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithTLSPolicy(m.policy),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, mm); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func tlsPolicy(name string) (gomail.TLSPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "opportunistic":
		return gomail.TLSOpportunistic, nil
	case "mandatory":
		return gomail.TLSMandatory, nil
	case "none":
		return gomail.NoTLS, nil
	default:
		return gomail.NoTLS, fmt.Errorf("%w: unknown smtp tls policy %q", models.ErrConfiguration, name)
	}
}

// LogMailer writes alerts to the log instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Warn("stuck job alert",
		"to", strings.Join(msg.To, ","),
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
