package notify

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

const defaultFromName = "Robô de Agendamentos"

// EmailSender delivers one email. SendGrid, SES and the stub implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// ErrInvalidRecipient is returned before any provider call when To holds no
// parseable address.
var ErrInvalidRecipient = errors.New("notify: invalid email recipient")

// EmailMessage is a single plain-text email, optionally with HTML. To may list
// several addresses separated by commas; ToName applies to the first.
type EmailMessage struct {
	To       string
	ToName   string
	Subject  string
	Body     string
	HTML     string
	Category string
}

// recipients parses To into addresses, dropping blanks.
func (m EmailMessage) recipients() ([]string, error) {
	var out []string
	for _, part := range strings.Split(m.To, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addr, err := netmail.ParseAddress(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRecipient, part)
		}
		out = append(out, addr.Address)
	}
	if len(out) == 0 {
		return nil, ErrInvalidRecipient
	}
	return out, nil
}

// SendGridSender sends emails via the SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	to, err := msg.recipients()
	if err != nil {
		return err
	}

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	message.Subject = msg.Subject
	message.AddContent(mail.NewContent("text/plain", msg.Body), mail.NewContent("text/html", html))

	p := mail.NewPersonalization()
	for i, addr := range to {
		name := ""
		if i == 0 {
			name = msg.ToName
		}
		p.AddTos(mail.NewEmail(name, addr))
	}
	message.AddPersonalizations(p)
	if msg.Category != "" {
		message.AddCategories(msg.Category)
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", "subject", msg.Subject, "recipients", len(to), "status", response.StatusCode)
	return nil
}

// StubEmailSender logs instead of sending.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	to, err := msg.recipients()
	if err != nil {
		return err
	}
	s.logger.Info("stub email sender: would send email", "subject", msg.Subject, "recipients", len(to), "category", msg.Category)
	return nil
}
