package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/robo-agendamentos/internal/config"
	"github.com/wolfman30/robo-agendamentos/internal/notify"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// BuildEmailSender picks the operator email provider. "auto" prefers
// SendGrid when an API key is set, then SES when a sender address is set,
// and otherwise logs emails without sending.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.EmailProvider))

	sendgrid := func() notify.EmailSender {
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); s != nil {
			return s
		}
		return nil
	}
	ses := func() notify.EmailSender {
		if strings.TrimSpace(cfg.EmailFromAddress) == "" {
			return nil
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
	}

	switch provider {
	case "sendgrid":
		if s := sendgrid(); s != nil {
			return s, "sendgrid"
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty; using stub")
	case "ses":
		if s := ses(); s != nil {
			return s, "ses"
		}
		logger.Warn("EMAIL_PROVIDER=ses but EMAIL_FROM_ADDRESS is empty; using stub")
	case "stub", "none":
	default:
		if s := sendgrid(); s != nil {
			return s, "sendgrid"
		}
		if s := ses(); s != nil {
			return s, "ses"
		}
	}
	return notify.NewStubEmailSender(logger), "stub"
}

// BuildOperatorAlerts returns nil when no operator address is configured.
func BuildOperatorAlerts(cfg *appconfig.Config, sender notify.EmailSender, logger *logging.Logger) *notify.OperatorAlerts {
	if strings.TrimSpace(cfg.OperatorEmail) == "" {
		return nil
	}
	return notify.NewOperatorAlerts(sender, cfg.OperatorEmail, cfg.OperatorEmailName, logger)
}
