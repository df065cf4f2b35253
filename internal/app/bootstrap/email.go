package bootstrap

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/booking-agent/internal/config"
	"github.com/wolfman30/booking-agent/internal/notify"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

// BuildEmailSender selects the escalation email provider. Misconfigured
// providers fall back to the logging stub so complaints are never lost
// silently.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	from := notify.Address{Name: cfg.EmailFromName, Email: cfg.EmailFrom}
	switch cfg.EmailProvider {
	case "sendgrid":
		s, err := notify.NewSendGridSender(notify.SendGridConfig{APIKey: cfg.SendGridAPIKey, From: from}, logger.Component("sendgrid"))
		if err == nil {
			return s
		}
		logger.Warn("sendgrid unavailable; using stub email sender", "error", err)
	case "ses":
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Warn("ses unavailable; using stub email sender", "error", err)
			break
		}
		s, err := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			From:             from,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger.Component("ses"))
		if err == nil {
			return s
		}
		logger.Warn("ses unavailable; using stub email sender", "error", err)
	}
	return notify.NewStubEmailSender(logger)
}
