package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/booking-agent/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig configures the SES sender. ConfigurationSet is optional.
type SESConfig struct {
	From             Address
	ConfigurationSet string
}

type SESSender struct {
	api    sesAPI
	cfg    SESConfig
	logger *logging.Logger
}

func NewSESSender(client *sesv2.Client, cfg SESConfig, logger *logging.Logger) (*SESSender, error) {
	if client == nil || strings.TrimSpace(cfg.From.Email) == "" {
		return nil, ErrNotConfigured
	}
	return newSESSender(client, cfg, logger), nil
}

func newSESSender(api sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SESSender{api: api, cfg: cfg, logger: logger}
}

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	body := &types.Body{Text: utf8Content(msg.Text)}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.cfg.From.String()),
		Destination:      &types.Destination{ToAddresses: []string{msg.To.String()}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
	}
	if s.cfg.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(s.cfg.ConfigurationSet)
	}
	if msg.Category != "" {
		input.EmailTags = []types.MessageTag{{Name: aws.String("category"), Value: aws.String(msg.Category)}}
	}

	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("notify: ses: %w", err)
	}
	s.logger.Debug("email sent", "provider", "ses", "category", msg.Category, "message_id", aws.ToString(out.MessageId))
	return nil
}
