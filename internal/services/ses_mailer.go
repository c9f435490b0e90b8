package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESMailer delivers escalation notifications through AWS SES.
type SESMailer struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewSESMailer creates a new AWS SES mailer
func NewSESMailer(region, fromAddress string, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESMailer{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// Send delivers one message to all recipients.
func (m *SESMailer) Send(ctx context.Context, recipients []string, subject, body string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body),
				},
			},
		},
	}

	result, err := m.sesClient.SendEmail(ctx, input)
	if err != nil {
		m.logger.Error("failed to send escalation email via SES",
			slog.Int("recipients", len(recipients)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("escalation email sent",
		slog.Int("recipients", len(recipients)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
