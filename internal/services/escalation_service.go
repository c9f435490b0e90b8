package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/oryxcrm/branchgate/internal/models"
)

// SuperAdminLister resolves the escalation recipients
type SuperAdminLister interface {
	ListActiveSuperAdmins(ctx context.Context) ([]*models.User, error)
}

// NotifiedMarker flips the at-most-once notified flag on an attempt
type NotifiedMarker interface {
	MarkNotified(ctx context.Context, id uuid.UUID) (bool, error)
}

// Mailer delivers the outbound notification
type Mailer interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// EscalationService dispatches urgent notifications about escalation-worthy
// denials to all active super-administrators. Delivery is best effort: a
// failed dispatch leaves the attempt unnotified so the redelivery loop picks
// it up again.
type EscalationService struct {
	admins   SuperAdminLister
	attempts NotifiedMarker
	mailer   Mailer
	logger   *slog.Logger
}

// NewEscalationService creates a new EscalationService
func NewEscalationService(admins SuperAdminLister, attempts NotifiedMarker, mailer Mailer, logger *slog.Logger) *EscalationService {
	return &EscalationService{
		admins:   admins,
		attempts: attempts,
		mailer:   mailer,
		logger:   logger,
	}
}

// Dispatch sends the notification for one attempt and marks it notified on
// success.
func (s *EscalationService) Dispatch(ctx context.Context, attempt *models.UnauthorizedAttempt) error {
	if attempt.Notified {
		return nil
	}

	admins, err := s.admins.ListActiveSuperAdmins(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve escalation recipients: %w", err)
	}
	if len(admins) == 0 {
		s.logger.Warn("no active super admins to notify",
			slog.String("attempt_id", attempt.ID.String()))
		return nil
	}

	recipients := make([]string, 0, len(admins))
	for _, admin := range admins {
		if admin.Email != "" {
			recipients = append(recipients, admin.Email)
		}
	}
	if len(recipients) == 0 {
		s.logger.Warn("active super admins have no email addresses",
			slog.String("attempt_id", attempt.ID.String()))
		return nil
	}

	subject, body := escalationMessage(attempt)
	if err := s.mailer.Send(ctx, recipients, subject, body); err != nil {
		return fmt.Errorf("failed to send escalation: %w", err)
	}

	marked, err := s.attempts.MarkNotified(ctx, attempt.ID)
	if err != nil {
		return fmt.Errorf("failed to mark attempt notified: %w", err)
	}
	if !marked {
		// Another dispatcher won the race; the duplicate send is benign.
		s.logger.Info("attempt already marked notified",
			slog.String("attempt_id", attempt.ID.String()))
	}

	s.logger.Info("escalation dispatched",
		slog.String("attempt_id", attempt.ID.String()),
		slog.Int("recipients", len(recipients)))

	return nil
}

func escalationMessage(attempt *models.UnauthorizedAttempt) (subject, body string) {
	subject = fmt.Sprintf("[URGENT] Unauthorized login attempt: %s", attempt.DenialReason)

	body = fmt.Sprintf(
		"An unauthorized login attempt was refused.\n\n"+
			"Username:  %s\n"+
			"Reason:    %s\n"+
			"IP:        %s\n"+
			"Time:      %s\n"+
			"Reference: %s\n",
		attempt.UsernameAttempted,
		attempt.DenialReason,
		attempt.IPAddress,
		attempt.AttemptedAt.Format("2006-01-02 15:04:05 MST"),
		attempt.ID.String(),
	)

	if attempt.DeviceID != nil {
		body += fmt.Sprintf("Device:    %s\n", *attempt.DeviceID)
	}

	return subject, body
}
