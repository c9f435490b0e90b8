package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oryxcrm/branchgate/internal/models"
)

func newEscalationService(admins *MockUserRepository, attempts *MockAttemptRecorder, mailer *MockMailer) *EscalationService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEscalationService(admins, attempts, mailer, logger)
}

func escalationAttempt() *models.UnauthorizedAttempt {
	deviceID := "device-1"
	return &models.UnauthorizedAttempt{
		ID:                uuid.New(),
		UsernameAttempted: "salesperson",
		DeviceID:          &deviceID,
		DenialReason:      models.DenyCrossBranchDevice,
		IPAddress:         "203.0.113.10",
		AttemptedAt:       time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func superAdmins(emails ...string) func(ctx context.Context) ([]*models.User, error) {
	return func(ctx context.Context) ([]*models.User, error) {
		users := make([]*models.User, len(emails))
		for i, email := range emails {
			users[i] = &models.User{ID: uuid.New().String(), Email: email, IsSuperuser: true, IsActive: true}
		}
		return users, nil
	}
}

func TestDispatch_NotifiesAllSuperAdmins(t *testing.T) {
	admins := &MockUserRepository{
		ListActiveSuperAdminsFunc: superAdmins("root@example.com", "ops@example.com"),
	}

	var gotRecipients []string
	var gotSubject, gotBody string
	mailer := &MockMailer{
		SendFunc: func(ctx context.Context, recipients []string, subject, body string) error {
			gotRecipients, gotSubject, gotBody = recipients, subject, body
			return nil
		},
	}

	marked := 0
	attempts := &MockAttemptRecorder{
		MarkNotifiedFunc: func(ctx context.Context, id uuid.UUID) (bool, error) {
			marked++
			return true, nil
		},
	}

	attempt := escalationAttempt()
	err := newEscalationService(admins, attempts, mailer).Dispatch(context.Background(), attempt)

	require.NoError(t, err)
	assert.Equal(t, []string{"root@example.com", "ops@example.com"}, gotRecipients)
	assert.Contains(t, gotSubject, "[URGENT]")
	assert.Contains(t, gotSubject, string(models.DenyCrossBranchDevice))
	assert.Contains(t, gotBody, "salesperson")
	assert.Contains(t, gotBody, "203.0.113.10")
	assert.Contains(t, gotBody, attempt.ID.String())
	assert.Contains(t, gotBody, "device-1")
	assert.Equal(t, 1, marked)
}

func TestDispatch_AlreadyNotifiedIsNoop(t *testing.T) {
	mailer := &MockMailer{}
	attempt := escalationAttempt()
	attempt.Notified = true

	err := newEscalationService(&MockUserRepository{}, &MockAttemptRecorder{}, mailer).
		Dispatch(context.Background(), attempt)

	require.NoError(t, err)
	assert.Equal(t, 0, mailer.Sent)
}

func TestDispatch_NoRecipients(t *testing.T) {
	tests := []struct {
		name   string
		admins *MockUserRepository
	}{
		{
			name:   "no active super admins",
			admins: &MockUserRepository{ListActiveSuperAdminsFunc: superAdmins()},
		},
		{
			name:   "super admins without email",
			admins: &MockUserRepository{ListActiveSuperAdminsFunc: superAdmins("")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &MockMailer{}
			err := newEscalationService(tt.admins, &MockAttemptRecorder{}, mailer).
				Dispatch(context.Background(), escalationAttempt())

			require.NoError(t, err)
			assert.Equal(t, 0, mailer.Sent)
		})
	}
}

func TestDispatch_SendFailureLeavesUnnotified(t *testing.T) {
	admins := &MockUserRepository{
		ListActiveSuperAdminsFunc: superAdmins("root@example.com"),
	}
	mailer := &MockMailer{
		SendFunc: func(ctx context.Context, recipients []string, subject, body string) error {
			return errors.New("ses throttled")
		},
	}
	marked := 0
	attempts := &MockAttemptRecorder{
		MarkNotifiedFunc: func(ctx context.Context, id uuid.UUID) (bool, error) {
			marked++
			return true, nil
		},
	}

	err := newEscalationService(admins, attempts, mailer).
		Dispatch(context.Background(), escalationAttempt())

	assert.Error(t, err)
	assert.Equal(t, 0, marked)
}

func TestDispatch_LosingMarkRaceIsBenign(t *testing.T) {
	admins := &MockUserRepository{
		ListActiveSuperAdminsFunc: superAdmins("root@example.com"),
	}
	attempts := &MockAttemptRecorder{
		MarkNotifiedFunc: func(ctx context.Context, id uuid.UUID) (bool, error) {
			return false, nil
		},
	}

	err := newEscalationService(admins, attempts, &MockMailer{}).
		Dispatch(context.Background(), escalationAttempt())

	assert.NoError(t, err)
}
