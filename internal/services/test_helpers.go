package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/oryxcrm/branchgate/internal/models"
)

// MockUserRepository implements UserRepository and SuperAdminLister for testing
type MockUserRepository struct {
	GetByUsernameFunc         func(ctx context.Context, username string) (*models.User, error)
	ListActiveSuperAdminsFunc func(ctx context.Context) ([]*models.User, error)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) ListActiveSuperAdmins(ctx context.Context) ([]*models.User, error) {
	if m.ListActiveSuperAdminsFunc != nil {
		return m.ListActiveSuperAdminsFunc(ctx)
	}
	return []*models.User{}, nil
}

// MockDeviceRegistry implements DeviceRegistry and DeviceStore for testing
type MockDeviceRegistry struct {
	FindActiveByTokenFunc       func(ctx context.Context, token string) (*models.Device, error)
	FindActiveByFingerprintFunc func(ctx context.Context, hash string) (*models.Device, error)
	CountActiveForBranchFunc    func(ctx context.Context, branchID string) (int, error)
	UpdateLastUsedFunc          func(ctx context.Context, deviceID, userID string) error
	UpdateFingerprintFunc       func(ctx context.Context, deviceID, hash string, data []byte) error
	ManualIdentifierExistsFunc  func(ctx context.Context, branchID, identifier string) (bool, error)
	CreateFunc                  func(ctx context.Context, device *models.Device) (*models.Device, error)
}

func (m *MockDeviceRegistry) FindActiveByToken(ctx context.Context, token string) (*models.Device, error) {
	if m.FindActiveByTokenFunc != nil {
		return m.FindActiveByTokenFunc(ctx, token)
	}
	return nil, models.ErrNotFound
}

func (m *MockDeviceRegistry) FindActiveByFingerprint(ctx context.Context, hash string) (*models.Device, error) {
	if m.FindActiveByFingerprintFunc != nil {
		return m.FindActiveByFingerprintFunc(ctx, hash)
	}
	return nil, models.ErrNotFound
}

func (m *MockDeviceRegistry) CountActiveForBranch(ctx context.Context, branchID string) (int, error) {
	if m.CountActiveForBranchFunc != nil {
		return m.CountActiveForBranchFunc(ctx, branchID)
	}
	return 0, nil
}

func (m *MockDeviceRegistry) UpdateLastUsed(ctx context.Context, deviceID, userID string) error {
	if m.UpdateLastUsedFunc != nil {
		return m.UpdateLastUsedFunc(ctx, deviceID, userID)
	}
	return nil
}

func (m *MockDeviceRegistry) UpdateFingerprint(ctx context.Context, deviceID, hash string, data []byte) error {
	if m.UpdateFingerprintFunc != nil {
		return m.UpdateFingerprintFunc(ctx, deviceID, hash, data)
	}
	return nil
}

func (m *MockDeviceRegistry) ManualIdentifierExists(ctx context.Context, branchID, identifier string) (bool, error) {
	if m.ManualIdentifierExistsFunc != nil {
		return m.ManualIdentifierExistsFunc(ctx, branchID, identifier)
	}
	return false, nil
}

func (m *MockDeviceRegistry) Create(ctx context.Context, device *models.Device) (*models.Device, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, device)
	}
	device.ID = uuid.New().String()
	return device, nil
}

// MockAttemptRecorder implements AttemptRecorder and NotifiedMarker for testing
type MockAttemptRecorder struct {
	RecordFunc       func(ctx context.Context, attempt *models.UnauthorizedAttempt) (*models.UnauthorizedAttempt, error)
	MarkNotifiedFunc func(ctx context.Context, id uuid.UUID) (bool, error)
	Recorded         []*models.UnauthorizedAttempt
}

func (m *MockAttemptRecorder) Record(ctx context.Context, attempt *models.UnauthorizedAttempt) (*models.UnauthorizedAttempt, error) {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, attempt)
	}
	attempt.ID = uuid.New()
	m.Recorded = append(m.Recorded, attempt)
	return attempt, nil
}

func (m *MockAttemptRecorder) MarkNotified(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.MarkNotifiedFunc != nil {
		return m.MarkNotifiedFunc(ctx, id)
	}
	return true, nil
}

// MockLoginLimiter implements ratelimit.LoginLimiter for testing
type MockLoginLimiter struct {
	RecordFailureFunc func(ctx context.Context, ip string) (bool, int, error)
	IsBlockedFunc     func(ctx context.Context, ip string) (bool, error)
	ResetFunc         func(ctx context.Context, ip string) error
	Failures          int
	Resets            int
}

func (m *MockLoginLimiter) RecordFailure(ctx context.Context, ip string) (bool, int, error) {
	m.Failures++
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, ip)
	}
	return false, 4, nil
}

func (m *MockLoginLimiter) IsBlocked(ctx context.Context, ip string) (bool, error) {
	if m.IsBlockedFunc != nil {
		return m.IsBlockedFunc(ctx, ip)
	}
	return false, nil
}

func (m *MockLoginLimiter) Reset(ctx context.Context, ip string) error {
	m.Resets++
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, ip)
	}
	return nil
}

// MockSessionIssuer implements SessionIssuer for testing
type MockSessionIssuer struct {
	IssueFunc func(user *models.User) (string, error)
}

func (m *MockSessionIssuer) Issue(user *models.User) (string, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(user)
	}
	return "session-token", nil
}

// MockEscalationDispatcher implements EscalationDispatcher for testing.
// Dispatched receives each attempt so tests can wait for the fire-and-forget
// goroutine.
type MockEscalationDispatcher struct {
	DispatchFunc func(ctx context.Context, attempt *models.UnauthorizedAttempt) error
	Dispatched   chan *models.UnauthorizedAttempt
}

func NewMockEscalationDispatcher() *MockEscalationDispatcher {
	return &MockEscalationDispatcher{
		Dispatched: make(chan *models.UnauthorizedAttempt, 8),
	}
}

func (m *MockEscalationDispatcher) Dispatch(ctx context.Context, attempt *models.UnauthorizedAttempt) error {
	if m.Dispatched != nil {
		m.Dispatched <- attempt
	}
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, attempt)
	}
	return nil
}

// MockQRMasterRepo implements QRMasterStore and QRMasterAuthority for testing
type MockQRMasterRepo struct {
	GetActiveFunc  func(ctx context.Context) (*models.MasterQRCode, error)
	FindByCodeFunc func(ctx context.Context, code string) (*models.MasterQRCode, error)
	RotateFunc     func(ctx context.Context, newCode string) (*models.MasterQRCode, error)
}

func (m *MockQRMasterRepo) GetActive(ctx context.Context) (*models.MasterQRCode, error) {
	if m.GetActiveFunc != nil {
		return m.GetActiveFunc(ctx)
	}
	return nil, models.ErrNotFound
}

func (m *MockQRMasterRepo) FindByCode(ctx context.Context, code string) (*models.MasterQRCode, error) {
	if m.FindByCodeFunc != nil {
		return m.FindByCodeFunc(ctx, code)
	}
	return nil, models.ErrNotFound
}

func (m *MockQRMasterRepo) Rotate(ctx context.Context, newCode string) (*models.MasterQRCode, error) {
	if m.RotateFunc != nil {
		return m.RotateFunc(ctx, newCode)
	}
	return &models.MasterQRCode{Code: newCode, Version: 1, IsActive: true}, nil
}

// MockMailer implements Mailer for testing
type MockMailer struct {
	SendFunc func(ctx context.Context, recipients []string, subject, body string) error
	Sent     int
}

func (m *MockMailer) Send(ctx context.Context, recipients []string, subject, body string) error {
	m.Sent++
	if m.SendFunc != nil {
		return m.SendFunc(ctx, recipients, subject, body)
	}
	return nil
}
