package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/oryxcrm/branchgate/internal/fingerprint"
	"github.com/oryxcrm/branchgate/internal/models"
	pkglogger "github.com/oryxcrm/branchgate/pkg/logger"
)

// DeviceStore defines the device persistence operations used during
// registration and pre-flight checks
type DeviceStore interface {
	FindActiveByToken(ctx context.Context, token string) (*models.Device, error)
	FindActiveByFingerprint(ctx context.Context, hash string) (*models.Device, error)
	ManualIdentifierExists(ctx context.Context, branchID, identifier string) (bool, error)
	Create(ctx context.Context, device *models.Device) (*models.Device, error)
}

// QRMasterStore resolves enrollment codes against current and past versions
type QRMasterStore interface {
	GetActive(ctx context.Context) (*models.MasterQRCode, error)
	FindByCode(ctx context.Context, code string) (*models.MasterQRCode, error)
}

// DeviceService handles device enrollment and the read-only device check.
type DeviceService struct {
	devices     DeviceStore
	qrCodes     QRMasterStore
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewDeviceService creates a new DeviceService
func NewDeviceService(devices DeviceStore, qrCodes QRMasterStore, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *DeviceService {
	return &DeviceService{
		devices:     devices,
		qrCodes:     qrCodes,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// RegisterInput carries one enrollment request.
type RegisterInput struct {
	BranchID         string
	Name             string
	QRCode           string
	ManualIdentifier string
	Attributes       *fingerprint.Attributes
}

// Register enrolls a new device for a branch. Enrollment requires the
// currently-active QR Master code; a code from a superseded version yields a
// distinguishable error to aid operator diagnosis.
func (s *DeviceService) Register(ctx context.Context, input RegisterInput) (*models.Device, error) {
	input.BranchID = strings.TrimSpace(input.BranchID)
	input.Name = strings.TrimSpace(input.Name)
	input.QRCode = strings.TrimSpace(input.QRCode)
	input.ManualIdentifier = strings.TrimSpace(input.ManualIdentifier)

	if input.BranchID == "" || input.Name == "" || input.QRCode == "" {
		return nil, models.ErrMissingRegistrationFields
	}

	if err := s.validateQRCode(ctx, input.QRCode); err != nil {
		return nil, err
	}

	var manualIdentifier *string
	if input.ManualIdentifier != "" {
		exists, err := s.devices.ManualIdentifierExists(ctx, input.BranchID, input.ManualIdentifier)
		if err != nil {
			s.logger.Error("failed to check manual identifier", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if exists {
			return nil, models.ErrDuplicateManualIdentifier
		}
		manualIdentifier = &input.ManualIdentifier
	}

	device := &models.Device{
		// Server-generated 128-bit token; never derived from client input.
		Token:            uuid.New().String(),
		Name:             input.Name,
		BranchID:         input.BranchID,
		ManualIdentifier: manualIdentifier,
		IsActive:         true,
	}

	if input.Attributes != nil {
		device.Fingerprint = input.Attributes.Hash()
		device.FingerprintData = input.Attributes.Canonical()
	}

	created, err := s.devices.Create(ctx, device)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateManualIdentifier) {
			return nil, err
		}
		s.logger.Error("failed to create device", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAdminAction("device_registered", "", map[string]string{
		"device_id": created.ID,
		"branch_id": created.BranchID,
	})

	return created, nil
}

// validateQRCode checks the presented enrollment code against the single
// active version.
func (s *DeviceService) validateQRCode(ctx context.Context, code string) error {
	active, err := s.qrCodes.GetActive(ctx)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to load active qr master code", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if active != nil && active.Code == code {
		return nil
	}

	// Distinguish a superseded code from one that never existed.
	known, err := s.qrCodes.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidQRCode
		}
		s.logger.Error("failed to resolve qr master code", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !known.IsActive {
		return models.ErrExpiredQRVersion
	}

	// A second active row would violate the single-active invariant; treat
	// the code as invalid rather than trust inconsistent state.
	return models.ErrInvalidQRCode
}

// CheckInput carries a read-only device pre-flight request.
type CheckInput struct {
	Token       string
	Fingerprint string
	Attributes  *fingerprint.Attributes
}

// CheckResult is the pre-flight response: whether the client is a registered
// device and how it was found.
type CheckResult struct {
	Registered bool
	DeviceName string
	BranchName string
	IsBlocked  bool
	FoundBy    string // "token" or "fingerprint"
	Similarity *float64
}

// Check resolves a client's device identity without side effects. Token
// lookup is always attempted first; fingerprint lookup is a fallback only.
// When both are supplied and the token fails, the similarity between the
// stored and presented fingerprint is computed for diagnostics.
func (s *DeviceService) Check(ctx context.Context, input CheckInput) (*CheckResult, error) {
	presentedHash := strings.TrimSpace(input.Fingerprint)
	if presentedHash == "" && input.Attributes != nil {
		presentedHash = input.Attributes.Hash()
	}

	// A token that isn't even UUID-shaped can never match a registered
	// device, so skip the lookup instead of surfacing a cast error.
	if token := strings.TrimSpace(input.Token); token != "" {
		if _, parseErr := uuid.Parse(token); parseErr == nil {
			device, err := s.devices.FindActiveByToken(ctx, token)
			if err == nil {
				return checkResultFor(device, "token", nil), nil
			}
			if !errors.Is(err, models.ErrNotFound) {
				return nil, models.ErrInternalServer
			}
		}
	}

	if presentedHash == "" {
		return &CheckResult{Registered: false}, nil
	}

	device, err := s.devices.FindActiveByFingerprint(ctx, presentedHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &CheckResult{Registered: false}, nil
		}
		return nil, models.ErrInternalServer
	}

	var similarity *float64
	if input.Attributes != nil {
		if stored, decodeErr := fingerprint.Decode(device.FingerprintData); decodeErr == nil {
			score := fingerprint.Similarity(stored, input.Attributes)
			similarity = &score
		}
	}

	return checkResultFor(device, "fingerprint", similarity), nil
}

func checkResultFor(device *models.Device, foundBy string, similarity *float64) *CheckResult {
	return &CheckResult{
		Registered: true,
		DeviceName: device.Name,
		BranchName: device.BranchName,
		IsBlocked:  device.IsBlocked,
		FoundBy:    foundBy,
		Similarity: similarity,
	}
}
