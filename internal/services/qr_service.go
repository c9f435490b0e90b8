package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/oryxcrm/branchgate/internal/models"
	pkgauth "github.com/oryxcrm/branchgate/pkg/auth"
	pkglogger "github.com/oryxcrm/branchgate/pkg/logger"
)

// QRMasterAuthority owns the rotating enrollment secret
type QRMasterAuthority interface {
	GetActive(ctx context.Context) (*models.MasterQRCode, error)
	Rotate(ctx context.Context, newCode string) (*models.MasterQRCode, error)
}

// QRMasterService exposes the single currently-active enrollment code and
// rotation to the next version.
type QRMasterService struct {
	repo        QRMasterAuthority
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewQRMasterService creates a new QRMasterService
func NewQRMasterService(repo QRMasterAuthority, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *QRMasterService {
	return &QRMasterService{
		repo:        repo,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// GetActive returns the current enrollment code, or nil when none has been
// issued yet.
func (s *QRMasterService) GetActive(ctx context.Context) (*models.MasterQRCode, error) {
	code, err := s.repo.GetActive(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("failed to load active qr master code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return code, nil
}

// Rotate deactivates the current version and issues the next one. The
// repository serializes concurrent rotations, so exactly one version is
// active at all times and versions strictly increase.
func (s *QRMasterService) Rotate(ctx context.Context, actorID string) (*models.MasterQRCode, error) {
	newCode, err := pkgauth.GenerateEnrollmentCode()
	if err != nil {
		s.logger.Error("failed to generate enrollment code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	rotated, err := s.repo.Rotate(ctx, newCode)
	if err != nil {
		s.logger.Error("failed to rotate qr master code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("qr master code rotated", slog.Int("version", rotated.Version))
	s.auditLogger.LogAdminAction("qr_rotated", actorID, map[string]string{
		"version": strconv.Itoa(rotated.Version),
	})

	return rotated, nil
}
