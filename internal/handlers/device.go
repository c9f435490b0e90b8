package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oryxcrm/branchgate/internal/fingerprint"
	"github.com/oryxcrm/branchgate/internal/models"
	"github.com/oryxcrm/branchgate/internal/services"
	pkghttp "github.com/oryxcrm/branchgate/pkg/http"
)

// DeviceServiceInterface defines the interface for device enrollment and checks
type DeviceServiceInterface interface {
	Register(ctx context.Context, input services.RegisterInput) (*models.Device, error)
	Check(ctx context.Context, input services.CheckInput) (*services.CheckResult, error)
}

// DeviceHandler handles device-related HTTP requests
type DeviceHandler struct {
	service DeviceServiceInterface
}

// NewDeviceHandler creates a new DeviceHandler
func NewDeviceHandler(service DeviceServiceInterface) *DeviceHandler {
	return &DeviceHandler{service: service}
}

// RegisterDeviceRequest represents the request body for device enrollment
type RegisterDeviceRequest struct {
	BranchID         string                  `json:"branch_id" validate:"required"`
	Name             string                  `json:"name" validate:"required,min=1,max=100"`
	QRCode           string                  `json:"qr_master_code" validate:"required"`
	ManualIdentifier string                  `json:"manual_identifier,omitempty" validate:"omitempty,max=50"`
	Fingerprint      *fingerprint.Attributes `json:"fingerprint,omitempty"`
}

// RegisterDeviceResponse represents a successful enrollment. The token is
// returned exactly once; the client must persist it.
type RegisterDeviceResponse struct {
	ID          string `json:"id"`
	DeviceToken string `json:"device_token"`
	Name        string `json:"name"`
	BranchID    string `json:"branch_id"`
}

// CheckDeviceResponse represents the pre-flight device status
type CheckDeviceResponse struct {
	Registered bool     `json:"registered"`
	DeviceName string   `json:"device_name,omitempty"`
	BranchName string   `json:"branch_name,omitempty"`
	IsBlocked  bool     `json:"is_blocked,omitempty"`
	FoundBy    string   `json:"found_by,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
}

// Register enrolls a new device using the active QR Master code
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterDeviceRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	device, err := h.service.Register(r.Context(), services.RegisterInput{
		BranchID:         req.BranchID,
		Name:             req.Name,
		QRCode:           req.QRCode,
		ManualIdentifier: req.ManualIdentifier,
		Attributes:       req.Fingerprint,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrMissingRegistrationFields):
			pkghttp.WriteError(w, http.StatusBadRequest, "missing_fields", "Branch, device name and QR code are required")
		case errors.Is(err, models.ErrInvalidQRCode):
			pkghttp.WriteError(w, http.StatusForbidden, "invalid_qr", "The QR code is not valid")
		case errors.Is(err, models.ErrExpiredQRVersion):
			pkghttp.WriteError(w, http.StatusForbidden, "expired_qr_version", "The QR code has been superseded; scan the current one")
		case errors.Is(err, models.ErrDuplicateManualIdentifier):
			pkghttp.WriteError(w, http.StatusConflict, "duplicate_manual_identifier", "That identifier is already in use at this branch")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, RegisterDeviceResponse{
		ID:          device.ID,
		DeviceToken: device.Token,
		Name:        device.Name,
		BranchID:    device.BranchID,
	})
}

// Check resolves the caller's device status without side effects. The
// terminal UI calls this before showing the login form.
func (h *DeviceHandler) Check(w http.ResponseWriter, r *http.Request) {
	input := services.CheckInput{
		Token:       r.URL.Query().Get("device_token"),
		Fingerprint: r.URL.Query().Get("fingerprint"),
	}

	// Raw attributes may ride along as a JSON body even on GET; the
	// fingerprint hash alone is enough for the lookup.
	if r.Body != nil && r.ContentLength > 0 {
		var attrs fingerprint.Attributes
		if err := json.NewDecoder(r.Body).Decode(&attrs); err == nil {
			input.Attributes = &attrs
		}
	}

	result, err := h.service.Check(r.Context(), input)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, CheckDeviceResponse{
		Registered: result.Registered,
		DeviceName: result.DeviceName,
		BranchName: result.BranchName,
		IsBlocked:  result.IsBlocked,
		FoundBy:    result.FoundBy,
		Similarity: result.Similarity,
	})
}
