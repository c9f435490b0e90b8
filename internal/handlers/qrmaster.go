package handlers

import (
	"context"
	"net/http"

	"github.com/oryxcrm/branchgate/internal/auth"
	"github.com/oryxcrm/branchgate/internal/models"
	pkghttp "github.com/oryxcrm/branchgate/pkg/http"
)

// QRMasterServiceInterface defines the interface for the enrollment secret
type QRMasterServiceInterface interface {
	GetActive(ctx context.Context) (*models.MasterQRCode, error)
	Rotate(ctx context.Context, actorID string) (*models.MasterQRCode, error)
}

// QRMasterHandler handles QR Master code admin requests. Routes using it
// sit behind RequireSession and RequireSuperuser.
type QRMasterHandler struct {
	service QRMasterServiceInterface
}

// NewQRMasterHandler creates a new QRMasterHandler
func NewQRMasterHandler(service QRMasterServiceInterface) *QRMasterHandler {
	return &QRMasterHandler{service: service}
}

// QRMasterResponse represents the active enrollment code
type QRMasterResponse struct {
	Code     string `json:"code"`
	Version  int    `json:"version"`
	IssuedAt string `json:"issued_at"`
}

// GetActive returns the currently-active enrollment code
func (h *QRMasterHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	code, err := h.service.GetActive(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if code == nil {
		pkghttp.WriteNotFound(w, "No enrollment code has been issued yet")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, qrMasterResponse(code))
}

// Rotate deactivates the current code and issues the next version
func (h *QRMasterHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	actorID := ""
	if claims := auth.GetClaimsFromContext(r); claims != nil {
		actorID = claims.UserID
	}

	rotated, err := h.service.Rotate(r.Context(), actorID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, qrMasterResponse(rotated))
}

func qrMasterResponse(code *models.MasterQRCode) QRMasterResponse {
	return QRMasterResponse{
		Code:     code.Code,
		Version:  code.Version,
		IssuedAt: code.IssuedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
