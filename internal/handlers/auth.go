package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/oryxcrm/branchgate/internal/fingerprint"
	"github.com/oryxcrm/branchgate/internal/models"
	"github.com/oryxcrm/branchgate/internal/services"
	pkghttp "github.com/oryxcrm/branchgate/pkg/http"
)

// AccessServiceInterface defines the interface for the login decision engine
type AccessServiceInterface interface {
	Authenticate(ctx context.Context, input services.LoginInput) (*models.Decision, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AccessServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AccessServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username    string                  `json:"username" validate:"required"`
	Password    string                  `json:"password" validate:"required"`
	DeviceToken string                  `json:"device_token,omitempty"`
	Fingerprint *fingerprint.Attributes `json:"fingerprint,omitempty"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	SessionToken string        `json:"session_token"`
	User         LoginUserInfo `json:"user"`
}

// LoginUserInfo is the user summary returned on a successful login
type LoginUserInfo struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	BranchID   string `json:"branch_id"`
	BranchName string `json:"branch_name,omitempty"`
}

// DeniedResponse represents a refused login
type DeniedResponse struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Login runs the full access decision for one login attempt
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	decision, err := h.service.Authenticate(r.Context(), services.LoginInput{
		Username:    strings.TrimSpace(req.Username),
		Password:    req.Password,
		DeviceToken: strings.TrimSpace(req.DeviceToken),
		Attributes:  req.Fingerprint,
		IPAddress:   pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	switch decision.Outcome {
	case models.DecisionAllow:
		user := decision.User
		pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
			SessionToken: decision.SessionToken,
			User: LoginUserInfo{
				ID:         user.ID,
				Username:   user.Username,
				Name:       user.Name,
				BranchID:   user.BranchID,
				BranchName: user.BranchName,
			},
		})

	case models.DecisionBlocked:
		pkghttp.WriteTooManyRequests(w, decision.Message)

	default:
		// Every deny maps to 401 with the policy's client-facing message;
		// the reason string lets the terminal UI distinguish device denials
		// from credential ones.
		pkghttp.WriteJSON(w, http.StatusUnauthorized, DeniedResponse{
			Reason:  string(decision.Reason),
			Message: decision.Message,
		})
	}
}
