package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oryxcrm/branchgate/internal/auth"
	"github.com/oryxcrm/branchgate/internal/models"
	"github.com/oryxcrm/branchgate/internal/services"
	pkghttp "github.com/oryxcrm/branchgate/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext adds session claims to the request context for testing
// authenticated endpoints
func WithSessionContext(req *http.Request, userID string, superuser bool) *http.Request {
	claims := &auth.SessionClaims{
		UserID:    userID,
		Superuser: superuser,
	}
	return req.WithContext(auth.NewContext(req.Context(), claims))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAccessService implements AccessServiceInterface for testing
type MockAccessService struct {
	AuthenticateFunc func(ctx context.Context, input services.LoginInput) (*models.Decision, error)
}

func (m *MockAccessService) Authenticate(ctx context.Context, input services.LoginInput) (*models.Decision, error) {
	if m.AuthenticateFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.AuthenticateFunc(ctx, input)
}

// MockDeviceService implements DeviceServiceInterface for testing
type MockDeviceService struct {
	RegisterFunc func(ctx context.Context, input services.RegisterInput) (*models.Device, error)
	CheckFunc    func(ctx context.Context, input services.CheckInput) (*services.CheckResult, error)
}

func (m *MockDeviceService) Register(ctx context.Context, input services.RegisterInput) (*models.Device, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.RegisterFunc(ctx, input)
}

func (m *MockDeviceService) Check(ctx context.Context, input services.CheckInput) (*services.CheckResult, error) {
	if m.CheckFunc == nil {
		return &services.CheckResult{Registered: false}, nil
	}
	return m.CheckFunc(ctx, input)
}

// MockQRMasterService implements QRMasterServiceInterface for testing
type MockQRMasterService struct {
	GetActiveFunc func(ctx context.Context) (*models.MasterQRCode, error)
	RotateFunc    func(ctx context.Context, actorID string) (*models.MasterQRCode, error)
}

func (m *MockQRMasterService) GetActive(ctx context.Context) (*models.MasterQRCode, error) {
	if m.GetActiveFunc == nil {
		return nil, nil
	}
	return m.GetActiveFunc(ctx)
}

func (m *MockQRMasterService) Rotate(ctx context.Context, actorID string) (*models.MasterQRCode, error) {
	if m.RotateFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.RotateFunc(ctx, actorID)
}
