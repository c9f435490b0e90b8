package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oryxcrm/branchgate/internal/fingerprint"
	"github.com/oryxcrm/branchgate/internal/models"
	pkglogger "github.com/oryxcrm/branchgate/pkg/logger"
)

type accessFixture struct {
	users       *MockUserRepository
	devices     *MockDeviceRegistry
	attempts    *MockAttemptRecorder
	limiter     *MockLoginLimiter
	sessions    *MockSessionIssuer
	escalations *MockEscalationDispatcher
	service     *AccessService
}

func newAccessFixture() *accessFixture {
	f := &accessFixture{
		users:       &MockUserRepository{},
		devices:     &MockDeviceRegistry{},
		attempts:    &MockAttemptRecorder{},
		limiter:     &MockLoginLimiter{},
		sessions:    &MockSessionIssuer{},
		escalations: NewMockEscalationDispatcher(),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = NewAccessService(
		f.users, f.devices, f.attempts, f.limiter, f.sessions, f.escalations,
		logger, pkglogger.NewAuditLogger(logger),
	)
	// Credential check compares plaintext so fixtures stay readable.
	f.service.verifyPassword = func(hash, password string) error {
		if hash != password {
			return models.ErrUnauthorized
		}
		return nil
	}
	return f
}

func testUser() *models.User {
	return &models.User{
		ID:           "user-1",
		Username:     "salesperson",
		Email:        "salesperson@example.com",
		PasswordHash: "correct-password",
		BranchID:     "branch-a",
		IsRetail:     true,
		IsActive:     true,
	}
}

func testDevice() *models.Device {
	return &models.Device{
		ID:              "device-1",
		Token:           "token-1",
		Name:            "Front Desk PC",
		BranchID:        "branch-a",
		AuthorizedUsers: []string{"user-1"},
		IsActive:        true,
	}
}

func loginInput() LoginInput {
	return LoginInput{
		Username:    "salesperson",
		Password:    "correct-password",
		DeviceToken: "token-1",
		IPAddress:   "203.0.113.10",
	}
}

func TestAuthenticate_AllowsRegisteredDevice(t *testing.T) {
	f := newAccessFixture()
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return testUser(), nil
	}
	f.devices.FindActiveByTokenFunc = func(ctx context.Context, token string) (*models.Device, error) {
		assert.Equal(t, "token-1", token)
		return testDevice(), nil
	}

	var lastUsedDevice, lastUsedUser string
	f.devices.UpdateLastUsedFunc = func(ctx context.Context, deviceID, userID string) error {
		lastUsedDevice, lastUsedUser = deviceID, userID
		return nil
	}

	decision, err := f.service.Authenticate(context.Background(), loginInput())

	require.NoError(t, err)
	assert.True(t, decision.Allowed())
	assert.Equal(t, "session-token", decision.SessionToken)
	assert.Equal(t, "device-1", lastUsedDevice)
	assert.Equal(t, "user-1", lastUsedUser)
	assert.Equal(t, 1, f.limiter.Resets)
	assert.Empty(t, f.attempts.Recorded)
}

func TestAuthenticate_OpenBranchAllowsWithoutDevice(t *testing.T) {
	f := newAccessFixture()
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return testUser(), nil
	}
	f.devices.CountActiveForBranchFunc = func(ctx context.Context, branchID string) (int, error) {
		assert.Equal(t, "branch-a", branchID)
		return 0, nil
	}

	input := loginInput()
	input.DeviceToken = ""

	decision, err := f.service.Authenticate(context.Background(), input)

	require.NoError(t, err)
	assert.True(t, decision.Allowed())
	assert.Nil(t, decision.Device)
}

func TestAuthenticate_LockedBranchDeniesUnknownDevice(t *testing.T) {
	f := newAccessFixture()
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return testUser(), nil
	}
	f.devices.CountActiveForBranchFunc = func(ctx context.Context, branchID string) (int, error) {
		return 3, nil
	}

	input := loginInput()
	input.DeviceToken = ""

	decision, err := f.service.Authenticate(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeny, decision.Outcome)
	assert.Equal(t, models.DenyDeviceNotRegistered, decision.Reason)
	assert.Equal(t, 1, f.limiter.Failures)
	require.Len(t, f.attempts.Recorded, 1)
	assert.Equal(t, models.DenyDeviceNotRegistered, f.attempts.Recorded[0].DenialReason)
}

func TestAuthenticate_DeviceChainOrdering(t *testing.T) {
	blockedReason := "stolen"

	tests := []struct {
		name       string
		device     func() *models.Device
		wantReason models.DenialReason
	}{
		{
			name: "blocked device wins over authorization",
			device: func() *models.Device {
				d := testDevice()
				d.IsBlocked = true
				d.BlockedReason = &blockedReason
				d.AuthorizedUsers = nil
				return d
			},
			wantReason: models.DenyDeviceBlocked,
		},
		{
			name: "unauthorized user on known device",
			device: func() *models.Device {
				d := testDevice()
				d.AuthorizedUsers = []string{"someone-else"}
				return d
			},
			wantReason: models.DenyWrongBranch,
		},
		{
			name: "authorized but cross-branch",
			device: func() *models.Device {
				d := testDevice()
				d.BranchID = "branch-b"
				return d
			},
			wantReason: models.DenyCrossBranchDevice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAccessFixture()
			f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
				return testUser(), nil
			}
			f.devices.FindActiveByTokenFunc = func(ctx context.Context, token string) (*models.Device, error) {
				return tt.device(), nil
			}

			decision, err := f.service.Authenticate(context.Background(), loginInput())

			require.NoError(t, err)
			assert.Equal(t, models.DecisionDeny, decision.Outcome)
			assert.Equal(t, tt.wantReason, decision.Reason)
		})
	}
}

func TestAuthenticate_BlockedDeviceMessageIncludesReason(t *testing.T) {
	f := newAccessFixture()
	blockedReason := "reported stolen"
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return testUser(), nil
	}
	f.devices.FindActiveByTokenFunc = func(ctx context.Context, token string) (*models.Device, error) {
		d := testDevice()
		d.IsBlocked = true
		d.BlockedReason = &blockedReason
		return d, nil
	}

	decision, err := f.service.Authenticate(context.Background(), loginInput())

	require.NoError(t, err)
	assert.Equal(t, models.DenyDeviceBlocked, decision.Reason)
	assert.Contains(t, decision.Message, "reported stolen")
}

func TestAuthenticate_InvalidCredentialsAreIndistinguishable(t *testing.T) {
	unknownUser := newAccessFixture()

	wrongPassword := newAccessFixture()
	wrongPassword.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return testUser(), nil
	}

	input := loginInput()
	input.Password = "wrong"

	d1, err := unknownUser.service.Authenticate(context.Background(), input)
	require.NoError(t, err)
	d2, err := wrongPassword.service.Authenticate(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, models.DenyInvalidUsername, d1.Reason)
	assert.Equal(t, models.DenyInvalidPassword, d2.Reason)
	// The client-facing message never reveals which half failed.
	assert.Equal(t, d1.Message, d2.Message)
}

func TestAuthenticate_InactiveUserDeniedAsUnknown(t *testing.T) {
	f := newAccessFixture()
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		u := testUser()
		u.IsActive = false
		return u, nil
	}

	decision, err := f.service.Authenticate(context.Background(), loginInput())

	require.NoError(t, err)
	assert.Equal(t, models.DenyInvalidUsername, decision.Reason)
}

func TestAuthenticate_BlockedIPShortCircuits(t *testing.T) {
	f := newAccessFixture()
	f.limiter.IsBlockedFunc = func(ctx context.Context, ip string) (bool, error) {
		return true, nil
	}
	userLookups := 0
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		userLookups++
		return testUser(), nil
	}

	decision, err := f.service.Authenticate(context.Background(), loginInput())

	require.NoError(t, err)
	assert.Equal(t, models.DecisionBlocked, decision.Outcome)
	assert.Equal(t, 0, userLookups)
	// A blocked IP does not append audit entries or count new failures.
	assert.Empty(t, f.attempts.Recorded)
	assert.Equal(t, 0, f.limiter.Failures)
}

func TestAuthenticate_BlockedIPWinsOverBlankUsername(t *testing.T) {
	f := newAccessFixture()
	f.limiter.IsBlockedFunc = func(ctx context.Context, ip string) (bool, error) {
		return true, nil
	}

	decision, err := f.service.Authenticate(context.Background(), LoginInput{
		Username:  "   ",
		Password:  "anything",
		IPAddress: "203.0.113.10",
	})

	require.NoError(t, err)
	assert.Equal(t, models.DecisionBlocked, decision.Outcome)
	// Malformed input from a blocked IP must not mint audit rows; otherwise
	// a blocked client could still flood the attempt log.
	assert.Empty(t, f.attempts.Recorded)
}

func TestAuthenticate_LimiterOutageFailsOpenToCredentials(t *testing.T) {
	f := newAccessFixture()
	f.limiter.IsBlockedFunc = func(ctx context.Context, ip string) (bool, error) {
		return false, errors.New("connection refused")
	}
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return testUser(), nil
	}
	f.devices.FindActiveByTokenFunc = func(ctx context.Context, token string) (*models.Device, error) {
		return testDevice(), nil
	}

	decision, err := f.service.Authenticate(context.Background(), loginInput())

	require.NoError(t, err)
	assert.True(t, decision.Allowed())
}

func TestAuthenticate_DeviceLookupFailureFailsClosed(t *testing.T) {
	f := newAccessFixture()
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return testUser(), nil
	}
	f.devices.FindActiveByTokenFunc = func(ctx context.Context, token string) (*models.Device, error) {
		return nil, errors.New("connection reset")
	}

	decision, err := f.service.Authenticate(context.Background(), loginInput())

	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeny, decision.Outcome)
	assert.Equal(t, models.DenyDeviceNotRegistered, decision.Reason)
}

func TestAuthenticate_BranchCountFailureFailsClosed(t *testing.T) {
	f := newAccessFixture()
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return testUser(), nil
	}
	f.devices.CountActiveForBranchFunc = func(ctx context.Context, branchID string) (int, error) {
		return 0, errors.New("timeout")
	}

	input := loginInput()
	input.DeviceToken = ""

	decision, err := f.service.Authenticate(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, models.DenyDeviceNotRegistered, decision.Reason)
}

func TestAuthenticate_BypassRules(t *testing.T) {
	tests := []struct {
		name  string
		setup func(u *models.User)
	}{
		{
			name:  "superuser skips device chain",
			setup: func(u *models.User) { u.IsSuperuser = true },
		},
		{
			name: "wholesale-only salesperson skips device chain",
			setup: func(u *models.User) {
				u.IsWholesale = true
				u.IsRetail = false
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAccessFixture()
			f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
				u := testUser()
				tt.setup(u)
				return u, nil
			}
			deviceLookups := 0
			f.devices.FindActiveByTokenFunc = func(ctx context.Context, token string) (*models.Device, error) {
				deviceLookups++
				return nil, models.ErrNotFound
			}

			input := loginInput()
			input.DeviceToken = "unregistered-token"

			decision, err := f.service.Authenticate(context.Background(), input)

			require.NoError(t, err)
			assert.True(t, decision.Allowed())
			assert.Equal(t, 0, deviceLookups)
		})
	}
}

func TestAuthenticate_MixedWholesaleRetailStillChecked(t *testing.T) {
	f := newAccessFixture()
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		u := testUser()
		u.IsWholesale = true
		u.IsRetail = true
		return u, nil
	}
	f.devices.FindActiveByTokenFunc = func(ctx context.Context, token string) (*models.Device, error) {
		return nil, models.ErrNotFound
	}

	decision, err := f.service.Authenticate(context.Background(), loginInput())

	require.NoError(t, err)
	assert.Equal(t, models.DenyDeviceNotRegistered, decision.Reason)
}

func TestAuthenticate_AuditExemptUsersSkipAttemptLog(t *testing.T) {
	f := newAccessFixture()
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		u := testUser()
		u.IsManager = true
		return u, nil
	}

	input := loginInput()
	input.Password = "wrong"

	decision, err := f.service.Authenticate(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeny, decision.Outcome)
	// The failure still counts toward the rate limit, but no audit row.
	assert.Equal(t, 1, f.limiter.Failures)
	assert.Empty(t, f.attempts.Recorded)
}

func TestAuthenticate_EscalatesCrossBranchAttempt(t *testing.T) {
	f := newAccessFixture()
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return testUser(), nil
	}
	f.devices.FindActiveByTokenFunc = func(ctx context.Context, token string) (*models.Device, error) {
		d := testDevice()
		d.BranchID = "branch-b"
		return d, nil
	}

	decision, err := f.service.Authenticate(context.Background(), loginInput())

	require.NoError(t, err)
	assert.Equal(t, models.DenyCrossBranchDevice, decision.Reason)

	select {
	case attempt := <-f.escalations.Dispatched:
		assert.Equal(t, models.DenyCrossBranchDevice, attempt.DenialReason)
		require.NotNil(t, attempt.DeviceBranchID)
		assert.Equal(t, "branch-b", *attempt.DeviceBranchID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected escalation dispatch")
	}
}

func TestAuthenticate_CredentialFailuresDoNotEscalate(t *testing.T) {
	f := newAccessFixture()
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return testUser(), nil
	}

	input := loginInput()
	input.Password = "wrong"

	_, err := f.service.Authenticate(context.Background(), input)
	require.NoError(t, err)

	select {
	case <-f.escalations.Dispatched:
		t.Fatal("credential failures must not escalate")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAuthenticate_FingerprintDriftPolicy(t *testing.T) {
	baseAttrs := func() *fingerprint.Attributes {
		return &fingerprint.Attributes{
			GPUVendor:   "NVIDIA",
			GPURenderer: "RTX 3060",
			CanvasHash:  "canvas-abc",
			AudioHash:   "audio-def",
			CPUCores:    8,
			MemoryClass: 16,
			Platform:    "Win32",
			Timezone:    "America/Mexico_City",
		}
	}

	tests := []struct {
		name       string
		presented  func() *fingerprint.Attributes
		wantUpdate bool
	}{
		{
			name:       "identical fingerprint writes nothing",
			presented:  baseAttrs,
			wantUpdate: false,
		},
		{
			name: "minor drift updates silently",
			presented: func() *fingerprint.Attributes {
				a := baseAttrs()
				a.Timezone = "America/Monterrey"
				return a
			},
			wantUpdate: true,
		},
		{
			name: "major drift still updates and allows",
			presented: func() *fingerprint.Attributes {
				a := baseAttrs()
				a.GPUVendor = "AMD"
				a.GPURenderer = "RX 6600"
				a.CanvasHash = "canvas-zzz"
				return a
			},
			wantUpdate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAccessFixture()
			f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
				return testUser(), nil
			}
			f.devices.FindActiveByTokenFunc = func(ctx context.Context, token string) (*models.Device, error) {
				d := testDevice()
				d.Fingerprint = baseAttrs().Hash()
				d.FingerprintData = baseAttrs().Canonical()
				return d, nil
			}

			updates := 0
			var updatedHash string
			f.devices.UpdateFingerprintFunc = func(ctx context.Context, deviceID, hash string, data []byte) error {
				updates++
				updatedHash = hash
				return nil
			}

			input := loginInput()
			input.Attributes = tt.presented()

			decision, err := f.service.Authenticate(context.Background(), input)

			require.NoError(t, err)
			assert.True(t, decision.Allowed())
			if tt.wantUpdate {
				assert.Equal(t, 1, updates)
				assert.Equal(t, tt.presented().Hash(), updatedHash)
			} else {
				assert.Equal(t, 0, updates)
			}
		})
	}
}

func TestAuthenticate_EmptyUsernameDenied(t *testing.T) {
	f := newAccessFixture()

	decision, err := f.service.Authenticate(context.Background(), LoginInput{
		Username:  "   ",
		Password:  "anything",
		IPAddress: "203.0.113.10",
	})

	require.NoError(t, err)
	assert.Equal(t, models.DenyInvalidUsername, decision.Reason)
}

func TestAuthenticate_SessionIssueFailureIsInternal(t *testing.T) {
	f := newAccessFixture()
	f.users.GetByUsernameFunc = func(ctx context.Context, username string) (*models.User, error) {
		return testUser(), nil
	}
	f.devices.FindActiveByTokenFunc = func(ctx context.Context, token string) (*models.Device, error) {
		return testDevice(), nil
	}
	f.sessions.IssueFunc = func(user *models.User) (string, error) {
		return "", errors.New("signing failure")
	}

	decision, err := f.service.Authenticate(context.Background(), loginInput())

	assert.Nil(t, decision)
	assert.ErrorIs(t, err, models.ErrInternalServer)
}
