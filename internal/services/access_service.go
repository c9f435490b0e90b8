package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oryxcrm/branchgate/internal/fingerprint"
	"github.com/oryxcrm/branchgate/internal/models"
	"github.com/oryxcrm/branchgate/internal/ratelimit"
	pkgauth "github.com/oryxcrm/branchgate/pkg/auth"
	pkglogger "github.com/oryxcrm/branchgate/pkg/logger"
)

// UserRepository defines the user lookups the access engine needs
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// DeviceRegistry defines the device lookups and best-effort writes of the
// login flow
type DeviceRegistry interface {
	FindActiveByToken(ctx context.Context, token string) (*models.Device, error)
	CountActiveForBranch(ctx context.Context, branchID string) (int, error)
	UpdateLastUsed(ctx context.Context, deviceID, userID string) error
	UpdateFingerprint(ctx context.Context, deviceID, hash string, data []byte) error
}

// AttemptRecorder appends denied attempts to the audit log
type AttemptRecorder interface {
	Record(ctx context.Context, attempt *models.UnauthorizedAttempt) (*models.UnauthorizedAttempt, error)
}

// EscalationDispatcher notifies super-administrators of escalation-worthy
// denials. Dispatch failures are logged, never propagated into the login
// decision.
type EscalationDispatcher interface {
	Dispatch(ctx context.Context, attempt *models.UnauthorizedAttempt) error
}

// SessionIssuer is the external collaborator invoked on ALLOW
type SessionIssuer interface {
	Issue(user *models.User) (string, error)
}

// BypassRule is an identity-based exception evaluated before the device
// chain. Rules are ordered; the first match skips device evaluation entirely.
type BypassRule struct {
	Name    string
	Applies func(user *models.User) bool
}

// DefaultBypassRules returns the production bypass policy: superusers skip
// all device checks, and wholesale-only salespeople are exempt for field
// mobility.
func DefaultBypassRules() []BypassRule {
	return []BypassRule{
		{
			Name:    "superuser",
			Applies: func(u *models.User) bool { return u.IsSuperuser },
		},
		{
			Name:    "pure_wholesale",
			Applies: func(u *models.User) bool { return u.IsPureWholesale() },
		},
	}
}

// LoginInput carries one login attempt into the engine.
type LoginInput struct {
	Username    string
	Password    string
	DeviceToken string
	Attributes  *fingerprint.Attributes
	IPAddress   string
}

// AccessService is the decision engine gating session creation. Inputs are
// resolved in a fixed order and the first matching terminal state wins; the
// ordering (rate limit, then credentials, then device chain) is a security
// property, not a convenience.
type AccessService struct {
	users       UserRepository
	devices     DeviceRegistry
	attempts    AttemptRecorder
	limiter     ratelimit.LoginLimiter
	sessions    SessionIssuer
	escalations EscalationDispatcher
	bypassRules []BypassRule

	// verifyPassword is the external credential check; swapped in tests.
	verifyPassword func(hash, password string) error

	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger

	escalateTimeout time.Duration
}

// NewAccessService creates a new AccessService with the default bypass policy
func NewAccessService(
	users UserRepository,
	devices DeviceRegistry,
	attempts AttemptRecorder,
	limiter ratelimit.LoginLimiter,
	sessions SessionIssuer,
	escalations EscalationDispatcher,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AccessService {
	return &AccessService{
		users:           users,
		devices:         devices,
		attempts:        attempts,
		limiter:         limiter,
		sessions:        sessions,
		escalations:     escalations,
		bypassRules:     DefaultBypassRules(),
		verifyPassword:  pkgauth.ComparePassword,
		logger:          logger,
		auditLogger:     auditLogger,
		escalateTimeout: 5 * time.Second,
	}
}

// Authenticate runs the full decision chain for one login attempt. Policy
// outcomes come back as a Decision value; only infrastructure failures return
// an error, and those never default to ALLOW.
func (s *AccessService) Authenticate(ctx context.Context, input LoginInput) (*models.Decision, error) {
	username := strings.TrimSpace(input.Username)

	// 1. Rate limiter runs before any other check, including input
	// normalization outcomes. A blocked IP gets the same fixed response
	// regardless of what it sent, and no new audit entry: the IP is already
	// rate-limited, not newly denied.
	blocked, err := s.limiter.IsBlocked(ctx, input.IPAddress)
	if err != nil {
		// Counter store outage: fail open to the credential check rather than
		// lock out every user system-wide. Device-chain failures below still
		// fail closed.
		s.logger.Error("rate limiter unavailable, proceeding to credential check",
			slog.String("ip_address", input.IPAddress),
			slog.Any("error", err))
	} else if blocked {
		s.auditLogger.LogAccessDecision(pkglogger.AccessEvent{
			EventType: "login_blocked",
			Username:  username,
			IPAddress: input.IPAddress,
			Allowed:   false,
		})
		return &models.Decision{
			Outcome: models.DecisionBlocked,
			Message: "Too many failed attempts. Try again later.",
		}, nil
	}

	// 2. Resolve the user. A blank username can never match an account, so
	// skip the lookup; it still flows through the normal denial path.
	if username == "" {
		return s.deny(ctx, models.DenyInvalidUsername, username, nil, nil, input.IPAddress), nil
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s.deny(ctx, models.DenyInvalidUsername, username, nil, nil, input.IPAddress), nil
		}
		s.logger.Error("failed to resolve user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !user.IsActive {
		return s.deny(ctx, models.DenyInvalidUsername, username, user, nil, input.IPAddress), nil
	}

	// 3. Credential check (external, intentionally slow).
	if err := s.verifyPassword(user.PasswordHash, input.Password); err != nil {
		return s.deny(ctx, models.DenyInvalidPassword, username, user, nil, input.IPAddress), nil
	}

	// 4-5. Identity-based bypasses skip the device chain entirely.
	for _, rule := range s.bypassRules {
		if rule.Applies(user) {
			s.logger.Info("device checks bypassed",
				slog.String("user_id", user.ID),
				slog.String("rule", rule.Name))
			return s.allow(ctx, user, nil, input)
		}
	}

	// 6. Device chain.
	device, reason, denied := s.evaluateDeviceChain(ctx, user, input.DeviceToken)
	if denied {
		return s.deny(ctx, reason, username, user, device, input.IPAddress), nil
	}

	return s.allow(ctx, user, device, input)
}

// evaluateDeviceChain resolves the branch-restriction policy. Any resolution
// failure collapses to device_not_registered: the chain fails closed, never
// open.
func (s *AccessService) evaluateDeviceChain(ctx context.Context, user *models.User, token string) (*models.Device, models.DenialReason, bool) {
	if token == "" {
		count, err := s.devices.CountActiveForBranch(ctx, user.BranchID)
		if err != nil {
			s.logger.Error("failed to count branch devices, failing closed",
				slog.String("branch_id", user.BranchID),
				slog.Any("error", err))
			return nil, models.DenyDeviceNotRegistered, true
		}
		if count == 0 {
			// Open branch: no devices registered yet, no restriction.
			return nil, "", false
		}
		return nil, models.DenyDeviceNotRegistered, true
	}

	device, err := s.devices.FindActiveByToken(ctx, token)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("device lookup failed, failing closed",
				slog.Any("error", err))
		}
		return nil, models.DenyDeviceNotRegistered, true
	}

	if device.IsBlocked {
		return device, models.DenyDeviceBlocked, true
	}

	if !device.IsAuthorizedFor(user.ID) {
		return device, models.DenyWrongBranch, true
	}

	// Authorized devices are still branch-pinned: cross-branch use is always
	// refused even for explicitly authorized pairings.
	if device.BranchID != user.BranchID {
		return device, models.DenyCrossBranchDevice, true
	}

	return device, "", false
}

// allow finalizes an ALLOW: reset the limiter, apply best-effort device side
// effects, and invoke the session issuer.
func (s *AccessService) allow(ctx context.Context, user *models.User, device *models.Device, input LoginInput) (*models.Decision, error) {
	if err := s.limiter.Reset(ctx, input.IPAddress); err != nil {
		s.logger.Error("failed to reset rate limiter",
			slog.String("ip_address", input.IPAddress),
			slog.Any("error", err))
	}

	if device != nil {
		if err := s.devices.UpdateLastUsed(ctx, device.ID, user.ID); err != nil {
			// Last write wins; a lost update here is harmless.
			s.logger.Warn("failed to update device last use",
				slog.String("device_id", device.ID),
				slog.Any("error", err))
		}

		if input.Attributes != nil {
			s.applyFingerprintPolicy(ctx, device, input.Attributes)
		}
	}

	sessionToken, err := s.sessions.Issue(user)
	if err != nil {
		s.logger.Error("failed to issue session", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	event := pkglogger.AccessEvent{
		EventType: "login_allowed",
		Username:  user.Username,
		UserID:    user.ID,
		IPAddress: input.IPAddress,
		Allowed:   true,
	}
	if device != nil {
		event.DeviceID = device.ID
	}
	s.auditLogger.LogAccessDecision(event)

	return &models.Decision{
		Outcome:      models.DecisionAllow,
		User:         user,
		Device:       device,
		SessionToken: sessionToken,
	}, nil
}

// applyFingerprintPolicy updates the stored fingerprint according to how far
// the presented attributes drifted: identical means no write, minor drift is
// a silent update, major drift overwrites with a warning for audit
// visibility. The token remains the authoritative identity either way.
func (s *AccessService) applyFingerprintPolicy(ctx context.Context, device *models.Device, presented *fingerprint.Attributes) {
	stored, err := fingerprint.Decode(device.FingerprintData)
	if err != nil {
		// No usable stored attributes: adopt the presented set.
		s.logger.Warn("stored fingerprint unreadable, overwriting",
			slog.String("device_id", device.ID),
			slog.Any("error", err))
		s.writeFingerprint(ctx, device, presented)
		return
	}

	similarity := fingerprint.Similarity(stored, presented)
	switch {
	case similarity == 1.0:
		return
	case similarity >= fingerprint.MajorDriftThreshold:
		s.writeFingerprint(ctx, device, presented)
	default:
		s.logger.Warn("major fingerprint change on registered device",
			slog.String("device_id", device.ID),
			slog.Float64("similarity", similarity))
		s.writeFingerprint(ctx, device, presented)
	}
}

func (s *AccessService) writeFingerprint(ctx context.Context, device *models.Device, attrs *fingerprint.Attributes) {
	if err := s.devices.UpdateFingerprint(ctx, device.ID, attrs.Hash(), attrs.Canonical()); err != nil {
		s.logger.Error("failed to update device fingerprint",
			slog.String("device_id", device.ID),
			slog.Any("error", err))
	}
}

// deny finalizes a DENY: record the limiter failure, append the audit entry
// unless the identity is audit-exempt, and kick off escalation when the
// reason warrants it.
func (s *AccessService) deny(ctx context.Context, reason models.DenialReason, username string, user *models.User, device *models.Device, ip string) *models.Decision {
	if _, _, err := s.limiter.RecordFailure(ctx, ip); err != nil {
		s.logger.Error("failed to record rate limit failure",
			slog.String("ip_address", ip),
			slog.Any("error", err))
	}

	event := pkglogger.AccessEvent{
		EventType:    "login_denied",
		Username:     username,
		DenialReason: string(reason),
		IPAddress:    ip,
		Allowed:      false,
	}
	if user != nil {
		event.UserID = user.ID
	}
	if device != nil {
		event.DeviceID = device.ID
	}
	s.auditLogger.LogAccessDecision(event)

	message := reason.Message()
	if reason == models.DenyDeviceBlocked && device != nil && device.BlockedReason != nil {
		message = message + " Reason: " + *device.BlockedReason
	}

	decision := &models.Decision{
		Outcome: models.DecisionDeny,
		Reason:  reason,
		Message: message,
	}

	// Superusers and designated managers are exempt from audit noise.
	if user != nil && user.AuditExempt() {
		return decision
	}

	attempt := &models.UnauthorizedAttempt{
		UsernameAttempted: username,
		DenialReason:      reason,
		IPAddress:         ip,
	}
	if user != nil {
		attempt.UserID = &user.ID
		attempt.UserBranchID = &user.BranchID
	}
	if device != nil {
		attempt.DeviceID = &device.ID
		attempt.DeviceBranchID = &device.BranchID
	}

	recorded, err := s.attempts.Record(ctx, attempt)
	if err != nil {
		s.logger.Error("failed to record unauthorized attempt",
			slog.String("denial_reason", string(reason)),
			slog.Any("error", err))
		return decision
	}

	if reason.Escalates() {
		s.escalateAsync(recorded)
	}

	return decision
}

// escalateAsync dispatches the notification without blocking or failing the
// login decision. The context is detached from the request on purpose: the
// denial response does not wait for delivery.
func (s *AccessService) escalateAsync(attempt *models.UnauthorizedAttempt) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.escalateTimeout)
		defer cancel()

		if err := s.escalations.Dispatch(ctx, attempt); err != nil {
			s.logger.Error("escalation dispatch failed",
				slog.String("attempt_id", attempt.ID.String()),
				slog.Any("error", err))
		}
	}()
}
