package logger

import (
	"context"
	"log/slog"
	"time"
)

// AccessEvent represents one access-control decision for the audit stream.
type AccessEvent struct {
	EventType    string // "login_allowed", "login_denied", "login_blocked", "device_registered", "qr_rotated"
	Username     string
	UserID       string
	DeviceID     string
	DenialReason string
	IPAddress    string
	Allowed      bool
	Metadata     map[string]string
}

// AuditLogger emits structured access-control audit events.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAccessDecision logs the terminal outcome of a login attempt. Denials log
// at warn level so they surface in alerting.
func (al *AuditLogger) LogAccessDecision(event AccessEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "access"),
		slog.String("event_type", event.EventType),
		slog.Bool("allowed", event.Allowed),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Username != "" {
		attrs = append(attrs, slog.String("username", MaskUsername(event.Username)))
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", event.DeviceID))
	}
	if event.DenialReason != "" {
		attrs = append(attrs, slog.String("denial_reason", event.DenialReason))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	if event.Allowed {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogAdminAction logs enrollment-side operations (device registration, QR
// rotation).
func (al *AuditLogger) LogAdminAction(eventType, actorID string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "admin"),
		slog.String("event_type", eventType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if actorID != "" {
		attrs = append(attrs, slog.String("actor_id", actorID))
	}
	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}
