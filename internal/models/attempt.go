package models

import (
	"time"

	"github.com/google/uuid"
)

// UnauthorizedAttempt is an append-only audit record of a denied login.
// Only the Notified flag is ever mutated after insert.
type UnauthorizedAttempt struct {
	ID                uuid.UUID
	UsernameAttempted string
	UserID            *string // nil when the username did not resolve
	DeviceID          *string
	DenialReason      DenialReason
	UserBranchID      *string
	DeviceBranchID    *string
	IPAddress         string
	AttemptedAt       time.Time
	Notified          bool
}
