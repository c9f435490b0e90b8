package models

import "time"

// Device represents one physical or browser client authorized against a branch.
// The token is the authoritative identity; the fingerprint is a fallback signal
// that may drift as browsers update.
type Device struct {
	ID               string
	Token            string // server-issued, 128-bit, never reused
	Name             string
	BranchID         string
	BranchName       string
	Fingerprint      string // hex SHA-256 over canonicalized stable attributes
	FingerprintData  []byte // canonical attribute JSON, kept for similarity scoring
	ManualIdentifier *string
	IsActive         bool
	IsBlocked        bool
	BlockedReason    *string
	LastUsedAt       *time.Time
	LastUsedBy       *string
	AuthorizedUsers  []string // user IDs explicitly granted this device
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsAuthorizedFor reports whether the user is in the device's membership set.
func (d *Device) IsAuthorizedFor(userID string) bool {
	for _, id := range d.AuthorizedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
