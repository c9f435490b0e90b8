package models

import "time"

// MasterQRCode is the rotating shared secret that authorizes new-device
// enrollment. At most one row is active system-wide at any instant; rotation
// deactivates the previous version atomically.
type MasterQRCode struct {
	ID            string
	Code          string
	Version       int
	IsActive      bool
	IssuedAt      time.Time
	DeactivatedAt *time.Time
}
