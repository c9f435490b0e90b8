package models

import (
	"time"
)

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Name         string
	BranchID     string
	BranchName   string
	IsSuperuser  bool
	IsManager    bool // designated manager role, exempt from audit recording
	IsWholesale  bool
	IsRetail     bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsPureWholesale reports whether the user is a wholesale-only salesperson.
// Those users move between branches in the field and bypass device checks.
func (u *User) IsPureWholesale() bool {
	return u.IsWholesale && !u.IsRetail
}

// AuditExempt reports whether denied attempts by this user are kept out of
// the unauthorized-attempt log.
func (u *User) AuditExempt() bool {
	return u.IsSuperuser || u.IsManager
}
