// Package ratelimit tracks failed login attempts per client IP in a shared,
// externally-synchronized store. The counters are ephemeral with TTL-based
// expiry, so the policy stays correct when the service runs multiple
// instances.
package ratelimit

import (
	"context"
	"time"
)

// Config holds the failed-attempt policy knobs.
type Config struct {
	MaxFailures   int           // failures within Window before a block is set
	Window        time.Duration // sliding window for counting failures
	BlockDuration time.Duration // how long an IP stays blocked
}

// DefaultConfig matches the production policy: 5 failures in 5 minutes locks
// the IP out for 15 minutes.
func DefaultConfig() Config {
	return Config{
		MaxFailures:   5,
		Window:        5 * time.Minute,
		BlockDuration: 15 * time.Minute,
	}
}

// LoginLimiter counts failed login attempts per IP and blocks once the
// threshold is reached. Increments must be atomic across concurrent requests
// from the same IP.
type LoginLimiter interface {
	// RecordFailure atomically increments the failure counter for ip and
	// returns whether the IP is now blocked and how many attempts remain.
	RecordFailure(ctx context.Context, ip string) (blocked bool, remaining int, err error)

	// IsBlocked reports whether ip currently has an active block.
	IsBlocked(ctx context.Context, ip string) (bool, error)

	// Reset clears the failure counter and any block for ip. Called on every
	// successful login.
	Reset(ctx context.Context, ip string) error
}
