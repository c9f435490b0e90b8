package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oryxcrm/branchgate/internal/database"
	"github.com/oryxcrm/branchgate/internal/models"
)

// DeviceRepository handles database operations for registered devices.
type DeviceRepository struct {
	pool *pgxpool.Pool
}

func NewDeviceRepository(db *database.DB) *DeviceRepository {
	return &DeviceRepository{pool: db.Pool}
}

const deviceSelect = `
	SELECT d.id, d.token, d.name, d.branch_id, b.name, d.fingerprint, d.fingerprint_data,
	       d.manual_identifier, d.is_active, d.is_blocked, d.blocked_reason,
	       d.last_used_at, d.last_used_by, d.created_at, d.updated_at,
	       COALESCE(array_agg(du.user_id::text) FILTER (WHERE du.user_id IS NOT NULL), '{}')
	FROM devices d
	JOIN branches b ON b.id = d.branch_id
	LEFT JOIN device_users du ON du.device_id = d.id
`

func scanDeviceRow(scanner rowScanner) (*models.Device, error) {
	var device models.Device

	err := scanner.Scan(
		&device.ID, &device.Token, &device.Name, &device.BranchID, &device.BranchName,
		&device.Fingerprint, &device.FingerprintData,
		&device.ManualIdentifier, &device.IsActive, &device.IsBlocked, &device.BlockedReason,
		&device.LastUsedAt, &device.LastUsedBy, &device.CreatedAt, &device.UpdatedAt,
		&device.AuthorizedUsers,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &device, nil
}

// FindActiveByToken resolves the primary device identity. Deactivated devices
// are invisible to the login flow.
func (r *DeviceRepository) FindActiveByToken(ctx context.Context, token string) (*models.Device, error) {
	query := deviceSelect + `
		WHERE d.token = $1 AND d.is_active = true
		GROUP BY d.id, b.name
	`

	return scanDeviceRow(r.pool.QueryRow(ctx, query, token))
}

// FindActiveByFingerprint is the fallback path for clients that predate
// token issuance.
func (r *DeviceRepository) FindActiveByFingerprint(ctx context.Context, hash string) (*models.Device, error) {
	query := deviceSelect + `
		WHERE d.fingerprint = $1 AND d.is_active = true
		GROUP BY d.id, b.name
	`

	return scanDeviceRow(r.pool.QueryRow(ctx, query, hash))
}

// CountActiveForBranch drives the branch-restriction policy: a branch with at
// least one active device requires device-gated logins.
func (r *DeviceRepository) CountActiveForBranch(ctx context.Context, branchID string) (int, error) {
	query := `SELECT COUNT(*) FROM devices WHERE branch_id = $1 AND is_active = true`

	var count int
	err := r.pool.QueryRow(ctx, query, branchID).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// Create inserts a newly registered device. The token is generated server-side
// and never derived from client input.
func (r *DeviceRepository) Create(ctx context.Context, device *models.Device) (*models.Device, error) {
	device.ID = uuid.New().String()
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (id, token, name, branch_id, fingerprint, fingerprint_data,
		                     manual_identifier, is_active, is_blocked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		device.ID, device.Token, device.Name, device.BranchID,
		device.Fingerprint, device.FingerprintData,
		device.ManualIdentifier, device.IsActive, device.IsBlocked,
		device.CreatedAt, device.UpdatedAt,
	)
	if err != nil {
		mapped := database.MapPostgresError(err)
		if errors.Is(mapped, models.ErrConflict) && device.ManualIdentifier != nil {
			return nil, models.ErrDuplicateManualIdentifier
		}
		return nil, mapped
	}

	return device, nil
}

// AddAuthorizedUser grants a user membership on a device. Membership writes
// outside the login flow belong to the enrollment subsystem; this is its
// storage seam.
func (r *DeviceRepository) AddAuthorizedUser(ctx context.Context, deviceID, userID string) error {
	query := `
		INSERT INTO device_users (device_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, deviceID, userID)
	return database.MapPostgresError(err)
}

// UpdateLastUsed is best-effort, last write wins. Concurrent logins from the
// same device may race harmlessly.
func (r *DeviceRepository) UpdateLastUsed(ctx context.Context, deviceID, userID string) error {
	query := `
		UPDATE devices SET last_used_at = $1, last_used_by = $2, updated_at = $1
		WHERE id = $3
	`

	_, err := r.pool.Exec(ctx, query, time.Now(), userID, deviceID)
	return database.MapPostgresError(err)
}

// UpdateFingerprint overwrites the stored fingerprint after drift. The token
// remains the authoritative identity.
func (r *DeviceRepository) UpdateFingerprint(ctx context.Context, deviceID, hash string, data []byte) error {
	query := `
		UPDATE devices SET fingerprint = $1, fingerprint_data = $2, updated_at = $3
		WHERE id = $4
	`

	_, err := r.pool.Exec(ctx, query, hash, data, time.Now(), deviceID)
	return database.MapPostgresError(err)
}

// Deactivate retires a device. Devices are never hard-deleted by the access
// engine.
func (r *DeviceRepository) Deactivate(ctx context.Context, deviceID string) error {
	query := `UPDATE devices SET is_active = false, updated_at = $1 WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, time.Now(), deviceID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Block marks a device blocked with an operator-supplied reason.
func (r *DeviceRepository) Block(ctx context.Context, deviceID, reason string) error {
	query := `UPDATE devices SET is_blocked = true, blocked_reason = $1, updated_at = $2 WHERE id = $3`

	result, err := r.pool.Exec(ctx, query, reason, time.Now(), deviceID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ManualIdentifierExists reports whether a manual identifier is already taken
// within a branch.
func (r *DeviceRepository) ManualIdentifierExists(ctx context.Context, branchID, identifier string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM devices WHERE branch_id = $1 AND manual_identifier = $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, branchID, identifier).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check manual identifier: %w", err)
	}
	return exists, nil
}
