package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oryxcrm/branchgate/internal/database"
	"github.com/oryxcrm/branchgate/internal/models"
)

// qrRotateLockKey serializes rotations across all service instances via a
// Postgres transaction-scoped advisory lock.
const qrRotateLockKey = 7741001

// QRMasterRepository handles database operations for the rotating enrollment
// secret.
type QRMasterRepository struct {
	db *database.DB
}

func NewQRMasterRepository(db *database.DB) *QRMasterRepository {
	return &QRMasterRepository{db: db}
}

func scanQRRow(scanner rowScanner) (*models.MasterQRCode, error) {
	var code models.MasterQRCode

	err := scanner.Scan(
		&code.ID, &code.Code, &code.Version, &code.IsActive,
		&code.IssuedAt, &code.DeactivatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &code, nil
}

// GetActive returns the single currently-active code, or ErrNotFound when no
// code has been issued yet.
func (r *QRMasterRepository) GetActive(ctx context.Context) (*models.MasterQRCode, error) {
	query := `
		SELECT id, code, version, is_active, issued_at, deactivated_at
		FROM qr_master_codes
		WHERE is_active = true
	`

	return scanQRRow(r.db.Pool.QueryRow(ctx, query))
}

// FindByCode looks a code up regardless of active state, so a deactivated
// version can be distinguished from a code that never existed.
func (r *QRMasterRepository) FindByCode(ctx context.Context, code string) (*models.MasterQRCode, error) {
	query := `
		SELECT id, code, version, is_active, issued_at, deactivated_at
		FROM qr_master_codes
		WHERE code = $1
		ORDER BY version DESC
		LIMIT 1
	`

	return scanQRRow(r.db.Pool.QueryRow(ctx, query, code))
}

// Rotate deactivates the current version and inserts the next one in a single
// transaction. The advisory lock guarantees the single-active invariant even
// under concurrent rotations: there is never a window with zero or two active
// codes, and versions strictly increase.
func (r *QRMasterRepository) Rotate(ctx context.Context, newCode string) (*models.MasterQRCode, error) {
	var rotated *models.MasterQRCode

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, qrRotateLockKey); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE qr_master_codes
			SET is_active = false, deactivated_at = NOW()
			WHERE is_active = true
		`); err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO qr_master_codes (id, code, version, is_active, issued_at)
			SELECT $1, $2, COALESCE(MAX(version), 0) + 1, true, NOW()
			FROM qr_master_codes
			RETURNING id, code, version, is_active, issued_at, deactivated_at
		`, uuid.New().String(), newCode)

		code, err := scanQRRow(row)
		if err != nil {
			return err
		}
		rotated = code
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrInternalServer
		}
		return nil, database.MapPostgresError(err)
	}

	return rotated, nil
}
