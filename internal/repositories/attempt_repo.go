package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oryxcrm/branchgate/internal/database"
	"github.com/oryxcrm/branchgate/internal/models"
)

// AttemptRepository handles the append-only unauthorized-attempt audit log.
// Records are never updated after insert except for the notified flag.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(db *database.DB) *AttemptRepository {
	return &AttemptRepository{pool: db.Pool}
}

// Record appends one audit entry for a denied login attempt.
func (r *AttemptRepository) Record(ctx context.Context, attempt *models.UnauthorizedAttempt) (*models.UnauthorizedAttempt, error) {
	attempt.ID = uuid.New()
	attempt.AttemptedAt = time.Now()

	query := `
		INSERT INTO unauthorized_attempts
			(id, username_attempted, user_id, device_id, denial_reason,
			 user_branch_id, device_branch_id, ip_address, attempted_at, notified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false)
	`

	_, err := r.pool.Exec(ctx, query,
		attempt.ID, attempt.UsernameAttempted, attempt.UserID, attempt.DeviceID,
		string(attempt.DenialReason), attempt.UserBranchID, attempt.DeviceBranchID,
		attempt.IPAddress, attempt.AttemptedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return attempt, nil
}

// MarkNotified flips the notified flag at most once. Returns false when the
// attempt was already marked, which lets concurrent dispatchers avoid double
// sends.
func (r *AttemptRepository) MarkNotified(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE unauthorized_attempts SET notified = true
		WHERE id = $1 AND notified = false
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return result.RowsAffected() > 0, nil
}

// ListUnnotified returns escalation-worthy attempts whose notification has not
// been dispatched yet, oldest first.
func (r *AttemptRepository) ListUnnotified(ctx context.Context, reasons []string, limit int) ([]*models.UnauthorizedAttempt, error) {
	query := `
		SELECT id, username_attempted, user_id, device_id, denial_reason,
		       user_branch_id, device_branch_id, ip_address, attempted_at, notified
		FROM unauthorized_attempts
		WHERE notified = false AND denial_reason = ANY($1)
		ORDER BY attempted_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, reasons, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unnotified attempts: %w", err)
	}

	return scanAttemptRows(rows)
}

// CountForIP supports operator reporting of attack pressure per source.
func (r *AttemptRepository) CountForIP(ctx context.Context, ip string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM unauthorized_attempts
		WHERE ip_address = $1 AND attempted_at >= $2
	`

	var count int
	err := r.pool.QueryRow(ctx, query, ip, since).Scan(&count)
	return count, err
}

func scanAttemptRow(scanner rowScanner) (*models.UnauthorizedAttempt, error) {
	var attempt models.UnauthorizedAttempt
	var reason string

	err := scanner.Scan(
		&attempt.ID, &attempt.UsernameAttempted, &attempt.UserID, &attempt.DeviceID,
		&reason, &attempt.UserBranchID, &attempt.DeviceBranchID,
		&attempt.IPAddress, &attempt.AttemptedAt, &attempt.Notified,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	attempt.DenialReason = models.DenialReason(reason)
	return &attempt, nil
}

func scanAttemptRows(rows pgx.Rows) ([]*models.UnauthorizedAttempt, error) {
	defer rows.Close()

	attempts := make([]*models.UnauthorizedAttempt, 0)

	for rows.Next() {
		attempt, err := scanAttemptRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return attempts, nil
}
