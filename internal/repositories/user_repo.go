package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oryxcrm/branchgate/internal/database"
	"github.com/oryxcrm/branchgate/internal/models"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `
	u.id, u.username, u.email, u.password_hash, u.name, u.branch_id, b.name,
	u.is_superuser, u.is_manager, u.is_wholesale, u.is_retail, u.is_active,
	u.created_at, u.updated_at
`

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Name,
		&user.BranchID, &user.BranchName,
		&user.IsSuperuser, &user.IsManager, &user.IsWholesale, &user.IsRetail, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		JOIN branches b ON b.id = u.branch_id
		WHERE u.username = $1
	`

	return scanUserRow(r.pool.QueryRow(ctx, query, username))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		JOIN branches b ON b.id = u.branch_id
		WHERE u.id = $1
	`

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// ListActiveSuperAdmins returns the recipients of escalation notifications.
func (r *UserRepository) ListActiveSuperAdmins(ctx context.Context) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		JOIN branches b ON b.id = u.branch_id
		WHERE u.is_superuser = true AND u.is_active = true
		ORDER BY u.username
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query super admins: %w", err)
	}

	return scanUserRows(rows)
}

func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}
