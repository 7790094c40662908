package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tubepulse/accounts/internal/common"
	"github.com/tubepulse/accounts/internal/dbx"
	"github.com/tubepulse/accounts/internal/server/models"
)

const columns = `id, email, password_hash, name, role, plan, provider, email_verified,
	verification_token, verification_expires_at, reset_token, reset_expires_at,
	last_login_at, version, created_at, updated_at, deleted_at`

// sortColumns whitelists the columns List may order by.
var sortColumns = map[string]string{
	"created_at":    "created_at",
	"updated_at":    "updated_at",
	"email":         "email",
	"name":          "name",
	"last_login_at": "last_login_at",
}

var softDelete = dbx.SoftDeleter{Table: "accounts"}

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB, *sql.Conn or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.Role, &a.Plan, &a.Provider, &a.EmailVerified,
		&a.VerificationToken, &a.VerificationExpiresAt, &a.ResetToken, &a.ResetExpiresAt,
		&a.LastLoginAt, &a.Version, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, name, role, plan, provider, email_verified,
			verification_token, verification_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING version, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.ID, a.Email, a.PasswordHash, a.Name, a.Role, a.Plan, a.Provider, a.EmailVerified,
		a.VerificationToken, a.VerificationExpiresAt, a.CreatedAt,
	).Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(dbx.Classify(err), dbx.ErrUniqueViolation) {
			return nil, common.ErrEmailAlreadyRegistered.WithCause(err)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + columns + ` FROM accounts WHERE id = $1 AND deleted_at IS NULL`
	return r.queryOne(ctx, query, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + columns + ` FROM accounts WHERE email = $1 AND deleted_at IS NULL`
	return r.queryOne(ctx, query, email)
}

func (r *PostgresRepository) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET email_verified = TRUE, verification_token = NULL, verification_expires_at = NULL,
			version = version + 1, updated_at = $2
		WHERE verification_token = $1 AND verification_expires_at > $2 AND deleted_at IS NULL
		RETURNING ` + columns
	return r.queryOne(ctx, query, tokenHash, now)
}

func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET password_hash = $2, reset_token = NULL, reset_expires_at = NULL,
			version = version + 1, updated_at = $3
		WHERE reset_token = $1 AND reset_expires_at > $3 AND deleted_at IS NULL
		RETURNING ` + columns
	return r.queryOne(ctx, query, tokenHash, passwordHash, now)
}

// execOne runs an UPDATE expected to touch exactly one live row.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	query := `
		UPDATE accounts
		SET verification_token = $2, verification_expires_at = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.execOne(ctx, query, id, tokenHash, expiresAt, now)
}

func (r *PostgresRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	query := `
		UPDATE accounts
		SET reset_token = $2, reset_expires_at = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.execOne(ctx, query, id, tokenHash, expiresAt, now)
}

func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE accounts
		SET email_verified = TRUE, verification_token = NULL, verification_expires_at = NULL,
			version = version + 1, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.execOne(ctx, query, id, now)
}

func (r *PostgresRepository) RecordLogin(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE accounts
		SET last_login_at = $2, version = version + 1, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.execOne(ctx, query, id, now)
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	query := `
		UPDATE accounts
		SET password_hash = $2, version = version + 1, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.execOne(ctx, query, id, passwordHash, now)
}

func (r *PostgresRepository) UpdateVersioned(ctx context.Context, id string, version int64, next *models.Account) (*models.Account, error) {
	query := `
		UPDATE accounts
		SET name = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING ` + columns
	a, err := r.queryOne(ctx, query, id, version, next.Name, next.UpdatedAt)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrVersionConflict
	}
	return a, err
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE deleted_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) List(ctx context.Context, req dbx.PageRequest) ([]*models.Account, error) {
	req = req.Normalize()
	col, ok := sortColumns[req.SortField]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if req.SortDirection == dbx.SortAsc {
		dir = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE deleted_at IS NULL ORDER BY %s %s, id LIMIT $1 OFFSET $2`, columns, col, dir)
	rows, err := r.db.QueryContext(ctx, query, req.Limit, req.Offset())
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string, now time.Time) error {
	return softDelete.SoftDelete(ctx, r.db, id, now)
}

// Restore fails with common.ErrEmailAlreadyRegistered when the address has
// been taken by another live account in the meantime.
func (r *PostgresRepository) Restore(ctx context.Context, id string, now time.Time) error {
	err := softDelete.Restore(ctx, r.db, id, now)
	if err != nil && errors.Is(dbx.Classify(err), dbx.ErrUniqueViolation) {
		return common.ErrEmailAlreadyRegistered.WithCause(err)
	}
	return err
}

func (r *PostgresRepository) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE accounts
		SET verification_token = CASE WHEN verification_expires_at <= $1 THEN NULL ELSE verification_token END,
			verification_expires_at = CASE WHEN verification_expires_at <= $1 THEN NULL ELSE verification_expires_at END,
			reset_token = CASE WHEN reset_expires_at <= $1 THEN NULL ELSE reset_token END,
			reset_expires_at = CASE WHEN reset_expires_at <= $1 THEN NULL ELSE reset_expires_at END
		WHERE verification_expires_at <= $1 OR reset_expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
