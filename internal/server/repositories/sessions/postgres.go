package sessions

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

const columns = `id, account_id, token_hash, expires_at, last_active_at, device_name, ip_address, user_agent, created_at`

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

func scanSession(row scanner) (*models.Session, error) {
	s := &models.Session{}
	if err := row.Scan(&s.ID, &s.AccountID, &s.TokenHash, &s.ExpiresAt, &s.LastActiveAt,
		&s.DeviceName, &s.IPAddress, &s.UserAgent, &s.CreatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) (*models.Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	query := `
		INSERT INTO sessions (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.AccountID, s.TokenHash, s.ExpiresAt, s.LastActiveAt,
		s.DeviceName, s.IPAddress, s.UserAgent, s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) FindActiveByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.Session, error) {
	query := `
		SELECT ` + columns + `
		FROM sessions
		WHERE token_hash = $1 AND expires_at > $2
		FOR UPDATE
	`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, tokenHash, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt, now time.Time) error {
	query := `
		UPDATE sessions
		SET token_hash = $3, expires_at = $4, last_active_at = $5
		WHERE id = $1 AND token_hash = $2
	`
	n, err := r.exec(ctx, query, id, oldHash, newHash, expiresAt, now)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteByTokenHash(ctx context.Context, accountID, tokenHash string) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE account_id = $1 AND token_hash = $2`, accountID, tokenHash)
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Session, error) {
	query := `
		SELECT ` + columns + `
		FROM sessions
		WHERE account_id = $1
		ORDER BY last_active_at DESC, created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) DeleteByID(ctx context.Context, id, accountID string) error {
	n, err := r.exec(ctx, `DELETE FROM sessions WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteAllExcept(ctx context.Context, accountID, exceptID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE account_id = $1 AND id <> $2`, accountID, exceptID)
}

func (r *PostgresRepository) DeleteAllForAccount(ctx context.Context, accountID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
