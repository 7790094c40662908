package dbx

import (
	"context"
	"fmt"
	"time"

	"github.com/tubepulse/accounts/internal/common"
)

// SoftDeleter stamps or clears deleted_at on rows of Table, keyed by id.
// Reads are not filtered here; queries that must hide deleted rows add
// "deleted_at IS NULL" themselves.
type SoftDeleter struct {
	Table string
}

// SoftDelete marks a live row as deleted. A missing or already deleted row
// yields common.ErrorNotFound.
func (s SoftDeleter) SoftDelete(ctx context.Context, db DBTX, id string, now time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`, s.Table)
	return s.exec(ctx, db, query, now, id)
}

// Restore clears deleted_at on a deleted row.
func (s SoftDeleter) Restore(ctx context.Context, db DBTX, id string, now time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = NULL, updated_at = $1 WHERE id = $2 AND deleted_at IS NOT NULL`, s.Table)
	return s.exec(ctx, db, query, now, id)
}

func (s SoftDeleter) exec(ctx context.Context, db DBTX, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
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
