package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tubepulse/accounts/internal/common"
	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sessions (id INTEGER PRIMARY KEY, token_hash TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func sessionCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n))
	return n
}

func insertSession(ctx context.Context, tx DBTX) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO sessions(token_hash) VALUES ('fp')`)
	return err
}

func TestWithTx_Outcome(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		fn      func(ctx context.Context, tx DBTX) error
		wantErr error
		rows    int
	}{
		{"commit", insertSession, nil, 1},
		{"rollback on error", func(ctx context.Context, tx DBTX) error {
			if err := insertSession(ctx, tx); err != nil {
				return err
			}
			return boom
		}, boom, 0},
		{"rollback on typed error", func(ctx context.Context, tx DBTX) error {
			_ = insertSession(ctx, tx)
			return common.ErrSessionExpired
		}, common.ErrSessionExpired, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openSQLite(t)
			err := WithTx(context.Background(), db, nil, tt.fn)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.rows, sessionCount(t, db))
		})
	}
}

func TestWithTx_RollsBackAndRepanics(t *testing.T) {
	db := openSQLite(t)

	assert.PanicsWithValue(t, "kaput", func() {
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
			require.NoError(t, insertSession(ctx, tx))
			panic("kaput")
		})
	})
	assert.Equal(t, 0, sessionCount(t, db))
}

func TestWithTx_DedicatedConn(t *testing.T) {
	db := openSQLite(t)
	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, WithTx(context.Background(), conn, &sql.TxOptions{}, insertSession))
	assert.Equal(t, 1, sessionCount(t, db))
}

func TestWithTx_BeginFails(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, db.Close())

	called := false
	err := WithTx(context.Background(), db, nil, func(context.Context, DBTX) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
	assert.False(t, called)
}

func TestWithTx_CommitSerializationFailureIsTransient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})

	err = WithTx(context.Background(), db, nil, func(context.Context, DBTX) error { return nil })
	assert.ErrorIs(t, err, common.ErrTransientStorage)
	assert.True(t, IsTransient(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
