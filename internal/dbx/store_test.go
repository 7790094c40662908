package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tubepulse/accounts/internal/common"
)

func newMockStore(t *testing.T, cfg TxConfig) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, NewRetrier(3, time.Millisecond), cfg), mock
}

func TestStore_InTx_Commits(t *testing.T) {
	s, mock := newMockStore(t, DefaultTxConfig())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE accounts`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `UPDATE accounts SET name = 'x'`)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InTx_RetriesSerializationFailure(t *testing.T) {
	s, mock := newMockStore(t, DefaultTxConfig())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE sessions`).WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE sessions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	err := s.InTx(context.Background(), func(ctx context.Context, tx DBTX) error {
		attempts++
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET token_hash = 'b'`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InTx_RollsBackOnDomainError(t *testing.T) {
	s, mock := newMockStore(t, DefaultTxConfig())

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := s.InTx(context.Background(), func(ctx context.Context, tx DBTX) error {
		attempts++
		return common.ErrSessionExpired
	})
	assert.ErrorIs(t, err, common.ErrSessionExpired)
	assert.Equal(t, 1, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InTx_MaxWaitExceeded(t *testing.T) {
	cfg := DefaultTxConfig()
	cfg.MaxWait = 20 * time.Millisecond
	s, _ := newMockStore(t, cfg)
	s.DB().SetMaxOpenConns(1)

	held, err := s.DB().Conn(context.Background())
	require.NoError(t, err)
	defer held.Close()

	called := false
	err = s.InTx(context.Background(), func(ctx context.Context, tx DBTX) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, common.ErrTransactionTimeout)
	assert.False(t, called)
}

func TestStore_InTx_TimeoutExceeded(t *testing.T) {
	cfg := DefaultTxConfig()
	cfg.Timeout = 20 * time.Millisecond
	s, mock := newMockStore(t, cfg)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(ctx context.Context, tx DBTX) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, common.ErrTransactionTimeout)
}

func TestStore_InTx_CallerCancellationIsNotATimeout(t *testing.T) {
	s, mock := newMockStore(t, DefaultTxConfig())
	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx, cancel := context.WithCancel(context.Background())
	err := s.InTx(ctx, func(ctx context.Context, tx DBTX) error {
		cancel()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, common.ErrTransactionTimeout)
}

func TestStore_Do_RetriesTransient(t *testing.T) {
	s, mock := newMockStore(t, DefaultTxConfig())

	mock.ExpectQuery(`SELECT 1`).WillReturnError(&pgconn.PgError{Code: "57P03"})
	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	var n int
	err := s.Do(context.Background(), func(ctx context.Context, db DBTX) error {
		return db.QueryRowContext(ctx, `SELECT 1`).Scan(&n)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Do_PropagatesNoRows(t *testing.T) {
	s, mock := newMockStore(t, DefaultTxConfig())
	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"n"}))

	err := s.Do(context.Background(), func(ctx context.Context, db DBTX) error {
		var n int
		return db.QueryRowContext(ctx, `SELECT 1`).Scan(&n)
	})
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestNewStore_Defaults(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewStore(db, nil, TxConfig{Isolation: sql.LevelReadCommitted})
	assert.Equal(t, DefaultTxMaxWait, s.tx.MaxWait)
	assert.Equal(t, DefaultTxTimeout, s.tx.Timeout)
	assert.Equal(t, sql.LevelReadCommitted, s.tx.Isolation)
	assert.Equal(t, DefaultMaxAttempts, s.Retrier().MaxAttempts)
}
