package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tubepulse/accounts/internal/common"
)

const (
	DefaultTxMaxWait = 2 * time.Second
	DefaultTxTimeout = 5 * time.Second
)

// TxConfig controls how InTx runs a transaction.
type TxConfig struct {
	Isolation sql.IsolationLevel
	// MaxWait bounds how long InTx waits for a pooled connection.
	MaxWait time.Duration
	// Timeout bounds the execution of the transaction body and commit.
	Timeout time.Duration
}

// DefaultTxConfig is serializable with second-scale budgets.
func DefaultTxConfig() TxConfig {
	return TxConfig{
		Isolation: sql.LevelSerializable,
		MaxWait:   DefaultTxMaxWait,
		Timeout:   DefaultTxTimeout,
	}
}

type TxOption func(*TxConfig)

func WithIsolation(level sql.IsolationLevel) TxOption {
	return func(c *TxConfig) { c.Isolation = level }
}

func WithMaxWait(d time.Duration) TxOption {
	return func(c *TxConfig) { c.MaxWait = d }
}

func WithTimeout(d time.Duration) TxOption {
	return func(c *TxConfig) { c.Timeout = d }
}

// Transactor is what services need from the data-access layer.
type Transactor interface {
	Do(ctx context.Context, fn func(ctx context.Context, db DBTX) error) error
	InTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error, opts ...TxOption) error
}

// Store owns the process-wide *sql.DB together with its retry and
// transaction policy. It is built once at startup and injected.
type Store struct {
	db      *sql.DB
	retrier *Retrier
	tx      TxConfig
}

var _ Transactor = (*Store)(nil)

// NewStore wraps db. A nil retrier gets the defaults; zero durations in cfg
// fall back to DefaultTxConfig values.
func NewStore(db *sql.DB, retrier *Retrier, cfg TxConfig) *Store {
	if retrier == nil {
		retrier = NewRetrier(0, 0)
	}
	def := DefaultTxConfig()
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Store{db: db, retrier: retrier, tx: cfg}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Retrier() *Retrier { return s.retrier }

// Do runs a single non-transactional operation under the retry policy.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, db DBTX) error) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return fn(ctx, s.db)
	})
}

// InTx runs fn atomically under the retry policy. Every attempt gets a fresh
// connection and transaction, so fn must not keep state between calls.
// Exceeding MaxWait or Timeout fails with common.ErrTransactionTimeout.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error, opts ...TxOption) error {
	cfg := s.tx
	for _, o := range opts {
		o(&cfg)
	}
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.runTx(ctx, cfg, fn)
	})
}

func (s *Store) runTx(ctx context.Context, cfg TxConfig, fn func(ctx context.Context, tx DBTX) error) error {
	waitCtx, cancelWait := context.WithTimeout(ctx, cfg.MaxWait)
	conn, err := s.db.Conn(waitCtx)
	cancelWait()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return common.ErrTransactionTimeout.WithCause(fmt.Errorf("waiting for connection: %w", err))
		}
		return err
	}
	defer conn.Close()

	txCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	err = WithTx(txCtx, conn, &sql.TxOptions{Isolation: cfg.Isolation}, fn)
	if err != nil && txCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return common.ErrTransactionTimeout.WithCause(err)
	}
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
