// Package memory is an in-process implementation of the repositories and the
// transactor, used by service tests and local runs without PostgreSQL.
// Transactions are serialized and roll back by restoring a snapshot.
package memory

import (
	"context"
	"database/sql"
	"maps"
	"sync"

	"github.com/tubepulse/accounts/internal/dbx"
	"github.com/tubepulse/accounts/internal/server/models"
	"github.com/tubepulse/accounts/internal/server/repositories/accounts"
	"github.com/tubepulse/accounts/internal/server/repositories/repomanager"
	"github.com/tubepulse/accounts/internal/server/repositories/sessions"
)

type Store struct {
	txMu sync.Mutex

	mu       sync.Mutex
	accounts map[string]models.Account
	sessions map[string]models.Session
}

var (
	_ dbx.Transactor                = (*Store)(nil)
	_ repomanager.RepositoryManager = (*Store)(nil)
)

func New() *Store {
	return &Store{
		accounts: map[string]models.Account{},
		sessions: map[string]models.Session{},
	}
}

func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, db dbx.DBTX) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx, nil)
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error, _ ...dbx.TxOption) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	accs, sess := maps.Clone(s.accounts), maps.Clone(s.sessions)
	s.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		s.mu.Lock()
		s.accounts, s.sessions = accs, sess
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) RunMigrations(context.Context, *sql.DB) error { return nil }

func (s *Store) Accounts(dbx.DBTX) accounts.Repository { return &accountRepo{s: s} }

func (s *Store) Sessions(dbx.DBTX) sessions.Repository { return &sessionRepo{s: s} }
