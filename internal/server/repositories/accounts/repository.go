// Package accounts declares the account repository contract and its
// PostgreSQL implementation.
package accounts

import (
	"context"
	"time"

	"github.com/tubepulse/accounts/internal/dbx"
	"github.com/tubepulse/accounts/internal/server/models"
)

// Repository persists accounts. Lookups ignore soft-deleted rows and report
// a missing row as common.ErrorNotFound. Every mutation increments Version.
type Repository interface {
	// Create inserts a new account and fills ID, Version and timestamps.
	// A live account with the same email yields common.ErrEmailAlreadyRegistered.
	Create(ctx context.Context, a *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)

	// ConsumeVerificationToken marks the account holding tokenHash as verified
	// and clears the token, provided it has not expired at now. The match and
	// the clear happen in one statement, so a token is accepted at most once.
	ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error)
	// ConsumeResetToken replaces the password of the account holding tokenHash
	// and clears the token, under the same single-use rule.
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.Account, error)

	SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error
	MarkEmailVerified(ctx context.Context, id string, now time.Time) error
	RecordLogin(ctx context.Context, id string, now time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error

	// UpdateVersioned writes the profile fields of next if the stored version
	// still equals version, otherwise returns common.ErrVersionConflict.
	UpdateVersioned(ctx context.Context, id string, version int64, next *models.Account) (*models.Account, error)

	Count(ctx context.Context) (int64, error)
	List(ctx context.Context, req dbx.PageRequest) ([]*models.Account, error)

	SoftDelete(ctx context.Context, id string, now time.Time) error
	Restore(ctx context.Context, id string, now time.Time) error

	// PurgeExpiredTokens clears verification and reset tokens whose expiry
	// is before now and returns the number of accounts touched.
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}
