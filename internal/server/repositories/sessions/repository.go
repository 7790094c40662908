// Package sessions declares the server-side repository contract for refresh
// sessions and its PostgreSQL implementation.
package sessions

import (
	"context"
	"time"

	"github.com/tubepulse/accounts/internal/server/models"
)

// Repository stores one row per issued refresh credential.
type Repository interface {
	// Create inserts s, assigning an ID when empty.
	Create(ctx context.Context, s *models.Session) (*models.Session, error)

	// FindActiveByTokenHash returns the session whose current credential
	// fingerprint is tokenHash and which has not expired at now. Inside a
	// transaction the row stays locked until commit.
	FindActiveByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.Session, error)

	// Rotate overwrites the credential of session id, but only while it still
	// holds oldHash. When nothing matched it returns common.ErrorNotFound.
	Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt, now time.Time) error

	// DeleteByTokenHash removes the account's session holding tokenHash.
	// Removing nothing is not an error.
	DeleteByTokenHash(ctx context.Context, accountID, tokenHash string) (int64, error)

	// ListByAccount returns the account's sessions, most recently active first.
	ListByAccount(ctx context.Context, accountID string) ([]*models.Session, error)

	// DeleteByID removes one session owned by accountID, or returns
	// common.ErrorNotFound.
	DeleteByID(ctx context.Context, id, accountID string) error

	// DeleteAllExcept removes every session of the account except exceptID.
	DeleteAllExcept(ctx context.Context, accountID, exceptID string) (int64, error)

	DeleteAllForAccount(ctx context.Context, accountID string) (int64, error)

	// DeleteExpired removes sessions that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
