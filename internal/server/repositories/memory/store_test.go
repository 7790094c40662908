package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tubepulse/accounts/internal/common"
	"github.com/tubepulse/accounts/internal/dbx"
	"github.com/tubepulse/accounts/internal/server/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestInTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := s.Accounts(tx).Create(ctx, &models.Account{Email: "a@example.com", CreatedAt: now})
		require.NoError(t, err)
		_, err = s.Sessions(tx).Create(ctx, &models.Session{AccountID: "x", TokenHash: "fp", ExpiresAt: now.Add(time.Hour)})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Accounts(nil).GetByEmail(ctx, "a@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = s.Sessions(nil).FindActiveByTokenHash(ctx, "fp", now)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestAccounts_UniqueLiveEmail(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Accounts(nil)

	a, err := repo.Create(ctx, &models.Account{Email: "a@example.com", CreatedAt: now})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &models.Account{Email: "a@example.com", CreatedAt: now})
	assert.ErrorIs(t, err, common.ErrEmailAlreadyRegistered)

	require.NoError(t, repo.SoftDelete(ctx, a.ID, now))
	_, err = repo.GetByID(ctx, a.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.Create(ctx, &models.Account{Email: "a@example.com", CreatedAt: now})
	require.NoError(t, err, "a deleted account frees its address")
	assert.ErrorIs(t, repo.Restore(ctx, a.ID, now), common.ErrEmailAlreadyRegistered)
}

func TestAccounts_ConsumeTokensOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Accounts(nil)

	a := &models.Account{Email: "a@example.com", CreatedAt: now}
	a.SetVerificationToken("vfp", now.Add(time.Hour))
	_, err := repo.Create(ctx, a)
	require.NoError(t, err)

	_, err = repo.ConsumeVerificationToken(ctx, "vfp", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, common.ErrorNotFound, "expired token")

	got, err := repo.ConsumeVerificationToken(ctx, "vfp", now)
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)
	assert.Nil(t, got.VerificationToken)
	assert.Equal(t, int64(2), got.Version)

	_, err = repo.ConsumeVerificationToken(ctx, "vfp", now)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestAccounts_ListAndPurge(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Accounts(nil)

	for i, email := range []string{"c@x.io", "a@x.io", "b@x.io"} {
		a := &models.Account{Email: email, CreatedAt: now.Add(time.Duration(i) * time.Minute)}
		a.SetResetToken("r"+email, now)
		_, err := repo.Create(ctx, a)
		require.NoError(t, err)
	}

	list, err := repo.List(ctx, dbx.PageRequest{Page: 1, Limit: 2, SortField: "email", SortDirection: dbx.SortAsc})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a@x.io", list[0].Email)
	assert.Equal(t, "b@x.io", list[1].Email)

	list, err = repo.List(ctx, dbx.PageRequest{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c@x.io", list[0].Email, "default order is newest first")

	n, err := repo.PurgeExpiredTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSessions_RotateAndRevoke(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Sessions(nil)

	s1, _ := repo.Create(ctx, &models.Session{AccountID: "a", TokenHash: "t1", ExpiresAt: now.Add(time.Hour), LastActiveAt: now})
	s2, _ := repo.Create(ctx, &models.Session{AccountID: "a", TokenHash: "t2", ExpiresAt: now.Add(time.Hour), LastActiveAt: now.Add(time.Minute)})
	_, _ = repo.Create(ctx, &models.Session{AccountID: "b", TokenHash: "t3", ExpiresAt: now.Add(time.Hour), LastActiveAt: now})

	require.NoError(t, repo.Rotate(ctx, s1.ID, "t1", "t1b", now.Add(2*time.Hour), now.Add(2*time.Minute)))
	assert.ErrorIs(t, repo.Rotate(ctx, s1.ID, "t1", "t1c", now.Add(2*time.Hour), now), common.ErrorNotFound)

	list, err := repo.ListByAccount(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, s1.ID, list[0].ID, "rotated session is the most recent")

	n, err := repo.DeleteAllExcept(ctx, "a", s2.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, _ = repo.ListByAccount(ctx, "a")
	require.Len(t, list, 1)
	assert.Equal(t, s2.ID, list[0].ID)

	n, err = repo.DeleteExpired(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
