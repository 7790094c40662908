package services

import (
	"context"
	"time"

	"github.com/tubepulse/accounts/internal/common"
	"github.com/tubepulse/accounts/internal/dbx"
	"github.com/tubepulse/accounts/internal/server/models"
)

func (s *AccountService) GetCurrentUser(ctx context.Context, accountID string) (p models.Public, err error) {
	defer s.finish("get_current_user", time.Now(), &err)

	acc, err := s.account(ctx, accountID)
	if err != nil {
		return models.Public{}, err
	}
	return acc.Public(), nil
}

// ValidateUser confirms that an authenticated principal still exists. It is
// called on every authenticated request, so it is not recorded in metrics.
func (s *AccountService) ValidateUser(ctx context.Context, accountID string) (models.Public, error) {
	acc, err := s.account(ctx, accountID)
	if err != nil {
		return models.Public{}, err
	}
	return acc.Public(), nil
}

// UpdateProfile changes the display name with an optimistic version check,
// re-reading on conflict.
func (s *AccountService) UpdateProfile(ctx context.Context, accountID, name string) (p models.Public, err error) {
	defer s.finish("update_profile", time.Now(), &err)

	saved, err := dbx.OptimisticUpdate(ctx, s.store, s.versionedAccounts, accountID, s.policy.OptimisticRetries,
		func(current *models.Account) (*models.Account, error) {
			current.Name = name
			current.UpdatedAt = s.now()
			return current, nil
		})
	if err != nil {
		return models.Public{}, err
	}
	return saved.Public(), nil
}

func (s *AccountService) versionedAccounts(db dbx.DBTX) dbx.VersionedRepository[*models.Account] {
	return s.repos.Accounts(db)
}

// ListAccounts pages through live accounts for administrators.
func (s *AccountService) ListAccounts(ctx context.Context, req dbx.PageRequest) (page dbx.Page[models.Public], err error) {
	defer s.finish("list_accounts", time.Now(), &err)

	count := func(ctx context.Context) (int64, error) {
		var n int64
		err := s.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
			var err error
			n, err = s.repos.Accounts(db).Count(ctx)
			return err
		})
		return n, err
	}
	list := func(ctx context.Context, req dbx.PageRequest) ([]models.Public, error) {
		var accs []*models.Account
		err := s.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
			var err error
			accs, err = s.repos.Accounts(db).List(ctx, req)
			return err
		})
		if err != nil {
			return nil, err
		}
		out := make([]models.Public, 0, len(accs))
		for _, a := range accs {
			out = append(out, a.Public())
		}
		return out, nil
	}
	p, err := dbx.Paginate(ctx, req, count, list)
	if err != nil {
		return dbx.Page[models.Public]{}, err
	}
	return *p, nil
}

// DeleteAccount soft-deletes the account and ends all of its sessions. Local
// accounts must confirm with their password.
func (s *AccountService) DeleteAccount(ctx context.Context, accountID, password string) (err error) {
	defer s.finish("delete_account", time.Now(), &err)

	acc, err := s.account(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.IsLocal() && !s.hasher.Verify(ctx, password, *acc.PasswordHash) {
		return common.ErrWrongPassword
	}

	now := s.now()
	return s.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Accounts(tx).SoftDelete(ctx, accountID, now); err != nil {
			return err
		}
		_, err := s.repos.Sessions(tx).DeleteAllForAccount(ctx, accountID)
		return err
	})
}

// RestoreAccount undoes DeleteAccount. It fails with
// common.ErrEmailAlreadyRegistered when the address was taken meanwhile.
func (s *AccountService) RestoreAccount(ctx context.Context, accountID string) (err error) {
	defer s.finish("restore_account", time.Now(), &err)

	now := s.now()
	return s.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return s.repos.Accounts(db).Restore(ctx, accountID, now)
	})
}
