package services

import (
	"context"
	"errors"
	"time"

	"github.com/tubepulse/accounts/internal/common"
	"github.com/tubepulse/accounts/internal/dbx"
	"github.com/tubepulse/accounts/internal/server/auth"
	"github.com/tubepulse/accounts/internal/server/models"
)

// VerifyEmail consumes a verification token and opens a session.
func (s *AccountService) VerifyEmail(ctx context.Context, token string, meta models.SessionMeta) (res *AuthResult, err error) {
	defer s.finish("verify_email", time.Now(), &err)

	if token == "" {
		return nil, common.ErrInvalidOrExpiredToken
	}

	now := s.now()
	err = s.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		acc, err := s.repos.Accounts(tx).ConsumeVerificationToken(ctx, auth.Fingerprint(token), now)
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidOrExpiredToken
		}
		if err != nil {
			return err
		}
		res, err = s.openSession(ctx, tx, acc, meta, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ResendVerificationEmail replaces the pending verification token and sends
// it again.
func (s *AccountService) ResendVerificationEmail(ctx context.Context, email string) (err error) {
	defer s.finish("resend_verification", time.Now(), &err)

	email = models.NormalizeEmail(email)
	token, err := auth.RandomToken(0)
	if err != nil {
		return err
	}

	now := s.now()
	var acc *models.Account
	err = s.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
		repo := s.repos.Accounts(db)
		var err error
		if acc, err = repo.GetByEmail(ctx, email); err != nil {
			return err
		}
		if acc.EmailVerified {
			return common.ErrAlreadyVerified
		}
		return repo.SetVerificationToken(ctx, acc.ID, auth.Fingerprint(token), now.Add(s.policy.VerificationTTL), now)
	})
	if err != nil {
		return err
	}

	s.deliver(ctx, "verification", acc.Email, func() error {
		return s.notifier.SendVerificationEmail(ctx, acc.Email, token, acc.Name)
	})
	return nil
}

// ForgotPassword always answers with common.ForgotPasswordMessage. When the
// address belongs to a local account a reset token is stored and emailed;
// failures on that path are only logged.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) (msg string, err error) {
	defer s.finish("forgot_password", time.Now(), &err)

	if err := s.startReset(ctx, models.NormalizeEmail(email)); err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.log.Error(ctx, "password reset not started", "error", err)
	}
	return common.ForgotPasswordMessage, nil
}

func (s *AccountService) startReset(ctx context.Context, email string) error {
	token, err := auth.RandomToken(0)
	if err != nil {
		return err
	}

	now := s.now()
	var acc *models.Account
	err = s.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
		repo := s.repos.Accounts(db)
		var err error
		if acc, err = repo.GetByEmail(ctx, email); err != nil {
			return err
		}
		if !acc.IsLocal() {
			return common.ErrorNotFound
		}
		return repo.SetResetToken(ctx, acc.ID, auth.Fingerprint(token), now.Add(s.policy.ResetTTL), now)
	})
	if err != nil {
		return err
	}

	s.deliver(ctx, "password_reset", acc.Email, func() error {
		return s.notifier.SendPasswordResetEmail(ctx, acc.Email, token, acc.Name)
	})
	return nil
}

// ResetPassword consumes a reset token, stores the new password and signs
// the account out everywhere.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer s.finish("reset_password", time.Now(), &err)

	if token == "" {
		return common.ErrInvalidOrExpiredToken
	}
	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}

	now := s.now()
	return s.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		acc, err := s.repos.Accounts(tx).ConsumeResetToken(ctx, auth.Fingerprint(token), hash, now)
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidOrExpiredToken
		}
		if err != nil {
			return err
		}
		_, err = s.repos.Sessions(tx).DeleteAllForAccount(ctx, acc.ID)
		return err
	})
}

func (s *AccountService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) (err error) {
	defer s.finish("change_password", time.Now(), &err)

	acc, err := s.account(ctx, accountID)
	if err != nil {
		return err
	}
	if !acc.IsLocal() {
		return common.ErrWrongProvider
	}
	if !s.hasher.Verify(ctx, currentPassword, *acc.PasswordHash) {
		return common.ErrWrongPassword
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	now := s.now()
	return s.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return s.repos.Accounts(db).UpdatePassword(ctx, accountID, hash, now)
	})
}

func (s *AccountService) account(ctx context.Context, id string) (*models.Account, error) {
	var acc *models.Account
	err := s.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		acc, err = s.repos.Accounts(db).GetByID(ctx, id)
		return err
	})
	return acc, err
}
