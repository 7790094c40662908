package services

import (
	"context"
	"time"

	"github.com/tubepulse/accounts/internal/common"
	"github.com/tubepulse/accounts/internal/dbx"
	"github.com/tubepulse/accounts/internal/server/auth"
	"github.com/tubepulse/accounts/internal/server/models"
)

const maskedTokenChars = 8

// Logout ends the session holding refreshToken. Repeating it is not an error.
func (s *AccountService) Logout(ctx context.Context, accountID, refreshToken string) (err error) {
	defer s.finish("logout", time.Now(), &err)

	return s.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
		_, err := s.repos.Sessions(db).DeleteByTokenHash(ctx, accountID, auth.Fingerprint(refreshToken))
		return err
	})
}

// ListSessions returns the account's sessions, most recently active first.
// Only a prefix of each credential fingerprint is returned.
func (s *AccountService) ListSessions(ctx context.Context, accountID, currentSessionID string) (views []models.SessionView, err error) {
	defer s.finish("list_sessions", time.Now(), &err)

	var list []*models.Session
	err = s.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		list, err = s.repos.Sessions(db).ListByAccount(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}

	views = make([]models.SessionView, 0, len(list))
	for _, sess := range list {
		views = append(views, models.SessionView{
			ID:           sess.ID,
			Token:        common.MaskSecret(sess.TokenHash, maskedTokenChars),
			ExpiresAt:    sess.ExpiresAt,
			LastActiveAt: sess.LastActiveAt,
			DeviceName:   sess.DeviceName,
			IPAddress:    sess.IPAddress,
			UserAgent:    sess.UserAgent,
			CreatedAt:    sess.CreatedAt,
			Current:      sess.ID == currentSessionID,
		})
	}
	return views, nil
}

// RevokeSession deletes one of the account's sessions.
func (s *AccountService) RevokeSession(ctx context.Context, sessionID, accountID string) (err error) {
	defer s.finish("revoke_session", time.Now(), &err)

	return s.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
		return s.repos.Sessions(db).DeleteByID(ctx, sessionID, accountID)
	})
}

// RevokeAllSessions deletes the account's sessions except exceptSessionID.
// An empty exceptSessionID deletes them all.
func (s *AccountService) RevokeAllSessions(ctx context.Context, accountID, exceptSessionID string) (n int64, err error) {
	defer s.finish("revoke_all_sessions", time.Now(), &err)

	err = s.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
		repo := s.repos.Sessions(db)
		var err error
		if exceptSessionID == "" {
			n, err = repo.DeleteAllForAccount(ctx, accountID)
		} else {
			n, err = repo.DeleteAllExcept(ctx, accountID, exceptSessionID)
		}
		return err
	})
	return n, err
}
