package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/tubepulse/accounts/internal/common"
	"github.com/tubepulse/accounts/internal/server/models"
)

type sessionRepo struct {
	s *Store
}

func (r *sessionRepo) Create(_ context.Context, sess *models.Session) (*models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	r.s.sessions[sess.ID] = *sess
	return sess, nil
}

func (r *sessionRepo) FindActiveByTokenHash(_ context.Context, tokenHash string, now time.Time) (*models.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, sess := range r.s.sessions {
		if sess.TokenHash == tokenHash && sess.ExpiresAt.After(now) {
			return &sess, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *sessionRepo) Rotate(_ context.Context, id, oldHash, newHash string, expiresAt, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sess, ok := r.s.sessions[id]
	if !ok || sess.TokenHash != oldHash {
		return common.ErrorNotFound
	}
	sess.TokenHash = newHash
	sess.ExpiresAt = expiresAt
	sess.LastActiveAt = now
	r.s.sessions[id] = sess
	return nil
}

func (r *sessionRepo) deleteWhere(match func(sess models.Session) bool) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, sess := range r.s.sessions {
		if match(sess) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n
}

func (r *sessionRepo) DeleteByTokenHash(_ context.Context, accountID, tokenHash string) (int64, error) {
	return r.deleteWhere(func(sess models.Session) bool {
		return sess.AccountID == accountID && sess.TokenHash == tokenHash
	}), nil
}

func (r *sessionRepo) ListByAccount(_ context.Context, accountID string) ([]*models.Session, error) {
	r.s.mu.Lock()
	var out []*models.Session
	for _, sess := range r.s.sessions {
		if sess.AccountID == accountID {
			out = append(out, &sess)
		}
	}
	r.s.mu.Unlock()

	slices.SortFunc(out, func(a, b *models.Session) int {
		if c := b.LastActiveAt.Compare(a.LastActiveAt); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (r *sessionRepo) DeleteByID(_ context.Context, id, accountID string) error {
	n := r.deleteWhere(func(sess models.Session) bool {
		return sess.ID == id && sess.AccountID == accountID
	})
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *sessionRepo) DeleteAllExcept(_ context.Context, accountID, exceptID string) (int64, error) {
	return r.deleteWhere(func(sess models.Session) bool {
		return sess.AccountID == accountID && sess.ID != exceptID
	}), nil
}

func (r *sessionRepo) DeleteAllForAccount(_ context.Context, accountID string) (int64, error) {
	return r.deleteWhere(func(sess models.Session) bool { return sess.AccountID == accountID }), nil
}

func (r *sessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(func(sess models.Session) bool { return !sess.ExpiresAt.After(now) }), nil
}
