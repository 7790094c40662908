package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tubepulse/accounts/internal/common"
	"github.com/tubepulse/accounts/internal/dbx"
	"github.com/tubepulse/accounts/internal/server/models"
)

type accountRepo struct {
	s *Store
}

func ptr[T any](v T) *T { return &v }

func clone(a models.Account) *models.Account {
	return &a
}

// mutate applies fn to the live account with the given id and bumps its version.
func (r *accountRepo) mutate(id string, now time.Time, fn func(a *models.Account)) (*models.Account, error) {
	return r.mutateWhere(func(a models.Account) bool { return a.ID == id }, now, fn)
}

// mutateWhere is mutate for the first live account satisfying match.
func (r *accountRepo) mutateWhere(match func(a models.Account) bool, now time.Time, fn func(a *models.Account)) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, a := range r.s.accounts {
		if a.DeletedAt != nil || !match(a) {
			continue
		}
		fn(&a)
		a.Version++
		a.UpdatedAt = now
		r.s.accounts[id] = a
		return clone(a), nil
	}
	return nil, common.ErrorNotFound
}

func (r *accountRepo) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.accounts {
		if existing.DeletedAt == nil && existing.Email == a.Email {
			return nil, common.ErrEmailAlreadyRegistered
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Version = 1
	a.UpdatedAt = a.CreatedAt
	r.s.accounts[a.ID] = *a
	return a, nil
}

func (r *accountRepo) GetByID(_ context.Context, id string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok || a.DeletedAt != nil {
		return nil, common.ErrorNotFound
	}
	return clone(a), nil
}

func (r *accountRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, a := range r.s.accounts {
		if a.DeletedAt == nil && a.Email == email {
			return clone(a), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *accountRepo) ConsumeVerificationToken(_ context.Context, tokenHash string, now time.Time) (*models.Account, error) {
	match := func(a models.Account) bool {
		return a.VerificationToken != nil && *a.VerificationToken == tokenHash &&
			a.VerificationExpiresAt != nil && a.VerificationExpiresAt.After(now)
	}
	return r.mutateWhere(match, now, func(a *models.Account) {
		a.EmailVerified = true
		a.ClearVerificationToken()
	})
}

func (r *accountRepo) ConsumeResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (*models.Account, error) {
	match := func(a models.Account) bool {
		return a.ResetToken != nil && *a.ResetToken == tokenHash &&
			a.ResetExpiresAt != nil && a.ResetExpiresAt.After(now)
	}
	return r.mutateWhere(match, now, func(a *models.Account) {
		a.PasswordHash = ptr(passwordHash)
		a.ClearResetToken()
	})
}

func (r *accountRepo) SetVerificationToken(_ context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	_, err := r.mutate(id, now, func(a *models.Account) { a.SetVerificationToken(tokenHash, expiresAt) })
	return err
}

func (r *accountRepo) SetResetToken(_ context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	_, err := r.mutate(id, now, func(a *models.Account) { a.SetResetToken(tokenHash, expiresAt) })
	return err
}

func (r *accountRepo) MarkEmailVerified(_ context.Context, id string, now time.Time) error {
	_, err := r.mutate(id, now, func(a *models.Account) {
		a.EmailVerified = true
		a.ClearVerificationToken()
	})
	return err
}

func (r *accountRepo) RecordLogin(_ context.Context, id string, now time.Time) error {
	_, err := r.mutate(id, now, func(a *models.Account) { a.LastLoginAt = ptr(now) })
	return err
}

func (r *accountRepo) UpdatePassword(_ context.Context, id, passwordHash string, now time.Time) error {
	_, err := r.mutate(id, now, func(a *models.Account) { a.PasswordHash = ptr(passwordHash) })
	return err
}

func (r *accountRepo) UpdateVersioned(_ context.Context, id string, version int64, next *models.Account) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok || a.DeletedAt != nil || a.Version != version {
		return nil, common.ErrVersionConflict
	}
	a.Name = next.Name
	a.Version++
	a.UpdatedAt = next.UpdatedAt
	r.s.accounts[id] = a
	return clone(a), nil
}

func (r *accountRepo) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, a := range r.s.accounts {
		if a.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (r *accountRepo) List(_ context.Context, req dbx.PageRequest) ([]*models.Account, error) {
	req = req.Normalize()

	r.s.mu.Lock()
	var live []models.Account
	for _, a := range r.s.accounts {
		if a.DeletedAt == nil {
			live = append(live, a)
		}
	}
	r.s.mu.Unlock()

	slices.SortFunc(live, func(x, y models.Account) int {
		c := compareBy(req.SortField, x, y)
		if req.SortDirection == dbx.SortDesc {
			c = -c
		}
		if c == 0 {
			c = strings.Compare(x.ID, y.ID)
		}
		return c
	})

	start := min(req.Offset(), len(live))
	end := min(start+req.Limit, len(live))
	out := make([]*models.Account, 0, end-start)
	for _, a := range live[start:end] {
		out = append(out, clone(a))
	}
	return out, nil
}

func compareBy(field string, x, y models.Account) int {
	switch field {
	case "email":
		return strings.Compare(x.Email, y.Email)
	case "name":
		return strings.Compare(x.Name, y.Name)
	case "updated_at":
		return x.UpdatedAt.Compare(y.UpdatedAt)
	case "last_login_at":
		return cmp.Compare(unixOrZero(x.LastLoginAt), unixOrZero(y.LastLoginAt))
	default:
		return x.CreatedAt.Compare(y.CreatedAt)
	}
}

func unixOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

func (r *accountRepo) SoftDelete(_ context.Context, id string, now time.Time) error {
	_, err := r.mutate(id, now, func(a *models.Account) { a.DeletedAt = ptr(now) })
	return err
}

func (r *accountRepo) Restore(_ context.Context, id string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok || a.DeletedAt == nil {
		return common.ErrorNotFound
	}
	for otherID, other := range r.s.accounts {
		if otherID != id && other.DeletedAt == nil && other.Email == a.Email {
			return common.ErrEmailAlreadyRegistered
		}
	}
	a.DeletedAt = nil
	a.Version++
	a.UpdatedAt = now
	r.s.accounts[id] = a
	return nil
}

func (r *accountRepo) PurgeExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, a := range r.s.accounts {
		touched := false
		if a.VerificationExpiresAt != nil && !a.VerificationExpiresAt.After(now) {
			a.ClearVerificationToken()
			touched = true
		}
		if a.ResetExpiresAt != nil && !a.ResetExpiresAt.After(now) {
			a.ClearResetToken()
			touched = true
		}
		if touched {
			r.s.accounts[id] = a
			n++
		}
	}
	return n, nil
}
