// Package services contains server-side business logic. AccountService
// implements registration, login, credential rotation, email verification,
// password recovery and session management on top of the repositories.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tubepulse/accounts/internal/common"
	"github.com/tubepulse/accounts/internal/dbx"
	"github.com/tubepulse/accounts/internal/logging"
	"github.com/tubepulse/accounts/internal/server/auth"
	"github.com/tubepulse/accounts/internal/server/metrics"
	"github.com/tubepulse/accounts/internal/server/models"
	"github.com/tubepulse/accounts/internal/server/notify"
	"github.com/tubepulse/accounts/internal/server/ratelimit"
	"github.com/tubepulse/accounts/internal/server/repositories/repomanager"
)

// Policy holds the account rules that are configuration rather than code.
type Policy struct {
	// AutoVerifyEmail skips the verification round-trip: new accounts start
	// verified and an unverified account is verified on its first login.
	AutoVerifyEmail bool
	// ExposeTokensInLogs makes the default log notifier write raw emailed
	// tokens instead of masked ones.
	ExposeTokensInLogs bool
	VerificationTTL    time.Duration
	ResetTTL           time.Duration
	OptimisticRetries  int
}

func DefaultPolicy() Policy {
	return Policy{
		VerificationTTL:   24 * time.Hour,
		ResetTTL:          time.Hour,
		OptimisticRetries: dbx.DefaultOptimisticRetries,
	}
}

// Deps are the collaborators of AccountService. Notifier, Limiter and Log
// may be nil.
type Deps struct {
	Store    dbx.Transactor
	Repos    repomanager.RepositoryManager
	Hasher   *auth.Hasher
	Issuer   *auth.Issuer
	Notifier notify.Notifier
	Limiter  ratelimit.Limiter
	Metrics  *metrics.Metrics
	Log      logging.Logger
}

// AuthResult is returned by every operation that opens a session. When the
// account still has to confirm its email only Account and
// RequiresEmailVerification are set.
type AuthResult struct {
	Account                   models.Public `json:"account"`
	AccessToken               string        `json:"accessToken,omitempty"`
	RefreshToken              string        `json:"refreshToken,omitempty"`
	ExpiresIn                 int64         `json:"expiresIn,omitempty"`
	SessionID                 string        `json:"sessionId,omitempty"`
	RequiresEmailVerification bool          `json:"requiresEmailVerification,omitempty"`
}

type AccountService struct {
	store    dbx.Transactor
	repos    repomanager.RepositoryManager
	hasher   *auth.Hasher
	issuer   *auth.Issuer
	notifier notify.Notifier
	limiter  ratelimit.Limiter
	metrics  *metrics.Metrics
	log      logging.Logger
	policy   Policy
	now      func() time.Time
}

func NewAccountService(d Deps, p Policy) *AccountService {
	def := DefaultPolicy()
	if p.VerificationTTL <= 0 {
		p.VerificationTTL = def.VerificationTTL
	}
	if p.ResetTTL <= 0 {
		p.ResetTTL = def.ResetTTL
	}
	if p.OptimisticRetries <= 0 {
		p.OptimisticRetries = def.OptimisticRetries
	}
	if d.Log == nil {
		d.Log = logging.Nop{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewLogNotifier(d.Log, p.ExposeTokensInLogs)
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.Unlimited{}
	}
	return &AccountService{
		store:    d.Store,
		repos:    d.Repos,
		hasher:   d.Hasher,
		issuer:   d.Issuer,
		notifier: d.Notifier,
		limiter:  d.Limiter,
		metrics:  d.Metrics,
		log:      d.Log,
		policy:   p,
		now:      time.Now,
	}
}

// Issuer exposes the credential verifier to the transport.
func (s *AccountService) Issuer() *auth.Issuer { return s.issuer }

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Register creates a local account. With AutoVerifyEmail the account is
// verified immediately and a session is opened; otherwise a verification
// token is emailed and the result only carries the account.
func (s *AccountService) Register(ctx context.Context, in RegisterInput, meta models.SessionMeta) (res *AuthResult, err error) {
	defer s.finish("register", time.Now(), &err)

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	acc := &models.Account{
		Email:         models.NormalizeEmail(in.Email),
		PasswordHash:  &hash,
		Name:          in.Name,
		Role:          models.RoleStandard,
		Plan:          models.PlanFree,
		Provider:      models.ProviderLocal,
		EmailVerified: s.policy.AutoVerifyEmail,
		CreatedAt:     now,
	}

	var token string
	if !acc.EmailVerified {
		if token, err = auth.RandomToken(0); err != nil {
			return nil, err
		}
		acc.SetVerificationToken(auth.Fingerprint(token), now.Add(s.policy.VerificationTTL))
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repos.Accounts(tx).Create(ctx, acc)
		if err != nil {
			return err
		}
		if !created.EmailVerified {
			res = &AuthResult{Account: created.Public(), RequiresEmailVerification: true}
			return nil
		}
		res, err = s.openSession(ctx, tx, created, meta, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if res.RequiresEmailVerification {
		s.deliver(ctx, "verification", acc.Email, func() error {
			return s.notifier.SendVerificationEmail(ctx, acc.Email, token, acc.Name)
		})
	}
	return res, nil
}

// Login authenticates a local account by password. An unknown address and a
// wrong password fail identically, and an unknown address still pays for one
// bcrypt comparison.
func (s *AccountService) Login(ctx context.Context, email, password string, meta models.SessionMeta) (res *AuthResult, err error) {
	defer s.finish("login", time.Now(), &err)

	email = models.NormalizeEmail(email)
	now := s.now()
	limitKey := "login:" + email

	allowed, retryAfter, lerr := s.limiter.Allow(ctx, limitKey, now)
	if lerr != nil {
		s.log.Warn(ctx, "login rate limiter unavailable", "error", lerr)
	} else if !allowed {
		return nil, common.ErrTooManyAttempts.WithCause(fmt.Errorf("retry in %s", retryAfter.Round(time.Second)))
	}

	var acc *models.Account
	err = s.store.Do(ctx, func(ctx context.Context, db dbx.DBTX) error {
		var err error
		acc, err = s.repos.Accounts(db).GetByEmail(ctx, email)
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		s.hasher.VerifyDummy(ctx, password)
		return nil, common.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !acc.IsLocal() {
		return nil, common.ErrWrongProvider
	}
	if !s.hasher.Verify(ctx, password, *acc.PasswordHash) {
		return nil, common.ErrInvalidCredentials
	}

	verify := false
	if !acc.EmailVerified {
		if !s.policy.AutoVerifyEmail {
			return nil, common.ErrEmailNotVerified
		}
		verify = true
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Accounts(tx)
		if verify {
			if err := repo.MarkEmailVerified(ctx, acc.ID, now); err != nil {
				return err
			}
		}
		if err := repo.RecordLogin(ctx, acc.ID, now); err != nil {
			return err
		}
		current, err := repo.GetByID(ctx, acc.ID)
		if err != nil {
			return err
		}
		res, err = s.openSession(ctx, tx, current, meta, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Reset(ctx, limitKey); err != nil {
		s.log.Warn(ctx, "login rate limiter reset failed", "error", err)
	}
	return res, nil
}

// RefreshAccessToken exchanges a refresh credential for a new pair and
// overwrites the session's stored fingerprint, so the presented value can
// never be used again. The lookup and the overwrite share one transaction;
// of two concurrent calls with the same value exactly one succeeds and the
// other fails with common.ErrSessionExpired.
func (s *AccountService) RefreshAccessToken(ctx context.Context, refreshToken string) (res *AuthResult, err error) {
	defer s.finish("refresh", time.Now(), &err)

	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	oldHash := auth.Fingerprint(refreshToken)

	err = s.store.InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		now := s.now()
		sessions := s.repos.Sessions(tx)

		sess, err := sessions.FindActiveByTokenHash(ctx, oldHash, now)
		if err != nil {
			return sessionExpired(err)
		}
		if sess.AccountID != claims.Subject {
			return common.ErrSessionExpired
		}
		acc, err := s.repos.Accounts(tx).GetByID(ctx, sess.AccountID)
		if err != nil {
			return sessionExpired(err)
		}

		refresh, refreshExp, err := s.issuer.IssueRefresh(acc.ID)
		if err != nil {
			return err
		}
		if err := sessions.Rotate(ctx, sess.ID, oldHash, auth.Fingerprint(refresh), refreshExp, now); err != nil {
			return sessionExpired(err)
		}
		access, _, err := s.issuer.IssueAccess(acc, sess.ID)
		if err != nil {
			return err
		}
		res = &AuthResult{
			Account:      acc.Public(),
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
			SessionID:    sess.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// openSession issues a credential pair for acc and records the session on db.
func (s *AccountService) openSession(ctx context.Context, db dbx.DBTX, acc *models.Account, meta models.SessionMeta, now time.Time) (*AuthResult, error) {
	refresh, refreshExp, err := s.issuer.IssueRefresh(acc.ID)
	if err != nil {
		return nil, err
	}
	sess, err := s.repos.Sessions(db).Create(ctx, &models.Session{
		AccountID:    acc.ID,
		TokenHash:    auth.Fingerprint(refresh),
		ExpiresAt:    refreshExp,
		LastActiveAt: now,
		DeviceName:   meta.DeviceName,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	access, _, err := s.issuer.IssueAccess(acc, sess.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Account:      acc.Public(),
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
		SessionID:    sess.ID,
	}, nil
}

func sessionExpired(err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrSessionExpired
	}
	return err
}

// deliver sends an email through send. Failures are logged and swallowed.
func (s *AccountService) deliver(ctx context.Context, kind, to string, send func() error) {
	if err := send(); err != nil {
		s.log.Error(ctx, "email delivery failed", "kind", kind, "to", to, "error", err)
		return
	}
	s.log.Info(ctx, "email delivered", "kind", kind, "to", to)
}

// finish records the operation and replaces untyped errors with
// common.ErrorInternal so callers only ever see the error taxonomy.
func (s *AccountService) finish(op string, start time.Time, errp *error) {
	if err := *errp; err != nil {
		var typed *common.Error
		if !errors.As(err, &typed) {
			s.log.Error(context.Background(), "operation failed", "operation", op, "error", err)
			*errp = common.ErrorInternal.WithCause(err)
		}
	}
	s.metrics.Observe(op, start, *errp)
}
