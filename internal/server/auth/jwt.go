package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tubepulse/accounts/internal/common"
	"github.com/tubepulse/accounts/internal/server/models"
)

const (
	audienceAccess  = "access"
	audienceRefresh = "refresh"
)

// AccessClaims is carried by access credentials. Subject is the account id;
// the rest lets downstream authorization skip a lookup.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	Plan      models.Plan `json:"plan"`
	SessionID string      `json:"sid,omitempty"`
}

// RefreshClaims is carried by refresh credentials: subject and a unique id.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

type IssuerConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Issuer signs and verifies access and refresh credentials with independent
// secrets, lifetimes and audiences. It never touches storage.
type Issuer struct {
	cfg IssuerConfig
	now func() time.Time
}

func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

func (i *Issuer) AccessTTL() time.Duration  { return i.cfg.AccessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.cfg.RefreshTTL }

func (i *Issuer) registered(subject, audience string, ttl time.Duration) (jwt.RegisteredClaims, time.Time) {
	now := i.now()
	exp := now.Add(ttl)
	return jwt.RegisteredClaims{
		Issuer:    i.cfg.Issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}, exp
}

// IssueAccess signs an access credential for a and returns it with its expiry.
func (i *Issuer) IssueAccess(a *models.Account, sessionID string) (string, time.Time, error) {
	rc, exp := i.registered(a.ID, audienceAccess, i.cfg.AccessTTL)
	claims := AccessClaims{
		RegisteredClaims: rc,
		Email:            a.Email,
		Role:             a.Role,
		Plan:             a.Plan,
		SessionID:        sessionID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.AccessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, exp, nil
}

// IssueRefresh signs a refresh credential for accountID. Each call yields a
// distinct value even within the same second.
func (i *Issuer) IssueRefresh(accountID string) (string, time.Time, error) {
	rc, exp := i.registered(accountID, audienceRefresh, i.cfg.RefreshTTL)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{RegisteredClaims: rc}).SignedString(i.cfg.RefreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, exp, nil
}

func (i *Issuer) parse(token string, claims jwt.Claims, secret []byte, audience string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(i.now),
	}
	if i.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.cfg.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	switch {
	case err == nil && parsed.Valid:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrExpiredCredential.WithCause(err)
	default:
		return common.ErrInvalidCredential.WithCause(err)
	}
}

// VerifyAccess fails with common.ErrExpiredCredential when the credential
// has expired and common.ErrInvalidCredential for anything else.
func (i *Issuer) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(token, claims, i.cfg.AccessSecret, audienceAccess); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *Issuer) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(token, claims, i.cfg.RefreshSecret, audienceRefresh); err != nil {
		return nil, err
	}
	return claims, nil
}

// DecodeUnsafe reads claims without checking the signature or expiry.
// Diagnostics only: never use the result for authorization.
func (i *Issuer) DecodeUnsafe(token string) (*AccessClaims, bool) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}
