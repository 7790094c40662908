// Package models defines server-side data models persisted in the database.
package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleStandard  Role = "standard"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

type Plan string

const (
	PlanFree     Plan = "free"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// Provider is the authority that authenticates an account.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
)

// Account is a registered identity. Token fields hold fingerprints of the
// values sent by email, never the values themselves; each token and its
// expiry are set and cleared together.
type Account struct {
	ID            string
	Email         string
	PasswordHash  *string
	Name          string
	Role          Role
	Plan          Plan
	Provider      Provider
	EmailVerified bool

	VerificationToken     *string
	VerificationExpiresAt *time.Time
	ResetToken            *string
	ResetExpiresAt        *time.Time

	LastLoginAt *time.Time
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// NormalizeEmail trims and lower-cases an address. Uniqueness is defined on
// the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *Account) CurrentVersion() int64 { return a.Version }

// IsLocal reports whether the account signs in with a password we hold.
func (a *Account) IsLocal() bool {
	return a.Provider == ProviderLocal && a.PasswordHash != nil
}

func (a *Account) SetVerificationToken(hash string, expiresAt time.Time) {
	a.VerificationToken = &hash
	a.VerificationExpiresAt = &expiresAt
}

func (a *Account) ClearVerificationToken() {
	a.VerificationToken = nil
	a.VerificationExpiresAt = nil
}

func (a *Account) SetResetToken(hash string, expiresAt time.Time) {
	a.ResetToken = &hash
	a.ResetExpiresAt = &expiresAt
}

func (a *Account) ClearResetToken() {
	a.ResetToken = nil
	a.ResetExpiresAt = nil
}

// Public is the projection returned to callers: no hashes, no tokens.
type Public struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	Plan          Plan       `json:"plan"`
	Provider      Provider   `json:"provider"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (a *Account) Public() Public {
	return Public{
		ID:            a.ID,
		Email:         a.Email,
		Name:          a.Name,
		Role:          a.Role,
		Plan:          a.Plan,
		Provider:      a.Provider,
		EmailVerified: a.EmailVerified,
		LastLoginAt:   a.LastLoginAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}
