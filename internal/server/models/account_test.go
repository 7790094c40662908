package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", NormalizeEmail("  User@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestAccount_TokenPairs(t *testing.T) {
	a := &Account{}
	exp := time.Now().Add(time.Hour)

	a.SetVerificationToken("v", exp)
	assert.Equal(t, "v", *a.VerificationToken)
	assert.Equal(t, exp, *a.VerificationExpiresAt)
	a.ClearVerificationToken()
	assert.Nil(t, a.VerificationToken)
	assert.Nil(t, a.VerificationExpiresAt)

	a.SetResetToken("r", exp)
	assert.Equal(t, "r", *a.ResetToken)
	a.ClearResetToken()
	assert.Nil(t, a.ResetToken)
	assert.Nil(t, a.ResetExpiresAt)
}

func TestAccount_IsLocal(t *testing.T) {
	h := "hash"
	assert.True(t, (&Account{Provider: ProviderLocal, PasswordHash: &h}).IsLocal())
	assert.False(t, (&Account{Provider: ProviderLocal}).IsLocal())
	assert.False(t, (&Account{Provider: ProviderGoogle, PasswordHash: &h}).IsLocal())
}

func TestAccount_PublicHidesSecrets(t *testing.T) {
	h := "hash"
	tok := "tok"
	a := &Account{ID: "a1", Email: "e@x.io", PasswordHash: &h, VerificationToken: &tok, Role: RoleAdmin, Version: 4}
	p := a.Public()
	assert.Equal(t, "a1", p.ID)
	assert.Equal(t, RoleAdmin, p.Role)
	assert.Equal(t, int64(4), a.CurrentVersion())
}
