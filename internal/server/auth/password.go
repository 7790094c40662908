// Package auth holds the credential primitives: password hashing, opaque
// random tokens, fingerprints and signed access/refresh credentials.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/tubepulse/accounts/internal/common"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultCost       = 12
	DefaultTokenBytes = 32
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

// Hasher wraps bcrypt. Hashing is CPU bound, so at most workers hashes run
// at once and callers waiting for a slot can be cancelled through ctx.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted

	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher clamps cost into bcrypt's range (0 means DefaultCost) and
// defaults workers to GOMAXPROCS.
func NewHasher(cost, workers int) *Hasher {
	switch {
	case cost == 0:
		cost = DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Hasher{cost: cost, sem: semaphore.NewWeighted(int64(workers))}
}

func (h *Hasher) Cost() int { return h.cost }

// Hash fails with common.ErrPasswordTooLong above MaxPasswordBytes.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", common.ErrPasswordTooLong
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	pw := []byte(plaintext)
	defer common.WipeByteArray(pw)

	hash, err := bcrypt.GenerateFromPassword(pw, h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", common.ErrPasswordTooLong
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches hash. A malformed hash, a
// mismatch or a cancelled ctx all yield false.
func (h *Hasher) Verify(ctx context.Context, plaintext, hash string) bool {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.sem.Release(1)

	pw := []byte(plaintext)
	defer common.WipeByteArray(pw)

	return bcrypt.CompareHashAndPassword([]byte(hash), pw) == nil
}

// VerifyDummy spends the same time as a real Verify against a fixed hash.
// Login calls it for unknown addresses so response time does not reveal
// whether an account exists.
func (h *Hasher) VerifyDummy(ctx context.Context, plaintext string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("tubepulse-dummy-password"), h.cost)
	})
	_ = h.Verify(ctx, plaintext, string(h.dummy))
}

// RandomToken returns byteLength random bytes from crypto/rand, hex encoded.
func RandomToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultTokenBytes
	}
	return common.MakeRandHexString(byteLength)
}

// Fingerprint is the hex SHA-256 of data, used to store and look up
// tokens without keeping their raw value.
func Fingerprint(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
