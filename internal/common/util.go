package common

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString generates a random hexadecimal string of the given size.
// The size parameter specifies the number of random bytes to generate before
// encoding them as a hexadecimal string. As a result, the final string length
// will be twice the size (since each byte expands to two hex characters).
//
// It returns an error if the random number generator fails.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// This is useful for removing sensitive data such as passwords from memory
// after use.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// MaskSecret keeps the first visible characters of s and replaces the rest
// with a fixed ellipsis. Short values keep at most half of their characters,
// so the full value is never echoed back.
func MaskSecret(s string, visible int) string {
	if visible < 0 {
		visible = 0
	}
	if len(s) <= visible {
		visible = len(s) / 2
	}
	return s[:visible] + "…"
}
