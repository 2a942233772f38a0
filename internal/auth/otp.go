// Package auth holds the verifier's security primitives: one-time code
// generation and comparison, password hashing, and flow-ticket JWTs.
package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/sequentech/message-otp/internal/domain"
)

var ten = big.NewInt(10)

// GenerateCode returns length decimal digits, each drawn independently and
// uniformly from crypto/rand. An entropy failure is fatal for the request.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length %d: %w", length, domain.ErrInvalidInput)
	}

	var b strings.Builder
	b.Grow(length)
	for range length {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// ConstantTimeEqual compares a and b without exiting early on the first
// differing byte. Differing lengths return false immediately, which leaks
// only the length.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var acc byte
	for i := range a {
		acc |= a[i] ^ b[i]
	}
	return acc == 0
}

// MaskCode replaces every occurrence of code in text with asterisks of the
// same length. Used before message bodies reach the communications log.
func MaskCode(text, code string) string {
	if code == "" {
		return text
	}
	return strings.ReplaceAll(text, code, strings.Repeat("*", len(code)))
}
