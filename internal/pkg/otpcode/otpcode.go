// Package otpcode generates six-digit passcodes and hashes them for storage.
package otpcode

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	minCode = 100000
	maxCode = 999999
)

// Generate returns a uniformly random code in [100000, 999999]. Codes with a
// leading zero are never produced.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxCode-minCode+1))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+minCode), nil
}

// Hash returns the hex SHA-256 digest of code. It is unsalted: codes live for
// minutes, are single-use and guesses are rate limited.
func Hash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Match reports whether code hashes to hashed, comparing digests in constant time.
func Match(code, hashed string) bool {
	return subtle.ConstantTimeCompare([]byte(Hash(code)), []byte(hashed)) == 1
}
