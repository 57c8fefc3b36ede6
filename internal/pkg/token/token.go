package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// linkTokenBytes is the entropy of a link token; it renders as 32 hex chars,
// which also fits Telegram's 64-char limit on the start parameter.
const linkTokenBytes = 16

// NewLinkToken generates a cryptographically random hex token for a deep link.
func NewLinkToken() (string, error) {
	b := make([]byte, linkTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate link token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
