package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// CancelTokenBytes is the entropy of a cancellation token.
const CancelTokenBytes = 24

// NewCancelToken returns a hex encoded random token (48 chars).
func NewCancelToken() (string, error) {
	b := make([]byte, CancelTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RedactToken keeps a short prefix of a token for logs.
func RedactToken(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return token[:6] + "***"
}
