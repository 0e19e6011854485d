package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// NewWebhookSecret returns a random hex token usable as Telegram's
// secret_token (allowed charset is [A-Za-z0-9_-], up to 256 chars).
func NewWebhookSecret(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32 // 256 бит по умолчанию
	}
	if nBytes > 128 {
		nBytes = 128
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
