package services

import "github.com/btcsuite/btcutil/base58"

const (
	minWalletLen = 32
	maxWalletLen = 44
)

// ValidateWalletAddress: только синтаксическая проверка base58-адреса
// (32..44 символа). Ни контрольной суммы, ни проверки в сети.
func ValidateWalletAddress(candidate string) bool {
	if len(candidate) < minWalletLen || len(candidate) > maxWalletLen {
		return false
	}
	// Decode returns an empty slice on any byte outside the alphabet
	// (0, O, I, l, punctuation, non-ASCII).
	return len(base58.Decode(candidate)) > 0
}
