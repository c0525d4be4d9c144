package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// KeyPrefix is prepended to every issued API token, Stripe-style, so a leaked
// token is recognizable in logs and scanners.
const KeyPrefix = "hb_live_"

// GenerateAPIKey creates a secure random API token and its SHA256 hash.
// The plaintext token is shown to the user exactly once; only the hash is
// stored.
func GenerateAPIKey() (realKey, keyHash string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	realKey = fmt.Sprintf("%s%s", KeyPrefix, hex.EncodeToString(bytes))

	hash := sha256.Sum256([]byte(realKey))
	keyHash = hex.EncodeToString(hash[:])

	return realKey, keyHash, nil
}

// HashKey returns the storage hash for a presented token.
func HashKey(providedKey string) string {
	hash := sha256.Sum256([]byte(providedKey))
	return hex.EncodeToString(hash[:])
}

// ValidateKey checks a presented token against the stored hash in constant
// time.
func ValidateKey(providedKey, storedHash string) bool {
	return hmac.Equal([]byte(HashKey(providedKey)), []byte(storedHash))
}
