package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
)

// SignIPN computes the hex HMAC-SHA512 digest of a raw notification body
// under the shared IPN secret, matching what the payment provider sends in
// its signature header.
func SignIPN(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyIPN reports whether the hex signature matches the body under the
// secret. The comparison is constant-time; a single flipped byte in either
// the body or the signature fails.
func VerifyIPN(body []byte, signature, secret string) bool {
	expected := SignIPN(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignEvent computes the hex HMAC-SHA256 digest used on outbound operator
// notifications.
func SignEvent(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
