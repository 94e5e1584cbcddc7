package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"
)

func sign(newHash func() hash.Hash, secret, message string) string {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// signSHA512 is the Gateway A scheme.
func signSHA512(secret, message string) string {
	return sign(sha512.New, secret, message)
}

// signSHA256 is the Gateway B scheme.
func signSHA256(secret, message string) string {
	return sign(sha256.New, secret, message)
}

// signaturesMatch compares hex digests in constant time. Gateways differ in
// hex casing, so both sides are lowered first.
func signaturesMatch(expected, supplied string) bool {
	supplied = strings.ToLower(strings.TrimSpace(supplied))
	if supplied == "" {
		return false
	}
	return hmac.Equal([]byte(strings.ToLower(expected)), []byte(supplied))
}
