package boxoffice

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// VerifySignature reports whether signature is the hex HMAC-SHA512 of the exact payload bytes under secret.
// Empty inputs and malformed hex never verify.
func VerifySignature(payload []byte, signature string, secret string) bool {
	if len(payload) == 0 || secret == "" {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) != sha512.Size {
		return false
	}
	return hmac.Equal(provided, computeSignature(payload, secret))
}

// SignPayload returns the lower-case hex HMAC-SHA512 of payload.
func SignPayload(payload []byte, secret string) string {
	return hex.EncodeToString(computeSignature(payload, secret))
}

func computeSignature(payload []byte, secret string) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
