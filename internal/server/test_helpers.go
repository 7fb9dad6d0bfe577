package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// MakeTestSignature computes the X-Hub-Signature-256 header value for a
// payload. Exported so integration tests can sign webhook requests.
func MakeTestSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func makeTestSignature(payload []byte, secret string) string {
	return MakeTestSignature(payload, secret)
}
