package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the algorithm tag GitHub prepends to the hex
// digest in the X-Hub-Signature-256 header.
const SignaturePrefix = "sha256="

// VerifySignature checks a webhook payload against its
// X-Hub-Signature-256 header value. The comparison is constant-time.
func VerifySignature(payload []byte, signature, secret string) bool {
	if !strings.HasPrefix(signature, SignaturePrefix) {
		return false
	}
	received := strings.TrimPrefix(signature, SignaturePrefix)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(received))
}
