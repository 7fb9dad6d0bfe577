package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestVerifySignature_Valid(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)
	secret := "test-secret-at-least-32-chars-long-here"

	signature := makeTestSignature(payload, secret)

	if !VerifySignature(payload, signature, secret) {
		t.Error("Expected valid signature to verify")
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)

	signature := makeTestSignature(payload, "wrong-secret-also-32-chars-long-xxxx")

	if VerifySignature(payload, signature, "test-secret-at-least-32-chars-long-here") {
		t.Error("Expected signature with wrong secret to fail")
	}
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	secret := "test-secret-at-least-32-chars-long-here"
	signature := makeTestSignature([]byte(`{"ref":"refs/heads/main"}`), secret)

	if VerifySignature([]byte(`{"ref":"refs/heads/evil"}`), signature, secret) {
		t.Error("Expected tampered payload to fail verification")
	}
}

func TestVerifySignature_MissingSignature(t *testing.T) {
	if VerifySignature([]byte(`{}`), "", "secret") {
		t.Error("Expected empty signature to fail")
	}
}

func TestVerifySignature_MissingPrefix(t *testing.T) {
	payload := []byte(`{}`)
	secret := "test-secret-at-least-32-chars-long-here"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	bare := hex.EncodeToString(mac.Sum(nil))

	if VerifySignature(payload, bare, secret) {
		t.Error("Expected signature without sha256= prefix to fail")
	}
}

func TestVerifySignature_MalformedDigest(t *testing.T) {
	if VerifySignature([]byte(`{}`), "sha256=not-hex", "secret") {
		t.Error("Expected malformed digest to fail")
	}
}
