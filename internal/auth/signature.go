package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrBadSignature is returned for any signature that does not verify. The
// reason is not disclosed.
var ErrBadSignature = errors.New("signature verification failed")

// VerifySignature checks an HMAC-SHA256 of body keyed by secret. signature is
// either "sha256=<hex>" (X-Hub-Signature-256) or bare hex.
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return ErrBadSignature
	}

	actual, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return ErrBadSignature
	}
	if !hmac.Equal(actual, computeMAC(body, secret)) {
		return ErrBadSignature
	}
	return nil
}

// Sign returns the "sha256=<hex>" signature of body.
func Sign(body []byte, secret string) string {
	return "sha256=" + hex.EncodeToString(computeMAC(body, secret))
}

func computeMAC(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
