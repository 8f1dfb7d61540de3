// Package signing provides HMAC-based signature creation and verification
// over canonically encoded payloads. All functions are pure: no key storage,
// no side effects. Signing secrets are organisation-scoped symmetric keys
// resolved through the organisation registry; this package only ever sees
// the resolved value.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptySecret is returned when signing or verifying with no key material.
var ErrEmptySecret = errors.New("signing: empty secret")

// Sign computes the hex-encoded HMAC-SHA256 signature of canonicalBytes
// under secret.
func Sign(canonicalBytes, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(canonicalBytes)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature is a valid HMAC-SHA256 signature of
// canonicalBytes under secret. Comparison is constant-time.
func Verify(canonicalBytes []byte, signature string, secret []byte) (bool, error) {
	if len(secret) == 0 {
		return false, ErrEmptySecret
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false, nil // malformed signature is simply invalid
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(canonicalBytes)
	return hmac.Equal(sig, mac.Sum(nil)), nil
}
