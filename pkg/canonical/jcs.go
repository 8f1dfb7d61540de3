package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Transform canonicalizes already-serialized JSON bytes per RFC 8785.
// Used for uploaded payloads that arrive as raw JSON and must be hashed
// without a round-trip through Go types.
func Transform(raw []byte) ([]byte, error) {
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: jcs transform: %v", ErrEncoding, err)
	}
	return out, nil
}

// Hash returns the SHA-256 hex digest of the canonical form of v with the
// given fields excluded.
func Hash(v interface{}, excluded map[string]bool) (string, error) {
	b, err := Encode(v, excluded)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hash of raw bytes and returns the hex string.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
