package signing

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of derived signing keys in bytes.
const KeySize = 32

// DeriveKey expands an organisation's root signing secret into the key
// material for a specific signing key ID using HKDF-SHA256. Rotating the
// key ID yields an unrelated key without changing the stored secret.
func DeriveKey(rootSecret []byte, signingKeyID string) ([]byte, error) {
	if len(rootSecret) == 0 {
		return nil, ErrEmptySecret
	}
	r := hkdf.New(sha256.New, rootSecret, nil, []byte("orbit/ledger/"+signingKeyID))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("signing: key derivation failed: %w", err)
	}
	return key, nil
}
