// Package registry manages organisations and resolves their signing keys.
//
// An organisation's signing secret is generated once at creation and is
// immutable thereafter. Re-issuing credentials rotates the signing key ID
// (and with it the derived key material) without mutating the stored secret.
package registry

import (
	"errors"
	"time"
)

// ErrNotFound is returned when an organisation is not registered.
var ErrNotFound = errors.New("registry: organisation not found")

// Organisation is a registered tenant able to sign ledger events.
type Organisation struct {
	OrgID         string    `json:"org_id"`
	DisplayName   string    `json:"display_name"`
	APIKey        string    `json:"-"`
	SigningSecret []byte    `json:"-"`
	SigningKeyID  string    `json:"signing_key_id"`
	Scopes        []string  `json:"scopes"`
	IsSandbox     bool      `json:"is_sandbox"`
	KeyExpiresAt  time.Time `json:"key_expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// Resolution is the signing material for an organisation at resolve time.
// The secret never leaves the process boundary.
type Resolution struct {
	SigningSecret []byte
	SigningKeyID  string
	KeyExpiresAt  time.Time
	Scopes        []string
}

// CreateRequest describes a new organisation.
type CreateRequest struct {
	OrgID       string
	DisplayName string
	Scopes      []string
	IsSandbox   bool
	KeyTTL      time.Duration
}
