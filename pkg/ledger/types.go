// Package ledger implements the verifiable event ledger: signed business
// events chained into a tamper-evident sequence per (user, organisation).
//
//   - Every event is HMAC-signed with the owning organisation's key.
//   - Events on the same chain key form a singly linked hash chain:
//     each event's previousEventHash equals the prior event's eventHash
//     and blockIndex increases by exactly one per step.
//   - Chains are identified by (userId, orgId), not globally; different
//     organisations acting on the same user maintain independent chains.
package ledger

import (
	"errors"
	"time"
)

// EventType is the closed set of ledger event categories.
type EventType string

const (
	EventLogIngested           EventType = "LOG_INGESTED"
	EventVerificationRequested EventType = "VERIFICATION_REQUESTED"
	EventVerificationResponded EventType = "VERIFICATION_RESPONDED"
	EventBundleSealed          EventType = "DOCUMENTATION_BUNDLE_SEALED"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventLogIngested, EventVerificationRequested, EventVerificationResponded, EventBundleSealed:
		return true
	}
	return false
}

// ChainKey identifies one independent hash chain.
type ChainKey struct {
	UserID string
	OrgID  string
}

// Event is an immutable record of something that happened. JSON field names
// are part of the wire and hashing contract; the canonical package's
// exclusion constants refer to them.
type Event struct {
	EventID        string    `json:"eventId"`
	EventType      EventType `json:"eventType"`
	UserID         string    `json:"userId"`
	OrgID          string    `json:"orgId"`
	RecipientOrgID string    `json:"recipientOrgId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`

	// Type-specific payload fields.
	LogID              string `json:"logId,omitempty"`
	LogType            string `json:"logType,omitempty"`
	EntryCount         int    `json:"entryCount,omitempty"`
	VerificationClaim  string `json:"verificationClaim,omitempty"`
	VerificationResult string `json:"verificationResult,omitempty"`
	BundleHash         string `json:"bundleHash,omitempty"`
	SnapshotHash       string `json:"snapshotHash,omitempty"`

	SigningKeyID string `json:"signingKeyId"`
	Signature    string `json:"signature"`

	// Chain linkage. PreviousEventHash is empty only for a chain's first
	// event; BlockIndex starts at 1.
	PreviousEventHash string `json:"previousEventHash,omitempty"`
	EventHash         string `json:"eventHash"`
	BlockIndex        uint64 `json:"blockIndex"`
}

// Key returns the event's chain key.
func (e *Event) Key() ChainKey {
	return ChainKey{UserID: e.UserID, OrgID: e.OrgID}
}

// Sentinel errors for the append flow. ErrChainLookup is deliberately
// distinct from ErrNotFound: "no prior event" starts a new chain,
// "lookup failed" must abort the append or the chain silently forks.
var (
	ErrNotFound     = errors.New("ledger: not found")
	ErrKeyNotFound  = errors.New("ledger: signing key not found")
	ErrKeyExpired   = errors.New("ledger: signing key expired")
	ErrChainLookup  = errors.New("ledger: chain head lookup failed")
	ErrInvalidEvent = errors.New("ledger: invalid event")
)
