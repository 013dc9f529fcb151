package token

import (
	"time"
)

// Status is the stored lifecycle state of a refresh token record.
//
// Active tokens may rotate into a successor exactly once. Rotated and
// Revoked are terminal. Expiry is never stored: it is derived from
// ExpiresAt at read time so writer and reader clocks cannot disagree
// about a persisted state.
type Status string

const (
	// StatusActive marks the single usable token of a family.
	StatusActive Status = "active"
	// StatusRotated marks a token consumed by a successful rotation.
	StatusRotated Status = "rotated"
	// StatusRevoked marks a token invalidated by logout or replay escalation.
	StatusRevoked Status = "revoked"
)

// DeviceContext is opaque client metadata captured at issuance. It is
// carried for audit only and never participates in authorization
// decisions.
type DeviceContext struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
}

// Record is one refresh token as persisted by a [Store].
//
// TokenID is the primary key and is never reused. FamilyID ties together
// every token minted by successive rotations of one login; it is assigned
// at family creation and immutable afterwards. ReplacedBy is set exactly
// when Status is StatusRotated and points at the successor, forming a
// singly linked lineage chain.
//
// SecretHash is the SHA-256 of the bearer secret half of the wire token.
// The secret itself is never persisted, so a copy of the store cannot be
// turned into usable refresh tokens.
type Record struct {
	TokenID    string
	SubjectID  string
	FamilyID   string
	Status     Status
	SecretHash [32]byte
	IssuedAt   int64
	ExpiresAt  int64
	RevokedAt  int64
	ReplacedBy string
	Device     DeviceContext
}

// ExpiredAt reports whether the record's lifetime has elapsed at now.
// An expired record may still carry StatusActive; expiry is a read-time
// classification, not a stored transition.
func (r *Record) ExpiredAt(now time.Time) bool {
	return now.Unix() >= r.ExpiresAt
}

// Clone returns a deep copy so callers cannot mutate store-owned state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
