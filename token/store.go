package token

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a token id.
	ErrNotFound = errors.New("token not found")
	// ErrConflict is returned when Create collides on an existing token id.
	ErrConflict = errors.New("token id conflict")
	// ErrRotationConflict is returned when the rotation target is no longer
	// active, meaning a concurrent rotation or a revocation won the race.
	ErrRotationConflict = errors.New("token rotation conflict")
	// ErrExpired is returned when the rotation target's lifetime has
	// elapsed. The stored record is left untouched.
	ErrExpired = errors.New("token expired")
	// ErrSecretMismatch is returned when the presented secret hash does not
	// match the stored one for an otherwise rotatable record.
	ErrSecretMismatch = errors.New("token secret mismatch")
	// ErrUnavailable wraps backend failures (I/O, timeout, protocol) so
	// callers can distinguish infrastructure faults from token outcomes.
	ErrUnavailable = errors.New("token store unavailable")
)

// Store is the persistence contract for refresh token records.
//
// CompareAndRotate is the single synchronization point of the rotation
// protocol: implementations must execute it as one indivisible
// read-modify-write against shared state, or concurrent refreshes on the
// same token could both succeed. Everything else is plain keyed access
// plus two fan-out revocations over the family and subject indexes.
//
// Stores never delete records; expired rows are reaped by PurgeExpired,
// which is operator housekeeping and is never called on a request path.
type Store interface {
	// Create inserts rec with StatusActive. Fails with ErrConflict if the
	// token id already exists.
	Create(ctx context.Context, rec *Record) error

	// Get returns the record for tokenID or ErrNotFound.
	Get(ctx context.Context, tokenID string) (*Record, error)

	// CompareAndRotate atomically consumes the record under tokenID and
	// inserts successor in its family. The target must be StatusActive,
	// unexpired at now, and carry a secret hash equal to providedHash;
	// on success it becomes StatusRotated with ReplacedBy set to the
	// successor's id, and the stored successor is returned.
	//
	// Failure modes: ErrNotFound, ErrExpired (target untouched),
	// ErrRotationConflict (target already rotated or revoked),
	// ErrSecretMismatch (target untouched).
	CompareAndRotate(ctx context.Context, tokenID string, providedHash [32]byte, successor *Record, now time.Time) (*Record, error)

	// Revoke sets the record to StatusRevoked. Revoking an already revoked
	// record is a no-op, not an error. Missing records yield ErrNotFound.
	Revoke(ctx context.Context, tokenID string, now time.Time) error

	// RevokeFamily revokes every non-revoked record in a family and
	// returns how many records it transitioned.
	RevokeFamily(ctx context.Context, familyID string, now time.Time) (int, error)

	// RevokeAllForSubject revokes every non-revoked record across all
	// families owned by subjectID and returns the transition count.
	RevokeAllForSubject(ctx context.Context, subjectID string, now time.Time) (int, error)

	// PurgeExpired removes records whose lifetime elapsed before now and
	// returns how many were dropped.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
