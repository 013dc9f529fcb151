package authcore

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned by Login for any credential
	// failure: unknown identifier, wrong password, inactive subject. The
	// cases are deliberately indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid is returned for any refresh or access token that
	// cannot be accepted and has no more specific public classification.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when a structurally valid token's
	// lifetime has elapsed.
	ErrTokenExpired = errors.New("token expired")
	// ErrStoreUnavailable wraps backend infrastructure failures so callers
	// can retry instead of treating them as credential outcomes.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a
	// nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// The following errors all satisfy errors.Is(err, ErrTokenInvalid), so
// callers that only branch on the public taxonomy see a single invalid
// class while audit logs and tests can still tell them apart.
var (
	// ErrReplayDetected is returned when a rotated or revoked refresh
	// token is presented again. By the time the caller sees it, the whole
	// family is revoked.
	ErrReplayDetected = fmt.Errorf("%w: replay detected", ErrTokenInvalid)
	// ErrTokenSignature is returned for access tokens whose signature does
	// not verify.
	ErrTokenSignature = fmt.Errorf("%w: signature mismatch", ErrTokenInvalid)
	// ErrTokenMalformed is returned for tokens that do not parse at all.
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrTokenInvalid)
)

// ErrSubjectNotFound is the sentinel a [UserProvider] returns from
// LookupCredential when no subject matches the identifier. Login maps it
// to [ErrInvalidCredentials] after a dummy hash verification, so unknown
// and known identifiers take the same time.
var ErrSubjectNotFound = errors.New("subject not found")

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
