package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	// Wire refresh token layout: 16 token id bytes followed by the secret.
	refreshSecretSize   = 32
	refreshTokenRawSize = 16 + refreshSecretSize
)

// NewTokenID returns a fresh random token id. UUIDs keep ids unique across
// processes without coordination, which the stores rely on.
func NewTokenID() string {
	return uuid.NewString()
}

// NewFamilyID returns a fresh lineage identifier, assigned once at login.
func NewFamilyID() string {
	return uuid.NewString()
}

// NewRefreshSecret returns the random bearer half of a refresh token.
func NewRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashRefreshSecret is what stores persist instead of the secret itself.
func HashRefreshSecret(secret [refreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeRefreshToken packs a token id and its secret into the opaque wire
// string handed to clients: base64url over the raw 48 bytes, no padding.
func EncodeRefreshToken(tokenID string, secret [refreshSecretSize]byte) (string, error) {
	id, err := uuid.Parse(tokenID)
	if err != nil {
		return "", err
	}

	var raw [refreshTokenRawSize]byte
	copy(raw[:16], id[:])
	copy(raw[16:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeRefreshToken splits a wire refresh token back into its token id
// and secret. Any malformed input is rejected before touching the store.
func DecodeRefreshToken(wire string) (string, [refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(wire)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != refreshTokenRawSize {
		return "", secret, errors.New("invalid refresh token size")
	}

	var id uuid.UUID
	copy(id[:], raw[:16])
	copy(secret[:], raw[16:])

	return id.String(), secret, nil
}
