package authcore

import (
	"context"
	"io"

	internalaudit "github.com/flowforward/authcore/internal/audit"
)

// UserProvider is the interface callers implement to connect the engine
// to their user database. The engine never writes credentials except
// through UpdatePasswordHash, which is only invoked when
// [PasswordConfig.UpgradeOnLogin] is set.
type UserProvider interface {
	// LookupCredential resolves an identifier to its credential record,
	// or returns [ErrSubjectNotFound].
	LookupCredential(ctx context.Context, identifier string) (CredentialRecord, error)

	// SubjectActive reports whether the subject may currently hold
	// tokens. Called on refresh only when RecheckSubjectOnRefresh is set.
	SubjectActive(ctx context.Context, subjectID string) (bool, error)

	// UpdatePasswordHash replaces the stored hash after a transparent
	// cost-parameter upgrade.
	UpdatePasswordHash(ctx context.Context, subjectID string, newHash string) error
}

// CredentialRecord is the subject state returned by [UserProvider].
type CredentialRecord struct {
	SubjectID    string
	Identifier   string
	PasswordHash string
	Active       bool
}

// TokenPair is returned by Login and Refresh: a signed access token plus
// the opaque single-use refresh token that replaces the one presented.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's async
// dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events, one
// per line, to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
