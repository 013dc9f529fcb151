// Package events defines the domain events the engine publishes and the
// transports that carry them to other services.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published by the engine.
const (
	TypeUserLoggedIn     = "auth.user.logged_in"
	TypeUserLoggedOut    = "auth.user.logged_out"
	TypeUserLoggedOutAll = "auth.user.logged_out_all"
	TypeLoginFailed      = "auth.login.failed"
	TypeTokenRefreshed   = "auth.token.refreshed"
	TypeTokenRevoked     = "auth.token.revoked"
)

// Metadata travels with every event: identity, ordering hints, and the
// producing service.
type Metadata struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Source        string    `json:"source"`
}

// Event is an immutable record of something that happened in the token
// lifecycle. Data carries event-specific facts only; it never contains
// secrets or token material.
type Event struct {
	EventType string            `json:"event_type"`
	Metadata  Metadata          `json:"metadata"`
	SubjectID string            `json:"subject_id,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// New builds an event with fresh metadata stamped at now.
func New(eventType, source, subjectID string, now time.Time, data map[string]string) Event {
	return Event{
		EventType: eventType,
		Metadata: Metadata{
			EventID:   uuid.NewString(),
			Timestamp: now.UTC(),
			Version:   "1.0",
			Source:    source,
		},
		SubjectID: subjectID,
		Data:      data,
	}
}

// Publisher delivers events to an external transport. Implementations
// must tolerate concurrent Publish calls.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoOpPublisher discards every event. It is the default when no transport
// is configured.
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(context.Context, Event) error { return nil }
func (NoOpPublisher) Close() error                         { return nil }
