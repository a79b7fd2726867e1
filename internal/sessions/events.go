package sessions

import (
	"context"
	"time"
)

type EventType string

const (
	EventSessionPruned      EventType = "session.pruned"
	EventSessionInvalidated EventType = "session.invalidated"
	EventSessionLoggedOut   EventType = "session.logged_out"
	EventSessionRevoked     EventType = "session.revoked"
)

// Event describes one session record leaving a principal's list.
type Event struct {
	Type             EventType `json:"type"`
	PrincipalID      string    `json:"principalId"`
	SessionID        string    `json:"sessionId"`
	CurrentSessionID string    `json:"currentSessionId,omitempty"`
	SourceAddress    string    `json:"sourceAddress,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// EventRecorder receives session events. Recording is best effort and must
// not fail the request that produced the event.
type EventRecorder interface {
	Record(ctx context.Context, event Event)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) {}
