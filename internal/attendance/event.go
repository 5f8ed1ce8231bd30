package attendance

import (
	"context"
	"time"
)

// EventType classifies attendance feed events.
type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
	EventForgotten EventType = "forgotten"
)

// Event is published to the feed whenever the ledger changes, so
// downstream reporting can follow along without polling.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	EntryUUID string    `json:"entry_uuid"`
	At        time.Time `json:"at"`
}

// EventPublisher delivers events to the feed. Delivery is best-effort;
// ledger mutations never roll back on publish failure.
type EventPublisher interface {
	PublishEvent(ctx context.Context, evt Event) error
}
