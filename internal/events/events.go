// Package events publishes session lifecycle events for downstream consumers
// such as audit or security alerting.
package events

import (
	"context"
	"time"
)

// Kind names a session lifecycle transition.
type Kind string

const (
	KindLogin         Kind = "login"
	KindRefresh       Kind = "refresh"
	KindLogout        Kind = "logout"
	KindRefreshReused Kind = "refresh_reused"
)

// Event is the JSON body placed on the queue.
type Event struct {
	Kind        Kind      `json:"kind"`
	PrincipalID string    `json:"principalId"`
	RequestID   string    `json:"requestId,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Publisher delivers events. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }
