// Package notify broadcasts policy-set changes to an external channel.
// Delivery is fire-and-forget: no acknowledgement, no retry, and a failed
// publish never fails the mutation that triggered it.
package notify

import (
	"context"
	"time"
)

type Event string

const (
	EventPolicyCreated Event = "created"
	EventPolicyUpdated Event = "updated"
	EventPolicyDeleted Event = "deleted"
)

// Notifier is invoked after a successful create/update/delete so listeners
// learn that a practitioner's effective policy set changed.
type Notifier interface {
	PolicyChanged(ctx context.Context, event Event, practitionerID string, payload any)
}

// Nop discards all notifications. Used when no channel is configured.
type Nop struct{}

func (Nop) PolicyChanged(context.Context, Event, string, any) {}

// envelope is the wire format published to the channel.
type envelope struct {
	Event          Event     `json:"event"`
	PractitionerID string    `json:"practitionerId"`
	Payload        any       `json:"payload,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
