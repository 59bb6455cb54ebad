// Package audit records every publish and resolve the registry performs.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names an audited registry operation.
type Action string

const (
	ActionDIDRegistered       Action = "did_registered"
	ActionDIDUpdated          Action = "did_updated"
	ActionDIDDeleted          Action = "did_deleted"
	ActionDIDResolved         Action = "did_resolved"
	ActionCredentialIssued    Action = "credential_issued"
	ActionCredentialSuspended Action = "credential_suspended"
	ActionCredentialResumed   Action = "credential_resumed"
	ActionCredentialRevoked   Action = "credential_revoked"
	ActionStatusChecked       Action = "credential_status_checked"
	ActionCredentialVerified  Action = "credential_verified"
)

// Mutating reports whether the action publishes to a topic. Mutating actions
// are audited fail-closed; reads are best effort.
func (a Action) Mutating() bool {
	switch a {
	case ActionDIDResolved, ActionStatusChecked, ActionCredentialVerified:
		return false
	}
	return true
}

// Outcome is the result of an audited operation.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Event is one audit record.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	Action    Action
	// Subject is the DID or credential hash acted on.
	Subject       string
	TopicID       string
	TransactionID string
	Outcome       Outcome
	// Detail carries the failure reason or the resolved state.
	Detail string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// BatchStore is implemented by stores that can persist several events in one
// round trip. The worker uses it to flush its queue on shutdown.
type BatchStore interface {
	AppendBatch(ctx context.Context, events []Event) error
}
