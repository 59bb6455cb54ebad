// Package vc implements the Credential-Status payload: issue, suspend, resume
// and revoke messages keyed by a credential hash and signed by the issuer.
package vc

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"ledgerid/internal/message"
)

// Operation is a credential status transition.
type Operation string

const (
	OperationIssue   Operation = "issue"
	OperationSuspend Operation = "suspend"
	OperationResume  Operation = "resume"
	OperationRevoke  Operation = "revoke"
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	switch o {
	case OperationIssue, OperationSuspend, OperationResume, OperationRevoke:
		return true
	}
	return false
}

// Status is the credential status implied by the last accepted operation.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
)

// StatusOf maps an operation to the status it leaves the credential in.
func StatusOf(op Operation) Status {
	switch op {
	case OperationIssue, OperationResume:
		return StatusActive
	case OperationSuspend:
		return StatusSuspended
	case OperationRevoke:
		return StatusRevoked
	}
	return StatusUnknown
}

// StatusMessage is the Credential-Status payload.
type StatusMessage struct {
	Operation      Operation `json:"operation"`
	CredentialHash string    `json:"credentialHash"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewStatusMessage builds a payload stamped with the current client time.
func NewStatusMessage(op Operation, credentialHash string) *StatusMessage {
	return &StatusMessage{
		Operation:      op,
		CredentialHash: credentialHash,
		Timestamp:      message.NewTimestamp(),
	}
}

func (m *StatusMessage) Subject() string { return m.CredentialHash }
func (m *StatusMessage) Initial() bool   { return m.Operation == OperationIssue }
func (m *StatusMessage) Terminal() bool  { return m.Operation == OperationRevoke }

// Validate checks the payload is complete.
func (m *StatusMessage) Validate() error {
	var problems []error
	if !m.Operation.Valid() {
		problems = append(problems, fmt.Errorf("unknown operation %q", m.Operation))
	}
	if m.CredentialHash == "" {
		problems = append(problems, errors.New("credential hash is missing"))
	}
	if m.Timestamp.IsZero() {
		problems = append(problems, errors.New("timestamp is missing"))
	}
	return errors.Join(problems...)
}

// Envelope is an envelope carrying a credential status message.
type Envelope = message.Envelope[*StatusMessage]

// Entry is the resolved status of one credential.
type Entry = message.Entry[*StatusMessage]

// HashInput is the subset of a verifiable credential that identifies it on
// the status topic. Claims never enter the hash.
type HashInput struct {
	ID           string    `json:"id"`
	Type         []string  `json:"type"`
	Issuer       string    `json:"issuer"`
	IssuanceDate time.Time `json:"issuanceDate"`
}

// Hash returns the base58 SHA-256 of the hash input's JSON form.
func (h HashInput) Hash() (string, error) {
	if h.ID == "" || h.Issuer == "" || h.IssuanceDate.IsZero() {
		return "", errors.New("credential id, issuer and issuance date are required")
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("serialize credential hash input: %w", err)
	}
	sum := sha256.Sum256(data)
	return base58.Encode(sum[:]), nil
}

// EntryStatus returns the status a resolved entry leaves the credential in.
// Credentials without any accepted message are StatusUnknown.
func EntryStatus(e *Entry) Status {
	if e == nil || e.Payload == nil {
		return StatusUnknown
	}
	return StatusOf(e.Payload.Operation)
}
