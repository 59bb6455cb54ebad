// Package did implements the Identity-Update payload: DID create, update and
// delete messages carrying a base64 DID document, with their validity rule and
// typed listener, resolver and transaction constructors.
package did

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"ledgerid/internal/message"
)

// Operation is a DID lifecycle operation.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Message is the Identity-Update payload.
type Message struct {
	Operation         Operation `json:"operation"`
	DID               string    `json:"did"`
	DIDDocumentBase64 string    `json:"didDocumentBase64"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewMessage builds a payload stamped with the current client time.
func NewMessage(op Operation, did string, document []byte) *Message {
	return &Message{
		Operation:         op,
		DID:               did,
		DIDDocumentBase64: base64.StdEncoding.EncodeToString(document),
		Timestamp:         message.NewTimestamp(),
	}
}

func (m *Message) Subject() string { return m.DID }
func (m *Message) Initial() bool   { return m.Operation == OperationCreate }
func (m *Message) Terminal() bool  { return m.Operation == OperationDelete }

// Validate checks the payload is complete.
func (m *Message) Validate() error {
	var problems []error
	if !m.Operation.Valid() {
		problems = append(problems, fmt.Errorf("unknown operation %q", m.Operation))
	}
	if m.DID == "" {
		problems = append(problems, errors.New("did is missing"))
	}
	if m.DIDDocumentBase64 == "" {
		problems = append(problems, errors.New("did document is missing"))
	}
	if m.Timestamp.IsZero() {
		problems = append(problems, errors.New("timestamp is missing"))
	}
	return errors.Join(problems...)
}

// Document decodes the embedded DID document bytes.
func (m *Message) Document() ([]byte, error) {
	doc, err := base64.StdEncoding.DecodeString(m.DIDDocumentBase64)
	if err != nil {
		return nil, fmt.Errorf("decode did document: %w", err)
	}
	return doc, nil
}

// Envelope is an envelope carrying a DID message.
type Envelope = message.Envelope[*Message]

// Entry is the resolved state of one DID.
type Entry = message.Entry[*Message]
