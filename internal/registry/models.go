package registry

import (
	"time"

	"ledgerid/internal/did"
	"ledgerid/internal/vc"
)

// Receipt describes a published message. Confirmed is false when the echo
// did not arrive within the confirmation timeout; the message may still be
// ordered later.
type Receipt struct {
	TransactionID      string
	Confirmed          bool
	ConsensusTimestamp time.Time
	SequenceNumber     uint64
}

// DIDReceipt is returned by the DID lifecycle operations.
type DIDReceipt struct {
	Receipt
	DID      string
	Document *did.Document
}

// DIDResolution is the current state of a DID.
type DIDResolution struct {
	DID         string
	Document    *did.Document
	Operation   did.Operation
	Deactivated bool
	// CreatedAt is zero when the create message is not part of the history.
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SequenceNumber uint64
	FromCache      bool
}

// StatusResolution is the current status of a credential.
type StatusResolution struct {
	CredentialHash string
	Status         vc.Status
	Operation      vc.Operation
	IssuedAt       time.Time
	UpdatedAt      time.Time
	SequenceNumber uint64
	FromCache      bool

	envelope *vc.Envelope
}

// Verification is the outcome of VerifyCredential. Valid is true only when
// Reasons is empty.
type Verification struct {
	CredentialHash string
	Issuer         *DIDResolution
	Status         *StatusResolution
	Valid          bool
	Reasons        []string
}
