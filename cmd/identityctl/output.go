package main

import (
	"encoding/json"
	"time"

	"github.com/urfave/cli/v2"

	"ledgerid/internal/registry"
)

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type receiptOutput struct {
	TransactionID      string     `json:"transaction_id"`
	Confirmed          bool       `json:"confirmed"`
	ConsensusTimestamp *time.Time `json:"consensus_timestamp,omitempty"`
	SequenceNumber     uint64     `json:"sequence_number,omitempty"`
	DID                string     `json:"did,omitempty"`
	CredentialHash     string     `json:"credential_hash,omitempty"`
}

func toReceiptOutput(r registry.Receipt) receiptOutput {
	out := receiptOutput{
		TransactionID:  r.TransactionID,
		Confirmed:      r.Confirmed,
		SequenceNumber: r.SequenceNumber,
	}
	if !r.ConsensusTimestamp.IsZero() {
		ts := r.ConsensusTimestamp
		out.ConsensusTimestamp = &ts
	}
	return out
}

type didOutput struct {
	DID            string    `json:"did"`
	Operation      string    `json:"operation"`
	Deactivated    bool      `json:"deactivated"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
	UpdatedAt      time.Time `json:"updated_at"`
	SequenceNumber uint64    `json:"sequence_number"`
	FromCache      bool      `json:"from_cache"`
	Document       any       `json:"document"`
}

func toDIDOutput(r *registry.DIDResolution) didOutput {
	return didOutput{
		DID:            r.DID,
		Operation:      string(r.Operation),
		Deactivated:    r.Deactivated,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		SequenceNumber: r.SequenceNumber,
		FromCache:      r.FromCache,
		Document:       r.Document,
	}
}

type statusOutput struct {
	CredentialHash string    `json:"credential_hash"`
	Status         string    `json:"status"`
	Operation      string    `json:"operation,omitempty"`
	IssuedAt       time.Time `json:"issued_at,omitzero"`
	UpdatedAt      time.Time `json:"updated_at,omitzero"`
	SequenceNumber uint64    `json:"sequence_number,omitempty"`
	FromCache      bool      `json:"from_cache"`
}

func toStatusOutput(r *registry.StatusResolution) statusOutput {
	return statusOutput{
		CredentialHash: r.CredentialHash,
		Status:         string(r.Status),
		Operation:      string(r.Operation),
		IssuedAt:       r.IssuedAt,
		UpdatedAt:      r.UpdatedAt,
		SequenceNumber: r.SequenceNumber,
		FromCache:      r.FromCache,
	}
}

type verificationOutput struct {
	CredentialHash string        `json:"credential_hash"`
	Valid          bool          `json:"valid"`
	Reasons        []string      `json:"reasons,omitempty"`
	Issuer         *didOutput    `json:"issuer,omitempty"`
	Status         *statusOutput `json:"status,omitempty"`
}

func toVerificationOutput(v *registry.Verification) verificationOutput {
	out := verificationOutput{
		CredentialHash: v.CredentialHash,
		Valid:          v.Valid,
		Reasons:        v.Reasons,
	}
	if v.Issuer != nil {
		issuer := toDIDOutput(v.Issuer)
		out.Issuer = &issuer
	}
	if v.Status != nil {
		status := toStatusOutput(v.Status)
		out.Status = &status
	}
	return out
}
