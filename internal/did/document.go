package did

import (
	"encoding/json"
	"errors"
	"fmt"

	"ledgerid/internal/platform/crypto"
	"ledgerid/pkg/domain"
)

// DIDContext is the JSON-LD context of generated documents.
const DIDContext = "https://www.w3.org/ns/did/v1"

// RootKeyType is the verification method type of the root key.
const RootKeyType = "Ed25519VerificationKey2018"

var errRootKeyMissing = errors.New("did document has no root key")

// Document is the subset of a DID document needed to verify messages. Unknown
// members are preserved by callers that keep the original bytes.
type Document struct {
	Context            any                  `json:"@context,omitempty"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	// PublicKey is the pre-2020 spelling of VerificationMethod.
	PublicKey      []VerificationMethod `json:"publicKey,omitempty"`
	Authentication []string             `json:"authentication,omitempty"`
}

// VerificationMethod is a public key entry of a DID document.
type VerificationMethod struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Controller      string `json:"controller,omitempty"`
	PublicKeyBase58 string `json:"publicKeyBase58"`
}

// NewDocument builds the minimal document for a DID controlled by root.
func NewDocument(id domain.DID, root crypto.PublicKey) *Document {
	rootID := id.RootKeyID()
	return &Document{
		Context: DIDContext,
		ID:      id.String(),
		VerificationMethod: []VerificationMethod{{
			ID:              rootID,
			Type:            RootKeyType,
			Controller:      id.String(),
			PublicKeyBase58: root.Base58(),
		}},
		Authentication: []string{rootID},
	}
}

// ParseDocument decodes a DID document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse did document: %w", err)
	}
	if doc.ID == "" {
		return nil, errors.New("did document has no id")
	}
	return &doc, nil
}

// Bytes serializes the document.
func (d *Document) Bytes() ([]byte, error) {
	return json.Marshal(d)
}

// RootKey returns the key of the #did-root-key verification method.
func (d *Document) RootKey() (crypto.PublicKey, error) {
	want := d.ID + "#" + domain.RootKeyFragment
	methods := append(append([]VerificationMethod{}, d.VerificationMethod...), d.PublicKey...)
	for _, vm := range methods {
		if vm.ID != want {
			continue
		}
		if vm.Type != RootKeyType {
			return nil, fmt.Errorf("root key has unsupported type %q", vm.Type)
		}
		return crypto.ParsePublicKeyBase58(vm.PublicKeyBase58)
	}
	return nil, errRootKeyMissing
}
