package did

import (
	"encoding/base64"
	"fmt"

	"ledgerid/internal/message"
)

// EncryptWith encrypts the DID and the document independently; each
// ciphertext is carried base64 encoded in its original field.
func EncryptWith(encrypt message.Crypter) message.Transform[*Message] {
	if encrypt == nil {
		return nil
	}
	return func(m *Message) (*Message, error) {
		doc, err := m.Document()
		if err != nil {
			return nil, err
		}
		encDID, err := encrypt([]byte(m.DID))
		if err != nil {
			return nil, fmt.Errorf("encrypt did: %w", err)
		}
		encDoc, err := encrypt(doc)
		if err != nil {
			return nil, fmt.Errorf("encrypt did document: %w", err)
		}
		return &Message{
			Operation:         m.Operation,
			DID:               base64.StdEncoding.EncodeToString(encDID),
			DIDDocumentBase64: base64.StdEncoding.EncodeToString(encDoc),
			Timestamp:         m.Timestamp,
		}, nil
	}
}

// DecryptWith reverses EncryptWith.
func DecryptWith(decrypt message.Crypter) message.Transform[*Message] {
	if decrypt == nil {
		return nil
	}
	return func(m *Message) (*Message, error) {
		rawDID, err := base64.StdEncoding.DecodeString(m.DID)
		if err != nil {
			return nil, fmt.Errorf("decode encrypted did: %w", err)
		}
		rawDoc, err := base64.StdEncoding.DecodeString(m.DIDDocumentBase64)
		if err != nil {
			return nil, fmt.Errorf("decode encrypted did document: %w", err)
		}
		plainDID, err := decrypt(rawDID)
		if err != nil {
			return nil, fmt.Errorf("decrypt did: %w", err)
		}
		plainDoc, err := decrypt(rawDoc)
		if err != nil {
			return nil, fmt.Errorf("decrypt did document: %w", err)
		}
		return &Message{
			Operation:         m.Operation,
			DID:               string(plainDID),
			DIDDocumentBase64: base64.StdEncoding.EncodeToString(plainDoc),
			Timestamp:         m.Timestamp,
		}, nil
	}
}
