package vc

import (
	"encoding/base64"
	"fmt"

	"ledgerid/internal/message"
)

// EncryptWith encrypts the credential hash; the ciphertext is carried base64
// encoded in the same field.
func EncryptWith(encrypt message.Crypter) message.Transform[*StatusMessage] {
	if encrypt == nil {
		return nil
	}
	return func(m *StatusMessage) (*StatusMessage, error) {
		enc, err := encrypt([]byte(m.CredentialHash))
		if err != nil {
			return nil, fmt.Errorf("encrypt credential hash: %w", err)
		}
		return &StatusMessage{
			Operation:      m.Operation,
			CredentialHash: base64.StdEncoding.EncodeToString(enc),
			Timestamp:      m.Timestamp,
		}, nil
	}
}

// DecryptWith reverses EncryptWith.
func DecryptWith(decrypt message.Crypter) message.Transform[*StatusMessage] {
	if decrypt == nil {
		return nil
	}
	return func(m *StatusMessage) (*StatusMessage, error) {
		raw, err := base64.StdEncoding.DecodeString(m.CredentialHash)
		if err != nil {
			return nil, fmt.Errorf("decode encrypted credential hash: %w", err)
		}
		plain, err := decrypt(raw)
		if err != nil {
			return nil, fmt.Errorf("decrypt credential hash: %w", err)
		}
		return &StatusMessage{
			Operation:      m.Operation,
			CredentialHash: string(plain),
			Timestamp:      m.Timestamp,
		}, nil
	}
}
