package vc

import (
	"errors"

	"ledgerid/internal/message"
	"ledgerid/internal/transport"
)

// KeyProvider returns the issuer keys allowed to change the status of a
// credential. The keys are registered out of band, e.g. from the issuer's
// resolved DID document.
type KeyProvider func(credentialHash string) []message.PublicKey

// StaticKeys trusts the same issuer keys for every credential.
func StaticKeys(keys ...message.PublicKey) KeyProvider {
	return func(string) []message.PublicKey {
		return keys
	}
}

// Validator returns the validity rule for status messages: the envelope must
// be signed by one of the keys the provider registers for the credential.
func Validator(keys KeyProvider) message.Validator[*StatusMessage] {
	return func(env *Envelope, m *StatusMessage, _ transport.Message) error {
		if keys == nil {
			return errors.New("no issuer key provider configured")
		}
		candidates := keys(m.CredentialHash)
		if len(candidates) == 0 {
			return errors.New("no issuer key registered for credential")
		}
		for _, key := range candidates {
			if env.IsSignatureValid(func(*Envelope) message.PublicKey { return key }) {
				return nil
			}
		}
		return errors.New("signature is invalid")
	}
}
