package did

import (
	"errors"
	"fmt"

	"ledgerid/internal/message"
	"ledgerid/internal/transport"
	"ledgerid/pkg/domain"
)

// Validator returns the validity rule for DID messages on topicID:
//   - the DID parses and is anchored on topicID
//   - the embedded document describes that DID and carries a root key
//   - the DID's id string is derived from that root key
//   - the envelope is signed by that root key
func Validator(topicID string) message.Validator[*Message] {
	return func(env *Envelope, m *Message, _ transport.Message) error {
		id, err := domain.ParseDID(m.DID)
		if err != nil {
			return err
		}
		if id.TopicID != topicID {
			return fmt.Errorf("did is anchored on topic %s, not %s", id.TopicID, topicID)
		}
		raw, err := m.Document()
		if err != nil {
			return err
		}
		doc, err := ParseDocument(raw)
		if err != nil {
			return err
		}
		if doc.ID != m.DID {
			return fmt.Errorf("did document id %q does not match did", doc.ID)
		}
		root, err := doc.RootKey()
		if err != nil {
			return err
		}
		if !id.ControlledBy(root) {
			return errors.New("did is not derived from the document root key")
		}
		if !env.IsSignatureValid(func(*Envelope) message.PublicKey { return root }) {
			return errors.New("signature is invalid")
		}
		return nil
	}
}
