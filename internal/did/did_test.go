package did

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ledgerid/internal/message"
	"ledgerid/internal/platform/crypto"
	"ledgerid/internal/transport"
	"ledgerid/internal/transport/memory"
	"ledgerid/pkg/domain"
)

const topic = "0.0.2001"

type DIDSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	network *memory.Network
	root    crypto.PrivateKey
	id      domain.DID
	doc     []byte
	logger  message.Option
}

func TestDIDSuite(t *testing.T) {
	suite.Run(t, new(DIDSuite))
}

func (s *DIDSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Second)
	s.network = memory.New()
	s.logger = message.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var err error
	s.root, err = crypto.GenerateKey()
	s.Require().NoError(err)
	s.id = domain.DeriveDID("testnet", topic, s.root.Public())
	s.doc, err = NewDocument(s.id, s.root.Public()).Bytes()
	s.Require().NoError(err)
}

func (s *DIDSuite) TearDownTest() {
	s.cancel()
}

func (s *DIDSuite) submit(msg *Message, signer crypto.PrivateKey, opts ...message.Option) {
	opts = append(opts, s.logger)
	_, err := NewTransaction(topic, msg, signer.Sign, nil, opts...).Execute(s.ctx, s.network)
	s.Require().NoError(err)
}

func (s *DIDSuite) resolve(opts ...message.Option) *Entry {
	opts = append(opts, s.logger, message.WithIdleTimeout(50*time.Millisecond))
	resolver := NewResolver(topic, []string{s.id.String()}, func(map[string]*Entry) {}, opts...)
	s.Require().NoError(resolver.Execute(s.ctx, s.network))
	results, err := resolver.Wait(s.ctx)
	s.Require().NoError(err)
	return results[s.id.String()]
}

func (s *DIDSuite) TestWireFormat() {
	msg := NewMessage(OperationCreate, s.id.String(), s.doc)
	data, err := message.Wrap(msg).Sign(s.root.Sign)
	s.Require().NoError(err)

	s.Contains(string(data), `"operation":"create"`)
	s.Contains(string(data), `"did":"`+s.id.String()+`"`)
	s.Contains(string(data), `"didDocumentBase64":"`)
	s.Contains(string(data), `"timestamp":"`)
}

func (s *DIDSuite) TestDocument() {
	doc, err := ParseDocument(s.doc)
	s.Require().NoError(err)
	s.Equal(s.id.String(), doc.ID)

	root, err := doc.RootKey()
	s.Require().NoError(err)
	s.Equal(s.root.Public(), root)

	s.Run("legacy publicKey member", func() {
		legacy := &Document{ID: doc.ID, PublicKey: doc.VerificationMethod}
		key, err := legacy.RootKey()
		s.Require().NoError(err)
		s.Equal(s.root.Public(), key)
	})

	s.Run("missing root key", func() {
		_, err := (&Document{ID: doc.ID}).RootKey()
		s.Error(err)
	})
}

func (s *DIDSuite) TestLifecycle() {
	s.submit(NewMessage(OperationCreate, s.id.String(), s.doc), s.root)
	entry := s.resolve()
	s.Require().NotNil(entry)
	s.Equal(OperationCreate, entry.Payload.Operation)
	s.False(entry.CreatedAt().IsZero())

	s.submit(NewMessage(OperationUpdate, s.id.String(), s.doc), s.root)
	entry = s.resolve()
	s.Require().NotNil(entry)
	s.Equal(OperationUpdate, entry.Payload.Operation)

	s.submit(NewMessage(OperationDelete, s.id.String(), s.doc), s.root)
	s.submit(NewMessage(OperationUpdate, s.id.String(), s.doc), s.root)
	entry = s.resolve()
	s.Require().NotNil(entry)
	s.Equal(OperationDelete, entry.Payload.Operation)
}

func (s *DIDSuite) TestEncryptedLifecycle() {
	cipher, err := crypto.NewFieldCipher(crypto.KeyFromSecret([]byte("shared secret")))
	s.Require().NoError(err)
	crypter := message.WithCrypter(cipher.Encrypt, cipher.Decrypt)

	s.submit(NewMessage(OperationCreate, s.id.String(), s.doc), s.root, crypter)

	published := s.network.Messages(topic)
	s.Require().Len(published, 1)
	s.NotContains(string(published[0].Contents), s.id.String())

	s.Run("readable with the shared key", func() {
		entry := s.resolve(message.WithDecrypter(cipher.Decrypt))
		s.Require().NotNil(entry)
		s.Equal(s.id.String(), entry.Payload.DID)
	})

	s.Run("rejected without a decrypter", func() {
		reasons := make(chan string, 1)
		entry := s.resolve(message.WithInvalidMessageHandler(func(_ transport.Message, reason string) {
			reasons <- reason
		}))
		s.Nil(entry)
		s.Equal(message.ErrDecrypterRequired.Error(), <-reasons)
	})
}

func (s *DIDSuite) TestConfirmation() {
	confirmed := make(chan *Envelope, 1)
	tx := NewTransaction(topic, NewMessage(OperationCreate, s.id.String(), s.doc), s.root.Sign,
		func(env *Envelope) { confirmed <- env }, s.logger)
	_, err := tx.Execute(s.ctx, s.network)
	s.Require().NoError(err)

	select {
	case env := <-confirmed:
		s.Equal(uint64(1), env.SequenceNumber())
	case <-time.After(time.Second):
		s.FailNow("did message was not confirmed")
	}
}

func (s *DIDSuite) TestSignedTransaction() {
	env := message.Wrap(NewMessage(OperationCreate, s.id.String(), s.doc))
	_, err := env.Sign(s.root.Sign)
	s.Require().NoError(err)

	_, err = NewSignedTransaction(topic, env, nil, s.logger).Execute(s.ctx, s.network)
	s.Require().NoError(err)
	s.NotNil(s.resolve())
}

func (s *DIDSuite) TestValidator() {
	other, err := crypto.GenerateKey()
	s.Require().NoError(err)
	otherID := domain.DeriveDID("testnet", topic, other.Public())
	otherDoc, err := NewDocument(otherID, other.Public()).Bytes()
	s.Require().NoError(err)
	foreign := domain.DeriveDID("testnet", "0.0.9999", s.root.Public())
	foreignDoc, err := NewDocument(foreign, s.root.Public()).Bytes()
	s.Require().NoError(err)
	// Document names the DID but its root key belongs to someone else.
	hijacked, err := NewDocument(s.id, other.Public()).Bytes()
	s.Require().NoError(err)

	cases := []struct {
		name   string
		msg    *Message
		signer crypto.PrivateKey
		reason string
	}{
		{"valid", NewMessage(OperationCreate, s.id.String(), s.doc), s.root, ""},
		{"signed by another key", NewMessage(OperationCreate, s.id.String(), s.doc), other, "signature is invalid"},
		{"document for another did", NewMessage(OperationCreate, s.id.String(), otherDoc), s.root, "does not match did"},
		{"anchored on another topic", NewMessage(OperationCreate, foreign.String(), foreignDoc), s.root, "anchored on topic"},
		{"root key does not derive did", NewMessage(OperationUpdate, s.id.String(), hijacked), other, "not derived from the document root key"},
		{"malformed did", NewMessage(OperationCreate, "did:hedera:testnet:nope", s.doc), s.root, "invalid did"},
	}

	validate := Validator(topic)
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, data := s.sign(tc.msg, tc.signer)
			env, err := message.Decode[*Message](data)
			s.Require().NoError(err)

			err = validate(env, env.Payload(), transport.Message{})
			if tc.reason == "" {
				s.NoError(err)
				return
			}
			s.ErrorContains(err, tc.reason)
		})
	}
}

func (s *DIDSuite) sign(msg *Message, key crypto.PrivateKey) (*Envelope, []byte) {
	env := message.Wrap(msg)
	data, err := env.Sign(key.Sign)
	s.Require().NoError(err)
	return env, data
}

func (s *DIDSuite) TestMessageValidate() {
	s.NoError(NewMessage(OperationCreate, s.id.String(), s.doc).Validate())

	err := (&Message{Operation: "rotate"}).Validate()
	s.ErrorContains(err, `unknown operation "rotate"`)
	s.ErrorContains(err, "did is missing")
	s.ErrorContains(err, "did document is missing")
	s.ErrorContains(err, "timestamp is missing")
}
