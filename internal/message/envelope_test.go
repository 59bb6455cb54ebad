package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	"ledgerid/internal/platform/crypto"
)

type EnvelopeSuite struct {
	suite.Suite
	key crypto.PrivateKey
}

func TestEnvelopeSuite(t *testing.T) {
	suite.Run(t, new(EnvelopeSuite))
}

func (s *EnvelopeSuite) SetupTest() {
	s.key = newKey(s.T())
}

func (s *EnvelopeSuite) publicKey(*Envelope[*note]) PublicKey {
	return s.key.Public()
}

func (s *EnvelopeSuite) TestSignAndDecode() {
	s.Run("wire form carries mode, message and signature", func() {
		_, data := signed(s.T(), s.key, &note{Op: "open", Key: "k1", Body: "hello"})

		var wire map[string]json.RawMessage
		s.Require().NoError(json.Unmarshal(data, &wire))
		s.Len(wire, 3)
		s.JSONEq(`"plain"`, string(wire["mode"]))
		s.JSONEq(`{"op":"open","key":"k1","body":"hello"}`, string(wire["message"]))
		s.NotEmpty(wire["signature"])
	})

	s.Run("decoded envelope equals the signed one", func() {
		env, data := signed(s.T(), s.key, &note{Op: "edit", Key: "k1", Body: "b"})

		decoded, err := Decode[*note](data)
		s.Require().NoError(err)
		s.Equal(ModePlain, decoded.Mode())
		s.Equal(env.Signature(), decoded.Signature())
		s.Equal(env.Payload(), decoded.Payload())
		s.True(decoded.IsSignatureValid(s.publicKey))
	})

	s.Run("unsigned envelope omits signature", func() {
		data, err := Wrap(&note{Op: "open", Key: "k1"}).Bytes()
		s.Require().NoError(err)
		s.NotContains(string(data), "signature")
	})
}

func (s *EnvelopeSuite) TestSignOnce() {
	env, _ := signed(s.T(), s.key, &note{Op: "open", Key: "k1"})

	_, err := env.Sign(s.key.Sign)
	s.ErrorIs(err, ErrAlreadySigned)

	err = env.Encrypt(encryptNote)
	s.ErrorIs(err, ErrAlreadySigned)
}

func (s *EnvelopeSuite) TestSignRequiresSigner() {
	_, err := Wrap(&note{Op: "open", Key: "k1"}).Sign(nil)
	s.ErrorIs(err, ErrSignerRequired)
}

func (s *EnvelopeSuite) TestEncrypt() {
	s.Run("nil encrypter rejected", func() {
		err := Wrap(&note{Op: "open", Key: "k1"}).Encrypt(nil)
		s.ErrorIs(err, ErrEncrypterRequired)
	})

	s.Run("second encryption rejected", func() {
		env := Wrap(&note{Op: "open", Key: "k1", Body: "secret"})
		s.Require().NoError(env.Encrypt(encryptNote))
		s.ErrorIs(env.Encrypt(encryptNote), ErrAlreadyEncrypted)
	})

	s.Run("encrypted envelope needs a decrypter to open", func() {
		env := Wrap(&note{Op: "open", Key: "k1", Body: "secret"})
		s.Require().NoError(env.Encrypt(encryptNote))
		data, err := env.Sign(s.key.Sign)
		s.Require().NoError(err)

		decoded, err := Decode[*note](data)
		s.Require().NoError(err)
		s.Equal(ModeEncrypted, decoded.Mode())
		s.NotEqual("secret", decoded.Payload().Body)

		_, err = decoded.Open(nil)
		s.ErrorIs(err, ErrDecrypterRequired)

		opened, err := decoded.Open(decryptNote)
		s.Require().NoError(err)
		s.Equal("secret", opened.Body)
		s.True(decoded.IsSignatureValid(s.publicKey))
	})

	s.Run("plain envelope ignores decrypter", func() {
		env := Wrap(&note{Op: "open", Key: "k1", Body: "plain"})
		opened, err := env.Open(decryptNote)
		s.Require().NoError(err)
		s.Equal("plain", opened.Body)
	})
}

func (s *EnvelopeSuite) TestIsSignatureValid() {
	s.Run("unsigned envelope is not valid", func() {
		s.False(Wrap(&note{Op: "open", Key: "k1"}).IsSignatureValid(s.publicKey))
	})

	s.Run("other key does not verify", func() {
		other := newKey(s.T())
		env, _ := signed(s.T(), s.key, &note{Op: "open", Key: "k1"})
		s.False(env.IsSignatureValid(func(*Envelope[*note]) PublicKey { return other.Public() }))
	})

	s.Run("missing key does not verify", func() {
		env, _ := signed(s.T(), s.key, &note{Op: "open", Key: "k1"})
		s.False(env.IsSignatureValid(func(*Envelope[*note]) PublicKey { return nil }))
		s.False(env.IsSignatureValid(nil))
	})

	s.Run("tampered payload does not verify", func() {
		_, data := signed(s.T(), s.key, &note{Op: "open", Key: "k1", Body: "a"})
		var wire map[string]json.RawMessage
		s.Require().NoError(json.Unmarshal(data, &wire))
		wire["message"] = json.RawMessage(`{"op":"open","key":"k1","body":"b"}`)
		tampered, err := json.Marshal(wire)
		s.Require().NoError(err)

		decoded, err := Decode[*note](tampered)
		s.Require().NoError(err)
		s.False(decoded.IsSignatureValid(s.publicKey))
	})
}

func (s *EnvelopeSuite) TestDecodeRejectsMalformed() {
	cases := map[string]string{
		"not json":        `{{`,
		"unknown mode":    `{"mode":"zip","message":{"op":"open","key":"k"}}`,
		"missing message": `{"mode":"plain"}`,
		"null message":    `{"mode":"plain","message":null}`,
		"bad message":     `{"mode":"plain","message":"text"}`,
		"bad signature":   `{"mode":"plain","message":{"op":"open","key":"k"},"signature":"!!"}`,
		"trailing bytes":  `{"mode":"plain","message":{"op":"open","key":"k"}}garbage`,
		"two envelopes":   `{"mode":"plain","message":{"op":"open","key":"k"}} {"mode":"plain","message":{"op":"open","key":"k"}}`,
	}
	for name, input := range cases {
		s.Run(name, func() {
			_, err := Decode[*note]([]byte(input))
			s.Error(err)
		})
	}

	s.Run("signed envelope with appended bytes", func() {
		_, data := signed(s.T(), newKey(s.T()), &note{Op: "open", Key: "k1", Body: "v1"})
		_, err := Decode[*note](append(data, []byte(`{"mode":"plain"}`)...))
		s.Error(err)
		_, err = Decode[*note](append(data, []byte("\n\t ")...))
		s.NoError(err, "trailing whitespace is not content")
	})
}
