package message

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ledgerid/internal/platform/crypto"
	"ledgerid/internal/transport"
	"ledgerid/internal/transport/memory"
	"ledgerid/internal/transport/mocks"
)

type TransactionSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	ctrl    *gomock.Controller
	network *memory.Network
	key     crypto.PrivateKey
	metrics *Metrics
}

func TestTransactionSuite(t *testing.T) {
	suite.Run(t, new(TransactionSuite))
}

func (s *TransactionSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Second)
	s.ctrl = gomock.NewController(s.T())
	s.network = memory.New()
	s.key = newKey(s.T())
	s.metrics = NewMetrics(prometheus.NewRegistry())
}

func (s *TransactionSuite) TearDownTest() {
	s.cancel()
	s.ctrl.Finish()
}

func (s *TransactionSuite) config(n *note) TransactionConfig[*note] {
	return TransactionConfig[*note]{
		TopicID:  testTopic,
		Envelope: Wrap(n),
		Signer:   s.key.Sign,
		Submit:   Publish,
		Logger:   discardLogger(),
		Metrics:  s.metrics,
	}
}

func (s *TransactionSuite) publicKey(*Envelope[*note]) PublicKey {
	return s.key.Public()
}

func (s *TransactionSuite) TestExecutePublishesSignedEnvelope() {
	txID, err := NewTransaction(s.config(&note{Op: "open", Key: "k1", Body: "v1"})).Execute(s.ctx, s.network)
	s.Require().NoError(err)
	s.Equal(testTopic+"@1", txID)

	published := s.network.Messages(testTopic)
	s.Require().Len(published, 1)
	env, err := Decode[*note](published[0].Contents)
	s.Require().NoError(err)
	s.True(env.IsSignatureValid(s.publicKey))
	s.Equal("v1", env.Payload().Body)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Transactions.WithLabelValues("submitted")))
}

func (s *TransactionSuite) TestConfirmation() {
	confirmed := make(chan *Envelope[*note], 1)
	cfg := s.config(&note{Op: "open", Key: "k1", Body: "v1"})
	cfg.OnConfirmed = func(env *Envelope[*note]) { confirmed <- env }

	// Unrelated traffic on the topic is filtered out before decoding.
	_, err := s.network.Publish(s.ctx, testTopic, []byte("noise"))
	s.Require().NoError(err)

	_, err = NewTransaction(cfg).Execute(s.ctx, s.network)
	s.Require().NoError(err)

	select {
	case env := <-confirmed:
		s.Equal(uint64(2), env.SequenceNumber())
		s.False(env.ConsensusTimestamp().IsZero())
		s.Equal("v1", env.Payload().Body)
	case <-time.After(time.Second):
		s.FailNow("transaction was not confirmed")
	}
}

func (s *TransactionSuite) TestEncryptedTransaction() {
	confirmed := make(chan *Envelope[*note], 1)
	cfg := s.config(&note{Op: "open", Key: "k1", Body: "secret"})
	cfg.Encrypter = encryptNote
	cfg.Decrypter = decryptNote
	cfg.OnConfirmed = func(env *Envelope[*note]) { confirmed <- env }

	_, err := NewTransaction(cfg).Execute(s.ctx, s.network)
	s.Require().NoError(err)

	published := s.network.Messages(testTopic)
	s.Require().Len(published, 1)
	s.NotContains(string(published[0].Contents), `"secret"`)
	s.Contains(string(published[0].Contents), `"mode":"encrypted"`)

	select {
	case env := <-confirmed:
		opened, err := env.Open(nil)
		s.Require().NoError(err)
		s.Equal("secret", opened.Body)
	case <-time.After(time.Second):
		s.FailNow("transaction was not confirmed")
	}
}

func (s *TransactionSuite) TestPreSignedEnvelopeIsPublishedAsIs() {
	env, data := signed(s.T(), s.key, &note{Op: "edit", Key: "k1", Body: "offline"})
	cfg := s.config(nil)
	cfg.Envelope = env
	cfg.Signer = nil

	_, err := NewTransaction(cfg).Execute(s.ctx, s.network)
	s.Require().NoError(err)
	published := s.network.Messages(testTopic)
	s.Require().Len(published, 1)
	s.Equal(data, published[0].Contents)
}

func (s *TransactionSuite) TestConfirmationRejected() {
	errs := make(chan error, 1)
	cfg := s.config(&note{Op: "open", Key: "k1"})
	cfg.OnConfirmed = func(*Envelope[*note]) { s.Fail("unexpected confirmation") }
	cfg.OnError = func(err error) { errs <- err }
	cfg.Validate = func(*Envelope[*note], *note, transport.Message) error {
		return errors.New("signature does not match root key")
	}

	_, err := NewTransaction(cfg).Execute(s.ctx, s.network)
	s.Require().NoError(err)

	select {
	case err := <-errs:
		s.ErrorIs(err, ErrInvalidMessage)
		s.ErrorContains(err, "signature does not match root key")
	case <-time.After(time.Second):
		s.FailNow("rejection was not reported")
	}
}

func (s *TransactionSuite) TestSubmitFailure() {
	client := mocks.NewMockClient(s.ctrl)
	client.EXPECT().
		Publish(gomock.Any(), testTopic, gomock.Any()).
		Return("", errors.New("topic is frozen"))

	var reported error
	cfg := s.config(&note{Op: "open", Key: "k1"})
	cfg.OnError = func(err error) { reported = err }

	_, err := NewTransaction(cfg).Execute(s.ctx, client)
	s.ErrorContains(err, "topic is frozen")
	s.Equal(err, reported)
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Transactions.WithLabelValues("failed")))
}

func (s *TransactionSuite) TestSubmitFailureStopsConfirmation() {
	sub := mocks.NewMockSubscription(s.ctrl)
	client := mocks.NewMockClient(s.ctrl)
	client.EXPECT().
		Subscribe(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, q transport.Query, _ func(transport.Message), _ func(error)) (transport.Subscription, error) {
			s.Equal(testTopic, q.TopicID)
			s.False(q.StartTime.IsZero())
			return sub, nil
		})
	client.EXPECT().Publish(gomock.Any(), testTopic, gomock.Any()).Return("", errors.New("timeout"))
	sub.EXPECT().Unsubscribe()

	cfg := s.config(&note{Op: "open", Key: "k1"})
	cfg.OnConfirmed = func(*Envelope[*note]) {}
	cfg.OnError = func(error) {}

	_, err := NewTransaction(cfg).Execute(s.ctx, client)
	s.Error(err)
}

func (s *TransactionSuite) TestExecuteValidation() {
	s.Run("missing signer for unsigned envelope", func() {
		cfg := s.config(&note{Op: "open", Key: "k1"})
		cfg.Signer = nil
		_, err := NewTransaction(cfg).Execute(s.ctx, s.network)
		s.ErrorIs(err, ErrInvalidConfig)
		s.ErrorIs(err, ErrSignerRequired)
	})

	s.Run("encrypter without decrypter", func() {
		cfg := s.config(&note{Op: "open", Key: "k1"})
		cfg.Encrypter = encryptNote
		_, err := NewTransaction(cfg).Execute(s.ctx, s.network)
		s.ErrorIs(err, ErrInvalidConfig)
		s.ErrorContains(err, "encrypter and decrypter must be provided together")
	})

	s.Run("missing envelope and topic", func() {
		cfg := s.config(nil)
		cfg.Envelope = nil
		cfg.TopicID = ""
		_, err := NewTransaction(cfg).Execute(s.ctx, s.network)
		s.ErrorContains(err, "topic id is required")
		s.ErrorContains(err, "message or signed envelope is required")
	})

	s.Run("executes at most once", func() {
		tx := NewTransaction(s.config(&note{Op: "open", Key: "k1"}))
		_, err := tx.Execute(s.ctx, s.network)
		s.Require().NoError(err)
		_, err = tx.Execute(s.ctx, s.network)
		s.ErrorIs(err, ErrAlreadyExecuted)
	})
}
