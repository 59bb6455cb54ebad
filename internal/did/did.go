package did

import (
	"ledgerid/internal/message"
)

// NewListener streams validated DID messages from topicID.
func NewListener(topicID string, opts ...message.Option) *message.Listener[*Message] {
	s := message.Apply(opts)
	return message.NewListener(message.ListenerConfig[*Message]{
		TopicID:      topicID,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Limit:        s.Limit,
		Filters:      s.Filters,
		Decrypter:    DecryptWith(s.Decrypter),
		Validate:     Validator(topicID),
		OnError:      s.OnError,
		IgnoreErrors: s.IgnoreErrors,
		OnInvalid:    s.OnInvalid,
		Logger:       s.Logger,
		Metrics:      s.Metrics,
	})
}

// NewResolver resolves the current state of dids from topicID's history.
func NewResolver(topicID string, dids []string, onFinished func(map[string]*Entry), opts ...message.Option) *message.Resolver[*Message] {
	s := message.Apply(opts)
	return message.NewResolver(message.ResolverConfig[*Message]{
		TopicID:     topicID,
		Keys:        dids,
		IdleTimeout: s.IdleTimeout,
		Decrypter:   DecryptWith(s.Decrypter),
		Validate:    Validator(topicID),
		OnFinished:  onFinished,
		OnError:     s.OnError,
		OnInvalid:   s.OnInvalid,
		Now:         s.Now,
		Logger:      s.Logger,
		Metrics:     s.Metrics,
	})
}

// NewTransaction publishes msg, encrypting it when an encrypter is configured
// and signing it with signer.
func NewTransaction(topicID string, msg *Message, signer message.Signer, onConfirmed func(*Envelope), opts ...message.Option) *message.Transaction[*Message] {
	var env *Envelope
	if msg != nil {
		env = message.Wrap(msg)
	}
	return newTransaction(topicID, env, signer, onConfirmed, opts)
}

// NewSignedTransaction publishes an envelope that was built and signed elsewhere.
func NewSignedTransaction(topicID string, env *Envelope, onConfirmed func(*Envelope), opts ...message.Option) *message.Transaction[*Message] {
	return newTransaction(topicID, env, nil, onConfirmed, opts)
}

func newTransaction(topicID string, env *Envelope, signer message.Signer, onConfirmed func(*Envelope), opts []message.Option) *message.Transaction[*Message] {
	s := message.Apply(opts)
	return message.NewTransaction(message.TransactionConfig[*Message]{
		TopicID:          topicID,
		Envelope:         env,
		Signer:           signer,
		Encrypter:        EncryptWith(s.Encrypter),
		Decrypter:        DecryptWith(s.Decrypter),
		Submit:           s.Submit,
		Validate:         Validator(topicID),
		OnConfirmed:      onConfirmed,
		OnError:          s.OnError,
		ConfirmationLead: s.ConfirmationLead,
		Now:              s.Now,
		Logger:           s.Logger,
		Metrics:          s.Metrics,
	})
}
