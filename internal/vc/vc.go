package vc

import (
	"ledgerid/internal/message"
)

// NewListener streams validated status messages from topicID.
func NewListener(topicID string, keys KeyProvider, opts ...message.Option) *message.Listener[*StatusMessage] {
	s := message.Apply(opts)
	return message.NewListener(message.ListenerConfig[*StatusMessage]{
		TopicID:      topicID,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Limit:        s.Limit,
		Filters:      s.Filters,
		Decrypter:    DecryptWith(s.Decrypter),
		Validate:     Validator(keys),
		OnError:      s.OnError,
		IgnoreErrors: s.IgnoreErrors,
		OnInvalid:    s.OnInvalid,
		Logger:       s.Logger,
		Metrics:      s.Metrics,
	})
}

// NewResolver resolves the current status of credentialHashes.
func NewResolver(topicID string, credentialHashes []string, keys KeyProvider, onFinished func(map[string]*Entry), opts ...message.Option) *message.Resolver[*StatusMessage] {
	s := message.Apply(opts)
	return message.NewResolver(message.ResolverConfig[*StatusMessage]{
		TopicID:     topicID,
		Keys:        credentialHashes,
		IdleTimeout: s.IdleTimeout,
		Decrypter:   DecryptWith(s.Decrypter),
		Validate:    Validator(keys),
		OnFinished:  onFinished,
		OnError:     s.OnError,
		OnInvalid:   s.OnInvalid,
		Now:         s.Now,
		Logger:      s.Logger,
		Metrics:     s.Metrics,
	})
}

// NewTransaction publishes a status change signed by the issuer. keys is
// used to validate the confirmation echo.
func NewTransaction(topicID string, msg *StatusMessage, signer message.Signer, keys KeyProvider, onConfirmed func(*Envelope), opts ...message.Option) *message.Transaction[*StatusMessage] {
	var env *Envelope
	if msg != nil {
		env = message.Wrap(msg)
	}
	return newTransaction(topicID, env, signer, keys, onConfirmed, opts)
}

// NewSignedTransaction publishes an envelope that was built and signed elsewhere.
func NewSignedTransaction(topicID string, env *Envelope, keys KeyProvider, onConfirmed func(*Envelope), opts ...message.Option) *message.Transaction[*StatusMessage] {
	return newTransaction(topicID, env, nil, keys, onConfirmed, opts)
}

func newTransaction(topicID string, env *Envelope, signer message.Signer, keys KeyProvider, onConfirmed func(*Envelope), opts []message.Option) *message.Transaction[*StatusMessage] {
	s := message.Apply(opts)
	return message.NewTransaction(message.TransactionConfig[*StatusMessage]{
		TopicID:          topicID,
		Envelope:         env,
		Signer:           signer,
		Encrypter:        EncryptWith(s.Encrypter),
		Decrypter:        DecryptWith(s.Decrypter),
		Submit:           s.Submit,
		Validate:         Validator(keys),
		OnConfirmed:      onConfirmed,
		OnError:          s.OnError,
		ConfirmationLead: s.ConfirmationLead,
		Now:              s.Now,
		Logger:           s.Logger,
		Metrics:          s.Metrics,
	})
}
