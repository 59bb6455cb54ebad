package message

import "errors"

// Programmer and configuration errors. Validation rejects of untrusted log
// data never surface as errors; they flow through the invalid-message path.
var (
	ErrAlreadySigned     = errors.New("message is already signed")
	ErrAlreadyEncrypted  = errors.New("message is already encrypted")
	ErrSignerRequired    = errors.New("signer is required")
	ErrEncrypterRequired = errors.New("encrypter is required")
	ErrDecrypterRequired = errors.New("message is encrypted, decrypter is required")
	ErrAlreadyExecuted   = errors.New("already executed")
	ErrAlreadySubscribed = errors.New("listener is already subscribed")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidMessage    = errors.New("invalid message")
)
