package message

import "time"

// Mode tells whether an envelope's payload carries ciphertext fields.
type Mode string

const (
	ModePlain     Mode = "plain"
	ModeEncrypted Mode = "encrypted"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModePlain || m == ModeEncrypted
}

// Payload is a typed record carried by an Envelope. Implementations must
// serialize deterministically with encoding/json because signatures are
// computed over that serialization.
type Payload interface {
	// Subject is the key the payload resolves under: a DID or a credential hash.
	Subject() string
	// Initial marks operations that open a key's lifecycle (create, issue).
	Initial() bool
	// Terminal marks one-way latch operations (delete, revoke).
	Terminal() bool
	// Validate checks the payload is complete.
	Validate() error
}

// Signer signs the canonical payload bytes.
type Signer func(message []byte) ([]byte, error)

// PublicKey verifies a detached signature.
type PublicKey interface {
	Verify(message, signature []byte) bool
}

// KeyResolver picks the key an envelope's signature must verify against, or
// nil when none is known.
type KeyResolver[T Payload] func(env *Envelope[T]) PublicKey

// Transform maps a payload to an equivalent payload, typically encrypting or
// decrypting its sensitive fields.
type Transform[T Payload] func(payload T) (T, error)

// Crypter is a byte-level cipher applied to individual payload fields.
type Crypter func(data []byte) ([]byte, error)

// NewTimestamp returns the client-side creation instant used by payload
// constructors. Truncation drops the monotonic clock reading so the value
// compares equal after a JSON round trip.
func NewTimestamp() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
