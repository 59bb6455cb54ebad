package message

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Envelope wraps a payload with its transport mode, a detached signature and,
// once delivered, the consensus metadata assigned by the log.
//
// An envelope is mutable only until it is signed: Encrypt must happen before
// Sign, and a signature can be set exactly once.
type Envelope[T Payload] struct {
	mu sync.Mutex

	mode      Mode
	payload   T
	signature string

	consensusTimestamp time.Time
	sequenceNumber     uint64

	opened   T
	isOpened bool
}

type wireEnvelope struct {
	Mode      Mode            `json:"mode"`
	Message   json.RawMessage `json:"message"`
	Signature string          `json:"signature,omitempty"`
}

// Wrap creates a plain, unsigned envelope around payload.
func Wrap[T Payload](payload T) *Envelope[T] {
	return &Envelope[T]{mode: ModePlain, payload: payload}
}

// Decode parses a transported envelope. The payload is kept exactly as
// received; call Open to obtain the plain payload.
func Decode[T Payload](data []byte) (*Envelope[T], error) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if !wire.Mode.Valid() {
		return nil, fmt.Errorf("decode envelope: unknown mode %q", wire.Mode)
	}
	if len(wire.Message) == 0 || bytes.Equal(wire.Message, []byte("null")) {
		return nil, fmt.Errorf("decode envelope: missing message")
	}
	var payload T
	if err := json.Unmarshal(wire.Message, &payload); err != nil {
		return nil, fmt.Errorf("decode envelope message: %w", err)
	}
	if wire.Signature != "" {
		if _, err := base64.StdEncoding.DecodeString(wire.Signature); err != nil {
			return nil, fmt.Errorf("decode envelope signature: %w", err)
		}
	}
	return &Envelope[T]{
		mode:      wire.Mode,
		payload:   payload,
		signature: wire.Signature,
	}, nil
}

// Mode returns the envelope mode.
func (e *Envelope[T]) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Payload returns the payload as transmitted, which may hold ciphertext.
func (e *Envelope[T]) Payload() T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.payload
}

// Signature returns the base64 signature, or "" when unsigned.
func (e *Envelope[T]) Signature() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signature
}

// IsSigned reports whether a signature has been set.
func (e *Envelope[T]) IsSigned() bool {
	return e.Signature() != ""
}

// ConsensusTimestamp is the log-assigned ordering key; zero until delivered.
func (e *Envelope[T]) ConsensusTimestamp() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consensusTimestamp
}

// SequenceNumber is the log-assigned position; zero until delivered.
func (e *Envelope[T]) SequenceNumber() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequenceNumber
}

func (e *Envelope[T]) delivered(consensusTimestamp time.Time, sequenceNumber uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consensusTimestamp = consensusTimestamp
	e.sequenceNumber = sequenceNumber
}

// Encrypt replaces the payload with the output of encrypter and switches the
// envelope to encrypted mode.
func (e *Envelope[T]) Encrypt(encrypter Transform[T]) error {
	if encrypter == nil {
		return ErrEncrypterRequired
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signature != "" {
		return ErrAlreadySigned
	}
	if e.mode == ModeEncrypted {
		return ErrAlreadyEncrypted
	}
	encrypted, err := encrypter(e.payload)
	if err != nil {
		return fmt.Errorf("encrypt message: %w", err)
	}
	e.payload = encrypted
	e.mode = ModeEncrypted
	return nil
}

// Sign signs the canonical bytes of the current payload, stores the signature
// and returns the serialized envelope ready to publish.
func (e *Envelope[T]) Sign(signer Signer) ([]byte, error) {
	if signer == nil {
		return nil, ErrSignerRequired
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signature != "" {
		return nil, ErrAlreadySigned
	}
	canonical, err := json.Marshal(e.payload)
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}
	sig, err := signer(canonical)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	if len(sig) == 0 {
		return nil, fmt.Errorf("sign message: signer returned no signature")
	}
	e.signature = base64.StdEncoding.EncodeToString(sig)
	return e.marshalLocked(canonical)
}

// Bytes serializes the envelope in its wire form.
func (e *Envelope[T]) Bytes() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	canonical, err := json.Marshal(e.payload)
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}
	return e.marshalLocked(canonical)
}

// MarshalJSON implements json.Marshaler with the wire form.
func (e *Envelope[T]) MarshalJSON() ([]byte, error) {
	return e.Bytes()
}

func (e *Envelope[T]) marshalLocked(canonical []byte) ([]byte, error) {
	return json.Marshal(wireEnvelope{
		Mode:      e.mode,
		Message:   canonical,
		Signature: e.signature,
	})
}

// IsSignatureValid verifies the stored signature over the payload as received
// against the key chosen by resolve.
func (e *Envelope[T]) IsSignatureValid(resolve KeyResolver[T]) bool {
	if resolve == nil {
		return false
	}
	e.mu.Lock()
	signature := e.signature
	payload := e.payload
	e.mu.Unlock()

	if signature == "" {
		return false
	}
	key := resolve(e)
	if key == nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	canonical, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return key.Verify(canonical, sig)
}

// Open returns the plain payload. Plain envelopes ignore decrypter; encrypted
// ones require it and decrypt once, caching the result.
func (e *Envelope[T]) Open(decrypter Transform[T]) (T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == ModePlain {
		return e.payload, nil
	}
	if e.isOpened {
		return e.opened, nil
	}
	if decrypter == nil {
		var zero T
		return zero, ErrDecrypterRequired
	}
	opened, err := decrypter(e.payload)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("decrypt message: %w", err)
	}
	e.opened = opened
	e.isOpened = true
	return opened, nil
}
