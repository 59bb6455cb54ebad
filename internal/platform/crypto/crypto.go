// Package crypto provides the concrete signing and field-encryption schemes
// injected into message envelopes: Ed25519 signatures and XChaCha20-Poly1305
// field ciphers.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/sha3"
)

const (
	KeySize   = chacha20poly1305.KeySize    // 32
	NonceSize = chacha20poly1305.NonceSizeX // 24
)

var errShortCiphertext = errors.New("ciphertext too short")

// PublicKey is an Ed25519 verification key.
type PublicKey ed25519.PublicKey

// Verify reports whether signature is a valid signature of message.
func (k PublicKey) Verify(message, signature []byte) bool {
	if len(k) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(k), message, signature)
}

// Base58 encodes the key the way DID documents carry it.
func (k PublicKey) Base58() string {
	return base58.Encode(k)
}

// ParsePublicKeyBase58 decodes a publicKeyBase58 value.
func ParsePublicKeyBase58(s string) (PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode base58 key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 public key length %d", len(raw))
	}
	return PublicKey(raw), nil
}

// PrivateKey is an Ed25519 signing key.
type PrivateKey ed25519.PrivateKey

// GenerateKey creates a new Ed25519 key pair.
func GenerateKey() (PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return PrivateKey(priv), nil
}

// PrivateKeyFromSeed derives the key pair for a 32-byte seed.
func PrivateKeyFromSeed(seed []byte) (PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid ed25519 seed length %d", len(seed))
	}
	return PrivateKey(ed25519.NewKeyFromSeed(seed)), nil
}

// Public returns the verification key.
func (k PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(k).Public().(ed25519.PublicKey))
}

// Seed returns the 32-byte seed the key was derived from.
func (k PrivateKey) Seed() []byte {
	return ed25519.PrivateKey(k).Seed()
}

// Sign signs message. Its signature matches message.Signer.
func (k PrivateKey) Sign(message []byte) ([]byte, error) {
	if len(k) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid ed25519 private key")
	}
	return ed25519.Sign(ed25519.PrivateKey(k), message), nil
}

// KeyFromSecret derives a symmetric field-cipher key from a shared secret.
func KeyFromSecret(secret []byte) []byte {
	sum := sha3.Sum256(secret)
	return sum[:]
}

// FieldCipher encrypts individual payload fields with XChaCha20-Poly1305.
// Output is nonce || ciphertext.
type FieldCipher struct {
	key []byte
}

// NewFieldCipher creates a cipher for a 32-byte key.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size %d", len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &FieldCipher{key: k}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *FieldCipher) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(out, out[:NonceSize], plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt.
func (c *FieldCipher) Decrypt(data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(data) < NonceSize+aead.Overhead() {
		return nil, errShortCiphertext
	}
	plaintext, err := aead.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return plaintext, nil
}
