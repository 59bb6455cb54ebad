package domain

import (
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) ed25519.PublicKey {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	return ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
}

// TestParseDID_Invariants validates the parsing invariant:
// "a DID must carry the method, a network, a 32-byte base58 id string and a topic"
func TestParseDID_Invariants(t *testing.T) {
	pub := testKey(t)
	valid := DeriveDID("testnet", "did-topic", pub)

	t.Run("round-trips a derived DID", func(t *testing.T) {
		parsed, err := ParseDID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, valid, parsed)
		assert.True(t, parsed.ControlledBy(pub))
	})

	t.Run("topic id may contain underscores", func(t *testing.T) {
		d := DeriveDID("testnet", "did_topic_v2", pub)
		parsed, err := ParseDID(d.String())
		require.NoError(t, err)
		assert.Equal(t, "did_topic_v2", parsed.TopicID)
	})

	t.Run("root key id uses the fragment", func(t *testing.T) {
		assert.True(t, strings.HasSuffix(valid.RootKeyID(), "#did-root-key"))
	})
}

func TestParseDID_Rejects(t *testing.T) {
	pub := testKey(t)
	idString := IDStringFromKey(pub)

	tests := []struct {
		name  string
		input string
	}{
		{"empty string", ""},
		{"not a did", "urn:uuid:1234"},
		{"wrong method", "did:web:testnet:" + idString + "_topic"},
		{"missing topic", "did:hedera:testnet:" + idString},
		{"empty topic", "did:hedera:testnet:" + idString + "_"},
		{"short id string", "did:hedera:testnet:abc_topic"},
		{"non base58 id", "did:hedera:testnet:0OIl_topic"},
		{"bad network", "did:hedera:test net:" + idString + "_topic"},
		{"path traversal in topic", "did:hedera:testnet:" + idString + "_../etc"},
		{"oversized input", "did:hedera:testnet:" + strings.Repeat("a", 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDID(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDID)
		})
	}
}

func TestControlledBy_RejectsOtherKeys(t *testing.T) {
	d := DeriveDID("testnet", "topic", testKey(t))
	other := make([]byte, ed25519.PublicKeySize)
	assert.False(t, d.ControlledBy(other))
	assert.False(t, d.ControlledBy(nil))
}
