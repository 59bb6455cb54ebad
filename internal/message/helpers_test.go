package message

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ledgerid/internal/platform/crypto"
	"ledgerid/internal/transport"
)

// note is a minimal payload: "open" starts a key, "close" ends it.
type note struct {
	Op   string `json:"op"`
	Key  string `json:"key"`
	Body string `json:"body"`
}

func (n *note) Subject() string { return n.Key }
func (n *note) Initial() bool   { return n.Op == "open" }
func (n *note) Terminal() bool  { return n.Op == "close" }

func (n *note) Validate() error {
	if n.Key == "" {
		return errors.New("key is required")
	}
	switch n.Op {
	case "open", "edit", "close":
		return nil
	default:
		return errors.New("unknown op " + n.Op)
	}
}

const encPrefix = "enc:"

func encryptNote(n *note) (*note, error) {
	out := *n
	out.Body = encPrefix + reverse(n.Body)
	return &out, nil
}

func decryptNote(n *note) (*note, error) {
	if !strings.HasPrefix(n.Body, encPrefix) {
		return nil, errors.New("body is not encrypted")
	}
	out := *n
	out.Body = reverse(strings.TrimPrefix(n.Body, encPrefix))
	return &out, nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newKey(t *testing.T) crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

// signed wraps and signs n, returning the envelope and its wire bytes.
func signed(t *testing.T, key crypto.PrivateKey, n *note) (*Envelope[*note], []byte) {
	t.Helper()
	env := Wrap(n)
	data, err := env.Sign(key.Sign)
	require.NoError(t, err)
	return env, data
}

// deliveredAt returns a signed envelope carrying consensus metadata.
func deliveredAt(t *testing.T, key crypto.PrivateKey, n *note, ts time.Time, seq uint64) *Envelope[*note] {
	t.Helper()
	env, _ := signed(t, key, n)
	env.delivered(ts, seq)
	return env
}

func topicMessage(topicID string, data []byte, ts time.Time, seq uint64) transport.Message {
	return transport.Message{
		TopicID:            topicID,
		ConsensusTimestamp: ts,
		SequenceNumber:     seq,
		Contents:           data,
	}
}
