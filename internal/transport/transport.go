// Package transport defines the boundary to the append-only, totally ordered
// log that identity messages are published to and streamed from.
//
// The log delivers at-least-once and not necessarily in consensus order; every
// delivered message carries the consensus timestamp the log assigned to it.
package transport

//go:generate mockgen -source=transport.go -destination=mocks/mocks.go -package=mocks Publisher,Subscriber,Subscription,Client

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"golang.org/x/crypto/sha3"
)

// ErrSubscriptionCancelled is reported by a subscription that ended because
// its owner unsubscribed. Listeners swallow it.
var ErrSubscriptionCancelled = errors.New("subscription cancelled by unsubscribe")

// ErrEndOfStream is reported once by a subscription whose query window is
// exhausted: its Limit was reached or a message past EndTime was seen. No
// message follows it.
var ErrEndOfStream = errors.New("end of subscription window")

// Message is one entry of a topic as delivered by the log.
type Message struct {
	TopicID            string
	ConsensusTimestamp time.Time
	SequenceNumber     uint64
	RunningHash        []byte
	Contents           []byte
}

// Query selects the slice of a topic a subscription streams.
// A zero EndTime keeps the stream open; a zero Limit is unbounded.
type Query struct {
	TopicID   string
	StartTime time.Time
	EndTime   time.Time
	Limit     uint64
}

// Includes reports whether a message timestamp falls inside the query window.
func (q Query) Includes(ts time.Time) bool {
	if !q.StartTime.IsZero() && ts.Before(q.StartTime) {
		return false
	}
	if !q.EndTime.IsZero() && ts.After(q.EndTime) {
		return false
	}
	return true
}

// Subscription is the handle of a running stream. Unsubscribe must be
// idempotent and must not block on an in-flight delivery callback.
type Subscription interface {
	Unsubscribe()
}

// Publisher submits payloads to a topic and returns the log's transaction id.
type Publisher interface {
	Publish(ctx context.Context, topicID string, contents []byte) (string, error)
}

// Subscriber streams topic messages to onMessage and transport failures to onError.
// Callbacks for one subscription are never invoked concurrently.
type Subscriber interface {
	Subscribe(ctx context.Context, q Query, onMessage func(Message), onError func(error)) (Subscription, error)
}

// Client is a full transport collaborator.
type Client interface {
	Publisher
	Subscriber
}

// NextRunningHash chains msg onto the running hash of the message before it.
// prev is nil for the first message of a topic.
func NextRunningHash(prev []byte, msg Message) []byte {
	h := sha3.New384()
	h.Write(prev)
	h.Write([]byte(msg.TopicID))
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], msg.SequenceNumber)
	h.Write(seq[:])
	h.Write([]byte(msg.ConsensusTimestamp.UTC().Format(time.RFC3339Nano)))
	h.Write(msg.Contents)
	return h.Sum(nil)
}
