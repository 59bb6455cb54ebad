// Package memory is an in-process transport. Every topic is a totally ordered
// slice of messages with strictly increasing consensus timestamps; each
// subscription is served by its own goroutine so callbacks for one
// subscription never run concurrently.
package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"ledgerid/internal/transport"
)

// Network holds all topics of one in-process log.
type Network struct {
	mu      sync.Mutex
	topics  map[string]*topic
	now     func() time.Time
	reorder *rand.Rand
	lastTS  time.Time
}

type topic struct {
	messages []transport.Message
	subs     map[*subscription]struct{}
}

// Option configures a Network.
type Option func(*Network)

// WithClock sets the source of consensus timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *Network) {
		n.now = now
	}
}

// WithReorder shuffles replayed history with the given seed, imitating a log
// that delivers out of consensus order.
func WithReorder(seed int64) Option {
	return func(n *Network) {
		n.reorder = rand.New(rand.NewSource(seed)) //nolint:gosec // test ordering, not security
	}
}

// New creates an empty network.
func New(opts ...Option) *Network {
	n := &Network{
		topics: make(map[string]*topic),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Network) topicLocked(id string) *topic {
	t, ok := n.topics[id]
	if !ok {
		t = &topic{subs: make(map[*subscription]struct{})}
		n.topics[id] = t
	}
	return t
}

// Publish appends contents to the topic and returns "<topic>@<sequence>".
func (n *Network) Publish(ctx context.Context, topicID string, contents []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if topicID == "" {
		return "", fmt.Errorf("topic id is required")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ts := n.now().UTC()
	if !ts.After(n.lastTS) {
		ts = n.lastTS.Add(time.Nanosecond)
	}
	n.lastTS = ts

	t := n.topicLocked(topicID)
	msg := transport.Message{
		TopicID:            topicID,
		ConsensusTimestamp: ts,
		SequenceNumber:     uint64(len(t.messages)) + 1,
		Contents:           append([]byte(nil), contents...),
	}
	var prev []byte
	if len(t.messages) > 0 {
		prev = t.messages[len(t.messages)-1].RunningHash
	}
	msg.RunningHash = transport.NextRunningHash(prev, msg)
	n.appendLocked(t, msg)
	return fmt.Sprintf("%s@%d", topicID, msg.SequenceNumber), nil
}

// Append inserts a fully formed message, keeping its timestamp and sequence
// number. Tests use it to lay out history with explicit consensus times.
func (n *Network) Append(msg transport.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t := n.topicLocked(msg.TopicID)
	if msg.ConsensusTimestamp.After(n.lastTS) {
		n.lastTS = msg.ConsensusTimestamp
	}
	n.appendLocked(t, msg)
}

// Fail reports err to every live subscription of the topic.
func (n *Network) Fail(topicID string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.topicLocked(topicID).subs {
		sub.push(item{err: err})
	}
}

// Messages returns a copy of the topic history.
func (n *Network) Messages(topicID string) []transport.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]transport.Message(nil), n.topicLocked(topicID).messages...)
}

func (n *Network) appendLocked(t *topic, msg transport.Message) {
	t.messages = append(t.messages, msg)
	for sub := range t.subs {
		if sub.q.Includes(msg.ConsensusTimestamp) {
			sub.push(item{msg: msg})
		}
	}
}

// Subscribe replays matching history and then streams new messages.
func (n *Network) Subscribe(ctx context.Context, q transport.Query, onMessage func(transport.Message), onError func(error)) (transport.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.TopicID == "" {
		return nil, fmt.Errorf("topic id is required")
	}
	if onMessage == nil {
		return nil, fmt.Errorf("message callback is required")
	}
	if onError == nil {
		onError = func(error) {}
	}

	sub := &subscription{
		network:   n,
		q:         q,
		onMessage: onMessage,
		onError:   onError,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}

	n.mu.Lock()
	t := n.topicLocked(q.TopicID)
	history := make([]transport.Message, 0, len(t.messages))
	for _, msg := range t.messages {
		if q.Includes(msg.ConsensusTimestamp) {
			history = append(history, msg)
		}
	}
	if n.reorder != nil {
		n.reorder.Shuffle(len(history), func(i, j int) {
			history[i], history[j] = history[j], history[i]
		})
	}
	for _, msg := range history {
		sub.push(item{msg: msg})
	}
	t.subs[sub] = struct{}{}
	n.mu.Unlock()

	go sub.run(ctx)
	return sub, nil
}

func (n *Network) remove(sub *subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.topics[sub.q.TopicID]; ok {
		delete(t.subs, sub)
	}
}

type item struct {
	msg transport.Message
	err error
}

type subscription struct {
	network   *Network
	q         transport.Query
	onMessage func(transport.Message)
	onError   func(error)

	mu        sync.Mutex
	pending   []item
	delivered uint64

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func (s *subscription) push(it item) {
	s.mu.Lock()
	s.pending = append(s.pending, it)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) next() (item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return item{}, false
	}
	it := s.pending[0]
	s.pending = s.pending[1:]
	return it, true
}

func (s *subscription) run(ctx context.Context) {
	defer s.network.remove(s)
	for {
		select {
		case <-s.stop:
			s.onError(transport.ErrSubscriptionCancelled)
			return
		case <-ctx.Done():
			s.onError(ctx.Err())
			return
		case <-s.wake:
		}
		for {
			it, ok := s.next()
			if !ok {
				break
			}
			select {
			case <-s.stop:
				s.onError(transport.ErrSubscriptionCancelled)
				return
			default:
			}
			if it.err != nil {
				s.onError(it.err)
				continue
			}
			s.onMessage(it.msg)
			s.delivered++
			if s.q.Limit > 0 && s.delivered >= s.q.Limit {
				s.onError(transport.ErrEndOfStream)
				return
			}
		}
	}
}

// Unsubscribe stops the subscription. It never waits for the delivery
// goroutine, so it may be called from inside onMessage.
func (s *subscription) Unsubscribe() {
	s.stopOnce.Do(func() { close(s.stop) })
}
