// Package kafka implements the transport on a Kafka-compatible broker. Each
// identity topic maps to a single-partition Kafka topic configured with
// LogAppendTime, so the partition offset is the sequence number and the
// broker-assigned record timestamp is the consensus timestamp.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"ledgerid/internal/transport"
)

const partition int32 = 0

// Client publishes to and streams from identity topics.
type Client struct {
	brokers     []string
	prefix      string
	replication int16
	logger      *slog.Logger
	extra       []kgo.Opt

	producer *kgo.Client
	admin    *kadm.Client

	wg sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithTopicPrefix namespaces Kafka topic names, e.g. "ledgerid.".
func WithTopicPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = prefix
	}
}

// WithReplicationFactor sets the replication factor of topics created by EnsureTopic.
func WithReplicationFactor(n int16) Option {
	return func(c *Client) {
		c.replication = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClientOpts appends raw franz-go options to every client this package creates.
func WithClientOpts(opts ...kgo.Opt) Option {
	return func(c *Client) {
		c.extra = append(c.extra, opts...)
	}
}

// New connects a producer to brokers.
func New(brokers []string, opts ...Option) (*Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	c := &Client{
		brokers:     brokers,
		replication: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	producerOpts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, c.extra...)
	producer, err := kgo.NewClient(producerOpts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	c.producer = producer
	c.admin = kadm.NewClient(producer)
	return c, nil
}

// TopicName is the Kafka topic backing topicID.
func (c *Client) TopicName(topicID string) string {
	return c.prefix + topicID
}

// Ping checks broker connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.producer.Ping(ctx)
}

// EnsureTopic creates the backing topic if it does not exist yet.
func (c *Client) EnsureTopic(ctx context.Context, topicID string) error {
	name := c.TopicName(topicID)
	logAppendTime := "LogAppendTime"
	resp, err := c.admin.CreateTopic(ctx, 1, c.replication, map[string]*string{
		"message.timestamp.type": &logAppendTime,
	}, name)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", name, err)
	}
	return nil
}

// Publish appends contents to the topic and returns "<topic>@<sequence>".
func (c *Client) Publish(ctx context.Context, topicID string, contents []byte) (string, error) {
	if topicID == "" {
		return "", errors.New("topic id is required")
	}
	rec := &kgo.Record{
		Topic:     c.TopicName(topicID),
		Partition: partition,
		Value:     contents,
	}
	produced, err := c.producer.ProduceSync(ctx, rec).First()
	if err != nil {
		return "", fmt.Errorf("produce to %s: %w", rec.Topic, err)
	}
	return fmt.Sprintf("%s@%d", topicID, produced.Offset+1), nil
}

// Subscribe streams the topic from its first record, so the running hash is
// chained over the full history. Records outside the query window update the
// hash but are not delivered; once a record passes EndTime or Limit is reached
// the subscription reports transport.ErrEndOfStream and stops.
func (c *Client) Subscribe(ctx context.Context, q transport.Query, onMessage func(transport.Message), onError func(error)) (transport.Subscription, error) {
	if q.TopicID == "" {
		return nil, errors.New("topic id is required")
	}
	if onMessage == nil {
		return nil, errors.New("message callback is required")
	}
	if onError == nil {
		onError = func(error) {}
	}

	name := c.TopicName(q.TopicID)
	consumerOpts := append([]kgo.Opt{
		kgo.SeedBrokers(c.brokers...),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			name: {partition: kgo.NewOffset().AtStart()},
		}),
	}, c.extra...)
	consumer, err := kgo.NewClient(consumerOpts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer consumer.Close()
		c.consume(subCtx, consumer, q, onMessage, onError)
	}()
	return sub, nil
}

func (c *Client) consume(ctx context.Context, consumer *kgo.Client, q transport.Query, onMessage func(transport.Message), onError func(error)) {
	var (
		runningHash []byte
		delivered   uint64
		exhausted   bool
	)
	for {
		fetches := consumer.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			onError(transport.ErrSubscriptionCancelled)
			return
		}
		for _, fetchErr := range fetches.Errors() {
			if errors.Is(fetchErr.Err, context.Canceled) {
				continue
			}
			onError(fmt.Errorf("fetch %s[%d]: %w", fetchErr.Topic, fetchErr.Partition, fetchErr.Err))
		}
		fetches.EachRecord(func(rec *kgo.Record) {
			msg := transport.Message{
				TopicID:            q.TopicID,
				ConsensusTimestamp: rec.Timestamp.UTC(),
				SequenceNumber:     uint64(rec.Offset) + 1,
				Contents:           rec.Value,
			}
			msg.RunningHash = transport.NextRunningHash(runningHash, msg)
			runningHash = msg.RunningHash

			if exhausted || ctx.Err() != nil {
				return
			}
			if !q.EndTime.IsZero() && msg.ConsensusTimestamp.After(q.EndTime) {
				exhausted = true
				return
			}
			if !q.Includes(msg.ConsensusTimestamp) {
				return
			}
			onMessage(msg)
			delivered++
			if q.Limit > 0 && delivered >= q.Limit {
				exhausted = true
			}
		})
		if exhausted {
			c.logger.Debug("subscription window exhausted",
				"topic_id", q.TopicID,
				"delivered", delivered,
			)
			onError(transport.ErrEndOfStream)
			return
		}
	}
}

// Close waits for running subscriptions to stop and closes the producer.
// Callers unsubscribe (or cancel the subscription context) first.
func (c *Client) Close() {
	c.wg.Wait()
	c.producer.Close()
}

type subscription struct {
	cancel context.CancelFunc
}

// Unsubscribe cancels the poll loop without waiting for it.
func (s *subscription) Unsubscribe() {
	s.cancel()
}
