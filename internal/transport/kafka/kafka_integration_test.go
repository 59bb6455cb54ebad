//go:build integration

package kafka_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"ledgerid/internal/transport"
	"ledgerid/internal/transport/kafka"
	"ledgerid/pkg/testutil/containers"
)

type KafkaTransportSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	client   *kafka.Client
	topicID  string
}

func TestKafkaTransportSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaTransportSuite))
}

func (s *KafkaTransportSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	client, err := kafka.New(s.redpanda.Brokers,
		kafka.WithTopicPrefix("ledgerid."),
		kafka.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	s.client = client
}

func (s *KafkaTransportSuite) TearDownSuite() {
	s.client.Close()
}

func (s *KafkaTransportSuite) SetupTest() {
	s.topicID = "0.0." + uuid.NewString()[:8]
	s.Require().NoError(s.client.EnsureTopic(context.Background(), s.topicID))
}

func (s *KafkaTransportSuite) collect(q transport.Query, want int) []transport.Message {
	var (
		mu    sync.Mutex
		got   []transport.Message
		ended bool
	)
	sub, err := s.client.Subscribe(context.Background(), q, func(msg transport.Message) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
	}, func(err error) {
		if errors.Is(err, transport.ErrEndOfStream) {
			mu.Lock()
			ended = true
			mu.Unlock()
			return
		}
		s.ErrorIs(err, transport.ErrSubscriptionCancelled)
	})
	s.Require().NoError(err)
	defer sub.Unsubscribe()

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= want
	}, 20*time.Second, 50*time.Millisecond)

	if q.Limit > 0 {
		s.Eventually(func() bool {
			mu.Lock()
			defer mu.Unlock()
			return ended
		}, 20*time.Second, 50*time.Millisecond, "a limited subscription reports the end of its window")
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]transport.Message(nil), got...)
}

func (s *KafkaTransportSuite) TestPublishAndReplay() {
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		txID, err := s.client.Publish(ctx, s.topicID, []byte(fmt.Sprintf("message-%d", i)))
		s.Require().NoError(err)
		s.Equal(fmt.Sprintf("%s@%d", s.topicID, i), txID)
	}

	got := s.collect(transport.Query{TopicID: s.topicID}, 3)
	s.Require().Len(got, 3)
	for i, msg := range got {
		s.Equal(uint64(i+1), msg.SequenceNumber)
		s.Equal(fmt.Sprintf("message-%d", i+1), string(msg.Contents))
		s.Len(msg.RunningHash, 48)
		if i > 0 {
			s.False(msg.ConsensusTimestamp.Before(got[i-1].ConsensusTimestamp))
			s.NotEqual(got[i-1].RunningHash, msg.RunningHash)
		}
	}
}

func (s *KafkaTransportSuite) TestQueryWindowAndLimit() {
	ctx := context.Background()
	_, err := s.client.Publish(ctx, s.topicID, []byte("early"))
	s.Require().NoError(err)
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := s.client.Publish(ctx, s.topicID, []byte("late"))
		s.Require().NoError(err)
	}

	got := s.collect(transport.Query{TopicID: s.topicID, StartTime: start.Add(-10 * time.Millisecond), Limit: 2}, 2)
	s.Len(got, 2)
	for _, msg := range got {
		s.Equal("late", string(msg.Contents))
	}
}

func (s *KafkaTransportSuite) TestPing() {
	s.NoError(s.client.Ping(context.Background()))
}
