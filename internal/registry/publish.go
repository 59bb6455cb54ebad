package registry

import (
	"context"
	"errors"
	"time"

	"ledgerid/internal/message"
	"ledgerid/internal/registry/cache"
)

var errConfirmationTimeout = errors.New("confirmation timed out")

// confirmation collects the outcome of a transaction's echo listener.
type confirmation[T message.Payload] struct {
	confirmed chan *message.Envelope[T]
	failed    chan error
}

func newConfirmation[T message.Payload]() *confirmation[T] {
	return &confirmation[T]{
		confirmed: make(chan *message.Envelope[T], 1),
		failed:    make(chan error, 1),
	}
}

func (c *confirmation[T]) onConfirmed(env *message.Envelope[T]) {
	select {
	case c.confirmed <- env:
	default:
	}
}

func (c *confirmation[T]) onError(err error) {
	select {
	case c.failed <- err:
	default:
	}
}

func (c *confirmation[T]) wait(ctx context.Context, timeout time.Duration) (*message.Envelope[T], error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case env := <-c.confirmed:
		return env, nil
	case err := <-c.failed:
		return nil, err
	case <-timer.C:
		return nil, errConfirmationTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// awaitReceipt waits for the echo of txID and fills in its consensus metadata.
// A timeout yields an unconfirmed receipt rather than an error.
func awaitReceipt[T message.Payload](ctx context.Context, c *confirmation[T], timeout time.Duration, txID string) (Receipt, error) {
	receipt := Receipt{TransactionID: txID}
	env, err := c.wait(ctx, timeout)
	if errors.Is(err, errConfirmationTimeout) {
		return receipt, nil
	}
	if err != nil {
		return receipt, err
	}
	receipt.Confirmed = true
	receipt.ConsensusTimestamp = env.ConsensusTimestamp()
	receipt.SequenceNumber = env.SequenceNumber()
	return receipt, nil
}

func snapshotOf[T message.Payload](key string, e *message.Entry[T]) (*cache.Snapshot, error) {
	data, err := e.Envelope.Bytes()
	if err != nil {
		return nil, err
	}
	return &cache.Snapshot{
		Key:            key,
		Envelope:       data,
		CreatedAt:      e.CreatedAt(),
		UpdatedAt:      e.UpdatedAt(),
		SequenceNumber: e.Envelope.SequenceNumber(),
	}, nil
}

func openSnapshot[T message.Payload](snap *cache.Snapshot, decrypter message.Transform[T]) (*message.Envelope[T], T, error) {
	env, err := message.Decode[T](snap.Envelope)
	if err != nil {
		var zero T
		return nil, zero, err
	}
	payload, err := env.Open(decrypter)
	if err != nil {
		var zero T
		return nil, zero, err
	}
	return env, payload, nil
}
