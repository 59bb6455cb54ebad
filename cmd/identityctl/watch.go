package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"ledgerid/internal/did"
	"ledgerid/internal/message"
	"ledgerid/internal/transport"
	"ledgerid/internal/vc"
)

type watchEvent struct {
	Topic              string    `json:"topic"`
	SequenceNumber     uint64    `json:"sequence_number"`
	ConsensusTimestamp time.Time `json:"consensus_timestamp"`
	Operation          string    `json:"operation"`
	Subject            string    `json:"subject"`
}

// lineWriter serializes JSON lines written from listener goroutines. With a
// limit, write reports false once the limit has been reached.
type lineWriter struct {
	mu      sync.Mutex
	enc     *json.Encoder
	limit   uint64
	written uint64
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{enc: json.NewEncoder(w)}
}

func (w *lineWriter) limited(n uint64) *lineWriter {
	w.limit = n
	return w
}

func (w *lineWriter) write(v any) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(v)
	w.written++
	return w.limit == 0 || w.written < w.limit
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "stream accepted messages from the DID or VC topic and serve metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "topic", Value: "did", Usage: "did or vc"},
			&cli.DurationFlag{Name: "since", Usage: "start this far in the past (default: from the beginning)"},
			&cli.Uint64Flag{Name: "limit", Usage: "stop after reading this many topic messages, valid or not"},
			&cli.BoolFlag{Name: "no-ops", Usage: "do not serve /metrics and /healthz"},
			trustedIssuersFlag,
		},
		Action: func(c *cli.Context) error {
			keys, err := issuerKeys(c)
			if err != nil {
				return err
			}
			rt, err := newRuntime(c, keys.provider())
			if err != nil {
				return err
			}
			defer rt.close()

			opts := rt.messageOptions()
			if since := c.Duration("since"); since > 0 {
				opts = append(opts, message.WithStartTime(time.Now().Add(-since)))
			}
			limit := c.Uint64("limit")
			if limit > 0 {
				opts = append(opts, message.WithLimit(limit))
			}
			opts = append(opts, message.WithIgnoreErrors())

			out := newLineWriter(c.App.Writer)
			return rt.run(c.Context, !c.Bool("no-ops"), func(ctx context.Context) error {
				switch c.String("topic") {
				case "did":
					return watchDIDs(ctx, rt.client, rt.cfg.DIDTopic, out.limited(limit), opts)
				case "vc":
					return watchStatuses(ctx, rt.client, rt.cfg.VCTopic, keys.provider(), out.limited(limit), opts)
				default:
					return fmt.Errorf("unknown topic %q, want did or vc", c.String("topic"))
				}
			})
		},
	}
}

func watchDIDs(ctx context.Context, client transport.Subscriber, topicID string, out *lineWriter, opts []message.Option) error {
	listener := did.NewListener(topicID, opts...)
	err := listener.Subscribe(ctx, client, func(env *did.Envelope) {
		payload, err := env.Open(nil)
		if err != nil {
			return
		}
		more := out.write(watchEvent{
			Topic:              topicID,
			SequenceNumber:     env.SequenceNumber(),
			ConsensusTimestamp: env.ConsensusTimestamp(),
			Operation:          string(payload.Operation),
			Subject:            payload.DID,
		})
		if !more {
			listener.Unsubscribe()
		}
	})
	if err != nil {
		return err
	}
	return waitListener(ctx, listener.Done(), listener.Err, listener.Unsubscribe)
}

func watchStatuses(ctx context.Context, client transport.Subscriber, topicID string, keys vc.KeyProvider, out *lineWriter, opts []message.Option) error {
	listener := vc.NewListener(topicID, keys, opts...)
	err := listener.Subscribe(ctx, client, func(env *vc.Envelope) {
		payload, err := env.Open(nil)
		if err != nil {
			return
		}
		more := out.write(watchEvent{
			Topic:              topicID,
			SequenceNumber:     env.SequenceNumber(),
			ConsensusTimestamp: env.ConsensusTimestamp(),
			Operation:          string(payload.Operation),
			Subject:            payload.CredentialHash,
		})
		if !more {
			listener.Unsubscribe()
		}
	})
	if err != nil {
		return err
	}
	return waitListener(ctx, listener.Done(), listener.Err, listener.Unsubscribe)
}

func waitListener(ctx context.Context, done <-chan struct{}, errFn func() error, unsubscribe func()) error {
	select {
	case <-ctx.Done():
		unsubscribe()
		return nil
	case <-done:
		return errFn()
	}
}
