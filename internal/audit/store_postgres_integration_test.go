//go:build integration

package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"ledgerid/internal/audit"
	"ledgerid/pkg/platform/tx"
	"ledgerid/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *audit.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = audit.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "audit_events")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestAppendAndListBySubject() {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	created := audit.Event{
		ID:            uuid.New(),
		Timestamp:     base,
		Action:        audit.ActionDIDRegistered,
		Subject:       "did:hedera:testnet:z6Mk_0.0.7",
		TopicID:       "0.0.7",
		TransactionID: "0.0.7@1",
		Outcome:       audit.OutcomeSucceeded,
	}
	deleted := created
	deleted.ID = uuid.New()
	deleted.Timestamp = base.Add(time.Minute)
	deleted.Action = audit.ActionDIDDeleted
	deleted.TransactionID = "0.0.7@2"

	s.Require().NoError(s.store.Append(ctx, deleted))
	s.Require().NoError(s.store.Append(ctx, created))
	s.Require().NoError(s.store.Append(ctx, created), "re-append is a no-op")

	events, err := s.store.ListBySubject(ctx, created.Subject)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(audit.ActionDIDRegistered, events[0].Action)
	s.Equal(audit.ActionDIDDeleted, events[1].Action)
	s.Equal("0.0.7@1", events[0].TransactionID)
	s.True(events[0].Timestamp.Equal(base))
}

func (s *PostgresStoreSuite) TestListBySubjects() {
	ctx := context.Background()
	for _, subject := range []string{"a", "b", "c"} {
		s.Require().NoError(s.store.Append(ctx, audit.Event{
			ID:        uuid.New(),
			Timestamp: time.Now().UTC(),
			Action:    audit.ActionStatusChecked,
			Subject:   subject,
			Outcome:   audit.OutcomeSucceeded,
		}))
	}

	events, err := s.store.ListBySubjects(ctx, []string{"a", "c"})
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *PostgresStoreSuite) TestListRecent() {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		s.Require().NoError(s.store.Append(ctx, audit.Event{
			ID:        uuid.New(),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Action:    audit.ActionDIDResolved,
			Subject:   "did:x",
			Outcome:   audit.OutcomeFailed,
			Detail:    "idle timeout",
		}))
	}

	events, err := s.store.ListRecent(ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.True(events[0].Timestamp.Equal(base.Add(3 * time.Second)))
	s.Equal(audit.OutcomeFailed, events[0].Outcome)
	s.Equal("idle timeout", events[0].Detail)
}

func (s *PostgresStoreSuite) TestPublisherEmitsThroughPostgres() {
	ctx := context.Background()
	pub := audit.NewPublisher(s.store)

	s.Require().NoError(pub.Emit(ctx, audit.Event{
		Action:  audit.ActionCredentialIssued,
		Subject: "credential-hash",
	}))

	events, err := pub.List(ctx, "credential-hash")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.OutcomeSucceeded, events[0].Outcome)
}

func (s *PostgresStoreSuite) TestAppendBatch() {
	ctx := context.Background()
	events := []audit.Event{
		{ID: uuid.New(), Timestamp: time.Now().UTC(), Action: audit.ActionDIDResolved, Subject: "batch", Outcome: audit.OutcomeSucceeded},
		{ID: uuid.New(), Timestamp: time.Now().UTC(), Action: audit.ActionStatusChecked, Subject: "batch", Outcome: audit.OutcomeSucceeded},
	}
	s.Require().NoError(s.store.AppendBatch(ctx, events))

	stored, err := s.store.ListBySubject(ctx, "batch")
	s.Require().NoError(err)
	s.Len(stored, 2)
}

func (s *PostgresStoreSuite) TestAppendJoinsCallerTransaction() {
	ctx := context.Background()
	errAbort := errors.New("abort")

	err := tx.Run(ctx, s.postgres.DB, func(ctx context.Context) error {
		if err := s.store.Append(ctx, audit.Event{
			ID:        uuid.New(),
			Timestamp: time.Now().UTC(),
			Action:    audit.ActionDIDRegistered,
			Subject:   "rolled-back",
			Outcome:   audit.OutcomeSucceeded,
		}); err != nil {
			return err
		}
		return errAbort
	})
	s.Require().ErrorIs(err, errAbort)

	stored, err := s.store.ListBySubject(ctx, "rolled-back")
	s.Require().NoError(err)
	s.Empty(stored)
}
