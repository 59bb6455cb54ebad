package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"ledgerid/pkg/platform/tx"
)

// PostgresStore persists events in the audit_events table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on a migrated database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertEvent = `
	INSERT INTO audit_events (id, occurred_at, action, subject, topic_id, transaction_id, outcome, detail)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING
`

// Append inserts the event, joining the transaction in ctx if any.
// Re-appending the same ID is a no-op.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, insertEvent,
		event.ID,
		event.Timestamp,
		string(event.Action),
		event.Subject,
		event.TopicID,
		event.TransactionID,
		string(event.Outcome),
		event.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// AppendBatch inserts events atomically.
func (s *PostgresStore) AppendBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	return tx.Run(ctx, s.db, func(ctx context.Context) error {
		for _, event := range events {
			if err := s.Append(ctx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListBySubject returns the subject's events, oldest first.
func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	return s.ListBySubjects(ctx, []string{subject})
}

// ListBySubjects returns the events of any of subjects, oldest first.
func (s *PostgresStore) ListBySubjects(ctx context.Context, subjects []string) ([]Event, error) {
	query := `
		SELECT id, occurred_at, action, subject, topic_id, transaction_id, outcome, detail
		FROM audit_events
		WHERE subject = ANY($1)
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, query, pq.Array(subjects))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return scanEvents(rows)
}

// ListRecent returns up to limit events, most recent first.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, occurred_at, action, subject, topic_id, transaction_id, outcome, detail
		FROM audit_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT $1
	`
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit events: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var (
			e       Event
			action  string
			outcome string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &action, &e.Subject, &e.TopicID, &e.TransactionID, &outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		e.Outcome = Outcome(outcome)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
