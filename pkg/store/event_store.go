package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/events"
)

const eventColumns = `event_id, tenant_id, aggregate_id, aggregate_type, event_type,
	sequence_number, timestamp, payload, actor_id, schema_version, payload_hash, event_hash`

// SQLiteEventStore is the durable event log. The UNIQUE constraint on
// (tenant_id, aggregate_id, sequence_number) backs the gapless-sequence
// guarantee at the storage layer, so a conflicting append can never commit
// even under concurrent writers.
type SQLiteEventStore struct {
	db      *sql.DB
	schemas *events.SchemaRegistry
}

var _ events.Store = (*SQLiteEventStore)(nil)

func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	schemas, err := events.NewSchemaRegistry()
	if err != nil {
		return nil, fmt.Errorf("build schema registry: %w", err)
	}
	s := &SQLiteEventStore{db: db, schemas: schemas}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		event_id        TEXT PRIMARY KEY,
		tenant_id       TEXT NOT NULL,
		aggregate_id    TEXT NOT NULL,
		aggregate_type  TEXT NOT NULL,
		event_type      TEXT NOT NULL,
		sequence_number INTEGER NOT NULL,
		timestamp       TEXT NOT NULL,
		payload         JSON NOT NULL,
		actor_id        TEXT NOT NULL DEFAULT '',
		schema_version  INTEGER NOT NULL,
		payload_hash    TEXT NOT NULL,
		event_hash      TEXT NOT NULL,
		UNIQUE (tenant_id, aggregate_id, sequence_number)
	);
	CREATE INDEX IF NOT EXISTS idx_events_tenant_time
		ON events (tenant_id, timestamp);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Append commits one event. The insert and the sequence check run in a
// single transaction; the UNIQUE constraint catches races the pre-check
// cannot see.
func (s *SQLiteEventStore) Append(ctx context.Context, e *events.Event) (uuid.UUID, error) {
	if err := events.ValidateEnvelope(e); err != nil {
		return uuid.Nil, err
	}
	if err := s.schemas.Validate(e); err != nil {
		return uuid.Nil, err
	}

	committed := e.Clone()
	if err := committed.ComputeHashes(); err != nil {
		return uuid.Nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last uint64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM events WHERE tenant_id = ? AND aggregate_id = ?`,
		committed.TenantID.String(), committed.AggregateID.String(),
	).Scan(&last)
	if err != nil {
		return uuid.Nil, fmt.Errorf("read last sequence: %w", err)
	}
	if committed.Sequence != last+1 {
		return uuid.Nil, &events.SequenceConflictError{
			TenantID:    committed.TenantID,
			AggregateID: committed.AggregateID,
			Expected:    last + 1,
			Got:         committed.Sequence,
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		committed.EventID.String(),
		committed.TenantID.String(),
		committed.AggregateID.String(),
		string(committed.AggregateType),
		string(committed.EventType),
		committed.Sequence,
		committed.Timestamp.UTC().Format(time.RFC3339Nano),
		string(committed.Payload),
		committed.ActorID,
		committed.SchemaVersion,
		committed.PayloadHash,
		committed.EventHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if _, dupErr := s.Get(ctx, committed.TenantID, committed.EventID); dupErr == nil {
				return uuid.Nil, &events.DuplicateEventError{EventID: committed.EventID}
			}
			return uuid.Nil, &events.SequenceConflictError{
				TenantID:    committed.TenantID,
				AggregateID: committed.AggregateID,
				Expected:    last + 1,
				Got:         committed.Sequence,
			}
		}
		return uuid.Nil, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit append: %w", err)
	}

	e.PayloadHash = committed.PayloadHash
	e.EventHash = committed.EventHash
	return committed.EventID, nil
}

// Events returns an aggregate's events from fromSeq, ascending.
func (s *SQLiteEventStore) Events(ctx context.Context, tenantID, aggregateID uuid.UUID, fromSeq uint64, limit int) ([]*events.Event, error) {
	if fromSeq <= 1 {
		fromSeq = 1
	}
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE tenant_id = ? AND aggregate_id = ? AND sequence_number >= ?
		ORDER BY sequence_number ASC`
	args := []interface{}{tenantID.String(), aggregateID.String(), fromSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// AllEvents returns a tenant's events matching the filter, ordered by
// timestamp with sequence as tiebreaker.
func (s *SQLiteEventStore) AllEvents(ctx context.Context, tenantID uuid.UUID, f events.Filter) ([]*events.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE tenant_id = ?`
	args := []interface{}{tenantID.String()}

	if len(f.EventTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.EventTypes)), ", ")
		query += ` AND event_type IN (` + placeholders + `)`
		for _, et := range f.EventTypes {
			args = append(args, string(et))
		}
	}
	if !f.From.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, f.From.UTC().Format(time.RFC3339Nano))
	}
	if !f.To.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, f.To.UTC().Format(time.RFC3339Nano))
	}
	query += ` ORDER BY timestamp ASC, sequence_number ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tenant events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// LastSequence returns the aggregate's highest committed sequence.
func (s *SQLiteEventStore) LastSequence(ctx context.Context, tenantID, aggregateID uuid.UUID) (uint64, error) {
	var last uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM events WHERE tenant_id = ? AND aggregate_id = ?`,
		tenantID.String(), aggregateID.String(),
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("read last sequence: %w", err)
	}
	return last, nil
}

// Get returns an event by ID within a tenant scope.
func (s *SQLiteEventStore) Get(ctx context.Context, tenantID, eventID uuid.UUID) (*events.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE event_id = ? AND tenant_id = ?`,
		eventID.String(), tenantID.String())

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		// A foreign tenant's event is indistinguishable from a missing one.
		return nil, fmt.Errorf("event %s: %w", eventID, events.ErrEventNotFound)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*events.Event, error) {
	var (
		ev                               events.Event
		eventID, tenantID, aggregateID   string
		aggregateType, eventType, tsText string
		payload                          string
	)
	err := row.Scan(&eventID, &tenantID, &aggregateID, &aggregateType, &eventType,
		&ev.Sequence, &tsText, &payload, &ev.ActorID, &ev.SchemaVersion,
		&ev.PayloadHash, &ev.EventHash)
	if err != nil {
		return nil, err
	}

	if ev.EventID, err = uuid.Parse(eventID); err != nil {
		return nil, fmt.Errorf("parse event_id %q: %w", eventID, err)
	}
	if ev.TenantID, err = uuid.Parse(tenantID); err != nil {
		return nil, fmt.Errorf("parse tenant_id %q: %w", tenantID, err)
	}
	if ev.AggregateID, err = uuid.Parse(aggregateID); err != nil {
		return nil, fmt.Errorf("parse aggregate_id %q: %w", aggregateID, err)
	}
	ev.AggregateType = events.AggregateType(aggregateType)
	ev.EventType = events.EventType(eventType)
	if ev.Timestamp, err = time.Parse(time.RFC3339Nano, tsText); err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", tsText, err)
	}
	ev.Payload = json.RawMessage(payload)
	return &ev, nil
}

func scanEvents(rows *sql.Rows) ([]*events.Event, error) {
	var out []*events.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
