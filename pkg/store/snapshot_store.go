package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/events"
)

const snapshotColumns = `snapshot_id, tenant_id, aggregate_id, aggregate_type,
	as_of_sequence, as_of_timestamp, state, created_by, reason`

// SQLiteSnapshotStore persists replay snapshots. Snapshots are disposable
// derived data; dropping the table loses nothing that a full replay cannot
// rebuild.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

var _ events.SnapshotStore = (*SQLiteSnapshotStore)(nil)

func NewSQLiteSnapshotStore(db *sql.DB) (*SQLiteSnapshotStore, error) {
	s := &SQLiteSnapshotStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSnapshotStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS snapshots (
		snapshot_id     TEXT PRIMARY KEY,
		tenant_id       TEXT NOT NULL,
		aggregate_id    TEXT NOT NULL,
		aggregate_type  TEXT NOT NULL,
		as_of_sequence  INTEGER NOT NULL,
		as_of_timestamp TEXT NOT NULL,
		state           JSON NOT NULL,
		created_by      TEXT NOT NULL DEFAULT '',
		reason          TEXT NOT NULL DEFAULT '',
		UNIQUE (tenant_id, aggregate_id, as_of_sequence)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Save stores a snapshot. Saving a second snapshot at the same sequence for
// the same aggregate replaces the first; both describe the same state.
func (s *SQLiteSnapshotStore) Save(ctx context.Context, snap *events.Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (`+snapshotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, aggregate_id, as_of_sequence) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			as_of_timestamp = excluded.as_of_timestamp,
			state = excluded.state,
			created_by = excluded.created_by,
			reason = excluded.reason`,
		snap.SnapshotID.String(),
		snap.TenantID.String(),
		snap.AggregateID.String(),
		string(snap.AggregateType),
		snap.AsOfSequence,
		snap.AsOfTimestamp.UTC().Format(time.RFC3339Nano),
		string(snap.State),
		snap.CreatedBy,
		snap.Reason,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// NearestBefore returns the newest snapshot at or before maxSeq, or nil.
func (s *SQLiteSnapshotStore) NearestBefore(ctx context.Context, tenantID, aggregateID uuid.UUID, maxSeq uint64) (*events.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		WHERE tenant_id = ? AND aggregate_id = ? AND as_of_sequence <= ?
		ORDER BY as_of_sequence DESC LIMIT 1`,
		tenantID.String(), aggregateID.String(), maxSeq)
	return scanSnapshot(row)
}

// NearestBeforeTime returns the newest snapshot at or before t, or nil.
func (s *SQLiteSnapshotStore) NearestBeforeTime(ctx context.Context, tenantID, aggregateID uuid.UUID, t time.Time) (*events.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		WHERE tenant_id = ? AND aggregate_id = ? AND as_of_timestamp <= ?
		ORDER BY as_of_sequence DESC LIMIT 1`,
		tenantID.String(), aggregateID.String(), t.UTC().Format(time.RFC3339Nano))
	return scanSnapshot(row)
}

// Latest returns the aggregate's newest snapshot, or nil.
func (s *SQLiteSnapshotStore) Latest(ctx context.Context, tenantID, aggregateID uuid.UUID) (*events.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		WHERE tenant_id = ? AND aggregate_id = ?
		ORDER BY as_of_sequence DESC LIMIT 1`,
		tenantID.String(), aggregateID.String())
	return scanSnapshot(row)
}

func scanSnapshot(row *sql.Row) (*events.Snapshot, error) {
	var (
		snap                       events.Snapshot
		snapshotID, tenantID       string
		aggregateID, aggregateType string
		tsText, state              string
	)
	err := row.Scan(&snapshotID, &tenantID, &aggregateID, &aggregateType,
		&snap.AsOfSequence, &tsText, &state, &snap.CreatedBy, &snap.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	if snap.SnapshotID, err = uuid.Parse(snapshotID); err != nil {
		return nil, fmt.Errorf("parse snapshot_id %q: %w", snapshotID, err)
	}
	if snap.TenantID, err = uuid.Parse(tenantID); err != nil {
		return nil, fmt.Errorf("parse tenant_id %q: %w", tenantID, err)
	}
	if snap.AggregateID, err = uuid.Parse(aggregateID); err != nil {
		return nil, fmt.Errorf("parse aggregate_id %q: %w", aggregateID, err)
	}
	snap.AggregateType = events.AggregateType(aggregateType)
	if snap.AsOfTimestamp, err = time.Parse(time.RFC3339Nano, tsText); err != nil {
		return nil, fmt.Errorf("parse as_of_timestamp %q: %w", tsText, err)
	}
	snap.State = json.RawMessage(state)
	return &snap, nil
}
