package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/events"
)

// SnapshotPolicy decides when an aggregate has drifted far enough from its
// last snapshot to warrant a new one.
type SnapshotPolicy struct {
	// EveryN triggers a snapshot once the aggregate is at least EveryN
	// events ahead of the newest snapshot. Zero disables count-based
	// snapshotting.
	EveryN uint64
	// MaxAge triggers a snapshot once the newest snapshot is older than
	// MaxAge. Zero disables age-based snapshotting.
	MaxAge time.Duration
}

// DefaultSnapshotPolicy snapshots every 100 events.
var DefaultSnapshotPolicy = SnapshotPolicy{EveryN: 100}

// SnapshotManager builds and stores replay snapshots. Snapshots are an
// optimization only: deleting every snapshot and replaying from sequence 1
// yields the same state.
type SnapshotManager struct {
	engine *Engine
	store  events.Store
	snaps  events.SnapshotStore
	policy SnapshotPolicy
	clock  func() time.Time
}

func NewSnapshotManager(engine *Engine, store events.Store, snaps events.SnapshotStore, policy SnapshotPolicy) *SnapshotManager {
	return &SnapshotManager{
		engine: engine,
		store:  store,
		snaps:  snaps,
		policy: policy,
		clock:  time.Now,
	}
}

// WithClock overrides the time source. Tests use this to pin snapshot
// timestamps.
func (m *SnapshotManager) WithClock(clock func() time.Time) *SnapshotManager {
	m.clock = clock
	return m
}

// CreateSnapshot replays the aggregate to its current head and persists the
// resulting state. Returns the stored snapshot.
func (m *SnapshotManager) CreateSnapshot(ctx context.Context, tenantID, aggregateID uuid.UUID, createdBy, reason string) (*events.Snapshot, error) {
	head, err := m.store.LastSequence(ctx, tenantID, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("last sequence: %w", err)
	}
	if head == 0 {
		return nil, fmt.Errorf("aggregate %s has no events", aggregateID)
	}

	state, err := m.engine.ReplayToSequence(ctx, tenantID, aggregateID, head)
	if err != nil {
		return nil, err
	}

	encoded, err := state.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	snap := &events.Snapshot{
		SnapshotID:    uuid.New(),
		TenantID:      tenantID,
		AggregateID:   aggregateID,
		AggregateType: state.AggregateType,
		AsOfSequence:  state.Sequence,
		AsOfTimestamp: m.clock().UTC(),
		State:         encoded,
		CreatedBy:     createdBy,
		Reason:        reason,
	}
	if err := m.snaps.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	return snap, nil
}

// MaybeSnapshot applies the manager's policy and creates a snapshot only when
// the aggregate is due for one. Returns nil, nil when no snapshot was needed.
func (m *SnapshotManager) MaybeSnapshot(ctx context.Context, tenantID, aggregateID uuid.UUID, createdBy string) (*events.Snapshot, error) {
	due, reason, err := m.due(ctx, tenantID, aggregateID)
	if err != nil {
		return nil, err
	}
	if !due {
		return nil, nil
	}
	return m.CreateSnapshot(ctx, tenantID, aggregateID, createdBy, reason)
}

func (m *SnapshotManager) due(ctx context.Context, tenantID, aggregateID uuid.UUID) (bool, string, error) {
	head, err := m.store.LastSequence(ctx, tenantID, aggregateID)
	if err != nil {
		return false, "", fmt.Errorf("last sequence: %w", err)
	}
	if head == 0 {
		return false, "", nil
	}

	latest, err := m.snaps.Latest(ctx, tenantID, aggregateID)
	if err != nil {
		return false, "", fmt.Errorf("latest snapshot: %w", err)
	}

	var behind uint64
	if latest == nil {
		behind = head
	} else {
		behind = head - latest.AsOfSequence
	}

	if m.policy.EveryN > 0 && behind >= m.policy.EveryN {
		return true, fmt.Sprintf("%d events since last snapshot", behind), nil
	}
	if m.policy.MaxAge > 0 && latest != nil && behind > 0 && m.clock().Sub(latest.AsOfTimestamp) >= m.policy.MaxAge {
		return true, "snapshot age exceeded", nil
	}
	return false, "", nil
}
