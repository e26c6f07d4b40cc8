package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a cached, regenerable projection of an aggregate's replayed
// state at a sequence cut. Replaying from sequence 0 must always equal
// replaying from the snapshot plus subsequent events; a snapshot is purely a
// performance cache and can be discarded at any time.
type Snapshot struct {
	SnapshotID    uuid.UUID       `json:"snapshot_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	AsOfSequence  uint64          `json:"as_of_sequence"`
	AsOfTimestamp time.Time       `json:"as_of_timestamp"`
	State         json.RawMessage `json:"state"`
	CreatedBy     string          `json:"created_by,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// SnapshotStore persists snapshots. The latest snapshot per
// (tenant, aggregate) at or below a cut wins; lookups return nil when no
// applicable snapshot exists.
type SnapshotStore interface {
	Save(ctx context.Context, s *Snapshot) error

	// NearestBefore returns the latest snapshot with AsOfSequence <= maxSeq.
	NearestBefore(ctx context.Context, tenantID, aggregateID uuid.UUID, maxSeq uint64) (*Snapshot, error)

	// NearestBeforeTime returns the latest snapshot with AsOfTimestamp <= t.
	NearestBeforeTime(ctx context.Context, tenantID, aggregateID uuid.UUID, t time.Time) (*Snapshot, error)

	// Latest returns the most recent snapshot for the aggregate.
	Latest(ctx context.Context, tenantID, aggregateID uuid.UUID) (*Snapshot, error)
}

// MemorySnapshotStore is the in-memory snapshot store. Snapshots for one
// aggregate are held in ascending sequence order.
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[streamKey][]*Snapshot
}

// NewMemorySnapshotStore creates an empty snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[streamKey][]*Snapshot)}
}

// Save stores a snapshot.
func (s *MemorySnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{tenant: snap.TenantID, aggregate: snap.AggregateID}
	cp := *snap
	cp.State = append(json.RawMessage(nil), snap.State...)

	list := s.snapshots[key]
	// Appends arrive in sequence order in practice; keep the invariant if not.
	i := len(list)
	for i > 0 && list[i-1].AsOfSequence > cp.AsOfSequence {
		i--
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = &cp
	s.snapshots[key] = list
	return nil
}

// NearestBefore returns the latest snapshot at or below maxSeq, or nil.
func (s *MemorySnapshotStore) NearestBefore(ctx context.Context, tenantID, aggregateID uuid.UUID, maxSeq uint64) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.snapshots[streamKey{tenant: tenantID, aggregate: aggregateID}]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].AsOfSequence <= maxSeq {
			return cloneSnapshot(list[i]), nil
		}
	}
	return nil, nil
}

// NearestBeforeTime returns the latest snapshot at or before t, or nil.
func (s *MemorySnapshotStore) NearestBeforeTime(ctx context.Context, tenantID, aggregateID uuid.UUID, t time.Time) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.snapshots[streamKey{tenant: tenantID, aggregate: aggregateID}]
	for i := len(list) - 1; i >= 0; i-- {
		if !list[i].AsOfTimestamp.After(t) {
			return cloneSnapshot(list[i]), nil
		}
	}
	return nil, nil
}

// Latest returns the most recent snapshot, or nil.
func (s *MemorySnapshotStore) Latest(ctx context.Context, tenantID, aggregateID uuid.UUID) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.snapshots[streamKey{tenant: tenantID, aggregate: aggregateID}]
	if len(list) == 0 {
		return nil, nil
	}
	return cloneSnapshot(list[len(list)-1]), nil
}

func cloneSnapshot(s *Snapshot) *Snapshot {
	cp := *s
	cp.State = append(json.RawMessage(nil), s.State...)
	return &cp
}
