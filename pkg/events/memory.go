package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is the reference in-memory event log. It is safe for
// concurrent use; appends to different aggregates do not block each other
// beyond the map access itself.
type MemoryStore struct {
	mu       sync.RWMutex
	streams  map[streamKey][]*Event
	byID     map[uuid.UUID]*Event
	byTenant map[uuid.UUID][]*Event
	schemas  *SchemaRegistry
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() (*MemoryStore, error) {
	schemas, err := NewSchemaRegistry()
	if err != nil {
		return nil, fmt.Errorf("build schema registry: %w", err)
	}
	return &MemoryStore{
		streams:  make(map[streamKey][]*Event),
		byID:     make(map[uuid.UUID]*Event),
		byTenant: make(map[uuid.UUID][]*Event),
		schemas:  schemas,
	}, nil
}

// Append commits an event. Either the event is fully committed or the store
// is left unchanged.
func (s *MemoryStore) Append(ctx context.Context, e *Event) (uuid.UUID, error) {
	if err := ValidateEnvelope(e); err != nil {
		return uuid.Nil, err
	}
	if err := s.schemas.Validate(e); err != nil {
		return uuid.Nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[e.EventID]; exists {
		return uuid.Nil, &DuplicateEventError{EventID: e.EventID}
	}

	key := streamKey{tenant: e.TenantID, aggregate: e.AggregateID}
	stream := s.streams[key]
	expected := uint64(len(stream)) + 1
	if e.Sequence != expected {
		return uuid.Nil, &SequenceConflictError{
			TenantID:    e.TenantID,
			AggregateID: e.AggregateID,
			Expected:    expected,
			Got:         e.Sequence,
		}
	}

	committed := e.Clone()
	if err := committed.ComputeHashes(); err != nil {
		return uuid.Nil, err
	}

	s.streams[key] = append(stream, committed)
	s.byID[committed.EventID] = committed
	s.byTenant[committed.TenantID] = append(s.byTenant[committed.TenantID], committed)

	// Reflect the committed hashes back to the caller's copy.
	e.PayloadHash = committed.PayloadHash
	e.EventHash = committed.EventHash

	return committed.EventID, nil
}

// Events returns an aggregate's events from fromSeq, ascending, as copies.
func (s *MemoryStore) Events(ctx context.Context, tenantID, aggregateID uuid.UUID, fromSeq uint64, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[streamKey{tenant: tenantID, aggregate: aggregateID}]
	if fromSeq <= 1 {
		fromSeq = 1
	}
	if fromSeq > uint64(len(stream)) {
		return nil, nil
	}

	// Sequences are gapless from 1, so the stream slice is directly
	// addressable by sequence.
	tail := stream[fromSeq-1:]
	if limit > 0 && limit < len(tail) {
		tail = tail[:limit]
	}

	out := make([]*Event, len(tail))
	for i, ev := range tail {
		out[i] = ev.Clone()
	}
	return out, nil
}

// AllEvents returns a tenant's events matching the filter, ordered by
// timestamp with sequence as tiebreaker.
func (s *MemoryStore) AllEvents(ctx context.Context, tenantID uuid.UUID, f Filter) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Event
	for _, ev := range s.byTenant[tenantID] {
		if f.matches(ev) {
			out = append(out, ev.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

// LastSequence returns the aggregate's highest committed sequence.
func (s *MemoryStore) LastSequence(ctx context.Context, tenantID, aggregateID uuid.UUID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.streams[streamKey{tenant: tenantID, aggregate: aggregateID}])), nil
}

// Get returns an event by ID within a tenant scope.
func (s *MemoryStore) Get(ctx context.Context, tenantID, eventID uuid.UUID) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.byID[eventID]
	if !ok || ev.TenantID != tenantID {
		// A foreign tenant's event is indistinguishable from a missing one.
		return nil, fmt.Errorf("event %s: %w", eventID, ErrEventNotFound)
	}
	return ev.Clone(), nil
}

// Count returns the number of committed events, optionally for one aggregate.
func (s *MemoryStore) Count(tenantID uuid.UUID, aggregateID *uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if aggregateID != nil {
		return len(s.streams[streamKey{tenant: tenantID, aggregate: *aggregateID}])
	}
	return len(s.byTenant[tenantID])
}

// Clear drops all events. Test-only; production code never removes events.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = make(map[streamKey][]*Event)
	s.byID = make(map[uuid.UUID]*Event)
	s.byTenant = make(map[uuid.UUID][]*Event)
}

// ValidateEnvelope checks the structural fields every event must carry.
// Stores call this before schema validation.
func ValidateEnvelope(e *Event) error {
	switch {
	case e == nil:
		return errors.New("nil event")
	case e.EventID == uuid.Nil:
		return errors.New("event has no event_id")
	case e.TenantID == uuid.Nil:
		return errors.New("event has no tenant_id")
	case e.AggregateID == uuid.Nil:
		return errors.New("event has no aggregate_id")
	case e.AggregateType == "":
		return errors.New("event has no aggregate_type")
	case e.EventType == "":
		return errors.New("event has no event_type")
	case e.Timestamp.IsZero():
		return errors.New("event has no timestamp")
	case len(e.Payload) == 0:
		return errors.New("event has no payload")
	}
	return nil
}
