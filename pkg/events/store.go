package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows AllEvents queries. All set fields apply conjunctively.
type Filter struct {
	EventTypes []EventType
	From       time.Time // inclusive; zero means unbounded
	To         time.Time // inclusive; zero means unbounded
}

func (f Filter) matches(e *Event) bool {
	if len(f.EventTypes) > 0 {
		ok := false
		for _, et := range f.EventTypes {
			if e.EventType == et {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Store is the append-only event log contract. Append is the only mutating
// operation; everything else is a pure read over the committed log. Every
// read is scoped by tenant: streams are keyed by (tenant, aggregate), so an
// aggregate ID colliding across tenants never aliases.
type Store interface {
	// Append commits an event. It rejects a sequence number that is not
	// exactly the aggregate's last committed sequence plus one
	// (SequenceConflictError) and an event_id that already exists
	// (DuplicateEventError). On success the event is permanently
	// retrievable and its hashes are set.
	Append(ctx context.Context, e *Event) (uuid.UUID, error)

	// Events returns an aggregate's events in ascending sequence order,
	// starting at fromSeq (0 and 1 both mean "from the beginning"). A
	// positive limit caps the page size for chunked replay; limit <= 0
	// returns everything.
	Events(ctx context.Context, tenantID, aggregateID uuid.UUID, fromSeq uint64, limit int) ([]*Event, error)

	// AllEvents returns a tenant's events matching the filter, ordered by
	// timestamp (sequence breaks ties).
	AllEvents(ctx context.Context, tenantID uuid.UUID, f Filter) ([]*Event, error)

	// LastSequence returns the aggregate's highest committed sequence, 0 if
	// the aggregate has no events.
	LastSequence(ctx context.Context, tenantID, aggregateID uuid.UUID) (uint64, error)
}

// streamKey scopes an aggregate stream to its tenant.
type streamKey struct {
	tenant    uuid.UUID
	aggregate uuid.UUID
}
