package events

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrEventNotFound is returned when a requested event does not exist in the
// caller's tenant scope.
var ErrEventNotFound = errors.New("event not found")

// SequenceConflictError reports a non-contiguous append: the event's sequence
// number is not exactly the aggregate's last committed sequence plus one.
type SequenceConflictError struct {
	TenantID    uuid.UUID
	AggregateID uuid.UUID
	Expected    uint64
	Got         uint64
}

func (e *SequenceConflictError) Error() string {
	return fmt.Sprintf("sequence conflict on aggregate %s: expected %d, got %d",
		e.AggregateID, e.Expected, e.Got)
}

// DuplicateEventError reports an append with an event_id that already exists.
// Appends are idempotent on event_id: the original event is untouched.
type DuplicateEventError struct {
	EventID uuid.UUID
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("event %s already exists", e.EventID)
}

// IntegrityError reports an event whose stored hash no longer matches its
// content. This is a fatal corruption signal, not a business error.
type IntegrityError struct {
	EventID uuid.UUID
	Field   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("event %s failed integrity check (%s hash mismatch)", e.EventID, e.Field)
}

// SchemaError reports an event payload that does not conform to the schema
// registered for its event type. The append is rejected.
type SchemaError struct {
	EventType EventType
	Cause     error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("payload does not match schema for %s: %v", e.EventType, e.Cause)
}

func (e *SchemaError) Unwrap() error { return e.Cause }
