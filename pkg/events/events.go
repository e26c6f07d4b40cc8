// Package events provides the append-only financial event log: the event
// envelope, per-event-type payload variants, payload schema validation, the
// store contract, and an in-memory reference store.
//
// Events are immutable facts. They are appended once with a gapless,
// per-(tenant, aggregate) sequence starting at 1, and never modified or
// removed afterwards. Current state is always derived by replaying events.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/canonicalize"
)

// AggregateType identifies the kind of entity an event stream belongs to.
type AggregateType string

const (
	AggregateMember      AggregateType = "member"
	AggregateFund        AggregateType = "fund"
	AggregateTransaction AggregateType = "transaction"
	AggregateProperty    AggregateType = "property"
)

// EventType identifies what happened.
type EventType string

const (
	// Transaction events
	EventTransactionCreated EventType = "transaction_created"
	EventTransactionPosted  EventType = "transaction_posted"
	EventTransactionVoided  EventType = "transaction_voided"

	// Ledger entry events
	EventEntryPosted   EventType = "ledger_entry_created"
	EventEntryReversed EventType = "ledger_entry_reversed"

	// Member events
	EventMemberCreated     EventType = "member_created"
	EventMemberUpdated     EventType = "member_updated"
	EventMemberDeactivated EventType = "member_deactivated"

	// Property events
	EventPropertyCreated EventType = "property_created"

	// Fund events
	EventFundCreated EventType = "fund_created"
	EventFundUpdated EventType = "fund_updated"
	EventFundClosed  EventType = "fund_closed"

	// Payment events
	EventPaymentReceived EventType = "payment_received"
	EventPaymentRefunded EventType = "payment_refunded"

	// Balance events
	EventBalanceAdjusted EventType = "balance_adjusted"
)

// SchemaVersion is the current event schema version.
const SchemaVersion = 1

// Event is an immutable record in the event log. Once appended, equality and
// hash of a retrieved event must match what was appended.
type Event struct {
	EventID       uuid.UUID       `json:"event_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	Sequence      uint64          `json:"sequence_number"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	ActorID       string          `json:"actor_id,omitempty"`
	SchemaVersion int             `json:"schema_version"`

	// Set by the store at append time.
	PayloadHash string `json:"payload_hash,omitempty"`
	EventHash   string `json:"event_hash,omitempty"`
}

// New builds an event envelope around a typed payload. The sequence number
// must be the aggregate's next sequence; the store rejects anything else.
func New(tenantID, aggregateID uuid.UUID, at AggregateType, et EventType, payload interface{}, seq uint64, ts time.Time, actorID string) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", et, err)
	}
	return &Event{
		EventID:       uuid.New(),
		TenantID:      tenantID,
		AggregateID:   aggregateID,
		AggregateType: at,
		EventType:     et,
		Sequence:      seq,
		Timestamp:     ts.UTC(),
		Payload:       raw,
		ActorID:       actorID,
		SchemaVersion: SchemaVersion,
	}, nil
}

// ComputeHashes derives the payload hash and event hash over canonical JSON.
// The event hash covers every identity field, so any later structural change
// is detectable.
func (e *Event) ComputeHashes() error {
	payloadHash, err := canonicalize.CanonicalHash(e.Payload)
	if err != nil {
		return fmt.Errorf("hash payload of %s: %w", e.EventID, err)
	}
	e.PayloadHash = payloadHash

	eventHash, err := canonicalize.CanonicalHash(e.hashInput())
	if err != nil {
		return fmt.Errorf("hash event %s: %w", e.EventID, err)
	}
	e.EventHash = eventHash
	return nil
}

// VerifyIntegrity recomputes both hashes and compares them to the stored
// values. A mismatch means the event was structurally altered after commit.
func (e *Event) VerifyIntegrity() error {
	payloadHash, err := canonicalize.CanonicalHash(e.Payload)
	if err != nil {
		return fmt.Errorf("hash payload of %s: %w", e.EventID, err)
	}
	if payloadHash != e.PayloadHash {
		return &IntegrityError{EventID: e.EventID, Field: "payload"}
	}

	eventHash, err := canonicalize.CanonicalHash(e.hashInput())
	if err != nil {
		return fmt.Errorf("hash event %s: %w", e.EventID, err)
	}
	if eventHash != e.EventHash {
		return &IntegrityError{EventID: e.EventID, Field: "envelope"}
	}
	return nil
}

func (e *Event) hashInput() map[string]interface{} {
	return map[string]interface{}{
		"event_id":        e.EventID.String(),
		"tenant_id":       e.TenantID.String(),
		"aggregate_id":    e.AggregateID.String(),
		"aggregate_type":  string(e.AggregateType),
		"event_type":      string(e.EventType),
		"sequence_number": e.Sequence,
		"timestamp":       e.Timestamp.UTC().Format(time.RFC3339Nano),
		"payload_hash":    e.PayloadHash,
		"actor_id":        e.ActorID,
		"schema_version":  e.SchemaVersion,
	}
}

// Clone returns a deep copy of the event. Stores hand out clones so callers
// can never mutate the committed log through a returned pointer.
func (e *Event) Clone() *Event {
	cp := *e
	cp.Payload = append(json.RawMessage(nil), e.Payload...)
	return &cp
}
