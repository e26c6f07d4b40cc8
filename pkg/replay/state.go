// Package replay reconstructs aggregate state by folding committed events
// through pure, per-aggregate-type reducers, optionally seeded by a snapshot.
//
// Determinism is the contract: replaying the same event range twice yields
// bit-identical state, and replaying from a snapshot equals replaying from
// scratch. Reducers never read the clock and never perform I/O.
package replay

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/canonicalize"
	"github.com/stratafin/ledgercore/pkg/events"
	"github.com/stratafin/ledgercore/pkg/ledger"
	"github.com/stratafin/ledgercore/pkg/money"
)

// MemberState is the replayed state of a member aggregate.
type MemberState struct {
	Name             string       `json:"name,omitempty"`
	Unit             string       `json:"unit,omitempty"`
	Email            string       `json:"email,omitempty"`
	Active           bool         `json:"active"`
	TotalPaid        money.Amount `json:"total_paid"`
	TotalOwed        money.Amount `json:"total_owed"`
	Balance          money.Amount `json:"balance"` // total_paid - total_owed
	TransactionCount int          `json:"transaction_count"`
}

// FundState is the replayed state of a fund aggregate. Entry statuses track
// the POSTED -> REVERSED lifecycle; entries never leave the map.
type FundState struct {
	Name                 string          `json:"name,omitempty"`
	Type                 ledger.FundType `json:"fund_type,omitempty"`
	AllowNegativeBalance bool            `json:"allow_negative_balance"`
	MinimumBalance       money.Amount    `json:"minimum_balance"`
	TargetBalance        money.Amount    `json:"target_balance"`
	Closed               bool            `json:"closed"`
	TotalDebits          money.Amount    `json:"total_debits"`
	TotalCredits         money.Amount    `json:"total_credits"`
	DebitEntries         int             `json:"debit_entries"`
	CreditEntries        int             `json:"credit_entries"`
	Balance              money.Amount    `json:"balance"` // credits - debits

	// EntryStatuses maps entry id -> lifecycle status.
	EntryStatuses map[string]ledger.EntryStatus `json:"entry_statuses,omitempty"`
}

// TransactionState is the replayed state of a transaction aggregate.
type TransactionState struct {
	Transaction ledger.Transaction `json:"transaction"`
}

// PropertyState is the replayed state of a property aggregate.
type PropertyState struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	Units   int    `json:"units,omitempty"`
}

// State is the tagged union of aggregate states. Exactly one variant is
// non-nil once the first event has been applied.
type State struct {
	AggregateType events.AggregateType `json:"aggregate_type,omitempty"`
	Sequence      uint64               `json:"sequence"`
	LastEventID   uuid.UUID            `json:"last_event_id,omitempty"`

	Member      *MemberState      `json:"member,omitempty"`
	Fund        *FundState        `json:"fund,omitempty"`
	Transaction *TransactionState `json:"transaction,omitempty"`
	Property    *PropertyState    `json:"property,omitempty"`
}

// NewState returns the empty state replay starts from.
func NewState() *State {
	return &State{}
}

// Encode serializes the state as canonical JSON, so that a snapshot-seeded
// replay and a cold replay produce byte-identical snapshots.
func (s *State) Encode() ([]byte, error) {
	return canonicalize.JCS(s)
}

// Hash returns the canonical hash of the state, used by tests and the
// snapshot-consistency checks.
func (s *State) Hash() (string, error) {
	return canonicalize.CanonicalHash(s)
}

// DecodeState restores a state from its canonical JSON form.
func DecodeState(raw []byte) (*State, error) {
	var s State
	if err := decodeJSON(raw, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot state: %w", err)
	}
	return &s, nil
}
