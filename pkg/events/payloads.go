package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/ledger"
	"github.com/stratafin/ledgercore/pkg/money"
)

// Payload variants, one per event type. The reducer in pkg/replay selects on
// EventType and decodes exactly one of these, which keeps event application
// an explicit, exhaustive match instead of open-ended dynamic dispatch.

// TransactionCreatedPayload records a new transaction in created state.
type TransactionCreatedPayload struct {
	Transaction ledger.Transaction `json:"transaction"`
}

// TransactionPostedPayload marks a transaction as posted.
type TransactionPostedPayload struct {
	TransactionID uuid.UUID   `json:"transaction_id"`
	PostedDate    ledger.Date `json:"posted_date"`
}

// TransactionVoidedPayload voids a transaction. The transaction stays in the
// log; voiding is an event, not a deletion.
type TransactionVoidedPayload struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Reason        string    `json:"reason,omitempty"`
}

// EntryPostedPayload records one immutable ledger entry.
type EntryPostedPayload struct {
	Entry ledger.LedgerEntry `json:"entry"`
}

// EntryReversedPayload records a reversing entry that negates a prior one.
type EntryReversedPayload struct {
	Entry ledger.LedgerEntry `json:"entry"`
}

// MemberCreatedPayload records a new member.
type MemberCreatedPayload struct {
	PropertyID uuid.UUID `json:"property_id"`
	Name       string    `json:"name"`
	Unit       string    `json:"unit,omitempty"`
	Email      string    `json:"email,omitempty"`
}

// MemberUpdatedPayload updates member contact fields. Nil pointers leave the
// field unchanged.
type MemberUpdatedPayload struct {
	Name  *string `json:"name,omitempty"`
	Unit  *string `json:"unit,omitempty"`
	Email *string `json:"email,omitempty"`
}

// MemberDeactivatedPayload deactivates a member.
type MemberDeactivatedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// PropertyCreatedPayload records a new property.
type PropertyCreatedPayload struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Units   int    `json:"units,omitempty"`
}

// FundCreatedPayload records a new fund.
type FundCreatedPayload struct {
	Fund ledger.Fund `json:"fund"`
}

// FundUpdatedPayload updates fund policy fields. Nil pointers leave the field
// unchanged.
type FundUpdatedPayload struct {
	Name                 *string       `json:"name,omitempty"`
	AllowNegativeBalance *bool         `json:"allow_negative_balance,omitempty"`
	MinimumBalance       *money.Amount `json:"minimum_balance,omitempty"`
	TargetBalance        *money.Amount `json:"target_balance,omitempty"`
}

// FundClosedPayload closes a fund to further postings.
type FundClosedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// PaymentReceivedPayload records money received from a member.
type PaymentReceivedPayload struct {
	TransactionID uuid.UUID              `json:"transaction_id"`
	MemberID      uuid.UUID              `json:"member_id"`
	FundID        uuid.UUID              `json:"fund_id,omitempty"`
	Type          ledger.TransactionType `json:"transaction_type"`
	Amount        money.Amount           `json:"amount"`
	Date          ledger.Date            `json:"date"`
	Method        string                 `json:"method,omitempty"`
}

// PaymentRefundedPayload records money returned to a member.
type PaymentRefundedPayload struct {
	TransactionID uuid.UUID    `json:"transaction_id"`
	MemberID      uuid.UUID    `json:"member_id"`
	Amount        money.Amount `json:"amount"`
	Date          ledger.Date  `json:"date"`
	Reason        string       `json:"reason,omitempty"`
}

// BalanceAdjustedPayload records a manual balance adjustment. The amount is
// signed: positive increases the amount owed, negative decreases it.
type BalanceAdjustedPayload struct {
	Amount money.Amount `json:"amount"`
	Date   ledger.Date  `json:"date"`
	Reason string       `json:"reason,omitempty"`
}

// DecodePayload unmarshals an event's payload into the variant for its type.
func DecodePayload(e *Event) (interface{}, error) {
	var (
		out interface{}
		err error
	)
	decode := func(v interface{}) (interface{}, error) {
		if err := json.Unmarshal(e.Payload, v); err != nil {
			return nil, fmt.Errorf("decode %s payload of %s: %w", e.EventType, e.EventID, err)
		}
		return v, nil
	}

	switch e.EventType {
	case EventTransactionCreated:
		out, err = decode(&TransactionCreatedPayload{})
	case EventTransactionPosted:
		out, err = decode(&TransactionPostedPayload{})
	case EventTransactionVoided:
		out, err = decode(&TransactionVoidedPayload{})
	case EventEntryPosted:
		out, err = decode(&EntryPostedPayload{})
	case EventEntryReversed:
		out, err = decode(&EntryReversedPayload{})
	case EventMemberCreated:
		out, err = decode(&MemberCreatedPayload{})
	case EventMemberUpdated:
		out, err = decode(&MemberUpdatedPayload{})
	case EventMemberDeactivated:
		out, err = decode(&MemberDeactivatedPayload{})
	case EventPropertyCreated:
		out, err = decode(&PropertyCreatedPayload{})
	case EventFundCreated:
		out, err = decode(&FundCreatedPayload{})
	case EventFundUpdated:
		out, err = decode(&FundUpdatedPayload{})
	case EventFundClosed:
		out, err = decode(&FundClosedPayload{})
	case EventPaymentReceived:
		out, err = decode(&PaymentReceivedPayload{})
	case EventPaymentRefunded:
		out, err = decode(&PaymentRefundedPayload{})
	case EventBalanceAdjusted:
		out, err = decode(&BalanceAdjustedPayload{})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.EventType)
	}
	return out, err
}
