package replay

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/events"
	"github.com/stratafin/ledgercore/pkg/ledger"
)

func decodeJSON(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}

// Apply folds one event into the state. It is pure: the only inputs are the
// prior state and the event, and it is exhaustive over the payload variants
// for each aggregate type.
func Apply(s *State, e *events.Event) error {
	if s.AggregateType == "" {
		s.AggregateType = e.AggregateType
	} else if s.AggregateType != e.AggregateType {
		return fmt.Errorf("event %s has aggregate type %s, state has %s",
			e.EventID, e.AggregateType, s.AggregateType)
	}

	payload, err := events.DecodePayload(e)
	if err != nil {
		return err
	}

	switch e.AggregateType {
	case events.AggregateMember:
		err = applyMember(s, e, payload)
	case events.AggregateFund:
		err = applyFund(s, e, payload)
	case events.AggregateTransaction:
		err = applyTransaction(s, e, payload)
	case events.AggregateProperty:
		err = applyProperty(s, e, payload)
	default:
		return fmt.Errorf("no reducer for aggregate type %q", e.AggregateType)
	}
	if err != nil {
		return err
	}

	s.Sequence = e.Sequence
	s.LastEventID = e.EventID
	return nil
}

func applyMember(s *State, e *events.Event, payload interface{}) error {
	if s.Member == nil {
		s.Member = &MemberState{}
	}
	m := s.Member

	switch p := payload.(type) {
	case *events.MemberCreatedPayload:
		m.Name = p.Name
		m.Unit = p.Unit
		m.Email = p.Email
		m.Active = true

	case *events.MemberUpdatedPayload:
		if p.Name != nil {
			m.Name = *p.Name
		}
		if p.Unit != nil {
			m.Unit = *p.Unit
		}
		if p.Email != nil {
			m.Email = *p.Email
		}

	case *events.MemberDeactivatedPayload:
		m.Active = false

	case *events.PaymentReceivedPayload:
		// Payments from the member raise total paid; charges (late fees
		// and the like) raise the amount owed.
		switch p.Type {
		case ledger.TransactionDuesPayment, ledger.TransactionAssessmentPayment:
			m.TotalPaid = m.TotalPaid.Add(p.Amount)
		default:
			m.TotalOwed = m.TotalOwed.Add(p.Amount)
		}
		m.TransactionCount++

	case *events.PaymentRefundedPayload:
		m.TotalPaid = m.TotalPaid.Sub(p.Amount)
		m.TransactionCount++

	case *events.BalanceAdjustedPayload:
		// Signed adjustment: positive increases the amount owed.
		m.TotalOwed = m.TotalOwed.Add(p.Amount)

	default:
		return fmt.Errorf("member reducer: unexpected event type %s", e.EventType)
	}

	m.Balance = m.TotalPaid.Sub(m.TotalOwed)
	return nil
}

func applyFund(s *State, e *events.Event, payload interface{}) error {
	if s.Fund == nil {
		s.Fund = &FundState{}
	}
	f := s.Fund

	post := func(entry ledger.LedgerEntry) {
		if entry.IsDebit {
			f.TotalDebits = f.TotalDebits.Add(entry.Amount)
			f.DebitEntries++
		} else {
			f.TotalCredits = f.TotalCredits.Add(entry.Amount)
			f.CreditEntries++
		}
		if f.EntryStatuses == nil {
			f.EntryStatuses = make(map[string]ledger.EntryStatus)
		}
		f.EntryStatuses[entry.EntryID.String()] = ledger.EntryStatusPosted
	}

	switch p := payload.(type) {
	case *events.FundCreatedPayload:
		f.Name = p.Fund.Name
		f.Type = p.Fund.Type
		f.AllowNegativeBalance = p.Fund.AllowNegativeBalance
		f.MinimumBalance = p.Fund.MinimumBalance
		f.TargetBalance = p.Fund.TargetBalance

	case *events.FundUpdatedPayload:
		if p.Name != nil {
			f.Name = *p.Name
		}
		if p.AllowNegativeBalance != nil {
			f.AllowNegativeBalance = *p.AllowNegativeBalance
		}
		if p.MinimumBalance != nil {
			f.MinimumBalance = *p.MinimumBalance
		}
		if p.TargetBalance != nil {
			f.TargetBalance = *p.TargetBalance
		}

	case *events.FundClosedPayload:
		f.Closed = true

	case *events.EntryPostedPayload:
		post(p.Entry)

	case *events.EntryReversedPayload:
		post(p.Entry)
		if p.Entry.ReversesEntryID != uuid.Nil && f.EntryStatuses != nil {
			if _, ok := f.EntryStatuses[p.Entry.ReversesEntryID.String()]; ok {
				f.EntryStatuses[p.Entry.ReversesEntryID.String()] = ledger.EntryStatusReversed
			}
		}

	default:
		return fmt.Errorf("fund reducer: unexpected event type %s", e.EventType)
	}

	f.Balance = f.TotalCredits.Sub(f.TotalDebits)
	return nil
}

func applyTransaction(s *State, e *events.Event, payload interface{}) error {
	if s.Transaction == nil {
		s.Transaction = &TransactionState{}
	}
	t := s.Transaction

	switch p := payload.(type) {
	case *events.TransactionCreatedPayload:
		t.Transaction = p.Transaction

	case *events.TransactionPostedPayload:
		t.Transaction.Status = ledger.TransactionStatusPosted
		posted := p.PostedDate
		t.Transaction.PostedDate = &posted

	case *events.TransactionVoidedPayload:
		t.Transaction.Status = ledger.TransactionStatusVoided

	default:
		return fmt.Errorf("transaction reducer: unexpected event type %s", e.EventType)
	}
	return nil
}

func applyProperty(s *State, e *events.Event, payload interface{}) error {
	if s.Property == nil {
		s.Property = &PropertyState{}
	}

	switch p := payload.(type) {
	case *events.PropertyCreatedPayload:
		s.Property.Name = p.Name
		s.Property.Address = p.Address
		s.Property.Units = p.Units

	default:
		return fmt.Errorf("property reducer: unexpected event type %s", e.EventType)
	}
	return nil
}
