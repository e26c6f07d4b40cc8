// Package pointintime answers "what was true as of date X" questions by
// replaying the event log up to a cutoff. Every answer is derived from
// committed events only, so re-running the same query against the same log
// always returns the same result.
package pointintime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/events"
	"github.com/stratafin/ledgercore/pkg/ledger"
	"github.com/stratafin/ledgercore/pkg/money"
	"github.com/stratafin/ledgercore/pkg/replay"
)

// Reconstructor rebuilds historical financial state. It satisfies
// ledger.BalanceSource, which lets the validator check overdraft rules
// against balances derived from the log rather than a mutable running total.
type Reconstructor struct {
	engine *replay.Engine
	store  events.Store
}

func NewReconstructor(engine *replay.Engine, store events.Store) *Reconstructor {
	return &Reconstructor{engine: engine, store: store}
}

// MemberBalance is a member's financial position as of a date.
type MemberBalance struct {
	MemberID         uuid.UUID    `json:"member_id"`
	AsOf             ledger.Date  `json:"as_of"`
	Sequence         uint64       `json:"sequence"`
	TotalPaid        money.Amount `json:"total_paid"`
	TotalOwed        money.Amount `json:"total_owed"`
	Balance          money.Amount `json:"balance"`
	TransactionCount int          `json:"transaction_count"`
}

// FundPosition is a fund's balance and posting totals as of a date.
type FundPosition struct {
	FundID       uuid.UUID    `json:"fund_id"`
	AsOf         ledger.Date  `json:"as_of"`
	Sequence     uint64       `json:"sequence"`
	TotalDebits  money.Amount `json:"total_debits"`
	TotalCredits money.Amount `json:"total_credits"`
	Balance      money.Amount `json:"balance"`
}

// PropertySnapshot is a consistent cut across a property's aggregates: the
// property itself, every member, and every fund, all reconstructed at the
// same cutoff instant.
type PropertySnapshot struct {
	PropertyID uuid.UUID             `json:"property_id"`
	AsOf       ledger.Date           `json:"as_of"`
	Property   *replay.PropertyState `json:"property,omitempty"`
	Members    []MemberBalance       `json:"members"`
	Funds      []FundPosition        `json:"funds"`
	FundTotal  money.Amount          `json:"fund_total"`
}

// BalancePoint is a fund balance immediately after one event applied.
type BalancePoint struct {
	EventID   uuid.UUID    `json:"event_id"`
	Sequence  uint64       `json:"sequence"`
	Timestamp time.Time    `json:"timestamp"`
	Balance   money.Amount `json:"balance"`
}

// TransactionRecord is one financial event from a member's history.
type TransactionRecord struct {
	EventID   uuid.UUID        `json:"event_id"`
	EventType events.EventType `json:"event_type"`
	Sequence  uint64           `json:"sequence"`
	Timestamp time.Time        `json:"timestamp"`
	Amount    money.Amount     `json:"amount"`
	Date      ledger.Date      `json:"date"`
	Detail    string           `json:"detail,omitempty"`
}

// PeriodSummary aggregates transactions created within a date range.
type PeriodSummary struct {
	From     ledger.Date                             `json:"from"`
	To       ledger.Date                             `json:"to"`
	Income   money.Amount                            `json:"income"`
	Expenses money.Amount                            `json:"expenses"`
	Net      money.Amount                            `json:"net"`
	ByType   map[ledger.TransactionType]money.Amount `json:"by_type"`
	Count    int                                     `json:"count"`
}

// FundBalance implements ledger.BalanceSource. A fund with no history as of
// the date has a zero balance.
func (r *Reconstructor) FundBalance(ctx context.Context, tenantID, fundID uuid.UUID, asOf ledger.Date) (money.Amount, error) {
	state, err := r.engine.ReplayToTime(ctx, tenantID, fundID, asOf.EndOfDay())
	if err != nil {
		return money.Zero, fmt.Errorf("reconstruct fund %s: %w", fundID, err)
	}
	if state.Fund == nil {
		return money.Zero, nil
	}
	return state.Fund.Balance, nil
}

// ReconstructMemberBalance rebuilds a member's position as of end of day.
// A member with no events as of the date yields an all-zero balance.
func (r *Reconstructor) ReconstructMemberBalance(ctx context.Context, tenantID, memberID uuid.UUID, asOf ledger.Date) (*MemberBalance, error) {
	state, err := r.engine.ReplayToTime(ctx, tenantID, memberID, asOf.EndOfDay())
	if err != nil {
		return nil, fmt.Errorf("reconstruct member %s: %w", memberID, err)
	}

	out := &MemberBalance{MemberID: memberID, AsOf: asOf, Sequence: state.Sequence}
	if state.Member != nil {
		out.TotalPaid = state.Member.TotalPaid
		out.TotalOwed = state.Member.TotalOwed
		out.Balance = state.Member.Balance
		out.TransactionCount = state.Member.TransactionCount
	}
	return out, nil
}

// ReconstructFundBalance rebuilds a fund's position as of end of day.
func (r *Reconstructor) ReconstructFundBalance(ctx context.Context, tenantID, fundID uuid.UUID, asOf ledger.Date) (*FundPosition, error) {
	state, err := r.engine.ReplayToTime(ctx, tenantID, fundID, asOf.EndOfDay())
	if err != nil {
		return nil, fmt.Errorf("reconstruct fund %s: %w", fundID, err)
	}

	out := &FundPosition{FundID: fundID, AsOf: asOf, Sequence: state.Sequence}
	if state.Fund != nil {
		out.TotalDebits = state.Fund.TotalDebits
		out.TotalCredits = state.Fund.TotalCredits
		out.Balance = state.Fund.Balance
	}
	return out, nil
}

// ReconstructPropertySnapshot rebuilds a property and all of its members and
// funds at one cutoff. Membership is discovered from creation events in the
// log rather than a side table, so the snapshot only ever contains entities
// that existed as of the date.
func (r *Reconstructor) ReconstructPropertySnapshot(ctx context.Context, tenantID, propertyID uuid.UUID, asOf ledger.Date) (*PropertySnapshot, error) {
	cutoff := asOf.EndOfDay()

	state, err := r.engine.ReplayToTime(ctx, tenantID, propertyID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("reconstruct property %s: %w", propertyID, err)
	}

	memberIDs, fundIDs, err := r.propertyEntities(ctx, tenantID, propertyID, cutoff)
	if err != nil {
		return nil, err
	}

	snap := &PropertySnapshot{
		PropertyID: propertyID,
		AsOf:       asOf,
		Property:   state.Property,
		Members:    make([]MemberBalance, 0, len(memberIDs)),
		Funds:      make([]FundPosition, 0, len(fundIDs)),
	}

	for _, id := range memberIDs {
		mb, err := r.ReconstructMemberBalance(ctx, tenantID, id, asOf)
		if err != nil {
			return nil, err
		}
		snap.Members = append(snap.Members, *mb)
	}
	for _, id := range fundIDs {
		fp, err := r.ReconstructFundBalance(ctx, tenantID, id, asOf)
		if err != nil {
			return nil, err
		}
		snap.Funds = append(snap.Funds, *fp)
		snap.FundTotal = snap.FundTotal.Add(fp.Balance)
	}
	return snap, nil
}

// propertyEntities scans creation events up to the cutoff and returns the
// member and fund aggregate IDs that belong to the property, in stable order.
func (r *Reconstructor) propertyEntities(ctx context.Context, tenantID, propertyID uuid.UUID, cutoff time.Time) (members, funds []uuid.UUID, err error) {
	created, err := r.store.AllEvents(ctx, tenantID, events.Filter{
		EventTypes: []events.EventType{events.EventMemberCreated, events.EventFundCreated},
		To:         cutoff,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scan creation events: %w", err)
	}

	for _, ev := range created {
		payload, err := events.DecodePayload(ev)
		if err != nil {
			return nil, nil, err
		}
		switch p := payload.(type) {
		case *events.MemberCreatedPayload:
			if p.PropertyID == propertyID {
				members = append(members, ev.AggregateID)
			}
		case *events.FundCreatedPayload:
			if p.Fund.PropertyID == propertyID {
				funds = append(funds, ev.AggregateID)
			}
		}
	}

	sortUUIDs(members)
	sortUUIDs(funds)
	return members, funds, nil
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

// FundBalanceHistory replays a fund from the beginning and records the
// balance after every event whose timestamp falls inside [from, to].
func (r *Reconstructor) FundBalanceHistory(ctx context.Context, tenantID, fundID uuid.UUID, from, to ledger.Date) ([]BalancePoint, error) {
	lo, hi := from.Time(), to.EndOfDay()
	state := replay.NewState()
	points := []BalancePoint{}

	start := uint64(1)
	const page = 256
	for {
		evs, err := r.store.Events(ctx, tenantID, fundID, start, page)
		if err != nil {
			return nil, fmt.Errorf("fund history: %w", err)
		}
		if len(evs) == 0 {
			break
		}
		for _, ev := range evs {
			if ev.Timestamp.After(hi) {
				return points, nil
			}
			if err := replay.Apply(state, ev); err != nil {
				return nil, err
			}
			if state.Fund == nil || ev.Timestamp.Before(lo) {
				continue
			}
			points = append(points, BalancePoint{
				EventID:   ev.EventID,
				Sequence:  ev.Sequence,
				Timestamp: ev.Timestamp,
				Balance:   state.Fund.Balance,
			})
		}
		if len(evs) < page {
			break
		}
		start = evs[len(evs)-1].Sequence + 1
	}
	return points, nil
}

// TransactionHistory lists a member's financial events within [from, to],
// oldest first.
func (r *Reconstructor) TransactionHistory(ctx context.Context, tenantID, memberID uuid.UUID, from, to ledger.Date) ([]TransactionRecord, error) {
	lo, hi := from.Time(), to.EndOfDay()
	records := []TransactionRecord{}

	start := uint64(1)
	const page = 256
	for {
		evs, err := r.store.Events(ctx, tenantID, memberID, start, page)
		if err != nil {
			return nil, fmt.Errorf("transaction history: %w", err)
		}
		if len(evs) == 0 {
			break
		}
		for _, ev := range evs {
			if ev.Timestamp.After(hi) {
				return records, nil
			}
			if ev.Timestamp.Before(lo) {
				continue
			}
			rec, ok, err := transactionRecord(ev)
			if err != nil {
				return nil, err
			}
			if ok {
				records = append(records, rec)
			}
		}
		if len(evs) < page {
			break
		}
		start = evs[len(evs)-1].Sequence + 1
	}
	return records, nil
}

func transactionRecord(ev *events.Event) (TransactionRecord, bool, error) {
	rec := TransactionRecord{
		EventID:   ev.EventID,
		EventType: ev.EventType,
		Sequence:  ev.Sequence,
		Timestamp: ev.Timestamp,
	}

	switch ev.EventType {
	case events.EventPaymentReceived, events.EventPaymentRefunded, events.EventBalanceAdjusted:
	default:
		return TransactionRecord{}, false, nil
	}

	payload, err := events.DecodePayload(ev)
	if err != nil {
		return TransactionRecord{}, false, err
	}
	switch p := payload.(type) {
	case *events.PaymentReceivedPayload:
		rec.Amount = p.Amount
		rec.Date = p.Date
		rec.Detail = string(p.Type)
	case *events.PaymentRefundedPayload:
		rec.Amount = p.Amount
		rec.Date = p.Date
		rec.Detail = p.Reason
	case *events.BalanceAdjustedPayload:
		rec.Amount = p.Amount
		rec.Date = p.Date
		rec.Detail = p.Reason
	}
	return rec, true, nil
}

// SummarizePeriod totals the transactions created within [from, to] across
// the whole tenant, split into income and expenses by transaction type.
func (r *Reconstructor) SummarizePeriod(ctx context.Context, tenantID uuid.UUID, from, to ledger.Date) (*PeriodSummary, error) {
	evs, err := r.store.AllEvents(ctx, tenantID, events.Filter{
		EventTypes: []events.EventType{events.EventTransactionCreated},
		From:       from.Time(),
		To:         to.EndOfDay(),
	})
	if err != nil {
		return nil, fmt.Errorf("summarize period: %w", err)
	}

	sum := &PeriodSummary{
		From:   from,
		To:     to,
		ByType: make(map[ledger.TransactionType]money.Amount),
	}
	for _, ev := range evs {
		payload, err := events.DecodePayload(ev)
		if err != nil {
			return nil, err
		}
		p, ok := payload.(*events.TransactionCreatedPayload)
		if !ok {
			continue
		}
		tx := p.Transaction
		sum.ByType[tx.Type] = sum.ByType[tx.Type].Add(tx.Amount)
		switch {
		case tx.Type.IsIncome():
			sum.Income = sum.Income.Add(tx.Amount)
		case tx.Type.IsExpense():
			sum.Expenses = sum.Expenses.Add(tx.Amount)
		}
		sum.Count++
	}
	sum.Net = sum.Income.Sub(sum.Expenses)
	return sum, nil
}
