// Package budgets tracks fund spending against per-period budgets. A budget
// caps what a fund may spend in a window; the window is derived from the
// transaction date, so replayed history lands in the right period.
package budgets

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/ledger"
	"github.com/stratafin/ledgercore/pkg/money"
)

// Period is the budget window.
type Period string

const (
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
	PeriodAnnual    Period = "annual"
	PeriodTotal     Period = "total"
)

// ErrBudgetNotFound is returned when no budget is set for a fund.
var ErrBudgetNotFound = errors.New("budget not found")

// Budget caps a fund's spending for a period.
type Budget struct {
	TenantID uuid.UUID    `json:"tenant_id"`
	FundID   uuid.UUID    `json:"fund_id"`
	Period   Period       `json:"period"`
	Limit    money.Amount `json:"limit"`

	consumed    money.Amount
	windowStart time.Time
}

// Status is a budget's standing within its current window.
type Status struct {
	FundID      uuid.UUID    `json:"fund_id"`
	Period      Period       `json:"period"`
	Limit       money.Amount `json:"limit"`
	Consumed    money.Amount `json:"consumed"`
	Remaining   money.Amount `json:"remaining"`
	WindowStart ledger.Date  `json:"window_start"`
	Exceeded    bool         `json:"exceeded"`
}

type budgetKey struct {
	tenant uuid.UUID
	fund   uuid.UUID
}

// Tracker holds fund budgets and their consumption.
type Tracker struct {
	mu      sync.RWMutex
	budgets map[budgetKey]*Budget
}

// NewTracker creates an empty budget tracker.
func NewTracker() *Tracker {
	return &Tracker{budgets: make(map[budgetKey]*Budget)}
}

// Set installs or replaces a fund's budget. Consumption starts fresh.
func (t *Tracker) Set(b Budget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.budgets[budgetKey{tenant: b.TenantID, fund: b.FundID}] = &b
}

// Check reports whether spending amount on the given date stays within the
// fund's budget. A fund with no budget is unconstrained.
func (t *Tracker) Check(tenantID, fundID uuid.UUID, amount money.Amount, on ledger.Date) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.budgets[budgetKey{tenant: tenantID, fund: fundID}]
	if !ok {
		return true, nil
	}
	b.roll(on)
	return b.consumed.Add(amount).Cmp(b.Limit) <= 0, nil
}

// Consume records spending against the fund's budget. Consumption is
// recorded even past the limit; Status reports the overrun.
func (t *Tracker) Consume(tenantID, fundID uuid.UUID, amount money.Amount, on ledger.Date) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.budgets[budgetKey{tenant: tenantID, fund: fundID}]
	if !ok {
		return ErrBudgetNotFound
	}
	b.roll(on)
	b.consumed = b.consumed.Add(amount)
	return nil
}

// Status returns the fund's budget standing as of a date.
func (t *Tracker) Status(tenantID, fundID uuid.UUID, on ledger.Date) (*Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.budgets[budgetKey{tenant: tenantID, fund: fundID}]
	if !ok {
		return nil, ErrBudgetNotFound
	}
	b.roll(on)
	return &Status{
		FundID:      b.FundID,
		Period:      b.Period,
		Limit:       b.Limit,
		Consumed:    b.consumed,
		Remaining:   b.Limit.Sub(b.consumed),
		WindowStart: ledger.DateOf(b.windowStart),
		Exceeded:    b.consumed.Cmp(b.Limit) > 0,
	}, nil
}

// roll resets consumption when the date has moved into a new window.
func (b *Budget) roll(on ledger.Date) {
	start := windowStart(b.Period, on)
	if !start.Equal(b.windowStart) {
		b.windowStart = start
		b.consumed = money.Zero
	}
}

func windowStart(p Period, on ledger.Date) time.Time {
	t := on.Time()
	switch p {
	case PeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case PeriodQuarterly:
		q := (int(t.Month()) - 1) / 3
		return time.Date(t.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
	case PeriodAnnual:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}
	}
}
