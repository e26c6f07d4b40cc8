package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/money"
)

// BalanceSource computes a fund's balance as of a date from the committed
// event history. Implemented by the point-in-time reconstructor; declared
// here so the validator does not depend on the replay machinery.
type BalanceSource interface {
	FundBalance(ctx context.Context, tenantID, fundID uuid.UUID, asOf Date) (money.Amount, error)
}

// Validator runs the synchronous invariant checks that gate admission of an
// entry set to the event store. A failing check means nothing is appended.
type Validator struct {
	balances BalanceSource
	clock    func() time.Time
}

// NewValidator creates a validator. balances may be nil if only structural
// checks (not fund-balance checks) are needed.
func NewValidator(balances BalanceSource) *Validator {
	return &Validator{
		balances: balances,
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (v *Validator) WithClock(clock func() time.Time) *Validator {
	v.clock = clock
	return v
}

// ValidateBalancedEntries checks that an entry set balances: the debit side
// must sum exactly to the credit side, in fixed-point arithmetic.
func (v *Validator) ValidateBalancedEntries(entries []LedgerEntry) error {
	if len(entries) == 0 {
		return ErrNoEntries
	}

	var debits, credits money.Amount
	for _, e := range entries {
		debits = debits.Add(e.DebitAmount())
		credits = credits.Add(e.CreditAmount())
	}

	if debits != credits {
		return &BalanceError{
			TransactionID: entries[0].TransactionID,
			Debits:        debits,
			Credits:       credits,
		}
	}
	return nil
}

// ValidateTransactionEntries checks the entry set recorded for a transaction:
// every entry references the transaction, there is at least one debit and one
// credit, and the set balances.
func (v *Validator) ValidateTransactionEntries(tx Transaction, entries []LedgerEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, ErrNoEntries)
	}

	var hasDebit, hasCredit bool
	for _, e := range entries {
		if e.TransactionID != tx.ID {
			return &TransactionValidationError{
				TransactionID: tx.ID,
				Reason:        fmt.Sprintf("entry %s references transaction %s", e.EntryID, e.TransactionID),
			}
		}
		if e.IsDebit {
			hasDebit = true
		} else {
			hasCredit = true
		}
	}
	if !hasDebit {
		return &TransactionValidationError{TransactionID: tx.ID, Reason: "no debit entries"}
	}
	if !hasCredit {
		return &TransactionValidationError{TransactionID: tx.ID, Reason: "no credit entries"}
	}

	return v.ValidateBalancedEntries(entries)
}

// ValidateEntryPair checks a simple debit/credit pair: opposite sides, equal
// amounts, same transaction, same tenant.
func (v *Validator) ValidateEntryPair(debit, credit LedgerEntry) error {
	if !debit.IsDebit {
		return &TransactionValidationError{TransactionID: debit.TransactionID,
			Reason: fmt.Sprintf("entry %s is not a debit", debit.EntryID)}
	}
	if credit.IsDebit {
		return &TransactionValidationError{TransactionID: credit.TransactionID,
			Reason: fmt.Sprintf("entry %s is not a credit", credit.EntryID)}
	}
	if debit.Amount != credit.Amount {
		return &BalanceError{
			TransactionID: debit.TransactionID,
			Debits:        debit.Amount,
			Credits:       credit.Amount,
		}
	}
	if debit.TransactionID != credit.TransactionID {
		return &TransactionValidationError{TransactionID: debit.TransactionID,
			Reason: fmt.Sprintf("entries reference different transactions (%s vs %s)", debit.TransactionID, credit.TransactionID)}
	}
	if debit.TenantID != credit.TenantID {
		return &TransactionValidationError{TransactionID: debit.TransactionID,
			Reason: "entries belong to different tenants"}
	}
	return nil
}

// ValidateTransaction checks a transaction's structural rules: positive
// amount, posted transactions carry a posted date, voided transactions are
// not posted, and the transaction date is not in the future.
func (v *Validator) ValidateTransaction(tx Transaction) error {
	if !tx.Amount.IsPositive() {
		return &TransactionValidationError{TransactionID: tx.ID,
			Reason: fmt.Sprintf("non-positive amount %s", tx.Amount)}
	}
	if tx.IsPosted() && tx.PostedDate == nil {
		return &TransactionValidationError{TransactionID: tx.ID,
			Reason: "posted transaction has no posted date"}
	}
	if today := DateOf(v.clock()); tx.Date.After(today) {
		return &TransactionValidationError{TransactionID: tx.ID,
			Reason: fmt.Sprintf("future transaction date %s", tx.Date)}
	}
	return nil
}

// ValidateFundBalance checks that posting the proposed entries would not take
// the fund below its minimum balance, unless the fund permits overdraft. The
// pre-entry balance as of the entry date comes from the committed history.
func (v *Validator) ValidateFundBalance(ctx context.Context, fund Fund, asOf Date, proposed ...LedgerEntry) error {
	if fund.AllowNegativeBalance {
		return nil
	}
	if v.balances == nil {
		return fmt.Errorf("fund balance check for %s: no balance source configured", fund.ID)
	}

	balance, err := v.balances.FundBalance(ctx, fund.TenantID, fund.ID, asOf)
	if err != nil {
		return fmt.Errorf("fund balance as of %s: %w", asOf, err)
	}
	for _, e := range proposed {
		if e.FundID == fund.ID {
			balance = balance.Add(e.Signed())
		}
	}

	if balance.Cmp(fund.MinimumBalance) < 0 {
		return &NegativeBalanceError{
			FundID:   fund.ID,
			FundName: fund.Name,
			Balance:  balance,
			Minimum:  fund.MinimumBalance,
		}
	}
	return nil
}

// ReconcileFundBalance checks that the committed entries for a fund sum to an
// expected balance (credits - debits).
func (v *Validator) ReconcileFundBalance(fundID uuid.UUID, entries []LedgerEntry, expected money.Amount) error {
	var calculated money.Amount
	for _, e := range entries {
		if e.FundID == fundID {
			calculated = calculated.Add(e.Signed())
		}
	}
	if calculated != expected {
		return fmt.Errorf("fund %s reconciliation failed: calculated %s, expected %s, difference %s",
			fundID, calculated, expected, calculated.Sub(expected).Abs())
	}
	return nil
}
