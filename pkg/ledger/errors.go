package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/money"
)

// ErrNoEntries is returned when a validation is asked to run over an empty
// entry set.
var ErrNoEntries = errors.New("cannot validate empty entry set")

// BalanceError reports a double-entry violation: the debit and credit sides
// of an entry set do not sum to the same amount.
type BalanceError struct {
	TransactionID uuid.UUID
	Debits        money.Amount
	Credits       money.Amount
}

// Delta returns the absolute difference between the two sides.
func (e *BalanceError) Delta() money.Amount {
	return e.Debits.Sub(e.Credits).Abs()
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("entries are not balanced: debits %s, credits %s, difference %s",
		e.Debits, e.Credits, e.Delta())
}

// NegativeBalanceError reports a fund balance dropping below zero on a fund
// that does not permit overdraft.
type NegativeBalanceError struct {
	FundID   uuid.UUID
	FundName string
	Balance  money.Amount
	Minimum  money.Amount
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("fund %s balance %s is below minimum %s and the fund does not allow a negative balance",
		e.FundID, e.Balance, e.Minimum)
}

// CorrectionPatternError reports a malformed reversing/correction triple.
// The whole correction is rejected; none of the entries are admitted.
type CorrectionPatternError struct {
	OriginalID  uuid.UUID
	ReversingID uuid.UUID
	Reason      string
}

func (e *CorrectionPatternError) Error() string {
	return fmt.Sprintf("invalid correction of entry %s: %s", e.OriginalID, e.Reason)
}

// ImmutableViolationError reports that a committed record differs from its
// originally appended form. This is a fatal integrity violation.
type ImmutableViolationError struct {
	RecordID     string
	Field        string // first differing field, if identified
	OriginalHash string
	CurrentHash  string
}

func (e *ImmutableViolationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("record %s was mutated after commit: field %q differs", e.RecordID, e.Field)
	}
	return fmt.Sprintf("record %s was mutated after commit: hash %s != %s", e.RecordID, e.CurrentHash, e.OriginalHash)
}

// TransactionValidationError reports a transaction that violates basic
// structural rules before any entries are considered.
type TransactionValidationError struct {
	TransactionID uuid.UUID
	Reason        string
}

func (e *TransactionValidationError) Error() string {
	return fmt.Sprintf("transaction %s invalid: %s", e.TransactionID, e.Reason)
}
