// Package ledger defines the double-entry value types and the synchronous
// invariant checks that gate admission to the event store: balanced entry
// sets, non-negative fund balances, and the reversing-entry correction
// pattern. All types are plain values; a "change" is a new value plus a new
// event, never an in-place edit.
package ledger

import (
	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/money"
)

// TransactionType categorizes financial transactions.
type TransactionType string

const (
	// Income
	TransactionDuesPayment       TransactionType = "dues_payment"
	TransactionAssessmentPayment TransactionType = "assessment_payment"
	TransactionLateFee           TransactionType = "late_fee"
	TransactionTransferFee       TransactionType = "transfer_fee"
	TransactionOtherIncome       TransactionType = "other_income"

	// Expenses
	TransactionVendorPayment TransactionType = "vendor_payment"
	TransactionUtility       TransactionType = "utility"
	TransactionMaintenance   TransactionType = "maintenance"
	TransactionInsurance     TransactionType = "insurance"
	TransactionManagementFee TransactionType = "management_fee"
	TransactionOtherExpense  TransactionType = "other_expense"
	TransactionBankFee       TransactionType = "bank_fee"

	// Adjustments
	TransactionRefund       TransactionType = "refund"
	TransactionAdjustment   TransactionType = "adjustment"
	TransactionFundTransfer TransactionType = "fund_transfer"
)

// IsIncome reports whether the type counts toward income totals.
func (t TransactionType) IsIncome() bool {
	switch t {
	case TransactionDuesPayment, TransactionAssessmentPayment, TransactionLateFee,
		TransactionTransferFee, TransactionOtherIncome:
		return true
	}
	return false
}

// IsExpense reports whether the type counts toward expense totals.
func (t TransactionType) IsExpense() bool {
	switch t {
	case TransactionVendorPayment, TransactionUtility, TransactionMaintenance,
		TransactionInsurance, TransactionManagementFee, TransactionOtherExpense,
		TransactionBankFee:
		return true
	}
	return false
}

// TransactionStatus is the lifecycle state of a transaction.
// There is no deleted state; voiding is itself an event.
type TransactionStatus string

const (
	TransactionStatusCreated TransactionStatus = "created"
	TransactionStatusPosted  TransactionStatus = "posted"
	TransactionStatusVoided  TransactionStatus = "voided"
)

// EntryStatus is the lifecycle state of a ledger entry.
// POSTED -> REVERSED -> CORRECTED; an entry never leaves the ledger.
type EntryStatus string

const (
	EntryStatusPosted    EntryStatus = "posted"
	EntryStatusReversed  EntryStatus = "reversed"
	EntryStatusCorrected EntryStatus = "corrected"
)

// FundType categorizes association funds.
type FundType string

const (
	FundOperating   FundType = "operating"
	FundReserve     FundType = "reserve"
	FundContingency FundType = "contingency"
	FundSpecial     FundType = "special_assessment"
)

// Transaction is a financial transaction against a member or vendor.
type Transaction struct {
	ID          uuid.UUID         `json:"id"`
	TenantID    uuid.UUID         `json:"tenant_id"`
	PropertyID  uuid.UUID         `json:"property_id"`
	MemberID    uuid.UUID         `json:"member_id,omitempty"`
	Type        TransactionType   `json:"transaction_type"`
	Amount      money.Amount      `json:"amount"` // always positive; direction comes from the type
	Date        Date              `json:"transaction_date"`
	Description string            `json:"description,omitempty"`
	Status      TransactionStatus `json:"status"`
	PostedDate  *Date             `json:"posted_date,omitempty"`
	ApprovedBy  string            `json:"approved_by,omitempty"`
}

// IsVoid reports whether the transaction has been voided.
func (t Transaction) IsVoid() bool { return t.Status == TransactionStatusVoided }

// IsPosted reports whether the transaction has been posted.
func (t Transaction) IsPosted() bool { return t.Status == TransactionStatusPosted }

// LedgerEntry is one side of a double-entry posting. Entries are immutable;
// corrections are made with reversing entries, never edits.
type LedgerEntry struct {
	EntryID         uuid.UUID    `json:"entry_id"`
	TenantID        uuid.UUID    `json:"tenant_id"`
	TransactionID   uuid.UUID    `json:"transaction_id"`
	FundID          uuid.UUID    `json:"fund_id"`
	AccountCode     string       `json:"account_code"`
	AccountName     string       `json:"account_name,omitempty"`
	Amount          money.Amount `json:"amount"` // always positive
	IsDebit         bool         `json:"is_debit"`
	EntryDate       Date         `json:"entry_date"`
	Description     string       `json:"description,omitempty"`
	IsReversing     bool         `json:"is_reversing,omitempty"`
	ReversesEntryID uuid.UUID    `json:"reverses_entry_id,omitempty"`
}

// DebitAmount returns the entry amount if it is a debit, zero otherwise.
func (e LedgerEntry) DebitAmount() money.Amount {
	if e.IsDebit {
		return e.Amount
	}
	return money.Zero
}

// CreditAmount returns the entry amount if it is a credit, zero otherwise.
func (e LedgerEntry) CreditAmount() money.Amount {
	if !e.IsDebit {
		return e.Amount
	}
	return money.Zero
}

// Signed returns the entry's effect on a fund balance (credits - debits).
func (e LedgerEntry) Signed() money.Amount {
	if e.IsDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Fund is a pool of association money with its own balance policy.
type Fund struct {
	ID                   uuid.UUID    `json:"id"`
	TenantID             uuid.UUID    `json:"tenant_id"`
	PropertyID           uuid.UUID    `json:"property_id"`
	Name                 string       `json:"name"`
	Type                 FundType     `json:"fund_type"`
	AllowNegativeBalance bool         `json:"allow_negative_balance"`
	MinimumBalance       money.Amount `json:"minimum_balance"`
	TargetBalance        money.Amount `json:"target_balance,omitempty"`
}
