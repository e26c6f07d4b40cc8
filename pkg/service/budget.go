package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/budgets"
	"github.com/stratafin/ledgercore/pkg/ledger"
	"github.com/stratafin/ledgercore/pkg/policy"
)

// SetBudget installs a fund spending budget.
func (s *Service) SetBudget(b budgets.Budget) error {
	if s.budgets == nil {
		return fmt.Errorf("budget tracking is not enabled")
	}
	s.budgets.Set(b)
	return nil
}

// BudgetStatus reports a fund budget's standing as of a date.
func (s *Service) BudgetStatus(ctx context.Context, tenantID, fundID uuid.UUID, asOf ledger.Date) (*budgets.Status, error) {
	if s.budgets == nil {
		return nil, fmt.Errorf("budget tracking is not enabled")
	}
	if err := s.authorize(ctx, tenantID, fundID); err != nil {
		return nil, err
	}
	return s.budgets.Status(tenantID, fundID, asOf)
}

// consumeBudgets records an expense transaction's debits against fund
// budgets. A budget overrun is reported as a violation, never an error; the
// transaction is already committed.
func (s *Service) consumeBudgets(ctx context.Context, tenantID uuid.UUID, tx ledger.Transaction, entries []ledger.LedgerEntry) []policy.Violation {
	if s.budgets == nil || !tx.Type.IsExpense() {
		return nil
	}

	var found []policy.Violation
	seen := make(map[uuid.UUID]bool)
	for _, entry := range entries {
		if !entry.IsDebit {
			continue
		}
		if err := s.budgets.Consume(tenantID, entry.FundID, entry.Amount, tx.Date); err != nil {
			if !errors.Is(err, budgets.ErrBudgetNotFound) {
				s.log.WarnContext(ctx, "budget consume failed", "fund_id", entry.FundID, "error", err)
			}
			continue
		}
		if seen[entry.FundID] {
			continue
		}
		seen[entry.FundID] = true

		status, err := s.budgets.Status(tenantID, entry.FundID, tx.Date)
		if err != nil || !status.Exceeded {
			continue
		}
		v := policy.Violation{
			ViolationID:   uuid.New(),
			TenantID:      tenantID,
			PolicyID:      "fund-budget-exceeded",
			PolicyName:    "Fund budget exceeded",
			Severity:      policy.SeverityWarning,
			Category:      policy.CategoryAmount,
			Message:       fmt.Sprintf("fund %s is %s over its %s budget", entry.FundID, status.Remaining.Neg(), status.Period),
			TransactionID: tx.ID,
			DetectedAt:    s.clock().UTC(),
		}
		if err := s.violations.Record(ctx, []policy.Violation{v}); err != nil {
			s.log.WarnContext(ctx, "record budget violation", "error", err)
		}
		s.log.WarnContext(ctx, "budget exceeded",
			"fund_id", entry.FundID,
			"period", status.Period,
			"overrun", status.Remaining.Neg(),
		)
		found = append(found, v)
	}
	return found
}
