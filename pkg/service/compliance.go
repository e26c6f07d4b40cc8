package service

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratafin/ledgercore/pkg/ledger"
	"github.com/stratafin/ledgercore/pkg/money"
	"github.com/stratafin/ledgercore/pkg/policy"
)

// CheckCompliance evaluates the rule set against a transaction and records
// any violations. The fund balance handed to the rules is the post-entry
// balance of the first affected fund, derived from the committed history.
func (s *Service) CheckCompliance(ctx context.Context, tenantID uuid.UUID, tx ledger.Transaction, entries []ledger.LedgerEntry) ([]policy.Violation, error) {
	ctx, span := s.tracer.Start(ctx, "CheckCompliance", trace.WithAttributes(
		attribute.String("tenant_id", tenantID.String()),
		attribute.String("transaction_id", tx.ID.String()),
	))
	defer span.End()

	balance := money.Zero
	if len(entries) > 0 {
		fundID := entries[0].FundID
		committed, err := s.recon.FundBalance(ctx, tenantID, fundID, ledger.DateOf(s.clock()))
		if err != nil {
			return nil, err
		}
		balance = committed
	}

	violations, err := s.policies.Evaluate(ctx, policy.Input{
		TenantID:    tenantID,
		Transaction: tx,
		Entries:     entries,
		FundBalance: balance,
	})
	if err != nil {
		return nil, err
	}
	if len(violations) == 0 {
		return nil, nil
	}

	if err := s.violations.Record(ctx, violations); err != nil {
		return nil, err
	}
	for _, v := range violations {
		s.log.WarnContext(ctx, "compliance violation",
			"tenant_id", tenantID,
			"policy_id", v.PolicyID,
			"severity", v.Severity,
			"transaction_id", v.TransactionID,
		)
	}
	return violations, nil
}

// ResolveViolation marks a recorded violation reviewed.
func (s *Service) ResolveViolation(ctx context.Context, tenantID, violationID uuid.UUID, resolvedBy, note string) (*policy.Violation, error) {
	v, err := s.violations.Resolve(ctx, tenantID, violationID, resolvedBy, note)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "violation resolved",
		"tenant_id", tenantID,
		"violation_id", violationID,
		"resolved_by", resolvedBy,
	)
	return v, nil
}

// ListViolations returns a tenant's violations matching the filter.
func (s *Service) ListViolations(ctx context.Context, tenantID uuid.UUID, f policy.ViolationFilter) ([]policy.Violation, error) {
	return s.violations.List(ctx, tenantID, f)
}

// ComplianceReport summarizes a tenant's violation history.
func (s *Service) ComplianceReport(ctx context.Context, tenantID uuid.UUID) (*policy.ComplianceReport, error) {
	return s.violations.Report(ctx, tenantID)
}
