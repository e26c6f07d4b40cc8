package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratafin/ledgercore/pkg/events"
	"github.com/stratafin/ledgercore/pkg/ledger"
	"github.com/stratafin/ledgercore/pkg/policy"
)

// PostingResult is what PostTransaction committed: the transaction event,
// one entry event per ledger entry, and any compliance violations raised.
// Violations are advisory; they never roll back a committed posting.
type PostingResult struct {
	TransactionEvent *events.Event
	EntryEvents      []*events.Event
	Violations       []policy.Violation
}

// PostTransaction validates a transaction and its double-entry set, commits
// them to the log, and runs compliance checks. Validation failures mean
// nothing is appended.
func (s *Service) PostTransaction(ctx context.Context, tenantID uuid.UUID, tx ledger.Transaction, entries []ledger.LedgerEntry, funds map[uuid.UUID]ledger.Fund) (*PostingResult, error) {
	ctx, span := s.tracer.Start(ctx, "PostTransaction", trace.WithAttributes(
		attribute.String("tenant_id", tenantID.String()),
		attribute.String("transaction_id", tx.ID.String()),
		attribute.String("amount", tx.Amount.String()),
	))
	defer span.End()

	if err := s.validator.ValidateTransaction(tx); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateTransactionEntries(tx, entries); err != nil {
		return nil, err
	}
	for fundID, fund := range funds {
		if err := s.validator.ValidateFundBalance(ctx, fund, tx.Date, entries...); err != nil {
			return nil, fmt.Errorf("fund %s: %w", fundID, err)
		}
	}

	txEvent, err := s.AppendEvent(ctx, tenantID, tx.ID, events.AggregateTransaction,
		events.EventTransactionCreated, events.TransactionCreatedPayload{Transaction: tx}, tx.ApprovedBy)
	if err != nil {
		return nil, err
	}

	result := &PostingResult{TransactionEvent: txEvent}
	for _, entry := range entries {
		ev, err := s.AppendEvent(ctx, tenantID, entry.FundID, events.AggregateFund,
			events.EventEntryPosted, events.EntryPostedPayload{Entry: entry}, tx.ApprovedBy)
		if err != nil {
			return result, fmt.Errorf("post entry %s: %w", entry.EntryID, err)
		}
		result.EntryEvents = append(result.EntryEvents, ev)
	}

	violations, err := s.CheckCompliance(ctx, tenantID, tx, entries)
	if err != nil {
		return result, err
	}
	violations = append(violations, s.consumeBudgets(ctx, tenantID, tx, entries)...)
	result.Violations = violations
	return result, nil
}

// CorrectionResult is the committed reversing-entry correction triple.
type CorrectionResult struct {
	Reversing      ledger.LedgerEntry
	Corrected      ledger.LedgerEntry
	ReversingEvent *events.Event
	CorrectedEvent *events.Event
}

// PostCorrection corrects a committed entry the only allowed way: the
// original is untouched, a reversing entry negates it, and a corrected entry
// carries the right amount. The full triple is verified before anything is
// appended.
func (s *Service) PostCorrection(ctx context.Context, tenantID uuid.UUID, original ledger.LedgerEntry, correctedAmount ledger.LedgerEntry, actorID string) (*CorrectionResult, error) {
	ctx, span := s.tracer.Start(ctx, "PostCorrection", trace.WithAttributes(
		attribute.String("tenant_id", tenantID.String()),
		attribute.String("original_entry_id", original.EntryID.String()),
	))
	defer span.End()

	corrected := correctedAmount
	reversing := ledger.LedgerEntry{
		EntryID:         uuid.New(),
		TenantID:        original.TenantID,
		TransactionID:   original.TransactionID,
		FundID:          original.FundID,
		AccountCode:     original.AccountCode,
		AccountName:     original.AccountName,
		Amount:          original.Amount,
		IsDebit:         !original.IsDebit,
		EntryDate:       corrected.EntryDate,
		Description:     fmt.Sprintf("reversal of %s", original.EntryID),
		IsReversing:     true,
		ReversesEntryID: original.EntryID,
	}

	if err := s.guard.VerifyCorrectionPattern(original, reversing, corrected); err != nil {
		return nil, err
	}

	revEvent, err := s.AppendEvent(ctx, tenantID, original.FundID, events.AggregateFund,
		events.EventEntryReversed, events.EntryReversedPayload{Entry: reversing}, actorID)
	if err != nil {
		return nil, err
	}
	corrEvent, err := s.AppendEvent(ctx, tenantID, original.FundID, events.AggregateFund,
		events.EventEntryPosted, events.EntryPostedPayload{Entry: corrected}, actorID)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "correction posted",
		"tenant_id", tenantID,
		"original_entry", original.EntryID,
		"reversing_entry", reversing.EntryID,
		"corrected_entry", corrected.EntryID,
	)

	return &CorrectionResult{
		Reversing:      reversing,
		Corrected:      corrected,
		ReversingEvent: revEvent,
		CorrectedEvent: corrEvent,
	}, nil
}
