package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratafin/ledgercore/pkg/budgets"
	"github.com/stratafin/ledgercore/pkg/events"
	"github.com/stratafin/ledgercore/pkg/ledger"
	"github.com/stratafin/ledgercore/pkg/merkle"
	"github.com/stratafin/ledgercore/pkg/money"
	"github.com/stratafin/ledgercore/pkg/policy"
	"github.com/stratafin/ledgercore/pkg/replay"
	"github.com/stratafin/ledgercore/pkg/tenants"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) *Service {
	t.Helper()
	store, err := events.NewMemoryStore()
	require.NoError(t, err)
	svc, err := New(Options{
		Store:     store,
		Snapshots: events.NewMemorySnapshotStore(),
		Clock:     func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc
}

func dues(tenant, member uuid.UUID, amount string) (ledger.Transaction, []ledger.LedgerEntry) {
	tx := ledger.Transaction{
		ID:          uuid.New(),
		TenantID:    tenant,
		PropertyID:  uuid.New(),
		MemberID:    member,
		Type:        ledger.TransactionDuesPayment,
		Amount:      money.MustParse(amount),
		Date:        ledger.DateOf(now),
		Description: "monthly dues",
		Status:      ledger.TransactionStatusCreated,
		ApprovedBy:  "treasurer",
	}
	fund := uuid.New()
	entries := []ledger.LedgerEntry{
		{EntryID: uuid.New(), TenantID: tenant, TransactionID: tx.ID, FundID: fund,
			AccountCode: "1000", AccountName: "Cash", Amount: tx.Amount, IsDebit: true, EntryDate: tx.Date},
		{EntryID: uuid.New(), TenantID: tenant, TransactionID: tx.ID, FundID: fund,
			AccountCode: "4100", AccountName: "Dues income", Amount: tx.Amount, IsDebit: false, EntryDate: tx.Date},
	}
	return tx, entries
}

func TestPostTransactionCommitsAndReplays(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	tenant, member := uuid.New(), uuid.New()

	tx, entries := dues(tenant, member, "300.00")
	res, err := svc.PostTransaction(ctx, tenant, tx, entries, nil)
	require.NoError(t, err)
	require.NotNil(t, res.TransactionEvent)
	require.Len(t, res.EntryEvents, 2)
	assert.Empty(t, res.Violations)

	state, err := svc.CurrentState(ctx, tenant, entries[0].FundID)
	require.NoError(t, err)
	require.NotNil(t, state.Fund)
	// One debit and one credit of the same amount net to zero.
	assert.Equal(t, money.Zero, state.Fund.Balance)
	assert.Equal(t, money.MustParse("300.00"), state.Fund.TotalDebits)
	assert.Equal(t, money.MustParse("300.00"), state.Fund.TotalCredits)
}

func TestPostTransactionRejectsUnbalanced(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	tenant, member := uuid.New(), uuid.New()

	tx, entries := dues(tenant, member, "300.00")
	entries[1].Amount = money.MustParse("290.00")

	_, err := svc.PostTransaction(ctx, tenant, tx, entries, nil)
	var balErr *ledger.BalanceError
	require.ErrorAs(t, err, &balErr)
	assert.Equal(t, money.MustParse("10.00"), balErr.Delta())

	// Nothing was appended.
	history, err := svc.GetEventHistory(ctx, tenant, tx.ID, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPostTransactionRejectsOverdraft(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	tenant := uuid.New()

	fund := ledger.Fund{
		ID:             uuid.New(),
		TenantID:       tenant,
		PropertyID:     uuid.New(),
		Name:           "Reserve",
		Type:           ledger.FundReserve,
		MinimumBalance: money.Zero,
	}

	// The fund holds 100.00; paying out 250.00 would overdraw it.
	seed := ledger.LedgerEntry{
		EntryID: uuid.New(), TenantID: tenant, TransactionID: uuid.New(), FundID: fund.ID,
		AccountCode: "3000", Amount: money.MustParse("100.00"), IsDebit: false, EntryDate: ledger.DateOf(now),
	}
	_, err := svc.AppendEvent(ctx, tenant, fund.ID, events.AggregateFund,
		events.EventEntryPosted, events.EntryPostedPayload{Entry: seed}, "treasurer")
	require.NoError(t, err)

	tx := ledger.Transaction{
		ID:          uuid.New(),
		TenantID:    tenant,
		PropertyID:  fund.PropertyID,
		Type:        ledger.TransactionVendorPayment,
		Amount:      money.MustParse("250.00"),
		Date:        ledger.DateOf(now),
		Description: "roof repair",
		Status:      ledger.TransactionStatusCreated,
		ApprovedBy:  "treasurer",
	}
	entries := []ledger.LedgerEntry{
		{EntryID: uuid.New(), TenantID: tenant, TransactionID: tx.ID, FundID: fund.ID,
			AccountCode: "3000", Amount: tx.Amount, IsDebit: true, EntryDate: tx.Date},
		{EntryID: uuid.New(), TenantID: tenant, TransactionID: tx.ID, FundID: fund.ID,
			AccountCode: "2000", Amount: tx.Amount, IsDebit: false, EntryDate: tx.Date},
	}
	// Only the cash-side debit hits this fund in a real posting; keep the
	// offset in another fund so the net effect is the 250.00 debit.
	entries[1].FundID = uuid.New()

	_, err = svc.PostTransaction(ctx, tenant, tx, entries, map[uuid.UUID]ledger.Fund{fund.ID: fund})
	var negErr *ledger.NegativeBalanceError
	require.ErrorAs(t, err, &negErr)
	assert.Equal(t, fund.ID, negErr.FundID)
	assert.Equal(t, money.MustParse("-150.00"), negErr.Balance)

	// The refused transaction never reached the log.
	history, err := svc.GetEventHistory(ctx, tenant, tx.ID, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCorrectionNetsToCorrectedAmount(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	tenant := uuid.New()
	fund := uuid.New()
	date := ledger.DateOf(now)

	original := ledger.LedgerEntry{
		EntryID: uuid.New(), TenantID: tenant, TransactionID: uuid.New(), FundID: fund,
		AccountCode: "4100", Amount: money.MustParse("500.00"), IsDebit: false, EntryDate: date,
	}
	_, err := svc.AppendEvent(ctx, tenant, fund, events.AggregateFund,
		events.EventEntryPosted, events.EntryPostedPayload{Entry: original}, "bookkeeper")
	require.NoError(t, err)

	corrected := ledger.LedgerEntry{
		EntryID: uuid.New(), TenantID: tenant, TransactionID: original.TransactionID, FundID: fund,
		AccountCode: "4100", Amount: money.MustParse("650.00"), IsDebit: false, EntryDate: date,
	}
	res, err := svc.PostCorrection(ctx, tenant, original, corrected, "bookkeeper")
	require.NoError(t, err)
	assert.True(t, res.Reversing.IsReversing)
	assert.Equal(t, original.EntryID, res.Reversing.ReversesEntryID)
	assert.Equal(t, original.Amount, res.Reversing.Amount)
	assert.NotEqual(t, original.IsDebit, res.Reversing.IsDebit)

	state, err := svc.CurrentState(ctx, tenant, fund)
	require.NoError(t, err)
	require.NotNil(t, state.Fund)
	// 500.00 credit reversed, 650.00 credited: the fund nets to 650.00.
	assert.Equal(t, money.MustParse("650.00"), state.Fund.Balance)
	assert.Equal(t, ledger.EntryStatusReversed, state.Fund.EntryStatuses[original.EntryID.String()])

	count, err := svc.VerifyHistoryIntegrity(ctx, tenant, fund)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCorrectionRejectsMismatchedFund(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	tenant := uuid.New()
	fund := uuid.New()
	date := ledger.DateOf(now)

	original := ledger.LedgerEntry{
		EntryID: uuid.New(), TenantID: tenant, TransactionID: uuid.New(), FundID: fund,
		AccountCode: "4100", Amount: money.MustParse("500.00"), IsDebit: false, EntryDate: date,
	}
	corrected := original
	corrected.EntryID = uuid.New()
	corrected.FundID = uuid.New() // wrong fund
	corrected.Amount = money.MustParse("650.00")

	_, err := svc.PostCorrection(ctx, tenant, original, corrected, "bookkeeper")
	var patErr *ledger.CorrectionPatternError
	require.ErrorAs(t, err, &patErr)

	// The failed correction appended nothing.
	history, err := svc.GetEventHistory(ctx, tenant, fund, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestComplianceViolationLifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	tenant, member := uuid.New(), uuid.New()

	tx, entries := dues(tenant, member, "7500.00")
	tx.ApprovedBy = "" // large transaction without approval
	for i := range entries {
		entries[i].Description = "dues"
	}

	res, err := svc.PostTransaction(ctx, tenant, tx, entries, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Violations)

	var violation policy.Violation
	found := false
	for _, v := range res.Violations {
		if v.PolicyID == "large-transaction-approval" {
			violation, found = v, true
		}
	}
	require.True(t, found, "expected large-transaction-approval violation")
	assert.Equal(t, tx.ID, violation.TransactionID)

	open, err := svc.ListViolations(ctx, tenant, policy.ViolationFilter{OnlyOpen: true})
	require.NoError(t, err)
	assert.NotEmpty(t, open)

	resolved, err := svc.ResolveViolation(ctx, tenant, violation.ViolationID, "board president", "ratified at meeting")
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)

	rep, err := svc.ComplianceReport(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Resolved)
}

func TestAppendAutoSequences(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	tenant, member := uuid.New(), uuid.New()

	for i := 1; i <= 3; i++ {
		ev, err := svc.AppendEvent(ctx, tenant, member, events.AggregateMember,
			events.EventPaymentReceived, events.PaymentReceivedPayload{
				TransactionID: uuid.New(),
				MemberID:      member,
				Type:          ledger.TransactionDuesPayment,
				Amount:        money.MustParse("300.00"),
				Date:          ledger.DateOf(now),
			}, "bookkeeper")
		require.NoError(t, err)
		assert.Equal(t, uint64(i), ev.Sequence)
	}
}

func TestCrossTenantAccessBlocked(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	tenantA, tenantB := uuid.New(), uuid.New()
	member := uuid.New()

	payload := events.PaymentReceivedPayload{
		TransactionID: uuid.New(),
		MemberID:      member,
		Type:          ledger.TransactionDuesPayment,
		Amount:        money.MustParse("300.00"),
		Date:          ledger.DateOf(now),
	}
	_, err := svc.AppendEvent(ctx, tenantA, member, events.AggregateMember, events.EventPaymentReceived, payload, "a")
	require.NoError(t, err)

	_, err = svc.AppendEvent(ctx, tenantB, member, events.AggregateMember, events.EventPaymentReceived, payload, "b")
	var cross *tenants.CrossTenantAccessError
	require.ErrorAs(t, err, &cross)

	_, err = svc.GetEventHistory(ctx, tenantB, member, 1, 0)
	require.ErrorAs(t, err, &cross)
}

func TestInactiveTenantRefused(t *testing.T) {
	store, err := events.NewMemoryStore()
	require.NoError(t, err)
	registry := tenants.NewRegistry()
	svc, err := New(Options{
		Store:     store,
		Snapshots: events.NewMemorySnapshotStore(),
		Registry:  registry,
		Clock:     func() time.Time { return now },
	})
	require.NoError(t, err)
	ctx := context.Background()

	tn, err := registry.Provision(ctx, "Seaview HOA")
	require.NoError(t, err)
	member := uuid.New()
	payload := events.PaymentReceivedPayload{
		TransactionID: uuid.New(),
		MemberID:      member,
		Type:          ledger.TransactionDuesPayment,
		Amount:        money.MustParse("300.00"),
		Date:          ledger.DateOf(now),
	}

	_, err = svc.AppendEvent(ctx, tn.ID, member, events.AggregateMember, events.EventPaymentReceived, payload, "a")
	require.NoError(t, err)

	require.NoError(t, registry.Deactivate(ctx, tn.ID))
	_, err = svc.AppendEvent(ctx, tn.ID, member, events.AggregateMember, events.EventPaymentReceived, payload, "a")
	require.ErrorIs(t, err, tenants.ErrTenantInactive)
}

func TestAutoSnapshotAtCadence(t *testing.T) {
	store, err := events.NewMemoryStore()
	require.NoError(t, err)
	snaps := events.NewMemorySnapshotStore()
	svc, err := New(Options{
		Store:          store,
		Snapshots:      snaps,
		SnapshotPolicy: replay.SnapshotPolicy{EveryN: 3},
		Clock:          func() time.Time { return now },
	})
	require.NoError(t, err)
	ctx := context.Background()
	tenant, member := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		_, err := svc.AppendEvent(ctx, tenant, member, events.AggregateMember,
			events.EventPaymentReceived, events.PaymentReceivedPayload{
				TransactionID: uuid.New(),
				MemberID:      member,
				Type:          ledger.TransactionDuesPayment,
				Amount:        money.MustParse("100.00"),
				Date:          ledger.DateOf(now),
			}, "bookkeeper")
		require.NoError(t, err)
	}

	snap, err := snaps.Latest(ctx, tenant, member)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, uint64(3), snap.AsOfSequence)
}

func TestBudgetOverrunReportedAsViolation(t *testing.T) {
	store, err := events.NewMemoryStore()
	require.NoError(t, err)
	tracker := budgets.NewTracker()
	svc, err := New(Options{
		Store:     store,
		Snapshots: events.NewMemorySnapshotStore(),
		Budgets:   tracker,
		Clock:     func() time.Time { return now },
	})
	require.NoError(t, err)
	ctx := context.Background()
	tenant := uuid.New()
	fund := ledger.Fund{
		ID:                   uuid.New(),
		TenantID:             tenant,
		PropertyID:           uuid.New(),
		Name:                 "Operating",
		Type:                 ledger.FundOperating,
		AllowNegativeBalance: true,
	}
	require.NoError(t, svc.SetBudget(budgets.Budget{
		TenantID: tenant,
		FundID:   fund.ID,
		Period:   budgets.PeriodMonthly,
		Limit:    money.MustParse("1000.00"),
	}))

	tx := ledger.Transaction{
		ID:          uuid.New(),
		TenantID:    tenant,
		PropertyID:  fund.PropertyID,
		Type:        ledger.TransactionMaintenance,
		Amount:      money.MustParse("1400.00"),
		Date:        ledger.DateOf(now),
		Description: "parking lot repaving",
		Status:      ledger.TransactionStatusCreated,
		ApprovedBy:  "treasurer",
	}
	entries := []ledger.LedgerEntry{
		{EntryID: uuid.New(), TenantID: tenant, TransactionID: tx.ID, FundID: fund.ID,
			AccountCode: "5200", Amount: tx.Amount, IsDebit: true, EntryDate: tx.Date},
		{EntryID: uuid.New(), TenantID: tenant, TransactionID: tx.ID, FundID: uuid.New(),
			AccountCode: "1000", Amount: tx.Amount, IsDebit: false, EntryDate: tx.Date},
	}

	res, err := svc.PostTransaction(ctx, tenant, tx, entries, nil)
	require.NoError(t, err)

	var overrun *policy.Violation
	for i := range res.Violations {
		if res.Violations[i].PolicyID == "fund-budget-exceeded" {
			overrun = &res.Violations[i]
		}
	}
	require.NotNil(t, overrun, "expected a budget overrun violation")
	assert.Equal(t, policy.SeverityWarning, overrun.Severity)
	assert.Equal(t, tx.ID, overrun.TransactionID)

	status, err := svc.BudgetStatus(ctx, tenant, fund.ID, ledger.DateOf(now))
	require.NoError(t, err)
	assert.True(t, status.Exceeded)
	assert.Equal(t, money.MustParse("-400.00"), status.Remaining)
}

func TestStreamCommitmentAndProof(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	tenant, member := uuid.New(), uuid.New()

	for i := 0; i < 5; i++ {
		_, err := svc.AppendEvent(ctx, tenant, member, events.AggregateMember,
			events.EventPaymentReceived, events.PaymentReceivedPayload{
				TransactionID: uuid.New(),
				MemberID:      member,
				Type:          ledger.TransactionDuesPayment,
				Amount:        money.MustParse("100.00"),
				Date:          ledger.DateOf(now),
			}, "bookkeeper")
		require.NoError(t, err)
	}

	root, err := svc.StreamCommitment(ctx, tenant, member)
	require.NoError(t, err)
	require.NotEmpty(t, root)

	for seq := uint64(1); seq <= 5; seq++ {
		proof, err := svc.ProveEvent(ctx, tenant, member, seq)
		require.NoError(t, err)
		assert.True(t, merkle.Verify(proof, root), "sequence %d", seq)
	}

	_, err = svc.ProveEvent(ctx, tenant, member, 6)
	require.Error(t, err)

	// A new event moves the commitment.
	_, err = svc.AppendEvent(ctx, tenant, member, events.AggregateMember,
		events.EventPaymentReceived, events.PaymentReceivedPayload{
			TransactionID: uuid.New(),
			MemberID:      member,
			Type:          ledger.TransactionDuesPayment,
			Amount:        money.MustParse("100.00"),
			Date:          ledger.DateOf(now),
		}, "bookkeeper")
	require.NoError(t, err)

	moved, err := svc.StreamCommitment(ctx, tenant, member)
	require.NoError(t, err)
	assert.NotEqual(t, root, moved)
}

func TestVerifyHistoryIntegrityEmptyStream(t *testing.T) {
	svc := newService(t)
	n, err := svc.VerifyHistoryIntegrity(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResolveUnknownViolation(t *testing.T) {
	svc := newService(t)
	_, err := svc.ResolveViolation(context.Background(), uuid.New(), uuid.New(), "x", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, policy.ErrViolationNotFound))
}
