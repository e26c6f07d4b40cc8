package policy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratafin/ledgercore/pkg/ledger"
	"github.com/stratafin/ledgercore/pkg/money"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	require.NoError(t, err)
	e.WithClock(func() time.Time { return testNow })
	require.NoError(t, e.RegisterAll(StandardPolicies()))
	return e
}

func tx(amount, description, approvedBy string, date ledger.Date) ledger.Transaction {
	return ledger.Transaction{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		Type:        ledger.TransactionVendorPayment,
		Amount:      money.MustParse(amount),
		Date:        date,
		Description: description,
		ApprovedBy:  approvedBy,
		Status:      ledger.TransactionStatusCreated,
	}
}

func policyIDs(vs []Violation) []string {
	ids := make([]string, 0, len(vs))
	for _, v := range vs {
		ids = append(ids, v.PolicyID)
	}
	return ids
}

func TestRegisterRejectsBadExpression(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)

	err = e.Register(Policy{
		ID:         "broken",
		Name:       "Broken",
		Expression: `amount_minor >`,
		Severity:   SeverityError,
		Enabled:    true,
	})
	var ruleErr *PolicyRuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "broken", ruleErr.PolicyID)
}

func TestRegisterRejectsNonBoolExpression(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)

	err = e.Register(Policy{
		ID:         "not-bool",
		Name:       "Not bool",
		Expression: `amount_minor + 1`,
		Severity:   SeverityError,
		Enabled:    true,
	})
	var ruleErr *PolicyRuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Contains(t, ruleErr.Reason, "want bool")
}

func TestRegisterRejectsUnknownVariable(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)

	err = e.Register(Policy{
		ID:         "unknown-var",
		Name:       "Unknown variable",
		Expression: `shenanigans > 0`,
		Severity:   SeverityError,
		Enabled:    true,
	})
	var ruleErr *PolicyRuleError
	require.ErrorAs(t, err, &ruleErr)
}

func TestLargeUnapprovedTransaction(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	date := ledger.DateOf(testNow)

	vs, err := e.Evaluate(ctx, Input{
		TenantID:    uuid.New(),
		Transaction: tx("7500.00", "roof repair", "", date),
		FundBalance: money.MustParse("10000.00"),
	})
	require.NoError(t, err)
	assert.Contains(t, policyIDs(vs), "large-transaction-approval")

	// The same transaction with an approver passes.
	vs, err = e.Evaluate(ctx, Input{
		TenantID:    uuid.New(),
		Transaction: tx("7500.00", "roof repair", "board president", date),
		FundBalance: money.MustParse("10000.00"),
	})
	require.NoError(t, err)
	assert.NotContains(t, policyIDs(vs), "large-transaction-approval")
}

func TestCleanTransactionRaisesNothing(t *testing.T) {
	e := testEngine(t)

	vs, err := e.Evaluate(context.Background(), Input{
		TenantID:    uuid.New(),
		Transaction: tx("320.00", "landscaping March", "treasurer", ledger.DateOf(testNow)),
		FundBalance: money.MustParse("4000.00"),
	})
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestStandardPolicyMatrix(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	today := ledger.DateOf(testNow)

	cases := []struct {
		name   string
		input  Input
		expect string
	}{
		{
			name: "missing description",
			input: Input{
				Transaction: tx("100.00", "", "treasurer", today),
				FundBalance: money.MustParse("500.00"),
			},
			expect: "missing-description",
		},
		{
			name: "future dated",
			input: Input{
				Transaction: tx("100.00", "prepaid", "treasurer", ledger.DateOf(testNow.AddDate(0, 1, 0))),
				FundBalance: money.MustParse("500.00"),
			},
			expect: "future-dated-transaction",
		},
		{
			name: "stale bookkeeping",
			input: Input{
				Transaction: tx("100.00", "old invoice", "treasurer", ledger.DateOf(testNow.AddDate(0, -4, 0))),
				FundBalance: money.MustParse("500.00"),
			},
			expect: "stale-transaction",
		},
		{
			name: "overdrawn fund",
			input: Input{
				Transaction: tx("100.00", "utilities", "treasurer", today),
				FundBalance: money.MustParse("-50.00"),
			},
			expect: "fund-overdraft",
		},
		{
			name: "round amount",
			input: Input{
				Transaction: tx("20000.00", "special assessment", "board", today),
				FundBalance: money.MustParse("50000.00"),
			},
			expect: "round-amount-review",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.input.TenantID = uuid.New()
			vs, err := e.Evaluate(ctx, tc.input)
			require.NoError(t, err)
			assert.Contains(t, policyIDs(vs), tc.expect)
		})
	}
}

func TestUnbalancedEntriesPolicy(t *testing.T) {
	e := testEngine(t)
	txn := tx("100.00", "dues", "treasurer", ledger.DateOf(testNow))
	fund := uuid.New()

	entries := []ledger.LedgerEntry{
		{EntryID: uuid.New(), TransactionID: txn.ID, FundID: fund, AccountCode: "1000",
			Amount: money.MustParse("100.00"), IsDebit: true, EntryDate: txn.Date},
		{EntryID: uuid.New(), TransactionID: txn.ID, FundID: fund, AccountCode: "4100",
			Amount: money.MustParse("90.00"), IsDebit: false, EntryDate: txn.Date},
	}

	vs, err := e.Evaluate(context.Background(), Input{
		TenantID:    uuid.New(),
		Transaction: txn,
		Entries:     entries,
		FundBalance: money.MustParse("500.00"),
	})
	require.NoError(t, err)
	assert.Contains(t, policyIDs(vs), "unbalanced-entries")

	for _, v := range vs {
		if v.PolicyID == "unbalanced-entries" {
			assert.Equal(t, SeverityCritical, v.Severity)
			assert.Equal(t, txn.ID, v.TransactionID)
		}
	}
}

func TestDisabledPolicySkipped(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.SetEnabled("missing-description", false))

	vs, err := e.Evaluate(context.Background(), Input{
		TenantID:    uuid.New(),
		Transaction: tx("100.00", "", "treasurer", ledger.DateOf(testNow)),
		FundBalance: money.MustParse("500.00"),
	})
	require.NoError(t, err)
	assert.NotContains(t, policyIDs(vs), "missing-description")
}

func TestViolationsAreDataNotErrors(t *testing.T) {
	e := testEngine(t)

	// A transaction breaking several rules still evaluates cleanly.
	vs, err := e.Evaluate(context.Background(), Input{
		TenantID:    uuid.New(),
		Transaction: tx("9000.00", "", "", ledger.DateOf(testNow)),
		FundBalance: money.MustParse("-100.00"),
	})
	require.NoError(t, err)
	got := policyIDs(vs)
	assert.Contains(t, got, "large-transaction-approval")
	assert.Contains(t, got, "missing-description")
	assert.Contains(t, got, "fund-overdraft")
}

func TestLoadPack(t *testing.T) {
	src := `
name: custom
policies:
  - id: weekend-posting
    name: Weekend posting
    expression: transaction_date.getDayOfWeek() in [0, 6]
    severity: info
    category: timing
    enabled: true
`
	pack, err := LoadPack(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "custom", pack.Name)
	require.Len(t, pack.Policies, 1)

	e, err := NewEngine()
	require.NoError(t, err)
	require.NoError(t, e.RegisterAll(pack.Policies))
}

func TestLoadPackRejectsBadSeverity(t *testing.T) {
	src := `
name: bad
policies:
  - id: p1
    name: P1
    expression: amount_minor > 0
    severity: catastrophic
`
	_, err := LoadPack(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "severity")
}

func TestLoadPackRejectsDuplicateIDs(t *testing.T) {
	src := `
name: dup
policies:
  - id: p1
    name: P1
    expression: amount_minor > 0
    severity: info
  - id: p1
    name: P1 again
    expression: amount_minor > 1
    severity: info
`
	_, err := LoadPack(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}
