package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/ledger"
	"github.com/stratafin/ledgercore/pkg/money"
)

// Input is the fact set one evaluation runs against. Amounts are exposed to
// rules in minor units as integers, so rule arithmetic stays exact.
type Input struct {
	TenantID    uuid.UUID
	Transaction ledger.Transaction
	Entries     []ledger.LedgerEntry
	FundBalance money.Amount
}

func (in Input) activation(now time.Time) map[string]interface{} {
	var debits, credits money.Amount
	codes := make([]string, 0, len(in.Entries))
	for _, e := range in.Entries {
		debits = debits.Add(e.DebitAmount())
		credits = credits.Add(e.CreditAmount())
		codes = append(codes, e.AccountCode)
	}

	txDate := in.Transaction.Date.Time()
	if in.Transaction.Date.IsZero() {
		txDate = now
	}

	return map[string]interface{}{
		"amount_minor":       int64(in.Transaction.Amount),
		"balance_minor":      int64(in.FundBalance),
		"debit_total_minor":  int64(debits),
		"credit_total_minor": int64(credits),
		"entry_count":        int64(len(in.Entries)),
		"transaction_type":   string(in.Transaction.Type),
		"description":        in.Transaction.Description,
		"approved_by":        in.Transaction.ApprovedBy,
		"account_codes":      codes,
		"transaction_date":   txDate,
		"now":                now,
	}
}

// Engine compiles and evaluates compliance rules. Compiled programs are
// cached per policy; registration and evaluation are safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	policies map[string]Policy
	programs map[string]cel.Program
	clock    func() time.Time
}

// NewEngine builds the CEL environment with the standard rule vocabulary.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount_minor", cel.IntType),
		cel.Variable("balance_minor", cel.IntType),
		cel.Variable("debit_total_minor", cel.IntType),
		cel.Variable("credit_total_minor", cel.IntType),
		cel.Variable("entry_count", cel.IntType),
		cel.Variable("transaction_type", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("approved_by", cel.StringType),
		cel.Variable("account_codes", cel.ListType(cel.StringType)),
		cel.Variable("transaction_date", cel.TimestampType),
		cel.Variable("now", cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL env: %w", err)
	}
	return &Engine{
		env:      env,
		policies: make(map[string]Policy),
		programs: make(map[string]cel.Program),
		clock:    time.Now,
	}, nil
}

// WithClock overrides the time source used for "now" in rule evaluation and
// violation timestamps.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Register compiles, type-checks, and stores a policy. A rule that does not
// compile or does not produce a bool is rejected with a PolicyRuleError and
// never reaches evaluation.
func (e *Engine) Register(p Policy) error {
	if p.ID == "" {
		return &PolicyRuleError{PolicyID: p.ID, Reason: "empty policy id"}
	}
	if !p.Severity.Valid() {
		return &PolicyRuleError{PolicyID: p.ID, Reason: fmt.Sprintf("unknown severity %q", p.Severity)}
	}

	ast, issues := e.env.Compile(p.Expression)
	if issues != nil && issues.Err() != nil {
		return &PolicyRuleError{PolicyID: p.ID, Reason: "compile failed", Cause: issues.Err()}
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return &PolicyRuleError{PolicyID: p.ID, Reason: fmt.Sprintf("expression yields %s, want bool", ast.OutputType())}
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return &PolicyRuleError{PolicyID: p.ID, Reason: "program construction failed", Cause: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.ID] = p
	e.programs[p.ID] = prg
	return nil
}

// RegisterAll registers policies in order, stopping at the first bad one.
func (e *Engine) RegisterAll(ps []Policy) error {
	for _, p := range ps {
		if err := e.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// SetEnabled toggles a registered policy.
func (e *Engine) SetEnabled(policyID string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.policies[policyID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPolicyNotFound, policyID)
	}
	p.Enabled = enabled
	e.policies[policyID] = p
	return nil
}

// Policies returns the registered policies sorted by ID.
func (e *Engine) Policies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Policy, 0, len(e.policies))
	for _, p := range e.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Evaluate runs every enabled policy against the input and returns the
// violations raised. A rule that errors at runtime fails closed: it raises a
// violation at its own severity rather than passing silently.
func (e *Engine) Evaluate(ctx context.Context, in Input) ([]Violation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock().UTC()
	activation := in.activation(now)

	ids := make([]string, 0, len(e.policies))
	for id := range e.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var violations []Violation
	for _, id := range ids {
		p := e.policies[id]
		if !p.Enabled {
			continue
		}

		out, _, err := e.programs[id].Eval(activation)
		if err != nil {
			violations = append(violations, e.violation(p, in, now,
				fmt.Sprintf("%s: rule evaluation failed: %v", p.Name, err)))
			continue
		}

		hit, ok := out.Value().(bool)
		if !ok {
			violations = append(violations, e.violation(p, in, now,
				fmt.Sprintf("%s: rule produced %T, want bool", p.Name, out.Value())))
			continue
		}
		if hit {
			violations = append(violations, e.violation(p, in, now, violationMessage(p, in)))
		}
	}
	return violations, nil
}

func (e *Engine) violation(p Policy, in Input, now time.Time, msg string) Violation {
	return Violation{
		ViolationID:   uuid.New(),
		TenantID:      in.TenantID,
		PolicyID:      p.ID,
		PolicyName:    p.Name,
		Severity:      p.Severity,
		Category:      p.Category,
		Message:       msg,
		TransactionID: in.Transaction.ID,
		DetectedAt:    now,
	}
}

func violationMessage(p Policy, in Input) string {
	msg := p.Name
	if p.Description != "" {
		msg = fmt.Sprintf("%s: %s", p.Name, p.Description)
	}
	if !in.Transaction.Amount.IsZero() {
		msg = fmt.Sprintf("%s (transaction %s, amount %s)", msg, in.Transaction.ID, in.Transaction.Amount)
	}
	return msg
}
