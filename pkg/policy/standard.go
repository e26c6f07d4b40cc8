package policy

// StandardPolicies is the built-in rule set for association finances. All
// thresholds are in minor units (cents).
func StandardPolicies() []Policy {
	return []Policy{
		{
			ID:          "large-transaction-approval",
			Name:        "Large transaction requires approval",
			Description: "transactions of 5000.00 or more need a named approver",
			Expression:  `amount_minor >= 500000 && approved_by == ""`,
			Severity:    SeverityError,
			Category:    CategoryApproval,
			Enabled:     true,
		},
		{
			ID:          "missing-description",
			Name:        "Transaction lacks a description",
			Description: "every transaction should say what it was for",
			Expression:  `description == ""`,
			Severity:    SeverityWarning,
			Category:    CategoryDocumentation,
			Enabled:     true,
		},
		{
			ID:          "future-dated-transaction",
			Name:        "Transaction dated in the future",
			Description: "transaction dates must not be after the posting time",
			Expression:  `transaction_date > now`,
			Severity:    SeverityError,
			Category:    CategoryTiming,
			Enabled:     true,
		},
		{
			ID:          "stale-transaction",
			Name:        "Transaction recorded long after the fact",
			Description: "bookkeeping older than 90 days suggests a backlog",
			Expression:  `now - transaction_date > duration("2160h")`,
			Severity:    SeverityWarning,
			Category:    CategoryTiming,
			Enabled:     true,
		},
		{
			ID:          "fund-overdraft",
			Name:        "Fund balance below zero",
			Description: "the affected fund would be overdrawn",
			Expression:  `balance_minor < 0`,
			Severity:    SeverityCritical,
			Category:    CategoryBalance,
			Enabled:     true,
		},
		{
			ID:          "unbalanced-entries",
			Name:        "Entries do not balance",
			Description: "debits and credits must sum to the same amount",
			Expression:  `entry_count > 0 && debit_total_minor != credit_total_minor`,
			Severity:    SeverityCritical,
			Category:    CategoryBalance,
			Enabled:     true,
		},
		{
			ID:          "round-amount-review",
			Name:        "Large round amount",
			Description: "large round-figure transactions warrant a second look",
			Expression:  `amount_minor >= 1000000 && amount_minor % 100000 == 0`,
			Severity:    SeverityInfo,
			Category:    CategoryAmount,
			Enabled:     true,
		},
		{
			ID:          "non-positive-amount",
			Name:        "Transaction amount not positive",
			Description: "amounts are always positive; direction comes from the type",
			Expression:  `amount_minor <= 0`,
			Severity:    SeverityError,
			Category:    CategoryAmount,
			Enabled:     true,
		},
	}
}
