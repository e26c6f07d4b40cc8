// Package policy evaluates declarative compliance rules against financial
// activity. Rules are CEL expressions compiled and type-checked at
// registration time; at evaluation time a rule that comes out true raises a
// violation. Violations are recorded as data for later review and
// resolution, they never block a posting on their own.
package policy

import (
	"time"

	"github.com/google/uuid"
)

// Severity ranks how serious a violation is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Category groups rules by what they police.
type Category string

const (
	CategoryApproval      Category = "approval"
	CategoryDocumentation Category = "documentation"
	CategoryBalance       Category = "balance"
	CategoryTiming        Category = "timing"
	CategoryAmount        Category = "amount"
)

// Policy is one compliance rule. Expression is a CEL expression over the
// evaluation input; it must type-check to bool and evaluates to true exactly
// when the rule is violated.
type Policy struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Expression  string   `json:"expression" yaml:"expression"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Category    Category `json:"category,omitempty" yaml:"category,omitempty"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
}

// Violation is one detected rule breach, tied to the transaction that
// triggered it. Resolving a violation is an audit action on the record, the
// underlying transaction is untouched.
type Violation struct {
	ViolationID   uuid.UUID `json:"violation_id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	PolicyID      string    `json:"policy_id"`
	PolicyName    string    `json:"policy_name"`
	Severity      Severity  `json:"severity"`
	Category      Category  `json:"category,omitempty"`
	Message       string    `json:"message"`
	TransactionID uuid.UUID `json:"transaction_id,omitempty"`
	DetectedAt    time.Time `json:"detected_at"`

	Resolved       bool       `json:"resolved"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
}
