package policy

import (
	"errors"
	"fmt"
)

// ErrPolicyNotFound is returned when a policy ID is not registered.
var ErrPolicyNotFound = errors.New("policy not found")

// ErrViolationNotFound is returned when a violation ID is unknown.
var ErrViolationNotFound = errors.New("violation not found")

// PolicyRuleError reports a rule that failed compilation or type checking.
// Bad rules are rejected at registration so evaluation never sees them.
type PolicyRuleError struct {
	PolicyID string
	Reason   string
	Cause    error
}

func (e *PolicyRuleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("policy %s: %s: %v", e.PolicyID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("policy %s: %s", e.PolicyID, e.Reason)
}

func (e *PolicyRuleError) Unwrap() error { return e.Cause }

// AlreadyResolvedError reports a second resolution attempt on a violation.
type AlreadyResolvedError struct {
	ViolationID string
	ResolvedBy  string
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("violation %s already resolved by %s", e.ViolationID, e.ResolvedBy)
}
