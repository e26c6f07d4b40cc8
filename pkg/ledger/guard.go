package ledger

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/stratafin/ledgercore/pkg/canonicalize"
)

// Guard enforces structural immutability of committed records and the
// reversing-entry correction pattern.
type Guard struct{}

// NewGuard creates an immutability guard.
func NewGuard() *Guard {
	return &Guard{}
}

// VerifyNoMutation checks that a re-read record is structurally identical to
// its originally committed form, by comparing canonical JSON hashes. Any
// difference is an ImmutableViolationError naming the first differing field.
func (g *Guard) VerifyNoMutation(recordID string, original, current interface{}) error {
	originalHash, err := canonicalize.CanonicalHash(original)
	if err != nil {
		return fmt.Errorf("hash original %s: %w", recordID, err)
	}
	currentHash, err := canonicalize.CanonicalHash(current)
	if err != nil {
		return fmt.Errorf("hash current %s: %w", recordID, err)
	}
	if originalHash == currentHash {
		return nil
	}

	return &ImmutableViolationError{
		RecordID:     recordID,
		Field:        firstDifferingField(original, current),
		OriginalHash: originalHash,
		CurrentHash:  currentHash,
	}
}

// VerifyCorrectionPattern checks a correction triple. A valid correction is:
// the original entry untouched, a reversing entry that references it with the
// same amount on the opposite side in the same fund and account, and a new
// corrected entry in the same fund and account. Any failing clause rejects
// the whole correction.
func (g *Guard) VerifyCorrectionPattern(original, reversing, corrected LedgerEntry) error {
	fail := func(reason string) error {
		return &CorrectionPatternError{
			OriginalID:  original.EntryID,
			ReversingID: reversing.EntryID,
			Reason:      reason,
		}
	}

	if !reversing.IsReversing {
		return fail("reversing entry is not flagged as reversing")
	}
	if reversing.ReversesEntryID != original.EntryID {
		return fail(fmt.Sprintf("reversing entry references %s, not the original", reversing.ReversesEntryID))
	}
	if reversing.Amount != original.Amount {
		return fail(fmt.Sprintf("reversing amount %s does not match original %s", reversing.Amount, original.Amount))
	}
	if reversing.IsDebit == original.IsDebit {
		return fail("reversing entry is on the same side as the original")
	}
	if reversing.FundID != original.FundID {
		return fail("reversing entry posts to a different fund")
	}
	if reversing.AccountCode != original.AccountCode {
		return fail("reversing entry posts to a different account")
	}
	if reversing.TenantID != original.TenantID {
		return fail("reversing entry belongs to a different tenant")
	}

	if corrected.IsReversing {
		return fail("corrected entry must not be a reversing entry")
	}
	if corrected.FundID != original.FundID {
		return fail("corrected entry posts to a different fund")
	}
	if corrected.AccountCode != original.AccountCode {
		return fail("corrected entry posts to a different account")
	}
	if corrected.TenantID != original.TenantID {
		return fail("corrected entry belongs to a different tenant")
	}
	if !corrected.Amount.IsPositive() {
		return fail(fmt.Sprintf("corrected entry has non-positive amount %s", corrected.Amount))
	}

	return nil
}

// firstDifferingField diffs two values through their JSON representations
// and returns the first top-level field that differs, or "".
func firstDifferingField(a, b interface{}) string {
	am, ok1 := toMap(a)
	bm, ok2 := toMap(b)
	if !ok1 || !ok2 {
		return ""
	}

	keys := make(map[string]bool, len(am)+len(bm))
	for k := range am {
		keys[k] = true
	}
	for k := range bm {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		ha, err1 := canonicalize.CanonicalHash(am[k])
		hb, err2 := canonicalize.CanonicalHash(bm[k])
		if err1 != nil || err2 != nil || ha != hb {
			return k
		}
	}
	return ""
}

func toMap(v interface{}) (map[string]interface{}, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}
