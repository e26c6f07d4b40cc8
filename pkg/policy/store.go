package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ViolationFilter narrows listing. Zero fields match everything.
type ViolationFilter struct {
	Severity    Severity
	Category    Category
	PolicyID    string
	OnlyOpen    bool
	Transaction uuid.UUID
}

func (f ViolationFilter) matches(v Violation) bool {
	if f.Severity != "" && v.Severity != f.Severity {
		return false
	}
	if f.Category != "" && v.Category != f.Category {
		return false
	}
	if f.PolicyID != "" && v.PolicyID != f.PolicyID {
		return false
	}
	if f.OnlyOpen && v.Resolved {
		return false
	}
	if f.Transaction != uuid.Nil && v.TransactionID != f.Transaction {
		return false
	}
	return true
}

// ViolationStore keeps detected violations per tenant. Violations are
// append-and-resolve records; they are never deleted.
type ViolationStore struct {
	mu       sync.RWMutex
	byTenant map[uuid.UUID][]*Violation
	byID     map[uuid.UUID]*Violation
	clock    func() time.Time
}

func NewViolationStore() *ViolationStore {
	return &ViolationStore{
		byTenant: make(map[uuid.UUID][]*Violation),
		byID:     make(map[uuid.UUID]*Violation),
		clock:    time.Now,
	}
}

// WithClock overrides the time source used for resolution timestamps.
func (s *ViolationStore) WithClock(clock func() time.Time) *ViolationStore {
	s.clock = clock
	return s
}

// Record stores violations from one evaluation.
func (s *ViolationStore) Record(ctx context.Context, violations []Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range violations {
		v := violations[i]
		if _, exists := s.byID[v.ViolationID]; exists {
			continue
		}
		cp := v
		s.byTenant[v.TenantID] = append(s.byTenant[v.TenantID], &cp)
		s.byID[v.ViolationID] = &cp
	}
	return nil
}

// Resolve marks a violation reviewed. Resolution is one-shot; a second
// attempt returns an AlreadyResolvedError.
func (s *ViolationStore) Resolve(ctx context.Context, tenantID, violationID uuid.UUID, resolvedBy, note string) (*Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.byID[violationID]
	if !ok || v.TenantID != tenantID {
		return nil, fmt.Errorf("%w: %s", ErrViolationNotFound, violationID)
	}
	if v.Resolved {
		return nil, &AlreadyResolvedError{ViolationID: violationID.String(), ResolvedBy: v.ResolvedBy}
	}

	at := s.clock().UTC()
	v.Resolved = true
	v.ResolvedBy = resolvedBy
	v.ResolvedAt = &at
	v.ResolutionNote = note

	cp := *v
	return &cp, nil
}

// List returns a tenant's violations matching the filter, newest first.
func (s *ViolationStore) List(ctx context.Context, tenantID uuid.UUID, f ViolationFilter) ([]Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Violation{}
	for _, v := range s.byTenant[tenantID] {
		if f.matches(*v) {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.After(out[j].DetectedAt)
		}
		return out[i].ViolationID.String() < out[j].ViolationID.String()
	})
	return out, nil
}

// ComplianceReport summarizes a tenant's violation history.
type ComplianceReport struct {
	TenantID     uuid.UUID        `json:"tenant_id"`
	GeneratedAt  time.Time        `json:"generated_at"`
	Total        int              `json:"total"`
	Open         int              `json:"open"`
	Resolved     int              `json:"resolved"`
	BySeverity   map[Severity]int `json:"by_severity"`
	ByCategory   map[Category]int `json:"by_category"`
	OpenCritical []Violation      `json:"open_critical,omitempty"`
}

// Report builds a compliance report for the tenant.
func (s *ViolationStore) Report(ctx context.Context, tenantID uuid.UUID) (*ComplianceReport, error) {
	all, err := s.List(ctx, tenantID, ViolationFilter{})
	if err != nil {
		return nil, err
	}

	rep := &ComplianceReport{
		TenantID:    tenantID,
		GeneratedAt: s.clock().UTC(),
		Total:       len(all),
		BySeverity:  make(map[Severity]int),
		ByCategory:  make(map[Category]int),
	}
	for _, v := range all {
		rep.BySeverity[v.Severity]++
		if v.Category != "" {
			rep.ByCategory[v.Category]++
		}
		if v.Resolved {
			rep.Resolved++
		} else {
			rep.Open++
			if v.Severity == SeverityCritical {
				rep.OpenCritical = append(rep.OpenCritical, v)
			}
		}
	}
	return rep, nil
}
