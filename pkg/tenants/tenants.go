// Package tenants scopes every ledger operation to one association. Tenants
// share nothing: streams, balances, snapshots, and violations are all keyed
// by tenant, and the guard turns any cross-tenant touch into an error before
// it reaches the log.
package tenants

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTenantNotFound is returned for unknown or deactivated-and-purged IDs.
var ErrTenantNotFound = errors.New("tenant not found")

// ErrTenantInactive is returned when an operation targets a deactivated tenant.
var ErrTenantInactive = errors.New("tenant inactive")

// Tenant is one association with its own isolated ledger.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// Registry tracks provisioned tenants.
type Registry struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*Tenant
	clock   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		tenants: make(map[uuid.UUID]*Tenant),
		clock:   time.Now,
	}
}

// WithClock overrides the time source for testing.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Provision creates a tenant and returns it.
func (r *Registry) Provision(ctx context.Context, name string) (*Tenant, error) {
	if name == "" {
		return nil, errors.New("tenant name required")
	}

	t := &Tenant{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: r.clock().UTC(),
		Active:    true,
	}

	r.mu.Lock()
	r.tenants[t.ID] = t
	r.mu.Unlock()

	cp := *t
	return &cp, nil
}

// Get returns a tenant by ID.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrTenantNotFound)
	}
	cp := *t
	return &cp, nil
}

// Require returns the tenant if it exists and is active.
func (r *Registry) Require(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Active {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrTenantInactive)
	}
	return t, nil
}

// Deactivate disables a tenant. Its history stays in the log; only new
// operations are refused.
func (r *Registry) Deactivate(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return fmt.Errorf("tenant %s: %w", id, ErrTenantNotFound)
	}
	t.Active = false
	return nil
}

// List returns all tenants sorted by name.
func (r *Registry) List(ctx context.Context) []Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
