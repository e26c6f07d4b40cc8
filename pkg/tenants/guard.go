package tenants

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// CrossTenantAccessError reports an attempt to touch an aggregate owned by a
// different tenant.
type CrossTenantAccessError struct {
	TenantID    uuid.UUID
	AggregateID uuid.UUID
}

func (e *CrossTenantAccessError) Error() string {
	return fmt.Sprintf("tenant %s may not access aggregate %s", e.TenantID, e.AggregateID)
}

// Guard tracks which tenant owns each aggregate and refuses access from any
// other tenant. Ownership is claimed on first use and never transfers.
type Guard struct {
	mu     sync.RWMutex
	owners map[uuid.UUID]uuid.UUID // aggregate -> tenant
}

func NewGuard() *Guard {
	return &Guard{owners: make(map[uuid.UUID]uuid.UUID)}
}

// Claim records tenant ownership of an aggregate. Claiming an aggregate the
// tenant already owns is a no-op; claiming another tenant's aggregate fails.
func (g *Guard) Claim(tenantID, aggregateID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	owner, ok := g.owners[aggregateID]
	if !ok {
		g.owners[aggregateID] = tenantID
		return nil
	}
	if owner != tenantID {
		return &CrossTenantAccessError{TenantID: tenantID, AggregateID: aggregateID}
	}
	return nil
}

// Authorize checks that the tenant owns the aggregate. Unclaimed aggregates
// are readable by anyone; they have no history to leak.
func (g *Guard) Authorize(tenantID, aggregateID uuid.UUID) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	owner, ok := g.owners[aggregateID]
	if ok && owner != tenantID {
		return &CrossTenantAccessError{TenantID: tenantID, AggregateID: aggregateID}
	}
	return nil
}

// Owner returns the owning tenant of an aggregate, if claimed.
func (g *Guard) Owner(aggregateID uuid.UUID) (uuid.UUID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	owner, ok := g.owners[aggregateID]
	return owner, ok
}
