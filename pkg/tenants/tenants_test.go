package tenants

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestProvisionAndRequire(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	r := NewRegistry().WithClock(func() time.Time { return now })
	ctx := context.Background()

	tn, err := r.Provision(ctx, "Seaview HOA")
	if err != nil {
		t.Fatal(err)
	}
	if !tn.Active || !tn.CreatedAt.Equal(now) {
		t.Fatalf("tenant = %+v", tn)
	}

	got, err := r.Require(ctx, tn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Seaview HOA" {
		t.Fatalf("name = %q", got.Name)
	}

	if _, err := r.Require(ctx, uuid.New()); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("err = %v, want ErrTenantNotFound", err)
	}
}

func TestDeactivateBlocksNewWork(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	tn, err := r.Provision(ctx, "Hillside HOA")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Deactivate(ctx, tn.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Require(ctx, tn.ID); !errors.Is(err, ErrTenantInactive) {
		t.Fatalf("err = %v, want ErrTenantInactive", err)
	}
	// The record itself stays readable.
	got, err := r.Get(ctx, tn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Active {
		t.Fatal("tenant still active after deactivation")
	}
}

func TestListSortedByName(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	for _, name := range []string{"Cedar", "Aspen", "Birch"} {
		if _, err := r.Provision(ctx, name); err != nil {
			t.Fatal(err)
		}
	}

	got := r.List(ctx)
	if len(got) != 3 || got[0].Name != "Aspen" || got[2].Name != "Cedar" {
		t.Fatalf("list = %+v", got)
	}
}

func TestGuardBlocksCrossTenantAccess(t *testing.T) {
	g := NewGuard()
	tenantA, tenantB := uuid.New(), uuid.New()
	agg := uuid.New()

	if err := g.Claim(tenantA, agg); err != nil {
		t.Fatal(err)
	}
	// Re-claiming by the owner is fine.
	if err := g.Claim(tenantA, agg); err != nil {
		t.Fatal(err)
	}

	err := g.Claim(tenantB, agg)
	var cross *CrossTenantAccessError
	if !errors.As(err, &cross) {
		t.Fatalf("err = %v, want CrossTenantAccessError", err)
	}
	if cross.TenantID != tenantB || cross.AggregateID != agg {
		t.Fatalf("error = %+v", cross)
	}

	if err := g.Authorize(tenantB, agg); !errors.As(err, &cross) {
		t.Fatalf("authorize err = %v, want CrossTenantAccessError", err)
	}
	if err := g.Authorize(tenantA, agg); err != nil {
		t.Fatalf("owner authorize = %v", err)
	}
	// Unclaimed aggregates are open.
	if err := g.Authorize(tenantB, uuid.New()); err != nil {
		t.Fatalf("unclaimed authorize = %v", err)
	}

	owner, ok := g.Owner(agg)
	if !ok || owner != tenantA {
		t.Fatalf("owner = %s, %v", owner, ok)
	}
}
