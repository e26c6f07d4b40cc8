package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSnapshotNearestBefore(t *testing.T) {
	s := NewMemorySnapshotStore()
	ctx := context.Background()
	tenant, agg := uuid.New(), uuid.New()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, seq := range []uint64{10, 20, 30} {
		err := s.Save(ctx, &Snapshot{
			SnapshotID:    uuid.New(),
			TenantID:      tenant,
			AggregateID:   agg,
			AggregateType: AggregateFund,
			AsOfSequence:  seq,
			AsOfTimestamp: base.Add(time.Duration(seq) * time.Hour),
			State:         json.RawMessage(`{}`),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	snap, err := s.NearestBefore(ctx, tenant, agg, 25)
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || snap.AsOfSequence != 20 {
		t.Fatalf("nearest ≤ 25: %+v", snap)
	}

	snap, _ = s.NearestBefore(ctx, tenant, agg, 5)
	if snap != nil {
		t.Fatalf("expected no snapshot below 10, got %d", snap.AsOfSequence)
	}

	snap, _ = s.NearestBeforeTime(ctx, tenant, agg, base.Add(21*time.Hour))
	if snap == nil || snap.AsOfSequence != 20 {
		t.Fatalf("nearest by time: %+v", snap)
	}

	snap, _ = s.Latest(ctx, tenant, agg)
	if snap == nil || snap.AsOfSequence != 30 {
		t.Fatalf("latest: %+v", snap)
	}
}

func TestSnapshotScopedByTenant(t *testing.T) {
	s := NewMemorySnapshotStore()
	ctx := context.Background()
	tenantA, tenantB := uuid.New(), uuid.New()
	agg := uuid.New()

	_ = s.Save(ctx, &Snapshot{
		SnapshotID:    uuid.New(),
		TenantID:      tenantA,
		AggregateID:   agg,
		AsOfSequence:  5,
		AsOfTimestamp: time.Now().UTC(),
		State:         json.RawMessage(`{}`),
	})

	snap, err := s.NearestBefore(ctx, tenantB, agg, 100)
	if err != nil {
		t.Fatal(err)
	}
	if snap != nil {
		t.Fatal("tenant B saw tenant A's snapshot")
	}
}
