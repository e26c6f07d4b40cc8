package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/ledger"
	"github.com/stratafin/ledgercore/pkg/money"
)

func testStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func paymentEvent(t *testing.T, tenantID, memberID uuid.UUID, seq uint64, ts time.Time, amount string) *Event {
	t.Helper()
	payload := PaymentReceivedPayload{
		TransactionID: uuid.New(),
		MemberID:      memberID,
		Type:          ledger.TransactionDuesPayment,
		Amount:        money.MustParse(amount),
		Date:          ledger.DateOf(ts),
	}
	ev, err := New(tenantID, memberID, AggregateMember, EventPaymentReceived, payload, seq, ts, "test")
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestAppendAssignsHashes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant, member := uuid.New(), uuid.New()

	ev := paymentEvent(t, tenant, member, 1, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), "300.00")
	id, err := s.Append(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}
	if id != ev.EventID {
		t.Fatalf("returned id %s != %s", id, ev.EventID)
	}
	if ev.PayloadHash == "" || ev.EventHash == "" {
		t.Fatal("hashes not set on append")
	}

	got, err := s.Get(ctx, tenant, id)
	if err != nil {
		t.Fatal(err)
	}
	if err := got.VerifyIntegrity(); err != nil {
		t.Fatalf("integrity: %v", err)
	}
}

func TestAppendRejectsSequenceGap(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant, member := uuid.New(), uuid.New()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := s.Append(ctx, paymentEvent(t, tenant, member, 1, ts, "100.00")); err != nil {
		t.Fatal(err)
	}

	// Gap: sequence 3 after 1
	err := errFromAppend(ctx, s, paymentEvent(t, tenant, member, 3, ts, "100.00"))
	var seqErr *SequenceConflictError
	if !errors.As(err, &seqErr) {
		t.Fatalf("expected SequenceConflictError, got %v", err)
	}
	if seqErr.Expected != 2 || seqErr.Got != 3 {
		t.Fatalf("conflict values: expected %d got %d", seqErr.Expected, seqErr.Got)
	}

	// Replay of an already used sequence
	err = errFromAppend(ctx, s, paymentEvent(t, tenant, member, 1, ts, "100.00"))
	if !errors.As(err, &seqErr) {
		t.Fatalf("expected SequenceConflictError, got %v", err)
	}

	// Nothing partial was committed
	if n, _ := s.LastSequence(ctx, tenant, member); n != 1 {
		t.Fatalf("last sequence %d after failed appends", n)
	}
}

func errFromAppend(ctx context.Context, s *MemoryStore, e *Event) error {
	_, err := s.Append(ctx, e)
	return err
}

func TestAppendIdempotentOnEventID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant, member := uuid.New(), uuid.New()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	ev := paymentEvent(t, tenant, member, 1, ts, "100.00")
	if _, err := s.Append(ctx, ev); err != nil {
		t.Fatal(err)
	}

	dup := paymentEvent(t, tenant, member, 2, ts, "100.00")
	dup.EventID = ev.EventID
	err := errFromAppend(ctx, s, dup)
	var dupErr *DuplicateEventError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateEventError, got %v", err)
	}
}

func TestAppendRejectsBadPayload(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant, member := uuid.New(), uuid.New()

	ev := paymentEvent(t, tenant, member, 1, time.Now().UTC(), "100.00")
	ev.Payload = []byte(`{"transaction_id": "not-even-required-fields"}`)
	err := errFromAppend(ctx, s, ev)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestEventsOrderedAndPaged(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant, member := uuid.New(), uuid.New()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := uint64(1); i <= 5; i++ {
		ev := paymentEvent(t, tenant, member, i, base.Add(time.Duration(i)*time.Hour), "10.00")
		if _, err := s.Append(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.Events(ctx, tenant, member, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("got %d events", len(all))
	}
	for i, ev := range all {
		if ev.Sequence != uint64(i+1) {
			t.Fatalf("order broken at %d: seq %d", i, ev.Sequence)
		}
	}

	page, err := s.Events(ctx, tenant, member, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Sequence != 3 || page[1].Sequence != 4 {
		t.Fatalf("page wrong: %+v", page)
	}
}

func TestTenantIsolationWithCollidingAggregateIDs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenantA, tenantB := uuid.New(), uuid.New()
	shared := uuid.New() // same aggregate id in both tenants
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := s.Append(ctx, paymentEvent(t, tenantA, shared, 1, ts, "100.00")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append(ctx, paymentEvent(t, tenantB, shared, 1, ts, "999.00")); err != nil {
		t.Fatal(err)
	}

	evs, err := s.Events(ctx, tenantA, shared, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 {
		t.Fatalf("tenant A sees %d events", len(evs))
	}
	if evs[0].TenantID != tenantA {
		t.Fatal("tenant A received tenant B's event")
	}

	all, err := s.AllEvents(ctx, tenantA, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range all {
		if ev.TenantID != tenantA {
			t.Fatal("cross-tenant leak in AllEvents")
		}
	}
}

func TestAllEventsFiltersConjunctively(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant, member := uuid.New(), uuid.New()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := uint64(1); i <= 4; i++ {
		ev := paymentEvent(t, tenant, member, i, base.AddDate(0, 0, int(i)), "10.00")
		if _, err := s.Append(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.AllEvents(ctx, tenant, Filter{
		EventTypes: []EventType{EventPaymentReceived},
		From:       base.AddDate(0, 0, 2),
		To:         base.AddDate(0, 0, 3),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events", len(got))
	}

	got, err = s.AllEvents(ctx, tenant, Filter{EventTypes: []EventType{EventFundCreated}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("type filter leaked %d events", len(got))
	}
}

func TestStoreHandsOutCopies(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant, member := uuid.New(), uuid.New()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	ev := paymentEvent(t, tenant, member, 1, ts, "100.00")
	id, err := s.Append(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(ctx, tenant, id)
	got.Payload[0] = 'X' // caller scribbles on the returned copy

	again, _ := s.Get(ctx, tenant, id)
	if err := again.VerifyIntegrity(); err != nil {
		t.Fatalf("committed event was mutated through a returned pointer: %v", err)
	}
}
