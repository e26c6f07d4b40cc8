// Package service is the application facade over the ledger core: it wires
// the event store, replay engine, validators, immutability guard,
// point-in-time reconstructor, and compliance engine behind one API and
// serializes appends per aggregate.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratafin/ledgercore/pkg/budgets"
	"github.com/stratafin/ledgercore/pkg/events"
	"github.com/stratafin/ledgercore/pkg/ledger"
	"github.com/stratafin/ledgercore/pkg/pointintime"
	"github.com/stratafin/ledgercore/pkg/policy"
	"github.com/stratafin/ledgercore/pkg/replay"
	"github.com/stratafin/ledgercore/pkg/tenants"
)

// Options configures a Service. Store and Snapshots are required; everything
// else has a sensible default.
type Options struct {
	Store     events.Store
	Snapshots events.SnapshotStore

	// Registry scopes operations to provisioned tenants. Nil skips the
	// active-tenant check; the per-aggregate ownership guard still applies.
	Registry *tenants.Registry

	// Policies is the compliance rule set. Nil means StandardPolicies.
	Policies []policy.Policy

	// Budgets tracks fund spending limits. Nil disables budget checks.
	Budgets *budgets.Tracker

	SnapshotPolicy  replay.SnapshotPolicy
	ReplayChunkSize int

	Logger *slog.Logger
	Clock  func() time.Time
}

// Service coordinates all ledger operations for all tenants.
type Service struct {
	store      events.Store
	snapshots  events.SnapshotStore
	engine     *replay.Engine
	snapMgr    *replay.SnapshotManager
	recon      *pointintime.Reconstructor
	validator  *ledger.Validator
	guard      *ledger.Guard
	registry   *tenants.Registry
	owners     *tenants.Guard
	policies   *policy.Engine
	violations *policy.ViolationStore
	budgets    *budgets.Tracker

	log    *slog.Logger
	tracer trace.Tracer
	clock  func() time.Time

	mu      sync.Mutex
	streams map[streamKey]*sync.Mutex
}

type streamKey struct {
	tenant    uuid.UUID
	aggregate uuid.UUID
}

// New builds a Service from options.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("service: Store is required")
	}
	if opts.Snapshots == nil {
		return nil, fmt.Errorf("service: Snapshots is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ledger-service")

	snapPolicy := opts.SnapshotPolicy
	if snapPolicy.EveryN == 0 && snapPolicy.MaxAge == 0 {
		snapPolicy = replay.DefaultSnapshotPolicy
	}

	engine := replay.NewEngine(opts.Store, opts.Snapshots)
	if opts.ReplayChunkSize > 0 {
		engine.WithChunkSize(opts.ReplayChunkSize)
	}
	recon := pointintime.NewReconstructor(engine, opts.Store)

	policyEngine, err := policy.NewEngine()
	if err != nil {
		return nil, err
	}
	policyEngine.WithClock(clock)
	rules := opts.Policies
	if rules == nil {
		rules = policy.StandardPolicies()
	}
	if err := policyEngine.RegisterAll(rules); err != nil {
		return nil, err
	}

	return &Service{
		store:      opts.Store,
		snapshots:  opts.Snapshots,
		engine:     engine,
		snapMgr:    replay.NewSnapshotManager(engine, opts.Store, opts.Snapshots, snapPolicy).WithClock(clock),
		recon:      recon,
		validator:  ledger.NewValidator(recon).WithClock(clock),
		guard:      ledger.NewGuard(),
		registry:   opts.Registry,
		owners:     tenants.NewGuard(),
		policies:   policyEngine,
		violations: policy.NewViolationStore().WithClock(clock),
		budgets:    opts.Budgets,
		log:        logger,
		tracer:     otel.Tracer("ledgercore"),
		clock:      clock,
		streams:    make(map[streamKey]*sync.Mutex),
	}, nil
}

// Reconstructor exposes the point-in-time query API.
func (s *Service) Reconstructor() *pointintime.Reconstructor { return s.recon }

// Validator exposes the synchronous invariant checks.
func (s *Service) Validator() *ledger.Validator { return s.validator }

// streamLock returns the mutex serializing appends to one aggregate.
func (s *Service) streamLock(tenantID, aggregateID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := streamKey{tenant: tenantID, aggregate: aggregateID}
	if s.streams[key] == nil {
		s.streams[key] = &sync.Mutex{}
	}
	return s.streams[key]
}

// authorize runs the tenant checks shared by every operation.
func (s *Service) authorize(ctx context.Context, tenantID, aggregateID uuid.UUID) error {
	if s.registry != nil {
		if _, err := s.registry.Require(ctx, tenantID); err != nil {
			return err
		}
	}
	return s.owners.Authorize(tenantID, aggregateID)
}

// AppendEvent validates, sequences, and commits one event. The sequence is
// assigned here, under the stream lock, so concurrent appends to the same
// aggregate serialize instead of conflicting.
func (s *Service) AppendEvent(ctx context.Context, tenantID, aggregateID uuid.UUID, at events.AggregateType, et events.EventType, payload interface{}, actorID string) (*events.Event, error) {
	ctx, span := s.tracer.Start(ctx, "AppendEvent", trace.WithAttributes(
		attribute.String("tenant_id", tenantID.String()),
		attribute.String("aggregate_id", aggregateID.String()),
		attribute.String("event_type", string(et)),
	))
	defer span.End()

	if s.registry != nil {
		if _, err := s.registry.Require(ctx, tenantID); err != nil {
			return nil, err
		}
	}
	if err := s.owners.Claim(tenantID, aggregateID); err != nil {
		return nil, err
	}

	lock := s.streamLock(tenantID, aggregateID)
	lock.Lock()
	defer lock.Unlock()

	last, err := s.store.LastSequence(ctx, tenantID, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("last sequence: %w", err)
	}

	ev, err := events.New(tenantID, aggregateID, at, et, payload, last+1, s.clock(), actorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Append(ctx, ev); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "event appended",
		"tenant_id", tenantID,
		"aggregate_id", aggregateID,
		"event_type", et,
		"sequence", ev.Sequence,
	)

	if snap, err := s.snapMgr.MaybeSnapshot(ctx, tenantID, aggregateID, "auto"); err != nil {
		// Snapshots are an optimization; a failure must not fail the append.
		s.log.WarnContext(ctx, "snapshot failed", "aggregate_id", aggregateID, "error", err)
	} else if snap != nil {
		s.log.DebugContext(ctx, "snapshot created",
			"aggregate_id", aggregateID, "as_of_sequence", snap.AsOfSequence)
	}

	return ev, nil
}

// GetEventHistory returns an aggregate's events from fromSeq.
func (s *Service) GetEventHistory(ctx context.Context, tenantID, aggregateID uuid.UUID, fromSeq uint64, limit int) ([]*events.Event, error) {
	if err := s.authorize(ctx, tenantID, aggregateID); err != nil {
		return nil, err
	}
	return s.store.Events(ctx, tenantID, aggregateID, fromSeq, limit)
}

// ReconstructBalance rebuilds a member's balance as of a date.
func (s *Service) ReconstructBalance(ctx context.Context, tenantID, memberID uuid.UUID, asOf ledger.Date) (*pointintime.MemberBalance, error) {
	ctx, span := s.tracer.Start(ctx, "ReconstructBalance", trace.WithAttributes(
		attribute.String("member_id", memberID.String()),
		attribute.String("as_of", asOf.String()),
	))
	defer span.End()

	if err := s.authorize(ctx, tenantID, memberID); err != nil {
		return nil, err
	}
	return s.recon.ReconstructMemberBalance(ctx, tenantID, memberID, asOf)
}

// CurrentState replays an aggregate to its head.
func (s *Service) CurrentState(ctx context.Context, tenantID, aggregateID uuid.UUID) (*replay.State, error) {
	if err := s.authorize(ctx, tenantID, aggregateID); err != nil {
		return nil, err
	}
	return s.engine.Replay(ctx, tenantID, aggregateID)
}

// CreateSnapshot forces a snapshot of an aggregate at its current head.
func (s *Service) CreateSnapshot(ctx context.Context, tenantID, aggregateID uuid.UUID, createdBy, reason string) (*events.Snapshot, error) {
	if err := s.authorize(ctx, tenantID, aggregateID); err != nil {
		return nil, err
	}
	return s.snapMgr.CreateSnapshot(ctx, tenantID, aggregateID, createdBy, reason)
}

// VerifyHistoryIntegrity walks an aggregate's committed events, checking the
// stored hashes and the gapless sequence. It returns the number of events
// verified.
func (s *Service) VerifyHistoryIntegrity(ctx context.Context, tenantID, aggregateID uuid.UUID) (int, error) {
	if err := s.authorize(ctx, tenantID, aggregateID); err != nil {
		return 0, err
	}

	verified := 0
	next := uint64(1)
	const page = 256
	for {
		evs, err := s.store.Events(ctx, tenantID, aggregateID, next, page)
		if err != nil {
			return verified, err
		}
		if len(evs) == 0 {
			return verified, nil
		}
		for _, ev := range evs {
			if ev.Sequence != next {
				return verified, &events.SequenceConflictError{
					TenantID:    tenantID,
					AggregateID: aggregateID,
					Expected:    next,
					Got:         ev.Sequence,
				}
			}
			if err := ev.VerifyIntegrity(); err != nil {
				return verified, err
			}
			verified++
			next++
		}
		if len(evs) < page {
			return verified, nil
		}
	}
}
