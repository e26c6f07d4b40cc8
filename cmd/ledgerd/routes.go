package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/stratafin/ledgercore/pkg/budgets"
	"github.com/stratafin/ledgercore/pkg/events"
	"github.com/stratafin/ledgercore/pkg/ledger"
	"github.com/stratafin/ledgercore/pkg/policy"
	"github.com/stratafin/ledgercore/pkg/service"
	"github.com/stratafin/ledgercore/pkg/tenants"
)

// apiServer exposes the ledger service over JSON HTTP.
type apiServer struct {
	svc      *service.Service
	registry *tenants.Registry
}

func registerRoutes(mux *http.ServeMux, svc *service.Service, registry *tenants.Registry) {
	s := &apiServer{svc: svc, registry: registry}

	mux.HandleFunc("POST /v1/tenants", s.handleProvisionTenant)
	mux.HandleFunc("GET /v1/tenants", s.handleListTenants)

	mux.HandleFunc("POST /v1/events", s.handleAppendEvent)
	mux.HandleFunc("GET /v1/events", s.handleEventHistory)
	mux.HandleFunc("GET /v1/integrity", s.handleVerifyIntegrity)
	mux.HandleFunc("GET /v1/proof", s.handleProveEvent)

	mux.HandleFunc("POST /v1/transactions", s.handlePostTransaction)
	mux.HandleFunc("POST /v1/corrections", s.handlePostCorrection)

	mux.HandleFunc("GET /v1/balances/member", s.handleMemberBalance)
	mux.HandleFunc("GET /v1/balances/fund", s.handleFundBalance)
	mux.HandleFunc("GET /v1/state", s.handleCurrentState)

	mux.HandleFunc("POST /v1/budgets", s.handleSetBudget)
	mux.HandleFunc("GET /v1/budgets/status", s.handleBudgetStatus)

	mux.HandleFunc("GET /v1/violations", s.handleListViolations)
	mux.HandleFunc("POST /v1/violations/resolve", s.handleResolveViolation)
	mux.HandleFunc("GET /v1/compliance/report", s.handleComplianceReport)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var cross *tenants.CrossTenantAccessError
	switch {
	case errors.As(err, &cross):
		status = http.StatusForbidden
	case errors.Is(err, tenants.ErrTenantNotFound),
		errors.Is(err, events.ErrEventNotFound),
		errors.Is(err, policy.ErrViolationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tenants.ErrTenantInactive):
		status = http.StatusForbidden
	default:
		var seqErr *events.SequenceConflictError
		var dupErr *events.DuplicateEventError
		if errors.As(err, &seqErr) || errors.As(err, &dupErr) {
			status = http.StatusConflict
		} else if isValidationError(err) {
			status = http.StatusUnprocessableEntity
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func isValidationError(err error) bool {
	var balErr *ledger.BalanceError
	var negErr *ledger.NegativeBalanceError
	var txErr *ledger.TransactionValidationError
	var patErr *ledger.CorrectionPatternError
	var schemaErr *events.SchemaError
	return errors.As(err, &balErr) || errors.As(err, &negErr) ||
		errors.As(err, &txErr) || errors.As(err, &patErr) || errors.As(err, &schemaErr)
}

func queryUUID(r *http.Request, key string) (uuid.UUID, error) {
	return uuid.Parse(r.URL.Query().Get(key))
}

func queryDate(r *http.Request, key string) (ledger.Date, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return ledger.DateOf(time.Now()), nil
	}
	return ledger.ParseDate(v)
}

func (s *apiServer) handleProvisionTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request body"})
		return
	}
	tn, err := s.registry.Provision(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tn)
}

func (s *apiServer) handleListTenants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List(r.Context()))
}

func (s *apiServer) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID      uuid.UUID            `json:"tenant_id"`
		AggregateID   uuid.UUID            `json:"aggregate_id"`
		AggregateType events.AggregateType `json:"aggregate_type"`
		EventType     events.EventType     `json:"event_type"`
		Payload       json.RawMessage      `json:"payload"`
		ActorID       string               `json:"actor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request body"})
		return
	}

	ev, err := s.svc.AppendEvent(r.Context(), req.TenantID, req.AggregateID,
		req.AggregateType, req.EventType, req.Payload, req.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *apiServer) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	tenantID, err := queryUUID(r, "tenant_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad tenant_id"})
		return
	}
	aggregateID, err := queryUUID(r, "aggregate_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad aggregate_id"})
		return
	}

	history, err := s.svc.GetEventHistory(r.Context(), tenantID, aggregateID, 1, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *apiServer) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	tenantID, err := queryUUID(r, "tenant_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad tenant_id"})
		return
	}
	aggregateID, err := queryUUID(r, "aggregate_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad aggregate_id"})
		return
	}

	count, err := s.svc.VerifyHistoryIntegrity(r.Context(), tenantID, aggregateID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true, "events": count})
}

func (s *apiServer) handleProveEvent(w http.ResponseWriter, r *http.Request) {
	tenantID, err := queryUUID(r, "tenant_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad tenant_id"})
		return
	}
	aggregateID, err := queryUUID(r, "aggregate_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad aggregate_id"})
		return
	}
	sequence, err := strconv.ParseUint(r.URL.Query().Get("sequence"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad sequence"})
		return
	}

	proof, err := s.svc.ProveEvent(r.Context(), tenantID, aggregateID, sequence)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

func (s *apiServer) handlePostTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID    uuid.UUID                 `json:"tenant_id"`
		Transaction ledger.Transaction        `json:"transaction"`
		Entries     []ledger.LedgerEntry      `json:"entries"`
		Funds       map[uuid.UUID]ledger.Fund `json:"funds,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request body"})
		return
	}

	result, err := s.svc.PostTransaction(r.Context(), req.TenantID, req.Transaction, req.Entries, req.Funds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *apiServer) handlePostCorrection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID  uuid.UUID          `json:"tenant_id"`
		Original  ledger.LedgerEntry `json:"original"`
		Corrected ledger.LedgerEntry `json:"corrected"`
		ActorID   string             `json:"actor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request body"})
		return
	}

	result, err := s.svc.PostCorrection(r.Context(), req.TenantID, req.Original, req.Corrected, req.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *apiServer) handleMemberBalance(w http.ResponseWriter, r *http.Request) {
	tenantID, err := queryUUID(r, "tenant_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad tenant_id"})
		return
	}
	memberID, err := queryUUID(r, "member_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad member_id"})
		return
	}
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad as_of date"})
		return
	}

	balance, err := s.svc.ReconstructBalance(r.Context(), tenantID, memberID, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *apiServer) handleFundBalance(w http.ResponseWriter, r *http.Request) {
	tenantID, err := queryUUID(r, "tenant_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad tenant_id"})
		return
	}
	fundID, err := queryUUID(r, "fund_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad fund_id"})
		return
	}
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad as_of date"})
		return
	}

	position, err := s.svc.Reconstructor().ReconstructFundBalance(r.Context(), tenantID, fundID, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

func (s *apiServer) handleCurrentState(w http.ResponseWriter, r *http.Request) {
	tenantID, err := queryUUID(r, "tenant_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad tenant_id"})
		return
	}
	aggregateID, err := queryUUID(r, "aggregate_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad aggregate_id"})
		return
	}

	state, err := s.svc.CurrentState(r.Context(), tenantID, aggregateID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *apiServer) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var b budgets.Budget
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request body"})
		return
	}
	if err := s.svc.SetBudget(b); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *apiServer) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, err := queryUUID(r, "tenant_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad tenant_id"})
		return
	}
	fundID, err := queryUUID(r, "fund_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad fund_id"})
		return
	}
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad as_of date"})
		return
	}

	status, err := s.svc.BudgetStatus(r.Context(), tenantID, fundID, asOf)
	if err != nil {
		if errors.Is(err, budgets.ErrBudgetNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleListViolations(w http.ResponseWriter, r *http.Request) {
	tenantID, err := queryUUID(r, "tenant_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad tenant_id"})
		return
	}

	filter := policy.ViolationFilter{
		Severity: policy.Severity(r.URL.Query().Get("severity")),
		Category: policy.Category(r.URL.Query().Get("category")),
		PolicyID: r.URL.Query().Get("policy_id"),
		OnlyOpen: r.URL.Query().Get("open") == "true",
	}
	violations, err := s.svc.ListViolations(r.Context(), tenantID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, violations)
}

func (s *apiServer) handleResolveViolation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID    uuid.UUID `json:"tenant_id"`
		ViolationID uuid.UUID `json:"violation_id"`
		ResolvedBy  string    `json:"resolved_by"`
		Note        string    `json:"note,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request body"})
		return
	}

	violation, err := s.svc.ResolveViolation(r.Context(), req.TenantID, req.ViolationID, req.ResolvedBy, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, violation)
}

func (s *apiServer) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	tenantID, err := queryUUID(r, "tenant_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad tenant_id"})
		return
	}

	report, err := s.svc.ComplianceReport(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
