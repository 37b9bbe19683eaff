/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Tenants:
    GET    /api/tenants                       List tenants
    POST   /api/tenants                       Create tenant
    GET    /api/tenants/{id}                  Get tenant with config
    PUT    /api/tenants/{id}/config           Replace billing config

  Accounts:
    GET    /api/tenants/{id}/accounts         List accounts
    POST   /api/tenants/{id}/accounts         Create account
    GET    /api/accounts/{id}                 Get account
    GET    /api/accounts/{id}/balance         Current running balance
    GET    /api/accounts/{id}/ledger          Full ledger history
    GET    /api/accounts/{id}/statement       Statement for ?from=&to=
    GET    /api/accounts/{id}/bills           Account's bills

  Charge rules:
    GET    /api/tenants/{id}/rules            List rules
    POST   /api/tenants/{id}/rules            Create rule
    PUT    /api/rules/{id}                    Update rule
    DELETE /api/rules/{id}                    Archive rule (soft delete)

  Billing:
    POST   /api/tenants/{id}/bills/preview    Dry-run a period
    POST   /api/tenants/{id}/bills/generate   Commit a period
    GET    /api/tenants/{id}/bills            Tenant bills (?period=)
    GET    /api/bills/{id}                    Get bill

  Payments:
    POST   /api/bills/{id}/payments           Record payment
    POST   /api/entries/{id}/reverse          Reverse a ledger entry
    POST   /api/accounts/{id}/adjustments     Manual adjustment

  Admin:
    POST   /api/admin/tenants/{id}/interest   Run interest accrual now
    POST   /api/admin/tenants/{id}/sweep      Run overdue sweep now
    GET    /api/admin/tenants/{id}/runs       Batch run history (?kind=)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate period, concurrent write, locked state)
  - 500: Internal errors

ACTOR ATTRIBUTION:
  Mutating endpoints read X-Actor-Id / X-Actor-Role headers and stamp
  the resulting ledger entries. Defaults to admin when absent; real
  deployments put an auth middleware in front.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/strata/billing-engine/billing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     billing.TxStore
	Ledger    *billing.Ledger
	Generator *billing.Generator
	Interest  *billing.InterestEngine
	Payments  *billing.Payments
	Rules     *billing.RuleAdmin

	Log *zap.Logger
}

// NewHandler wires the engine services around the given store.
func NewHandler(store billing.TxStore, log *zap.Logger) *Handler {
	ledger := billing.NewLedger(store)
	generator := billing.NewGenerator(store, ledger, log)
	return &Handler{
		Store:     store,
		Ledger:    ledger,
		Generator: generator,
		Interest:  billing.NewInterestEngine(store, ledger, log),
		Payments:  billing.NewPayments(store, ledger, log),
		Rules:     billing.NewRuleAdmin(store, generator),
		Log:       log,
	}
}

// =============================================================================
// TENANT HANDLERS
// =============================================================================

// ListTenants returns all tenants.
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.Store.ListTenants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tenants", err)
		return
	}

	dtos := make([]TenantDTO, len(tenants))
	for i, t := range tenants {
		dtos[i] = tenantDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTenant creates a tenant with its billing config.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	cfg, err := parseConfigDTO(req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid config", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid config", err)
		return
	}

	tenant := billing.Tenant{
		ID:     billing.TenantID(req.ID),
		Name:   req.Name,
		Config: cfg,
	}
	if err := h.Store.SaveTenant(r.Context(), tenant); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create tenant", err)
		return
	}

	writeJSON(w, http.StatusCreated, tenantDTO(tenant))
}

// GetTenant returns a tenant with its config.
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.Store.GetTenant(r.Context(), billing.TenantID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get tenant", err)
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "Tenant not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, tenantDTO(*tenant))
}

// UpdateConfig replaces the tenant's billing config. Past bills keep
// the values they were generated with; only future generation and
// accrual pick up the change.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := billing.TenantID(chi.URLParam(r, "id"))

	tenant, err := h.Store.GetTenant(ctx, tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get tenant", err)
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "Tenant not found", nil)
		return
	}

	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cfg, err := parseConfigDTO(req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid config", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid config", err)
		return
	}

	if h.Generator.GenerationInFlight(tenantID) {
		writeError(w, http.StatusConflict, "Bill generation in progress", billing.ErrGenerationInFlight)
		return
	}

	tenant.Config = cfg
	if err := h.Store.SaveTenant(ctx, *tenant); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update config", err)
		return
	}

	writeJSON(w, http.StatusOK, tenantDTO(*tenant))
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns a tenant's accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context(), billing.TenantID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = accountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount creates a billable account under the tenant.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := billing.TenantID(chi.URLParam(r, "id"))

	tenant, err := h.Store.GetTenant(ctx, tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get tenant", err)
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "Tenant not found", nil)
		return
	}

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	area, err := parseMoney(req.Area)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid area", err)
		return
	}
	opening := billing.Money{}
	if req.OpeningBalance != "" {
		opening, err = parseMoney(req.OpeningBalance)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid opening_balance", err)
			return
		}
	}

	account := billing.Account{
		ID:             billing.AccountID(req.ID),
		TenantID:       tenantID,
		Unit:           req.Unit,
		Area:           area,
		OpeningBalance: opening,
		OwnerName:      req.OwnerName,
	}
	if err := account.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account", err)
		return
	}

	if err := h.Store.SaveAccount(ctx, account); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		return
	}

	writeJSON(w, http.StatusCreated, accountDTO(account))
}

// GetAccount returns a single account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.Store.GetAccount(r.Context(), billing.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get account", err)
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, accountDTO(*account))
}

// GetBalance returns the account's current running balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := billing.AccountID(chi.URLParam(r, "id"))

	balance, err := h.Ledger.CurrentBalance(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		AccountID: string(id),
		Balance:   balance.String(),
	})
}

// GetLedger returns the account's full ledger history.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id := billing.AccountID(chi.URLParam(r, "id"))

	entries, err := h.Ledger.Entries(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get ledger", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": string(id),
		"entries":    entryDTOs(entries),
	})
}

// GetStatement returns an account statement for a date range.
// GET /api/accounts/{id}/statement?from=2026-01-01&to=2026-03-31
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id := billing.AccountID(chi.URLParam(r, "id"))

	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from", nil)
		return
	}

	stmt, err := h.Ledger.Statement(r.Context(), id, from, to)
	if err != nil {
		writeDomainError(w, "Failed to build statement", err)
		return
	}

	writeJSON(w, http.StatusOK, StatementDTO{
		AccountID:      string(stmt.AccountID),
		From:           stmt.From.String(),
		To:             stmt.To.String(),
		OpeningBalance: stmt.OpeningBalance.String(),
		ClosingBalance: stmt.ClosingBalance.String(),
		Entries:        entryDTOs(stmt.Entries),
	})
}

// GetAccountBills returns an account's bills, newest first.
func (h *Handler) GetAccountBills(w http.ResponseWriter, r *http.Request) {
	bills, err := h.Store.BillsByAccount(r.Context(), billing.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get bills", err)
		return
	}
	writeJSON(w, http.StatusOK, billDTOs(bills))
}

// =============================================================================
// CHARGE RULE HANDLERS
// =============================================================================

// ListRules returns the tenant's active charge rules in evaluation
// order. Archived rules are hidden.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Store.RulesByTenant(r.Context(), billing.TenantID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rules", err)
		return
	}

	dtos := make([]RuleDTO, 0, len(rules))
	for _, rule := range rules {
		if rule.Deleted {
			continue
		}
		dtos = append(dtos, ruleDTO(rule))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRule adds a custom charge rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := billing.TenantID(chi.URLParam(r, "id"))

	var req SaveRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate, err := parseMoney(req.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate", err)
		return
	}

	rule := billing.ChargeRule{
		ID:       billing.NewRuleID(),
		TenantID: tenantID,
		Name:     req.Name,
		Type:     billing.CalcType(req.Type),
		Rate:     rate,
		Active:   true,
		Order:    req.Order,
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	created, err := h.Rules.CreateRule(r.Context(), rule)
	if err != nil {
		writeDomainError(w, "Failed to create rule", err)
		return
	}

	writeJSON(w, http.StatusCreated, ruleDTO(*created))
}

// UpdateRule modifies an existing charge rule.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := billing.RuleID(chi.URLParam(r, "id"))

	existing, err := h.Store.GetRule(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get rule", err)
		return
	}
	if existing == nil || existing.Deleted {
		writeError(w, http.StatusNotFound, "Rule not found", nil)
		return
	}

	var req SaveRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rule := *existing
	if req.Name != "" {
		rule.Name = req.Name
	}
	if req.Type != "" {
		rule.Type = billing.CalcType(req.Type)
	}
	if req.Rate != "" {
		rate, err := parseMoney(req.Rate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid rate", err)
			return
		}
		rule.Rate = rate
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	rule.Order = req.Order

	updated, err := h.Rules.UpdateRule(ctx, rule)
	if err != nil {
		writeDomainError(w, "Failed to update rule", err)
		return
	}

	writeJSON(w, http.StatusOK, ruleDTO(*updated))
}

// ArchiveRule soft-deletes a rule. Bills already generated with it are
// untouched.
func (h *Handler) ArchiveRule(w http.ResponseWriter, r *http.Request) {
	if err := h.Rules.ArchiveRule(r.Context(), billing.RuleID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, "Failed to archive rule", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "archived"})
}

// =============================================================================
// BILLING HANDLERS
// =============================================================================

// PreviewBills dry-runs bill generation for a period without writing.
func (h *Handler) PreviewBills(w http.ResponseWriter, r *http.Request) {
	tenantID := billing.TenantID(chi.URLParam(r, "id"))

	var req GenerateBillsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := billing.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
		return
	}

	previews, err := h.Generator.Preview(r.Context(), tenantID, period, accountIDs(req.AccountIDs))
	if err != nil {
		writeDomainError(w, "Failed to preview bills", err)
		return
	}

	dtos := make([]PreviewDTO, len(previews))
	for i, p := range previews {
		dtos[i] = previewDTO(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period":   period.Key(),
		"previews": dtos,
	})
}

// GenerateBills commits bill generation for a period. All bills and
// their ledger debits are written atomically; a duplicate for any
// account aborts the whole batch.
func (h *Handler) GenerateBills(w http.ResponseWriter, r *http.Request) {
	tenantID := billing.TenantID(chi.URLParam(r, "id"))

	var req GenerateBillsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := billing.ParsePeriod(req.Period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
		return
	}

	bills, err := h.Generator.Commit(r.Context(), tenantID, period, accountIDs(req.AccountIDs), actorFrom(r))
	if err != nil {
		writeDomainError(w, "Failed to generate bills", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"period": period.Key(),
		"bills":  billDTOs(bills),
	})
}

// ListBills returns a tenant's bills, optionally filtered by ?period=.
func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	tenantID := billing.TenantID(chi.URLParam(r, "id"))

	var period billing.Period
	if p := r.URL.Query().Get("period"); p != "" {
		var err error
		period, err = billing.ParsePeriod(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
			return
		}
	}

	bills, err := h.Store.BillsByTenant(r.Context(), tenantID, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bills", err)
		return
	}
	writeJSON(w, http.StatusOK, billDTOs(bills))
}

// GetBill returns a single bill.
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := h.Store.GetBill(r.Context(), billing.BillID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get bill", err)
		return
	}
	if bill == nil {
		writeError(w, http.StatusNotFound, "Bill not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, billDTO(*bill))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment records a payment against a bill. The payment lands in
// the ledger as a credit and moves the bill's status.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	billID := billing.BillID(chi.URLParam(r, "id"))

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	date := billing.Today()
	if req.Date != "" {
		date, err = parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
	}

	bill, entry, err := h.Payments.RecordPayment(r.Context(), billID, amount, date, actorFrom(r), req.Reference)
	if err != nil {
		writeDomainError(w, "Failed to record payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"bill":  billDTO(*bill),
		"entry": entryDTO(*entry),
	})
}

// ReverseEntry reverses a ledger entry. Payment reversals also walk the
// linked bill's paid amount and status back.
func (h *Handler) ReverseEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entryID := billing.EntryID(chi.URLParam(r, "id"))

	var req ReverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	original, err := h.Store.GetEntry(ctx, entryID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get entry", err)
		return
	}
	if original == nil {
		writeError(w, http.StatusNotFound, "Entry not found", nil)
		return
	}

	var reversal *billing.LedgerEntry
	if original.Category == billing.CategoryPayment {
		_, reversal, err = h.Payments.ReversePayment(ctx, entryID, actorFrom(r), req.Reason)
	} else {
		reversal, err = h.Ledger.Reverse(ctx, entryID, actorFrom(r), req.Reason)
	}
	if err != nil {
		writeDomainError(w, "Failed to reverse entry", err)
		return
	}

	writeJSON(w, http.StatusCreated, entryDTO(*reversal))
}

// RecordAdjustment appends a manual adjustment entry.
func (h *Handler) RecordAdjustment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := billing.AccountID(chi.URLParam(r, "id"))

	account, err := h.Store.GetAccount(ctx, accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get account", err)
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}

	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	date := billing.Today()
	if req.Date != "" {
		date, err = parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
			return
		}
	}

	entry, err := h.Payments.RecordAdjustment(ctx, billing.AppendInput{
		TenantID:    account.TenantID,
		AccountID:   accountID,
		Date:        date,
		Direction:   billing.Direction(req.Direction),
		Category:    billing.Category(req.Category),
		Amount:      amount,
		Description: req.Description,
		Actor:       actorFrom(r),
	})
	if err != nil {
		writeDomainError(w, "Failed to record adjustment", err)
		return
	}

	writeJSON(w, http.StatusCreated, entryDTO(*entry))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunInterest triggers interest accrual for the tenant immediately.
// Idempotent per day: re-running charges nothing twice.
func (h *Handler) RunInterest(w http.ResponseWriter, r *http.Request) {
	tenantID := billing.TenantID(chi.URLParam(r, "id"))

	now, err := asOfDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	report, err := h.Interest.Run(r.Context(), tenantID, now)
	if err != nil {
		writeDomainError(w, "Failed to run interest accrual", err)
		return
	}
	writeJSON(w, http.StatusOK, runReportDTO(report))
}

// RunSweep triggers the overdue sweep for the tenant immediately.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	tenantID := billing.TenantID(chi.URLParam(r, "id"))

	now, err := asOfDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	report, err := h.Payments.SweepOverdue(r.Context(), tenantID, now)
	if err != nil {
		writeDomainError(w, "Failed to run overdue sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, runReportDTO(report))
}

// ListRuns returns the tenant's batch run history.
// GET /api/admin/tenants/{id}/runs?kind=interest_accrual
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	tenantID := billing.TenantID(chi.URLParam(r, "id"))
	kind := billing.RunKind(r.URL.Query().Get("kind"))

	runs, err := h.Store.RunsByTenant(r.Context(), tenantID, kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = runDTO(run)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]any{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}

// writeDomainError maps domain sentinel errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, billing.ErrDuplicatePeriod),
		errors.Is(err, billing.ErrConcurrentModification),
		errors.Is(err, billing.ErrGenerationInFlight),
		errors.Is(err, billing.ErrDuplicateRuleName),
		errors.Is(err, billing.ErrAlreadyReversed),
		errors.Is(err, billing.ErrInvalidTransition),
		errors.Is(err, billing.ErrBillLocked):
		writeError(w, http.StatusConflict, message, err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// actorFrom identifies who performed the mutation. Headers are set by
// the reverse proxy / auth layer in production.
func actorFrom(r *http.Request) billing.Actor {
	actor := billing.Actor{
		ID:   r.Header.Get("X-Actor-Id"),
		Role: r.Header.Get("X-Actor-Role"),
	}
	if actor.ID == "" {
		actor.ID = "admin"
	}
	if actor.Role == "" {
		actor.Role = "admin"
	}
	return actor
}

func asOfDate(r *http.Request) (billing.Date, error) {
	var req RunJobRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.AsOf == "" {
		return billing.Today(), nil
	}
	return parseDate(req.AsOf)
}

func parseDate(s string) (billing.Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return billing.Date{}, err
	}
	return billing.NewDate(t.Year(), t.Month(), t.Day()), nil
}

func parseMoney(s string) (billing.Money, error) {
	return billing.ParseMoney(s)
}

func accountIDs(ids []string) []billing.AccountID {
	out := make([]billing.AccountID, len(ids))
	for i, id := range ids {
		out[i] = billing.AccountID(id)
	}
	return out
}
