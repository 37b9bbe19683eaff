/*
generator.go - Bill generation (preview and commit)

PURPOSE:
  Produces one Bill per (account, period) plus its debit ledger entry,
  atomically. Preview is a pure read: it computes everything a commit
  would, without writing, so operators can inspect a period before
  running it.

CHARGE EVALUATION ORDER:
  1. Config standard charges, in a fixed order: maintenance, sinking
     fund, repair fund (per-area), then water, security, electricity
     (fixed). Zero rates contribute no line.
  2. The tenant's custom charge rules, active and non-deleted, by
     display order ascending. Percentage rules see the running subtotal
     at their position.
  Then tax = subtotal * serviceTax%, and
  total = subtotal + tax + previous balance.

ATOMICITY:
  Commit runs the whole tenant-period batch inside one store
  transaction. Any duplicate (account, period) aborts the entire batch
  with ErrDuplicatePeriod - no half-billed periods.

RULE FREEZE:
  While a commit is in flight for a tenant, charge rule mutations for
  that tenant are rejected with ErrGenerationInFlight so the rule set
  cannot change mid-batch.
*/
package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// GENERATOR
// =============================================================================

type Generator struct {
	store  TxStore
	ledger *Ledger
	log    *zap.Logger

	mu       sync.Mutex
	inFlight map[TenantID]bool
}

func NewGenerator(store TxStore, ledger *Ledger, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		store:    store,
		ledger:   ledger,
		log:      log,
		inFlight: make(map[TenantID]bool),
	}
}

// GenerationInFlight reports whether a commit batch is running for the
// tenant. Charge rule mutations check this.
func (g *Generator) GenerationInFlight(tenantID TenantID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight[tenantID]
}

func (g *Generator) setInFlight(tenantID TenantID, v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v {
		g.inFlight[tenantID] = true
	} else {
		delete(g.inFlight, tenantID)
	}
}

// BillPreview is the read-only result of evaluating one account.
type BillPreview struct {
	AccountID       AccountID
	Unit            string
	Charges         []ChargeLine
	PreviousBalance Money
	Interest        Money
	Subtotal        Money
	Tax             Money
	Total           Money
	DueDate         Date
}

// Preview evaluates the period for the given accounts (all tenant
// accounts when accountIDs is empty) without writing anything.
func (g *Generator) Preview(ctx context.Context, tenantID TenantID, period Period, accountIDs []AccountID) ([]BillPreview, error) {
	tenant, accounts, rules, err := g.loadInputs(ctx, tenantID, accountIDs)
	if err != nil {
		return nil, err
	}

	previews := make([]BillPreview, 0, len(accounts))
	for _, account := range accounts {
		p, err := g.evaluate(ctx, g.store, tenant, account, period, rules)
		if err != nil {
			return nil, err
		}
		previews = append(previews, *p)
	}
	return previews, nil
}

// Commit turns a period into durable state: one Bill and one Maintenance
// debit entry per account, all-or-nothing per tenant-period batch.
func (g *Generator) Commit(ctx context.Context, tenantID TenantID, period Period, accountIDs []AccountID, actor Actor) ([]Bill, error) {
	tenant, accounts, rules, err := g.loadInputs(ctx, tenantID, accountIDs)
	if err != nil {
		return nil, err
	}
	if !tenant.Config.CompleteForBilling() {
		return nil, ErrConfigIncomplete
	}

	g.setInFlight(tenantID, true)
	defer g.setInFlight(tenantID, false)

	started := time.Now().UTC()
	var bills []Bill
	err = g.store.WithTx(ctx, func(s Store) error {
		bills = bills[:0]
		for _, account := range accounts {
			existing, err := s.BillForPeriod(ctx, account.ID, period)
			if err != nil {
				return err
			}
			if existing != nil {
				return &DuplicatePeriodError{AccountID: account.ID, Period: period, BillID: existing.ID}
			}

			preview, err := g.evaluate(ctx, s, tenant, account, period, rules)
			if err != nil {
				return err
			}

			bill := Bill{
				ID:              NewBillID(),
				TenantID:        tenantID,
				AccountID:       account.ID,
				Period:          period,
				Charges:         preview.Charges,
				PreviousBalance: preview.PreviousBalance,
				Interest:        preview.Interest,
				Subtotal:        preview.Subtotal,
				Tax:             preview.Tax,
				Total:           preview.Total,
				AmountPaid:      Zero,
				DueDate:         preview.DueDate,
				Status:          StatusUnpaid,
				Locked:          true,
				GeneratedAt:     started,
				GeneratedBy:     actor.ID,
			}
			if err := s.SaveBill(ctx, bill); err != nil {
				return err
			}

			// The debit carries the new charges only; the previous
			// balance (arrears, interest) is already in the chain.
			debit := preview.Subtotal.Add(preview.Tax)
			if debit.IsPositive() {
				if _, err := appendOn(ctx, s, AppendInput{
					TenantID:    tenantID,
					AccountID:   account.ID,
					Date:        period.Start(),
					Direction:   Debit,
					Category:    CategoryMaintenance,
					Amount:      debit,
					BillID:      bill.ID,
					Description: fmt.Sprintf("maintenance bill %s", period),
					Actor:       actor,
				}); err != nil {
					return err
				}
			}
			bills = append(bills, bill)
		}

		return s.SaveRun(ctx, Run{
			ID:          "run-" + uuid.NewString(),
			TenantID:    tenantID,
			Kind:        RunBillGeneration,
			Period:      period,
			Status:      "completed",
			Succeeded:   len(bills),
			StartedAt:   started,
			CompletedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		g.log.Warn("bill generation aborted",
			zap.String("tenant_id", string(tenantID)),
			zap.String("period", period.Key()),
			zap.Error(err))
		return nil, err
	}

	g.log.Info("bills generated",
		zap.String("tenant_id", string(tenantID)),
		zap.String("period", period.Key()),
		zap.Int("count", len(bills)))
	return bills, nil
}

// =============================================================================
// EVALUATION
// =============================================================================

func (g *Generator) loadInputs(ctx context.Context, tenantID TenantID, accountIDs []AccountID) (*Tenant, []Account, []ChargeRule, error) {
	tenant, err := g.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, nil, err
	}
	if tenant == nil {
		return nil, nil, nil, ErrTenantNotFound
	}

	var accounts []Account
	if len(accountIDs) == 0 {
		accounts, err = g.store.ListAccounts(ctx, tenantID)
		if err != nil {
			return nil, nil, nil, err
		}
	} else {
		for _, id := range accountIDs {
			account, err := g.store.GetAccount(ctx, id)
			if err != nil {
				return nil, nil, nil, err
			}
			if account == nil || account.TenantID != tenantID {
				return nil, nil, nil, ErrAccountNotFound
			}
			accounts = append(accounts, *account)
		}
	}

	rules, err := g.store.RulesByTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, nil, err
	}
	return tenant, accounts, rules, nil
}

// evaluate computes one account's preview against the given store view.
// Rules are loaded once per batch; the in-flight guard keeps the set
// stable for its duration.
func (g *Generator) evaluate(ctx context.Context, s Store, tenant *Tenant, account Account, period Period, rules []ChargeRule) (*BillPreview, error) {
	prevBalance, err := currentBalanceOn(ctx, s, account.ID)
	if err != nil {
		return nil, err
	}

	charges, subtotal := evaluateCharges(tenant.Config, ActiveRules(rules), account.Area)
	tax := RoundMoney(Percent(subtotal, tenant.Config.ServiceTaxRate))
	total := subtotal.Add(tax).Add(prevBalance)

	interest, err := interestSinceLastBill(ctx, s, account.ID, period)
	if err != nil {
		return nil, err
	}

	return &BillPreview{
		AccountID:       account.ID,
		Unit:            account.Unit,
		Charges:         charges,
		PreviousBalance: prevBalance,
		Interest:        interest,
		Subtotal:        subtotal,
		Tax:             tax,
		Total:           total,
		DueDate:         period.DueDate(tenant.Config.BillDueDay),
	}, nil
}

// evaluateCharges folds the config standard charges and the ordered
// custom rules into lines and a subtotal. Percentage rules see the
// subtotal accumulated at their position.
func evaluateCharges(cfg Config, rules []ChargeRule, area Money) ([]ChargeLine, Money) {
	var lines []ChargeLine
	subtotal := Zero

	add := func(name string, amount Money) {
		if !amount.IsPositive() {
			return
		}
		amount = RoundMoney(amount)
		lines = append(lines, ChargeLine{Name: name, Amount: amount})
		subtotal = subtotal.Add(amount)
	}

	add("Maintenance", cfg.MaintenanceRate.Mul(area))
	add("Sinking Fund", cfg.SinkingFundRate.Mul(area))
	add("Repair Fund", cfg.RepairFundRate.Mul(area))
	add("Water", cfg.WaterCharge)
	add("Security", cfg.SecurityCharge)
	add("Electricity", cfg.ElectricityCharge)

	for _, rule := range rules {
		add(rule.Name, rule.Evaluate(area, subtotal))
	}

	return lines, subtotal
}

// interestSinceLastBill sums non-reversed Interest entries after the
// previous period started. Informational on the bill; the amounts are
// already part of the running balance.
func interestSinceLastBill(ctx context.Context, s Store, accountID AccountID, period Period) (Money, error) {
	from := period.Previous().Start()
	to := period.Start().AddDays(-1)
	entries, err := s.EntriesInRange(ctx, accountID, from, to)
	if err != nil {
		return Zero, err
	}
	total := Zero
	for _, e := range entries {
		if e.Category == CategoryInterest && !e.Reversed && e.ReversalOf == "" {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}
