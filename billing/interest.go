/*
interest.go - Interest accrual on overdue balances

PURPOSE:
  Daily batch job that charges interest on accounts whose balance has
  stayed positive past the grace period. Idempotent per calendar day:
  the "interest entry already dated today" guard makes re-runs (cron
  overlap, crash recovery) safe.

PER-ACCOUNT STEPS:
  1. Skip if current balance <= 0.
  2. Anchor on the oldest Maintenance debit whose bill is not Paid;
     dueDate = tenant due day in that entry's month,
     graceEnd = dueDate + grace days.
  3. Skip while now <= graceEnd.
  4. daysOverdue = floor(now - graceEnd), floored at 0.
  5. SIMPLE:   balance * (rate/100) * (daysOverdue/30)
     COMPOUND: n = 30 (daily) or 1 (monthly); t = daysOverdue/30;
               balance * ((1 + rate/100/n)^(n*t) - 1)
     rounded half-up to 2dp.
  6. Skip if an Interest entry for the account is already dated today.
  7. Append a Debit/Interest entry if interest > 0.

FAILURE SEMANTICS:
  A single account's failure (e.g. missing config) is logged and
  counted; the batch continues and reports a partial-success summary.

NOTE ON THE GRACE ANCHOR:
  The anchor is the oldest not-fully-paid maintenance debit and does
  not re-anchor when that bill is partially settled. Interest may thus
  accrue against a partially settled bill. Observed legacy behavior,
  kept deliberately; see DESIGN.md.
*/
package billing

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// INTEREST ENGINE
// =============================================================================

type InterestEngine struct {
	store  TxStore
	ledger *Ledger
	log    *zap.Logger
}

func NewInterestEngine(store TxStore, ledger *Ledger, log *zap.Logger) *InterestEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &InterestEngine{store: store, ledger: ledger, log: log}
}

// RunReport summarizes one batch execution.
type RunReport struct {
	TenantID TenantID
	Day      Date
	Charged  int
	Skipped  int
	Failed   int
	Failures map[AccountID]string
	Total    Money // total interest appended
}

// Run accrues interest for every account of the tenant as of 'now'.
// Safe to re-run on the same day.
func (e *InterestEngine) Run(ctx context.Context, tenantID TenantID, now Date) (*RunReport, error) {
	tenant, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, ErrTenantNotFound
	}

	report := &RunReport{
		TenantID: tenantID,
		Day:      now,
		Failures: make(map[AccountID]string),
		Total:    Zero,
	}
	started := time.Now().UTC()

	if !tenant.Config.CompleteForInterest() {
		// Tenant-wide config gap: nothing to do, report it once.
		report.Failed = 1
		report.Failures[""] = ErrConfigIncomplete.Error()
		e.log.Warn("interest run skipped: config incomplete",
			zap.String("tenant_id", string(tenantID)))
		return report, e.saveRun(ctx, report, started)
	}

	accounts, err := e.store.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	for _, account := range accounts {
		charged, amount, err := e.accrueAccount(ctx, tenant, account, now)
		switch {
		case err != nil:
			report.Failed++
			report.Failures[account.ID] = err.Error()
			e.log.Warn("interest accrual failed for account",
				zap.String("tenant_id", string(tenantID)),
				zap.String("account_id", string(account.ID)),
				zap.Error(err))
		case charged:
			report.Charged++
			report.Total = report.Total.Add(amount)
		default:
			report.Skipped++
		}
	}

	e.log.Info("interest run completed",
		zap.String("tenant_id", string(tenantID)),
		zap.String("day", now.String()),
		zap.Int("charged", report.Charged),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.String("total", report.Total.String()))
	return report, e.saveRun(ctx, report, started)
}

func (e *InterestEngine) saveRun(ctx context.Context, report *RunReport, started time.Time) error {
	status := "completed"
	if report.Failed > 0 && report.Charged == 0 && report.Skipped == 0 {
		status = "failed"
	}
	return e.store.SaveRun(ctx, Run{
		ID:          "run-" + uuid.NewString(),
		TenantID:    report.TenantID,
		Kind:        RunInterestAccrual,
		Day:         report.Day,
		Status:      status,
		Succeeded:   report.Charged,
		Skipped:     report.Skipped,
		Failed:      report.Failed,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
	})
}

// accrueAccount runs the per-account state machine. Returns whether an
// entry was appended and its amount.
func (e *InterestEngine) accrueAccount(ctx context.Context, tenant *Tenant, account Account, now Date) (bool, Money, error) {
	balance, err := e.ledger.CurrentBalance(ctx, account.ID)
	if err != nil {
		return false, Zero, err
	}
	if !balance.IsPositive() {
		return false, Zero, nil
	}

	anchor, err := e.store.OldestOpenMaintenanceEntry(ctx, account.ID)
	if err != nil {
		return false, Zero, err
	}
	if anchor == nil {
		// Positive balance with no open bill (opening arrears only):
		// nothing anchors a due date, so no interest.
		return false, Zero, nil
	}

	dueDate := NewDate(anchor.Date.Year(), anchor.Date.Month(), tenant.Config.BillDueDay)
	graceEnd := dueDate.AddDays(tenant.Config.GraceDays)
	if !now.After(graceEnd) {
		return false, Zero, nil
	}

	daysOverdue := DaysBetween(graceEnd, now)
	if daysOverdue < 0 {
		daysOverdue = 0
	}

	interest := ComputeInterest(balance, tenant.Config, daysOverdue)
	if !interest.IsPositive() {
		return false, Zero, nil
	}

	// Idempotence guard: one interest entry per account per day.
	exists, err := e.store.HasInterestOn(ctx, account.ID, now)
	if err != nil {
		return false, Zero, err
	}
	if exists {
		return false, Zero, nil
	}

	_, err = e.ledger.Append(ctx, AppendInput{
		TenantID:    tenant.ID,
		AccountID:   account.ID,
		Date:        now,
		Direction:   Debit,
		Category:    CategoryInterest,
		Amount:      interest,
		Description: "overdue interest",
		Actor:       System,
	})
	if err != nil {
		return false, Zero, err
	}
	return true, interest, nil
}

// =============================================================================
// INTEREST FORMULAS
// =============================================================================

var (
	hundred   = decimal.NewFromInt(100)
	monthDays = decimal.NewFromInt(30)
)

// ComputeInterest applies the tenant's configured method to an overdue
// balance and rounds half-up to 2 decimal places. Pure.
func ComputeInterest(balance Money, cfg Config, daysOverdue int) Money {
	if daysOverdue <= 0 || !balance.IsPositive() || !cfg.InterestRate.IsPositive() {
		return Zero
	}

	days := decimal.NewFromInt(int64(daysOverdue))

	if cfg.InterestMethod != InterestCompound {
		// balance * (rate/100) * (daysOverdue/30)
		interest := balance.
			Mul(cfg.InterestRate).Div(hundred).
			Mul(days).Div(monthDays)
		return RoundMoney(interest)
	}

	// Compound: the fractional exponent is evaluated in float64. The
	// factor is dimensionless and the result is rounded to 2dp, well
	// inside float64 precision for realistic rates and durations.
	n := 1.0
	if cfg.CompoundingFrequency == CompoundDaily {
		n = 30.0
	}
	rate, _ := cfg.InterestRate.Float64()
	t := float64(daysOverdue) / 30.0
	factor := math.Pow(1+rate/100/n, n*t) - 1
	return RoundMoney(balance.Mul(decimal.NewFromFloat(factor)))
}
