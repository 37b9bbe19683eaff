/*
payment.go - Payment application and administrative adjustments

PURPOSE:
  Applies payments against bills: appends the Credit/Payment ledger
  entry, bumps the bill's AmountPaid, and runs the status machine at
  this single mutation point. Also hosts the admin adjustment command
  (fines, refunds, corrections) and the daily overdue sweep.

ATOMICITY:
  Ledger entry + bill update happen in one store transaction. A payment
  either fully applies or not at all.
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// PAYMENTS
// =============================================================================

type Payments struct {
	store  TxStore
	ledger *Ledger
	log    *zap.Logger
}

func NewPayments(store TxStore, ledger *Ledger, log *zap.Logger) *Payments {
	if log == nil {
		log = zap.NewNop()
	}
	return &Payments{store: store, ledger: ledger, log: log}
}

// RecordPayment applies a payment to a bill. The ledger entry and the
// bill's AmountPaid/status move together or not at all.
func (p *Payments) RecordPayment(ctx context.Context, billID BillID, amount Money, date Date, actor Actor, reference string) (*Bill, *LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	if date.IsZero() {
		date = Today()
	}

	bill, err := p.store.GetBill(ctx, billID)
	if err != nil {
		return nil, nil, err
	}
	if bill == nil {
		return nil, nil, ErrBillNotFound
	}

	lk := p.ledger.accountLock(bill.AccountID)
	lk.Lock()
	defer lk.Unlock()

	var (
		updated Bill
		entry   *LedgerEntry
	)
	err = p.store.WithTx(ctx, func(s Store) error {
		fresh, err := s.GetBill(ctx, billID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return ErrBillNotFound
		}

		desc := fmt.Sprintf("payment for bill %s", fresh.Period)
		if reference != "" {
			desc = desc + " (" + reference + ")"
		}
		entry, err = appendOn(ctx, s, AppendInput{
			TenantID:    fresh.TenantID,
			AccountID:   fresh.AccountID,
			Date:        date,
			Direction:   Credit,
			Category:    CategoryPayment,
			Amount:      amount,
			BillID:      fresh.ID,
			Description: desc,
			Actor:       actor,
		})
		if err != nil {
			return err
		}

		fresh.AmountPaid = fresh.AmountPaid.Add(amount)
		next := StatusFor(fresh.Total, fresh.AmountPaid, fresh.DueDate, date, false)
		if err := fresh.Transition(next); err != nil {
			return err
		}
		updated = *fresh
		return s.SaveBill(ctx, *fresh)
	})
	if err != nil {
		return nil, nil, err
	}

	p.log.Info("payment recorded",
		zap.String("bill_id", string(billID)),
		zap.String("account_id", string(updated.AccountID)),
		zap.String("amount", amount.String()),
		zap.String("status", string(updated.Status)))
	return &updated, entry, nil
}

// ReversePayment undoes a payment entry (bounced cheque, miskeyed
// amount): reverses the ledger entry and walks the bill's AmountPaid
// and status back, atomically.
func (p *Payments) ReversePayment(ctx context.Context, entryID EntryID, actor Actor, reason string) (*Bill, *LedgerEntry, error) {
	original, err := p.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}
	if original == nil {
		return nil, nil, ErrEntryNotFound
	}
	if original.Category != CategoryPayment || original.Direction != Credit {
		return nil, nil, &ValidationError{Field: "entry_id", Message: "is not a payment entry"}
	}

	lk := p.ledger.accountLock(original.AccountID)
	lk.Lock()
	defer lk.Unlock()

	var (
		updated  *Bill
		reversal *LedgerEntry
	)
	err = p.store.WithTx(ctx, func(s Store) error {
		fresh, err := s.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return ErrEntryNotFound
		}
		if fresh.Reversed {
			return ErrAlreadyReversed
		}

		date := Today()
		if latest, err := s.LatestEntry(ctx, fresh.AccountID); err != nil {
			return err
		} else if latest != nil && date.Before(latest.Date) {
			date = latest.Date
		}

		reversal, err = appendOn(ctx, s, AppendInput{
			TenantID:    fresh.TenantID,
			AccountID:   fresh.AccountID,
			Date:        date,
			Direction:   fresh.Direction.Opposite(),
			Category:    fresh.Category,
			Amount:      fresh.Amount,
			BillID:      fresh.BillID,
			ReversalOf:  fresh.ID,
			Description: reason,
			Actor:       actor,
		})
		if err != nil {
			return err
		}
		if err := s.MarkReversed(ctx, fresh.ID); err != nil {
			return err
		}

		if fresh.BillID == "" {
			return nil
		}
		bill, err := s.GetBill(ctx, fresh.BillID)
		if err != nil {
			return err
		}
		if bill == nil {
			return ErrBillNotFound
		}
		bill.AmountPaid = bill.AmountPaid.Sub(fresh.Amount)
		if bill.AmountPaid.IsNegative() {
			bill.AmountPaid = Zero
		}
		next := StatusFor(bill.Total, bill.AmountPaid, bill.DueDate, Today(), false)
		if err := bill.Transition(next); err != nil {
			return err
		}
		updated = bill
		return s.SaveBill(ctx, *bill)
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, reversal, nil
}

// RecordAdjustment appends an administrative correction (adjustment,
// fine, refund, arrears) through the normal ledger invariants.
func (p *Payments) RecordAdjustment(ctx context.Context, in AppendInput) (*LedgerEntry, error) {
	switch in.Category {
	case CategoryAdjustment, CategoryFine, CategoryRefund, CategoryArrears, CategoryOpeningBalance:
	default:
		return nil, &ValidationError{Field: "category", Message: "not an adjustment category"}
	}
	return p.ledger.Append(ctx, in)
}

// =============================================================================
// OVERDUE SWEEP - the only writer of StatusOverdue
// =============================================================================

// SweepOverdue marks unpaid bills past their due date as Overdue.
// Idempotent: bills already Overdue are untouched.
func (p *Payments) SweepOverdue(ctx context.Context, tenantID TenantID, now Date) (*RunReport, error) {
	bills, err := p.store.BillsByTenant(ctx, tenantID, Period{})
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		TenantID: tenantID,
		Day:      now,
		Failures: make(map[AccountID]string),
		Total:    Zero,
	}
	started := time.Now().UTC()

	for _, bill := range bills {
		next := StatusFor(bill.Total, bill.AmountPaid, bill.DueDate, now, true)
		if next != StatusOverdue || bill.Status == StatusOverdue {
			report.Skipped++
			continue
		}
		if err := bill.Transition(StatusOverdue); err != nil {
			report.Failed++
			report.Failures[bill.AccountID] = err.Error()
			continue
		}
		if err := p.store.SaveBill(ctx, bill); err != nil {
			report.Failed++
			report.Failures[bill.AccountID] = err.Error()
			continue
		}
		report.Charged++
	}

	p.log.Info("overdue sweep completed",
		zap.String("tenant_id", string(tenantID)),
		zap.Int("marked", report.Charged),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))

	return report, p.store.SaveRun(ctx, Run{
		ID:          "run-" + uuid.NewString(),
		TenantID:    tenantID,
		Kind:        RunOverdueSweep,
		Day:         now,
		Status:      "completed",
		Succeeded:   report.Charged,
		Skipped:     report.Skipped,
		Failed:      report.Failed,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
	})
}
