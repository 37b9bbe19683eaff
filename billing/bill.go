/*
bill.go - Bill model and status machine

PURPOSE:
  A Bill is the itemized statement for one account and one billing
  period. Its charges are immutable once generated (the lock flag);
  only payment application moves AmountPaid, and status changes happen
  at exactly two mutation points: payment recorded and the daily
  overdue sweep. Status is never re-derived implicitly on reads.

STATE MACHINE:
  Unpaid  -> Partial, Paid, Overdue
  Partial -> Paid, Overdue, Unpaid
  Paid    -> Partial, Unpaid           (payment reversal)
  Overdue -> Partial, Paid, Unpaid

  StatusFor is the pure transition function from (total, paid, dueDate,
  now); CanTransition validates an explicit move. Overdue is only
  assigned by the sweep, never synchronously on read.
*/
package billing

import "time"

// =============================================================================
// BILL
// =============================================================================

type BillStatus string

const (
	StatusUnpaid  BillStatus = "unpaid"
	StatusPartial BillStatus = "partial"
	StatusPaid    BillStatus = "paid"
	StatusOverdue BillStatus = "overdue"
)

// ChargeLine is one named amount on a bill. Order mirrors the rule
// evaluation order.
type ChargeLine struct {
	Name   string
	Amount Money
}

type Bill struct {
	ID        BillID
	TenantID  TenantID
	AccountID AccountID
	Period    Period

	// Charges are the itemized lines in evaluation order.
	Charges []ChargeLine

	// PreviousBalance is the account's running balance carried into
	// this bill (includes earlier arrears and interest).
	PreviousBalance Money

	// Interest is the interest portion of PreviousBalance accrued since
	// the prior bill. Informational; already in the running balance.
	Interest Money

	Subtotal Money
	Tax      Money

	// Total = Subtotal + Tax + PreviousBalance.
	Total Money

	// AmountPaid is mutated only by payment application.
	AmountPaid Money

	DueDate Date
	Status  BillStatus

	// Locked freezes the charge set. Set at generation; only payments
	// may move a locked bill.
	Locked bool

	GeneratedAt time.Time
	GeneratedBy string
}

// BalanceAmount is the remaining amount on the bill, clamped at zero
// for reporting. The ledger keeps the exact figures for audit.
func (b Bill) BalanceAmount() Money {
	remaining := b.Total.Sub(b.AmountPaid)
	if remaining.IsNegative() {
		return Zero
	}
	return remaining
}

// =============================================================================
// STATUS MACHINE
// =============================================================================

// StatusFor is the pure transition function. Given the bill's totals and
// the evaluation time it returns the state the bill should be in.
// Overdue is only reachable through the daily sweep (sweep=true);
// payment application never assigns it.
func StatusFor(total, paid Money, dueDate Date, now Date, sweep bool) BillStatus {
	switch {
	case paid.GreaterThanOrEqual(total) && total.IsPositive():
		return StatusPaid
	case paid.IsPositive() && paid.LessThan(total):
		return StatusPartial
	case sweep && paid.IsZero() && now.After(dueDate):
		return StatusOverdue
	default:
		return StatusUnpaid
	}
}

// validTransitions is the explicit edge set. Self-transitions are
// always allowed (idempotent re-evaluation).
var validTransitions = map[BillStatus][]BillStatus{
	StatusUnpaid:  {StatusPartial, StatusPaid, StatusOverdue},
	StatusPartial: {StatusPaid, StatusOverdue, StatusUnpaid},
	StatusPaid:    {StatusPartial, StatusUnpaid},
	StatusOverdue: {StatusPartial, StatusPaid, StatusUnpaid},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to BillStatus) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the bill to a new status, rejecting illegal edges
// with ErrInvalidTransition.
func (b *Bill) Transition(to BillStatus) error {
	if !CanTransition(b.Status, to) {
		return &TransitionError{BillID: b.ID, From: b.Status, To: to}
	}
	b.Status = to
	return nil
}
