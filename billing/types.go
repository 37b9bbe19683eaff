/*
Package billing provides the core billing and ledger engine.

PURPOSE:
  This package contains the multi-tenant billing core: an append-only,
  per-account financial ledger with a running balance, periodic bill
  generation from configurable charge rules, interest accrual on overdue
  balances, and the bill status machine.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: decimal-based monetary amounts, 2dp half-up rounding
  - LedgerEntry: An immutable signed monetary event for an account
  - Direction/Category: How an entry moves the balance and why
  - Tenant/Account/Bill/Entry IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing tenant/account IDs
  4. Auditability: Every entry carries actor, description, and a
     denormalized balance-after so history explains itself

USAGE:
  entry, err := ledger.Append(ctx, billing.AppendInput{
      AccountID: "acct-301",
      Date:      billing.NewDate(2026, time.April, 1),
      Direction: billing.Debit,
      Category:  billing.CategoryMaintenance,
      Amount:    billing.MustMoney("2500.00"),
  })

SEE ALSO:
  - ledger.go: Append-only ledger and balance chain invariant
  - bill.go: Bill model and status machine
  - rule.go: Charge rule variants and evaluation
*/
package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - All monetary amounts are decimals, rounded half-up to 2dp
// =============================================================================

// Money is an exact decimal monetary amount.
type Money = decimal.Decimal

// Zero is the zero monetary amount.
var Zero = decimal.Zero

func NewMoney(value float64) Money { return decimal.NewFromFloat(value) }

func NewMoneyFromInt(value int64) Money { return decimal.NewFromInt(value) }

// ParseMoney parses a decimal string.
func ParseMoney(s string) (Money, error) { return decimal.NewFromString(s) }

// MustMoney parses a decimal string, returning zero on malformed input.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RoundMoney applies financial rounding (half-up) to 2 decimal places.
func RoundMoney(m Money) Money { return m.Round(2) }

// Percent returns rate% of base, unrounded.
func Percent(base Money, rate Money) Money {
	return base.Mul(rate).Div(decimal.NewFromInt(100))
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type AccountID string
type EntryID string
type BillID string
type RuleID string

// NewEntryID mints a ledger entry identifier.
func NewEntryID() EntryID { return EntryID("le-" + uuid.NewString()) }

// NewBillID mints a bill identifier.
func NewBillID() BillID { return BillID("bill-" + uuid.NewString()) }

// NewRuleID mints a charge rule identifier.
func NewRuleID() RuleID { return RuleID("rule-" + uuid.NewString()) }

// =============================================================================
// LEDGER ENTRY - Atomic change to account balance
// =============================================================================

// Direction indicates how an entry moves the running balance.
// Debit increases what the account owes; Credit decreases it.
type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// Signed returns the entry amount with the direction's sign applied.
func (d Direction) Signed(amount Money) Money {
	if d == Credit {
		return amount.Neg()
	}
	return amount
}

// Opposite returns the reversing direction.
func (d Direction) Opposite() Direction {
	if d == Debit {
		return Credit
	}
	return Debit
}

// Category classifies why the balance moved.
type Category string

const (
	CategoryMaintenance    Category = "maintenance"     // Periodic bill debit
	CategoryArrears        Category = "arrears"         // Carried-forward dues
	CategoryInterest       Category = "interest"        // Overdue interest accrual
	CategoryPayment        Category = "payment"         // Member payment
	CategoryAdjustment     Category = "adjustment"      // Manual admin correction
	CategoryRefund         Category = "refund"          // Money returned to member
	CategoryFine           Category = "fine"            // Penalty charge
	CategoryOpeningBalance Category = "opening_balance" // Migration seed entry
)

// LedgerEntry is one immutable signed monetary event for an account.
//
// Entries are never updated or deleted. The single exception is the
// Reversed flag, which is flipped when a reversing entry is appended so
// a second reversal can be rejected.
type LedgerEntry struct {
	ID        EntryID
	TenantID  TenantID
	AccountID AccountID

	Date      Date
	Direction Direction
	Category  Category
	Amount    Money // always > 0; Direction carries the sign

	// BalanceAfter is the signed running total owed by the account after
	// this entry. Denormalized so balance reads never replay history.
	BalanceAfter Money

	// Seq is the per-account creation sequence. (Date, Seq) totally
	// orders an account's entries.
	Seq int64

	// BillID links the entry to the bill it raises or settles, if any.
	BillID BillID

	// Reversed marks an entry that has been undone by a reversal entry.
	Reversed bool

	// ReversalOf points a reversal entry back at the original.
	ReversalOf EntryID

	Description string

	// Audit fields
	CreatedBy string // actor id supplied by the identity collaborator
	CreatedAt time.Time
}

// SignedAmount returns the entry's contribution to the running balance.
func (e LedgerEntry) SignedAmount() Money { return e.Direction.Signed(e.Amount) }

// =============================================================================
// ACTOR - Identity supplied by the auth collaborator, trusted as-is
// =============================================================================

// Actor identifies who invoked a command. The engine trusts these values;
// verification happens in the auth collaborator before the call.
type Actor struct {
	ID   string
	Role string
}

// System is the actor recorded for scheduled batch jobs.
var System = Actor{ID: "system", Role: "system"}
