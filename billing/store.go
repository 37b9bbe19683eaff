/*
store.go - Persistence interfaces for the billing engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  The Store handles persistence while maintaining append-only semantics
  for ledger entries. Implementations: store/sqlite (production) and
  billing/store (in-memory, for tests).

APPEND-ONLY CONTRACT:
  Ledger entries have exactly two write paths:
  - AppendEntry(): insert a new entry, guarded by a compare-and-swap on
    the account's latest entry id
  - MarkReversed(): flip the reversal flag on an existing entry
  No other update, no delete. Corrections are reversal entries.

OPTIMISTIC CONCURRENCY:
  AppendEntry takes the entry id the caller believes is the account's
  latest. If another writer slipped in, the store returns
  ErrConcurrentModification and the ledger retries with a fresh read.
  This protects the balance_after chain without cross-account locking.

ATOMIC BATCHES:
  WithTx ensures all-or-nothing semantics. When committing a billing
  period (N bills + N debit entries), either everything is written or
  nothing is. This prevents half-billed periods.
*/
package billing

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Combined persistence interface
// =============================================================================

// Store is the persistence surface required by the engine.
type Store interface {
	LedgerStore
	BillStore
	AccountStore
	TenantStore
	RuleStore
	RunStore
}

// TxStore wraps Store with transaction support. Use for atomic
// multi-write operations (bill commit, payments, reversals).
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error,
	// the transaction is rolled back; otherwise it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// LEDGER STORE - Append-only entry persistence
// =============================================================================

type LedgerStore interface {
	// AppendEntry persists an entry. expectPrev is the id of the entry
	// the caller read as the account's latest ("" for an empty ledger).
	// Returns ErrConcurrentModification if the latest has moved.
	AppendEntry(ctx context.Context, entry LedgerEntry, expectPrev EntryID) error

	// LatestEntry returns the account's most recent entry by
	// (date desc, seq desc), or nil if the ledger is empty.
	LatestEntry(ctx context.Context, accountID AccountID) (*LedgerEntry, error)

	// GetEntry returns an entry by id, or nil if absent.
	GetEntry(ctx context.Context, id EntryID) (*LedgerEntry, error)

	// Entries returns all entries for an account ordered by (date, seq).
	Entries(ctx context.Context, accountID AccountID) ([]LedgerEntry, error)

	// EntriesInRange returns entries dated in [from, to], ordered.
	EntriesInRange(ctx context.Context, accountID AccountID, from, to Date) ([]LedgerEntry, error)

	// MarkReversed flips the reversal flag on an entry. The only
	// permitted in-place mutation.
	MarkReversed(ctx context.Context, id EntryID) error

	// HasInterestOn reports whether an Interest entry dated 'day' exists
	// for the account. The interest job's idempotence guard.
	HasInterestOn(ctx context.Context, accountID AccountID, day Date) (bool, error)

	// OldestOpenMaintenanceEntry returns the account's oldest Maintenance
	// debit whose linked bill is not Paid, or nil. Anchors the interest
	// grace window.
	OldestOpenMaintenanceEntry(ctx context.Context, accountID AccountID) (*LedgerEntry, error)
}

// =============================================================================
// BILL STORE
// =============================================================================

type BillStore interface {
	// SaveBill inserts or updates a bill.
	SaveBill(ctx context.Context, bill Bill) error

	// GetBill returns a bill by id, or nil if absent.
	GetBill(ctx context.Context, id BillID) (*Bill, error)

	// BillForPeriod returns the account's bill for a period, or nil.
	// Backs the duplicate-period guard.
	BillForPeriod(ctx context.Context, accountID AccountID, period Period) (*Bill, error)

	// BillsByTenant returns a tenant's bills, optionally filtered by
	// period (zero Period = all), newest first.
	BillsByTenant(ctx context.Context, tenantID TenantID, period Period) ([]Bill, error)

	// BillsByAccount returns an account's bills, newest first.
	BillsByAccount(ctx context.Context, accountID AccountID) ([]Bill, error)
}

// =============================================================================
// ACCOUNT / TENANT / RULE STORES
// =============================================================================

type AccountStore interface {
	SaveAccount(ctx context.Context, account Account) error

	// GetAccount returns an account by id, or nil if absent.
	GetAccount(ctx context.Context, id AccountID) (*Account, error)

	// ListAccounts returns a tenant's accounts ordered by unit.
	ListAccounts(ctx context.Context, tenantID TenantID) ([]Account, error)
}

type TenantStore interface {
	SaveTenant(ctx context.Context, tenant Tenant) error

	// GetTenant returns a tenant by id, or nil if absent.
	GetTenant(ctx context.Context, id TenantID) (*Tenant, error)

	ListTenants(ctx context.Context) ([]Tenant, error)
}

type RuleStore interface {
	SaveRule(ctx context.Context, rule ChargeRule) error

	// GetRule returns a rule by id, or nil if absent.
	GetRule(ctx context.Context, id RuleID) (*ChargeRule, error)

	// RulesByTenant returns ALL of a tenant's rules (including inactive
	// and soft-deleted) ordered by display order ascending.
	RulesByTenant(ctx context.Context, tenantID TenantID) ([]ChargeRule, error)
}

// =============================================================================
// RUN STORE - Audit record of batch executions
// =============================================================================

// RunKind distinguishes batch job types.
type RunKind string

const (
	RunBillGeneration  RunKind = "bill_generation"
	RunInterestAccrual RunKind = "interest_accrual"
	RunOverdueSweep    RunKind = "overdue_sweep"
)

// Run records one batch execution for audit and admin listing.
type Run struct {
	ID       string
	TenantID TenantID
	Kind     RunKind

	// Period is set for bill generation runs; Day for daily sweeps.
	Period Period
	Day    Date

	Status    string // completed, failed
	Succeeded int
	Skipped   int
	Failed    int
	Error     string

	StartedAt   time.Time
	CompletedAt time.Time
}

type RunStore interface {
	SaveRun(ctx context.Context, run Run) error

	// RunsByTenant returns a tenant's runs, newest first.
	RunsByTenant(ctx context.Context, tenantID TenantID, kind RunKind) ([]Run, error)
}
