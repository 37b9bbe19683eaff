/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements billing.TxStore using SQLite. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  ledger_entries has no UPDATE path except the reversed flag and no
  DELETE path at all. Corrections go through reversal entries.

KEY TABLES:
  tenants:        Tenant records with their billing config
  accounts:       Billable accounts (units)
  charge_rules:   Ordered charge rules per tenant
  ledger_entries: Immutable ledger of all balance changes
  bills:          Generated bills with payment state
  runs:           Batch execution audit (generation, interest, sweep)

INDEXES:
  - idx_entries_account_date: balance chain reads (hot path)
  - idx_unique_bill_period: one bill per (account, period), the
    duplicate-period guard at the schema level
  - idx_unique_daily_interest: one interest entry per account per day,
    the interest idempotence guard at the schema level

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, with the compare-and-swap on the
  account's latest entry id as the final arbiter for ledger appends.
  SQLite is opened in WAL mode: readers don't block, single writer,
  better crash recovery.

USAGE:
  st, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  ledger := billing.NewLedger(st)
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/strata/billing-engine/billing"
)

// Store implements billing.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Tenants (config flattened into columns)
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		maintenance_rate TEXT NOT NULL DEFAULT '0',
		sinking_fund_rate TEXT NOT NULL DEFAULT '0',
		repair_fund_rate TEXT NOT NULL DEFAULT '0',
		water_charge TEXT NOT NULL DEFAULT '0',
		security_charge TEXT NOT NULL DEFAULT '0',
		electricity_charge TEXT NOT NULL DEFAULT '0',
		interest_rate TEXT NOT NULL DEFAULT '0',
		interest_method TEXT NOT NULL DEFAULT '',
		compounding_frequency TEXT NOT NULL DEFAULT '',
		grace_days INTEGER NOT NULL DEFAULT 0,
		bill_due_day INTEGER NOT NULL DEFAULT 1,
		service_tax_rate TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	-- Billable accounts
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		unit TEXT NOT NULL,
		area TEXT NOT NULL DEFAULT '0',
		opening_balance TEXT NOT NULL DEFAULT '0',
		owner_name TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_tenant
		ON accounts(tenant_id);

	-- Charge rules (soft-deleted, ordered)
	CREATE TABLE IF NOT EXISTS charge_rules (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		calc_type TEXT NOT NULL,
		rate TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		display_order INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_tenant
		ON charge_rules(tenant_id, display_order);

	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		date TEXT NOT NULL,
		direction TEXT NOT NULL,
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		seq INTEGER NOT NULL,
		bill_id TEXT,
		reversed BOOLEAN NOT NULL DEFAULT FALSE,
		reversal_of TEXT,
		description TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	-- Balance chain reads (hot path)
	CREATE INDEX IF NOT EXISTS idx_entries_account_date
		ON ledger_entries(account_id, date DESC, seq DESC);

	-- (account, seq) totally orders an account's entries
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_account_seq
		ON ledger_entries(account_id, seq);

	-- CRITICAL: one interest charge per account per day. The interest
	-- job's idempotence guard, enforced at the schema level.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_daily_interest
		ON ledger_entries(account_id, date)
		WHERE category = 'interest' AND reversal_of IS NULL;

	CREATE INDEX IF NOT EXISTS idx_entries_bill
		ON ledger_entries(bill_id) WHERE bill_id IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_entries_category
		ON ledger_entries(account_id, category, date);

	-- Bills
	CREATE TABLE IF NOT EXISTS bills (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		period TEXT NOT NULL,
		charges_json TEXT NOT NULL,
		previous_balance TEXT NOT NULL,
		interest TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		tax TEXT NOT NULL,
		total TEXT NOT NULL,
		amount_paid TEXT NOT NULL DEFAULT '0',
		due_date TEXT NOT NULL,
		status TEXT NOT NULL,
		locked BOOLEAN NOT NULL DEFAULT TRUE,
		generated_at TEXT NOT NULL,
		generated_by TEXT
	);

	-- CRITICAL: one bill per (account, period). The duplicate-period
	-- guard, enforced at the schema level.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_bill_period
		ON bills(account_id, period);

	CREATE INDEX IF NOT EXISTS idx_bills_tenant_period
		ON bills(tenant_id, period);
	CREATE INDEX IF NOT EXISTS idx_bills_status
		ON bills(status);

	-- Batch runs (audit)
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		period TEXT,
		day TEXT,
		status TEXT NOT NULL,
		succeeded INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_tenant
		ON runs(tenant_id, kind, started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier abstracts *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// LEDGER STORE
// =============================================================================

const entryColumns = `id, tenant_id, account_id, date, direction, category, amount,
	balance_after, seq, bill_id, reversed, reversal_of, description, created_by, created_at`

func (s *Store) AppendEntry(ctx context.Context, entry billing.LedgerEntry, expectPrev billing.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntryOn(ctx, s.db, entry, expectPrev)
}

func appendEntryOn(ctx context.Context, q querier, entry billing.LedgerEntry, expectPrev billing.EntryID) error {
	// Compare-and-swap: the caller's view of the latest entry must still
	// hold at write time.
	var latest billing.EntryID
	err := q.QueryRowContext(ctx,
		`SELECT id FROM ledger_entries WHERE account_id = ? ORDER BY date DESC, seq DESC LIMIT 1`,
		entry.AccountID,
	).Scan(&latest)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if latest != expectPrev {
		return billing.ErrConcurrentModification
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, tenant_id, account_id, date, direction, category, amount,
		 balance_after, seq, bill_id, reversed, reversal_of, description, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.TenantID,
		entry.AccountID,
		entry.Date.String(),
		entry.Direction,
		entry.Category,
		entry.Amount.String(),
		entry.BalanceAfter.String(),
		entry.Seq,
		nullString(string(entry.BillID)),
		entry.Reversed,
		nullString(string(entry.ReversalOf)),
		entry.Description,
		entry.CreatedBy,
		entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// A racing writer took our seq, or the daily interest
			// guard fired. Either way the caller's read is stale.
			return billing.ErrConcurrentModification
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (s *Store) LatestEntry(ctx context.Context, accountID billing.AccountID) (*billing.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestEntryOn(ctx, s.db, accountID)
}

func latestEntryOn(ctx context.Context, q querier, accountID billing.AccountID) (*billing.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM ledger_entries WHERE account_id = ?
		ORDER BY date DESC, seq DESC LIMIT 1`
	entries, err := queryEntries(ctx, q, query, accountID)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (s *Store) GetEntry(ctx context.Context, id billing.EntryID) (*billing.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntryOn(ctx, s.db, id)
}

func getEntryOn(ctx context.Context, q querier, id billing.EntryID) (*billing.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = ?`
	entries, err := queryEntries(ctx, q, query, id)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (s *Store) Entries(ctx context.Context, accountID billing.AccountID) ([]billing.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesOn(ctx, s.db, accountID)
}

func entriesOn(ctx context.Context, q querier, accountID billing.AccountID) ([]billing.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM ledger_entries WHERE account_id = ?
		ORDER BY date ASC, seq ASC`
	return queryEntries(ctx, q, query, accountID)
}

func (s *Store) EntriesInRange(ctx context.Context, accountID billing.AccountID, from, to billing.Date) ([]billing.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesInRangeOn(ctx, s.db, accountID, from, to)
}

func entriesInRangeOn(ctx context.Context, q querier, accountID billing.AccountID, from, to billing.Date) ([]billing.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE account_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, seq ASC`
	return queryEntries(ctx, q, query, accountID, from.String(), to.String())
}

func (s *Store) MarkReversed(ctx context.Context, id billing.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markReversedOn(ctx, s.db, id)
}

func markReversedOn(ctx context.Context, q querier, id billing.EntryID) error {
	res, err := q.ExecContext(ctx, `UPDATE ledger_entries SET reversed = TRUE WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return billing.ErrEntryNotFound
	}
	return nil
}

func (s *Store) HasInterestOn(ctx context.Context, accountID billing.AccountID, day billing.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasInterestOn(ctx, s.db, accountID, day)
}

func hasInterestOn(ctx context.Context, q querier, accountID billing.AccountID, day billing.Date) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ledger_entries
		WHERE account_id = ? AND category = 'interest'
		  AND reversal_of IS NULL AND date = ?`,
		accountID, day.String(),
	).Scan(&count)
	return count > 0, err
}

func (s *Store) OldestOpenMaintenanceEntry(ctx context.Context, accountID billing.AccountID) (*billing.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return oldestOpenMaintenanceOn(ctx, s.db, accountID)
}

func oldestOpenMaintenanceOn(ctx context.Context, q querier, accountID billing.AccountID) (*billing.LedgerEntry, error) {
	query := `SELECT ` + prefixedEntryColumns("e") + `
		FROM ledger_entries e
		LEFT JOIN bills b ON e.bill_id = b.id
		WHERE e.account_id = ? AND e.category = 'maintenance'
		  AND e.direction = 'debit' AND e.reversed = FALSE
		  AND (b.id IS NULL OR b.status != 'paid')
		ORDER BY e.date ASC, e.seq ASC LIMIT 1`
	entries, err := queryEntries(ctx, q, query, accountID)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func prefixedEntryColumns(alias string) string {
	cols := strings.Split(entryColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func queryEntries(ctx context.Context, q querier, query string, args ...any) ([]billing.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []billing.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (billing.LedgerEntry, error) {
	var (
		entry        billing.LedgerEntry
		date         string
		amount       string
		balanceAfter string
		billID       sql.NullString
		reversalOf   sql.NullString
		description  sql.NullString
		createdBy    sql.NullString
		createdAt    string
	)

	err := rows.Scan(
		&entry.ID, &entry.TenantID, &entry.AccountID, &date,
		&entry.Direction, &entry.Category, &amount, &balanceAfter,
		&entry.Seq, &billID, &entry.Reversed, &reversalOf,
		&description, &createdBy, &createdAt,
	)
	if err != nil {
		return entry, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	entry.Date = parseDate(date)
	entry.Amount = mustMoney(amount)
	entry.BalanceAfter = mustMoney(balanceAfter)
	entry.BillID = billing.BillID(billID.String)
	entry.ReversalOf = billing.EntryID(reversalOf.String)
	entry.Description = description.String
	entry.CreatedBy = createdBy.String
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return entry, nil
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction. Any error from fn
// rolls the whole transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes all operations through one *sql.Tx. The parent's mutex
// is already held for the transaction's duration.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) AppendEntry(ctx context.Context, entry billing.LedgerEntry, expectPrev billing.EntryID) error {
	return appendEntryOn(ctx, ts.tx, entry, expectPrev)
}

func (ts *txStore) LatestEntry(ctx context.Context, accountID billing.AccountID) (*billing.LedgerEntry, error) {
	return latestEntryOn(ctx, ts.tx, accountID)
}

func (ts *txStore) GetEntry(ctx context.Context, id billing.EntryID) (*billing.LedgerEntry, error) {
	return getEntryOn(ctx, ts.tx, id)
}

func (ts *txStore) Entries(ctx context.Context, accountID billing.AccountID) ([]billing.LedgerEntry, error) {
	return entriesOn(ctx, ts.tx, accountID)
}

func (ts *txStore) EntriesInRange(ctx context.Context, accountID billing.AccountID, from, to billing.Date) ([]billing.LedgerEntry, error) {
	return entriesInRangeOn(ctx, ts.tx, accountID, from, to)
}

func (ts *txStore) MarkReversed(ctx context.Context, id billing.EntryID) error {
	return markReversedOn(ctx, ts.tx, id)
}

func (ts *txStore) HasInterestOn(ctx context.Context, accountID billing.AccountID, day billing.Date) (bool, error) {
	return hasInterestOn(ctx, ts.tx, accountID, day)
}

func (ts *txStore) OldestOpenMaintenanceEntry(ctx context.Context, accountID billing.AccountID) (*billing.LedgerEntry, error) {
	return oldestOpenMaintenanceOn(ctx, ts.tx, accountID)
}

func (ts *txStore) SaveBill(ctx context.Context, bill billing.Bill) error {
	return saveBillOn(ctx, ts.tx, bill)
}

func (ts *txStore) GetBill(ctx context.Context, id billing.BillID) (*billing.Bill, error) {
	return getBillOn(ctx, ts.tx, id)
}

func (ts *txStore) BillForPeriod(ctx context.Context, accountID billing.AccountID, period billing.Period) (*billing.Bill, error) {
	return billForPeriodOn(ctx, ts.tx, accountID, period)
}

func (ts *txStore) BillsByTenant(ctx context.Context, tenantID billing.TenantID, period billing.Period) ([]billing.Bill, error) {
	return billsByTenantOn(ctx, ts.tx, tenantID, period)
}

func (ts *txStore) BillsByAccount(ctx context.Context, accountID billing.AccountID) ([]billing.Bill, error) {
	return billsByAccountOn(ctx, ts.tx, accountID)
}

func (ts *txStore) SaveAccount(ctx context.Context, account billing.Account) error {
	return saveAccountOn(ctx, ts.tx, account)
}

func (ts *txStore) GetAccount(ctx context.Context, id billing.AccountID) (*billing.Account, error) {
	return getAccountOn(ctx, ts.tx, id)
}

func (ts *txStore) ListAccounts(ctx context.Context, tenantID billing.TenantID) ([]billing.Account, error) {
	return listAccountsOn(ctx, ts.tx, tenantID)
}

func (ts *txStore) SaveTenant(ctx context.Context, tenant billing.Tenant) error {
	return saveTenantOn(ctx, ts.tx, tenant)
}

func (ts *txStore) GetTenant(ctx context.Context, id billing.TenantID) (*billing.Tenant, error) {
	return getTenantOn(ctx, ts.tx, id)
}

func (ts *txStore) ListTenants(ctx context.Context) ([]billing.Tenant, error) {
	return listTenantsOn(ctx, ts.tx)
}

func (ts *txStore) SaveRule(ctx context.Context, rule billing.ChargeRule) error {
	return saveRuleOn(ctx, ts.tx, rule)
}

func (ts *txStore) GetRule(ctx context.Context, id billing.RuleID) (*billing.ChargeRule, error) {
	return getRuleOn(ctx, ts.tx, id)
}

func (ts *txStore) RulesByTenant(ctx context.Context, tenantID billing.TenantID) ([]billing.ChargeRule, error) {
	return rulesByTenantOn(ctx, ts.tx, tenantID)
}

func (ts *txStore) SaveRun(ctx context.Context, run billing.Run) error {
	return saveRunOn(ctx, ts.tx, run)
}

func (ts *txStore) RunsByTenant(ctx context.Context, tenantID billing.TenantID, kind billing.RunKind) ([]billing.Run, error) {
	return runsByTenantOn(ctx, ts.tx, tenantID, kind)
}

// =============================================================================
// BILL STORE
// =============================================================================

const billColumns = `id, tenant_id, account_id, period, charges_json, previous_balance,
	interest, subtotal, tax, total, amount_paid, due_date, status,
	locked, generated_at, generated_by`

func (s *Store) SaveBill(ctx context.Context, bill billing.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBillOn(ctx, s.db, bill)
}

func saveBillOn(ctx context.Context, q querier, bill billing.Bill) error {
	chargesJSON, err := json.Marshal(bill.Charges)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO bills
		(id, tenant_id, account_id, period, charges_json, previous_balance,
		 interest, subtotal, tax, total, amount_paid, due_date, status,
		 locked, generated_at, generated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount_paid = excluded.amount_paid,
			status = excluded.status`,
		bill.ID, bill.TenantID, bill.AccountID, bill.Period.Key(),
		string(chargesJSON),
		bill.PreviousBalance.String(), bill.Interest.String(),
		bill.Subtotal.String(), bill.Tax.String(), bill.Total.String(),
		bill.AmountPaid.String(), bill.DueDate.String(), bill.Status,
		bill.Locked,
		bill.GeneratedAt.UTC().Format(time.RFC3339), bill.GeneratedBy,
	)
	if err != nil && isUniqueConstraintError(err) {
		return billing.ErrDuplicatePeriod
	}
	return err
}

func (s *Store) GetBill(ctx context.Context, id billing.BillID) (*billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBillOn(ctx, s.db, id)
}

func getBillOn(ctx context.Context, q querier, id billing.BillID) (*billing.Bill, error) {
	bills, err := queryBills(ctx, q, `SELECT `+billColumns+` FROM bills WHERE id = ?`, id)
	if err != nil || len(bills) == 0 {
		return nil, err
	}
	return &bills[0], nil
}

func (s *Store) BillForPeriod(ctx context.Context, accountID billing.AccountID, period billing.Period) (*billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return billForPeriodOn(ctx, s.db, accountID, period)
}

func billForPeriodOn(ctx context.Context, q querier, accountID billing.AccountID, period billing.Period) (*billing.Bill, error) {
	bills, err := queryBills(ctx, q,
		`SELECT `+billColumns+` FROM bills WHERE account_id = ? AND period = ?`,
		accountID, period.Key())
	if err != nil || len(bills) == 0 {
		return nil, err
	}
	return &bills[0], nil
}

func (s *Store) BillsByTenant(ctx context.Context, tenantID billing.TenantID, period billing.Period) ([]billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return billsByTenantOn(ctx, s.db, tenantID, period)
}

func billsByTenantOn(ctx context.Context, q querier, tenantID billing.TenantID, period billing.Period) ([]billing.Bill, error) {
	if period.IsZero() {
		return queryBills(ctx, q,
			`SELECT `+billColumns+` FROM bills WHERE tenant_id = ? ORDER BY period DESC, account_id`,
			tenantID)
	}
	return queryBills(ctx, q,
		`SELECT `+billColumns+` FROM bills WHERE tenant_id = ? AND period = ? ORDER BY account_id`,
		tenantID, period.Key())
}

func (s *Store) BillsByAccount(ctx context.Context, accountID billing.AccountID) ([]billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return billsByAccountOn(ctx, s.db, accountID)
}

func billsByAccountOn(ctx context.Context, q querier, accountID billing.AccountID) ([]billing.Bill, error) {
	return queryBills(ctx, q,
		`SELECT `+billColumns+` FROM bills WHERE account_id = ? ORDER BY period DESC`,
		accountID)
}

func queryBills(ctx context.Context, q querier, query string, args ...any) ([]billing.Bill, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var bills []billing.Bill
	for rows.Next() {
		var (
			bill        billing.Bill
			periodKey   string
			chargesJSON string
			prevBalance string
			interest    string
			subtotal    string
			tax         string
			total       string
			amountPaid  string
			dueDate     string
			generatedAt string
			generatedBy sql.NullString
		)
		if err := rows.Scan(
			&bill.ID, &bill.TenantID, &bill.AccountID, &periodKey,
			&chargesJSON, &prevBalance, &interest, &subtotal, &tax, &total,
			&amountPaid, &dueDate, &bill.Status, &bill.Locked,
			&generatedAt, &generatedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}

		bill.Period, _ = billing.ParsePeriod(periodKey)
		if err := json.Unmarshal([]byte(chargesJSON), &bill.Charges); err != nil {
			return nil, fmt.Errorf("failed to decode bill charges: %w", err)
		}
		bill.PreviousBalance = mustMoney(prevBalance)
		bill.Interest = mustMoney(interest)
		bill.Subtotal = mustMoney(subtotal)
		bill.Tax = mustMoney(tax)
		bill.Total = mustMoney(total)
		bill.AmountPaid = mustMoney(amountPaid)
		bill.DueDate = parseDate(dueDate)
		bill.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)
		bill.GeneratedBy = generatedBy.String

		bills = append(bills, bill)
	}
	return bills, rows.Err()
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

func (s *Store) SaveAccount(ctx context.Context, account billing.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAccountOn(ctx, s.db, account)
}

func saveAccountOn(ctx context.Context, q querier, account billing.Account) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (id, tenant_id, unit, area, opening_balance, owner_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			unit = excluded.unit,
			area = excluded.area,
			opening_balance = excluded.opening_balance,
			owner_name = excluded.owner_name`,
		account.ID, account.TenantID, account.Unit,
		account.Area.String(), account.OpeningBalance.String(),
		account.OwnerName,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetAccount(ctx context.Context, id billing.AccountID) (*billing.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccountOn(ctx, s.db, id)
}

func getAccountOn(ctx context.Context, q querier, id billing.AccountID) (*billing.Account, error) {
	var (
		account billing.Account
		area    string
		opening string
		owner   sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, tenant_id, unit, area, opening_balance, owner_name FROM accounts WHERE id = ?`,
		id,
	).Scan(&account.ID, &account.TenantID, &account.Unit, &area, &opening, &owner)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	account.Area = mustMoney(area)
	account.OpeningBalance = mustMoney(opening)
	account.OwnerName = owner.String
	return &account, nil
}

func (s *Store) ListAccounts(ctx context.Context, tenantID billing.TenantID) ([]billing.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAccountsOn(ctx, s.db, tenantID)
}

func listAccountsOn(ctx context.Context, q querier, tenantID billing.TenantID) ([]billing.Account, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, tenant_id, unit, area, opening_balance, owner_name FROM accounts
		 WHERE tenant_id = ? ORDER BY unit`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []billing.Account
	for rows.Next() {
		var (
			account billing.Account
			area    string
			opening string
			owner   sql.NullString
		)
		if err := rows.Scan(&account.ID, &account.TenantID, &account.Unit, &area, &opening, &owner); err != nil {
			return nil, err
		}
		account.Area = mustMoney(area)
		account.OpeningBalance = mustMoney(opening)
		account.OwnerName = owner.String
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// =============================================================================
// TENANT STORE
// =============================================================================

const tenantColumns = `id, name, maintenance_rate, sinking_fund_rate, repair_fund_rate,
	water_charge, security_charge, electricity_charge,
	interest_rate, interest_method, compounding_frequency,
	grace_days, bill_due_day, service_tax_rate`

func (s *Store) SaveTenant(ctx context.Context, tenant billing.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveTenantOn(ctx, s.db, tenant)
}

func saveTenantOn(ctx context.Context, q querier, tenant billing.Tenant) error {
	cfg := tenant.Config
	_, err := q.ExecContext(ctx, `
		INSERT INTO tenants
		(id, name, maintenance_rate, sinking_fund_rate, repair_fund_rate,
		 water_charge, security_charge, electricity_charge,
		 interest_rate, interest_method, compounding_frequency,
		 grace_days, bill_due_day, service_tax_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			maintenance_rate = excluded.maintenance_rate,
			sinking_fund_rate = excluded.sinking_fund_rate,
			repair_fund_rate = excluded.repair_fund_rate,
			water_charge = excluded.water_charge,
			security_charge = excluded.security_charge,
			electricity_charge = excluded.electricity_charge,
			interest_rate = excluded.interest_rate,
			interest_method = excluded.interest_method,
			compounding_frequency = excluded.compounding_frequency,
			grace_days = excluded.grace_days,
			bill_due_day = excluded.bill_due_day,
			service_tax_rate = excluded.service_tax_rate`,
		tenant.ID, tenant.Name,
		cfg.MaintenanceRate.String(), cfg.SinkingFundRate.String(), cfg.RepairFundRate.String(),
		cfg.WaterCharge.String(), cfg.SecurityCharge.String(), cfg.ElectricityCharge.String(),
		cfg.InterestRate.String(), cfg.InterestMethod, cfg.CompoundingFrequency,
		cfg.GraceDays, cfg.BillDueDay, cfg.ServiceTaxRate.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetTenant(ctx context.Context, id billing.TenantID) (*billing.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTenantOn(ctx, s.db, id)
}

func getTenantOn(ctx context.Context, q querier, id billing.TenantID) (*billing.Tenant, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants, err := scanTenants(rows)
	if err != nil || len(tenants) == 0 {
		return nil, err
	}
	return &tenants[0], nil
}

func (s *Store) ListTenants(ctx context.Context) ([]billing.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTenantsOn(ctx, s.db)
}

func listTenantsOn(ctx context.Context, q querier) ([]billing.Tenant, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTenants(rows)
}

func scanTenants(rows *sql.Rows) ([]billing.Tenant, error) {
	var tenants []billing.Tenant
	for rows.Next() {
		var (
			tenant                          billing.Tenant
			maintRate, sinkRate, repairRate string
			water, security, electricity    string
			interestRate, taxRate           string
			interestMethod, compounding     string
		)
		if err := rows.Scan(
			&tenant.ID, &tenant.Name,
			&maintRate, &sinkRate, &repairRate,
			&water, &security, &electricity,
			&interestRate, &interestMethod, &compounding,
			&tenant.Config.GraceDays, &tenant.Config.BillDueDay, &taxRate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenant.Config.MaintenanceRate = mustMoney(maintRate)
		tenant.Config.SinkingFundRate = mustMoney(sinkRate)
		tenant.Config.RepairFundRate = mustMoney(repairRate)
		tenant.Config.WaterCharge = mustMoney(water)
		tenant.Config.SecurityCharge = mustMoney(security)
		tenant.Config.ElectricityCharge = mustMoney(electricity)
		tenant.Config.InterestRate = mustMoney(interestRate)
		tenant.Config.InterestMethod = billing.InterestMethod(interestMethod)
		tenant.Config.CompoundingFrequency = billing.CompoundingFrequency(compounding)
		tenant.Config.ServiceTaxRate = mustMoney(taxRate)
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

// =============================================================================
// RULE STORE
// =============================================================================

func (s *Store) SaveRule(ctx context.Context, rule billing.ChargeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRuleOn(ctx, s.db, rule)
}

func saveRuleOn(ctx context.Context, q querier, rule billing.ChargeRule) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO charge_rules (id, tenant_id, name, calc_type, rate, active, deleted, display_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			calc_type = excluded.calc_type,
			rate = excluded.rate,
			active = excluded.active,
			deleted = excluded.deleted,
			display_order = excluded.display_order`,
		rule.ID, rule.TenantID, rule.Name, rule.Type, rule.Rate.String(),
		rule.Active, rule.Deleted, rule.Order,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetRule(ctx context.Context, id billing.RuleID) (*billing.ChargeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRuleOn(ctx, s.db, id)
}

func getRuleOn(ctx context.Context, q querier, id billing.RuleID) (*billing.ChargeRule, error) {
	var (
		rule billing.ChargeRule
		rate string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, calc_type, rate, active, deleted, display_order
		 FROM charge_rules WHERE id = ?`,
		id,
	).Scan(&rule.ID, &rule.TenantID, &rule.Name, &rule.Type, &rate, &rule.Active, &rule.Deleted, &rule.Order)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rule.Rate = mustMoney(rate)
	return &rule, nil
}

func (s *Store) RulesByTenant(ctx context.Context, tenantID billing.TenantID) ([]billing.ChargeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rulesByTenantOn(ctx, s.db, tenantID)
}

func rulesByTenantOn(ctx context.Context, q querier, tenantID billing.TenantID) ([]billing.ChargeRule, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, tenant_id, name, calc_type, rate, active, deleted, display_order
		 FROM charge_rules WHERE tenant_id = ?
		 ORDER BY display_order ASC, name ASC`,
		tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []billing.ChargeRule
	for rows.Next() {
		var (
			rule billing.ChargeRule
			rate string
		)
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.Name, &rule.Type, &rate,
			&rule.Active, &rule.Deleted, &rule.Order); err != nil {
			return nil, err
		}
		rule.Rate = mustMoney(rate)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// =============================================================================
// RUN STORE
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run billing.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRunOn(ctx, s.db, run)
}

func saveRunOn(ctx context.Context, q querier, run billing.Run) error {
	var period, day any
	if !run.Period.IsZero() {
		period = run.Period.Key()
	}
	if !run.Day.IsZero() {
		day = run.Day.String()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO runs (id, tenant_id, kind, period, day, status,
			succeeded, skipped, failed, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TenantID, run.Kind, period, day, run.Status,
		run.Succeeded, run.Skipped, run.Failed, nullString(run.Error),
		run.StartedAt.UTC().Format(time.RFC3339),
		run.CompletedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) RunsByTenant(ctx context.Context, tenantID billing.TenantID, kind billing.RunKind) ([]billing.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return runsByTenantOn(ctx, s.db, tenantID, kind)
}

func runsByTenantOn(ctx context.Context, q querier, tenantID billing.TenantID, kind billing.RunKind) ([]billing.Run, error) {
	query := `SELECT id, tenant_id, kind, period, day, status,
			succeeded, skipped, failed, error, started_at, completed_at
		FROM runs WHERE tenant_id = ?`
	args := []any{tenantID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []billing.Run
	for rows.Next() {
		var (
			run         billing.Run
			period      sql.NullString
			day         sql.NullString
			runErr      sql.NullString
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.TenantID, &run.Kind, &period, &day,
			&run.Status, &run.Succeeded, &run.Skipped, &run.Failed,
			&runErr, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		if period.Valid {
			run.Period, _ = billing.ParsePeriod(period.String)
		}
		if day.Valid {
			run.Day = parseDate(day.String)
		}
		run.Error = runErr.String
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if completedAt.Valid {
			run.CompletedAt, _ = time.Parse(time.RFC3339, completedAt.String)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"ledger_entries", "bills", "runs", "charge_rules", "accounts", "tenants"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDate(s string) billing.Date {
	t, _ := time.Parse("2006-01-02", s)
	return billing.NewDate(t.Year(), t.Month(), t.Day())
}

func mustMoney(s string) billing.Money { return billing.MustMoney(s) }

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
