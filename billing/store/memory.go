// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/strata/billing-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type entryRef struct {
	accountID billing.AccountID
	index     int
}

type Memory struct {
	mu       sync.RWMutex
	entries  map[billing.AccountID][]billing.LedgerEntry
	byID     map[billing.EntryID]entryRef
	bills    map[billing.BillID]billing.Bill
	accounts map[billing.AccountID]billing.Account
	tenants  map[billing.TenantID]billing.Tenant
	rules    map[billing.RuleID]billing.ChargeRule
	runs     []billing.Run
}

func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[billing.AccountID][]billing.LedgerEntry),
		byID:     make(map[billing.EntryID]entryRef),
		bills:    make(map[billing.BillID]billing.Bill),
		accounts: make(map[billing.AccountID]billing.Account),
		tenants:  make(map[billing.TenantID]billing.Tenant),
		rules:    make(map[billing.RuleID]billing.ChargeRule),
	}
}

// WithTx runs fn under the store lock. The memory store has no rollback;
// tests that exercise rollback behavior use the SQLite store.
func (m *Memory) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	return fn(m)
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (m *Memory) AppendEntry(_ context.Context, entry billing.LedgerEntry, expectPrev billing.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.entries[entry.AccountID]
	var latest billing.EntryID
	if len(list) > 0 {
		latest = list[len(list)-1].ID
	}
	if latest != expectPrev {
		return billing.ErrConcurrentModification
	}

	list = append(list, entry)
	m.entries[entry.AccountID] = list
	m.byID[entry.ID] = entryRef{accountID: entry.AccountID, index: len(list) - 1}
	return nil
}

func (m *Memory) LatestEntry(_ context.Context, accountID billing.AccountID) (*billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.entries[accountID]
	if len(list) == 0 {
		return nil, nil
	}
	e := list[len(list)-1]
	return &e, nil
}

func (m *Memory) GetEntry(_ context.Context, id billing.EntryID) (*billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ref, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	copied := m.entries[ref.accountID][ref.index]
	return &copied, nil
}

func (m *Memory) Entries(_ context.Context, accountID billing.AccountID) ([]billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]billing.LedgerEntry, len(m.entries[accountID]))
	copy(result, m.entries[accountID])
	return result, nil
}

func (m *Memory) EntriesInRange(_ context.Context, accountID billing.AccountID, from, to billing.Date) ([]billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.LedgerEntry
	for _, e := range m.entries[accountID] {
		if from.BeforeOrEqual(e.Date) && e.Date.BeforeOrEqual(to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) MarkReversed(_ context.Context, id billing.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.byID[id]
	if !ok {
		return billing.ErrEntryNotFound
	}
	m.entries[ref.accountID][ref.index].Reversed = true
	return nil
}

func (m *Memory) HasInterestOn(_ context.Context, accountID billing.AccountID, day billing.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries[accountID] {
		if e.Category == billing.CategoryInterest && e.ReversalOf == "" && e.Date.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) OldestOpenMaintenanceEntry(_ context.Context, accountID billing.AccountID) (*billing.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries[accountID] {
		if e.Category != billing.CategoryMaintenance || e.Direction != billing.Debit || e.Reversed {
			continue
		}
		if e.BillID != "" {
			if bill, ok := m.bills[e.BillID]; ok && bill.Status == billing.StatusPaid {
				continue
			}
		}
		copied := e
		return &copied, nil
	}
	return nil, nil
}

// =============================================================================
// BILL STORE
// =============================================================================

func (m *Memory) SaveBill(_ context.Context, bill billing.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bills[bill.ID] = bill
	return nil
}

func (m *Memory) GetBill(_ context.Context, id billing.BillID) (*billing.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bill, ok := m.bills[id]
	if !ok {
		return nil, nil
	}
	return &bill, nil
}

func (m *Memory) BillForPeriod(_ context.Context, accountID billing.AccountID, period billing.Period) (*billing.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, bill := range m.bills {
		if bill.AccountID == accountID && bill.Period == period {
			b := bill
			return &b, nil
		}
	}
	return nil, nil
}

func (m *Memory) BillsByTenant(_ context.Context, tenantID billing.TenantID, period billing.Period) ([]billing.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Bill
	for _, bill := range m.bills {
		if bill.TenantID != tenantID {
			continue
		}
		if !period.IsZero() && bill.Period != period {
			continue
		}
		result = append(result, bill)
	}
	sortBills(result)
	return result, nil
}

func (m *Memory) BillsByAccount(_ context.Context, accountID billing.AccountID) ([]billing.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Bill
	for _, bill := range m.bills {
		if bill.AccountID == accountID {
			result = append(result, bill)
		}
	}
	sortBills(result)
	return result, nil
}

func sortBills(bills []billing.Bill) {
	sort.Slice(bills, func(i, j int) bool {
		if bills[i].Period != bills[j].Period {
			return bills[i].Period.Key() > bills[j].Period.Key()
		}
		return bills[i].AccountID < bills[j].AccountID
	})
}

// =============================================================================
// ACCOUNT / TENANT / RULE STORES
// =============================================================================

func (m *Memory) SaveAccount(_ context.Context, account billing.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id billing.AccountID) (*billing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (m *Memory) ListAccounts(_ context.Context, tenantID billing.TenantID) ([]billing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Account
	for _, account := range m.accounts {
		if account.TenantID == tenantID {
			result = append(result, account)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Unit < result[j].Unit })
	return result, nil
}

func (m *Memory) SaveTenant(_ context.Context, tenant billing.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[tenant.ID] = tenant
	return nil
}

func (m *Memory) GetTenant(_ context.Context, id billing.TenantID) (*billing.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenant, ok := m.tenants[id]
	if !ok {
		return nil, nil
	}
	return &tenant, nil
}

func (m *Memory) ListTenants(_ context.Context) ([]billing.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Tenant
	for _, tenant := range m.tenants {
		result = append(result, tenant)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) SaveRule(_ context.Context, rule billing.ChargeRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
	return nil
}

func (m *Memory) GetRule(_ context.Context, id billing.RuleID) (*billing.ChargeRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rule, ok := m.rules[id]
	if !ok {
		return nil, nil
	}
	return &rule, nil
}

func (m *Memory) RulesByTenant(_ context.Context, tenantID billing.TenantID) ([]billing.ChargeRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.ChargeRule
	for _, rule := range m.rules {
		if rule.TenantID == tenantID {
			result = append(result, rule)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// =============================================================================
// RUN STORE
// =============================================================================

func (m *Memory) SaveRun(_ context.Context, run billing.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) RunsByTenant(_ context.Context, tenantID billing.TenantID, kind billing.RunKind) ([]billing.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Run
	for _, run := range m.runs {
		if run.TenantID != tenantID {
			continue
		}
		if kind != "" && run.Kind != kind {
			continue
		}
		result = append(result, run)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.After(result[j].StartedAt) })
	return result, nil
}
