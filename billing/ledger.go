/*
ledger.go - Append-only account ledger with a running balance

PURPOSE:
  The Ledger is the single source of truth for "what does this account
  owe now". Every bill debit, payment, interest charge, adjustment, and
  reversal is recorded here as an immutable entry carrying the signed
  running balance after it (balance_after).

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never updated or deleted. The reversal
     flag on the original entry is the single in-place mutation.
  2. CHAIN: for an account ordered by (date, seq),
       balance_after[i] = balance_after[i-1] + signed(amount)
     seeded by the account's opening balance.
  3. NO BACKDATING: once a later entry exists, an earlier-dated append
     is rejected rather than recomputing every subsequent balance.
     Corrections are a reversal plus a new forward entry.
  4. SERIALIZED PER ACCOUNT: read-then-append is protected by a
     per-account mutex plus a compare-and-swap on the latest entry id.
     Different accounts append in parallel.

CORRECTIONS:
  If a mistake is made, you don't edit the entry. Reverse() appends an
  opposite-signed entry linked to the original and marks the original
  reversed. Net effect is correction; history is preserved.

EXAMPLE FLOW:
  1. April bill generated:      Debit  maintenance 2500  (balance 2500)
  2. Member pays:               Credit payment     2500  (balance 0)
  3. Payment bounced:           Reverse -> Debit   2500  (balance 2500)

SEE ALSO:
  - store.go: Persistence contract and the CAS guard
  - interest.go: Appends interest entries through this ledger
*/
package billing

import (
	"context"
	"errors"
	"sync"
	"time"
)

// casAttempts bounds internal retries on ErrConcurrentModification
// before the conflict surfaces to the caller.
const casAttempts = 3

// =============================================================================
// LEDGER
// =============================================================================

// Ledger appends entries and answers balance queries for accounts.
type Ledger struct {
	store Store

	mu    sync.Mutex
	locks map[AccountID]*sync.Mutex
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, locks: make(map[AccountID]*sync.Mutex)}
}

// accountLock returns the mutex serializing writes for one account.
// The map only grows; one mutex per account ever touched is cheap
// relative to ledger rows.
func (l *Ledger) accountLock(id AccountID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[id] = lk
	}
	return lk
}

// AppendInput describes a new ledger entry. ID, Seq and BalanceAfter
// are assigned by the ledger.
type AppendInput struct {
	TenantID    TenantID
	AccountID   AccountID
	Date        Date
	Direction   Direction
	Category    Category
	Amount      Money
	BillID      BillID
	ReversalOf  EntryID
	Description string
	Actor       Actor
}

// Append validates the input, chains the running balance from the
// account's latest entry (or its opening balance), and persists the
// entry. Concurrent appends to the same account are serialized; a CAS
// conflict with an out-of-process writer is retried a bounded number of
// times before ErrConcurrentModification surfaces.
func (l *Ledger) Append(ctx context.Context, in AppendInput) (*LedgerEntry, error) {
	lk := l.accountLock(in.AccountID)
	lk.Lock()
	defer lk.Unlock()

	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		entry, err := appendOn(ctx, l.store, in)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// appendOn performs one read-then-append against the given store. Used
// directly by the generator and payment paths inside store transactions,
// where the transaction itself provides isolation.
func appendOn(ctx context.Context, s Store, in AppendInput) (*LedgerEntry, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if in.Date.IsZero() {
		return nil, &ValidationError{Field: "date", Message: "is required"}
	}

	account, err := s.GetAccount(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	latest, err := s.LatestEntry(ctx, in.AccountID)
	if err != nil {
		return nil, err
	}

	prevBalance := account.OpeningBalance
	var prevID EntryID
	var seq int64
	if latest != nil {
		if in.Date.Before(latest.Date) {
			return nil, ErrBackdatedEntry
		}
		prevBalance = latest.BalanceAfter
		prevID = latest.ID
		seq = latest.Seq + 1
	}

	entry := LedgerEntry{
		ID:           NewEntryID(),
		TenantID:     in.TenantID,
		AccountID:    in.AccountID,
		Date:         in.Date,
		Direction:    in.Direction,
		Category:     in.Category,
		Amount:       in.Amount,
		BalanceAfter: prevBalance.Add(in.Direction.Signed(in.Amount)),
		Seq:          seq,
		BillID:       in.BillID,
		ReversalOf:   in.ReversalOf,
		Description:  in.Description,
		CreatedBy:    in.Actor.ID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.AppendEntry(ctx, entry, prevID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CurrentBalance returns the account's latest running balance, or its
// opening balance if the ledger is empty.
func (l *Ledger) CurrentBalance(ctx context.Context, accountID AccountID) (Money, error) {
	return currentBalanceOn(ctx, l.store, accountID)
}

func currentBalanceOn(ctx context.Context, s Store, accountID AccountID) (Money, error) {
	latest, err := s.LatestEntry(ctx, accountID)
	if err != nil {
		return Zero, err
	}
	if latest != nil {
		return latest.BalanceAfter, nil
	}
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return Zero, err
	}
	if account == nil {
		return Zero, ErrAccountNotFound
	}
	return account.OpeningBalance, nil
}

// Reverse appends an opposite-signed entry linked to the original and
// marks the original reversed, atomically. Fails with ErrAlreadyReversed
// on a second attempt.
func (l *Ledger) Reverse(ctx context.Context, entryID EntryID, actor Actor, reason string) (*LedgerEntry, error) {
	tx, ok := l.store.(TxStore)
	if !ok {
		return nil, errors.New("reverse requires a transactional store")
	}

	original, err := l.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, ErrEntryNotFound
	}
	if original.Reversed {
		return nil, ErrAlreadyReversed
	}

	lk := l.accountLock(original.AccountID)
	lk.Lock()
	defer lk.Unlock()

	var reversal *LedgerEntry
	err = tx.WithTx(ctx, func(s Store) error {
		// Re-read under the transaction so a racing reversal loses.
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

		latest, err := s.LatestEntry(ctx, fresh.AccountID)
		if err != nil {
			return err
		}
		date := Today()
		if latest != nil && date.Before(latest.Date) {
			date = latest.Date
		}

		entry, err := appendOn(ctx, s, AppendInput{
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
		reversal = entry
		return s.MarkReversed(ctx, fresh.ID)
	})
	if err != nil {
		return nil, err
	}
	return reversal, nil
}

// Entries returns the account's full ledger, ordered by (date, seq).
func (l *Ledger) Entries(ctx context.Context, accountID AccountID) ([]LedgerEntry, error) {
	return l.store.Entries(ctx, accountID)
}

// EntriesInRange returns entries dated within [from, to].
func (l *Ledger) EntriesInRange(ctx context.Context, accountID AccountID, from, to Date) ([]LedgerEntry, error) {
	return l.store.EntriesInRange(ctx, accountID, from, to)
}

// =============================================================================
// STATEMENT - Read query for downstream reporting
// =============================================================================

// Statement is an account's ledger slice with boundary balances.
type Statement struct {
	AccountID      AccountID
	From, To       Date
	OpeningBalance Money
	ClosingBalance Money
	Entries        []LedgerEntry
}

// Statement builds the account statement for [from, to]. The opening
// balance is the balance just before 'from'.
func (l *Ledger) Statement(ctx context.Context, accountID AccountID, from, to Date) (*Statement, error) {
	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	entries, err := l.store.EntriesInRange(ctx, accountID, from, to)
	if err != nil {
		return nil, err
	}

	opening := account.OpeningBalance
	if before, err := l.store.EntriesInRange(ctx, accountID, NewDate(1970, time.January, 1), from.AddDays(-1)); err != nil {
		return nil, err
	} else if len(before) > 0 {
		opening = before[len(before)-1].BalanceAfter
	}

	closing := opening
	if len(entries) > 0 {
		closing = entries[len(entries)-1].BalanceAfter
	}

	return &Statement{
		AccountID:      accountID,
		From:           from,
		To:             to,
		OpeningBalance: opening,
		ClosingBalance: closing,
		Entries:        entries,
	}, nil
}

// =============================================================================
// RECONSTRUCTION - Audit check
// =============================================================================

// ReplayBalance recomputes the closing balance by replaying every entry
// from the opening balance. Storage and replay must agree; a mismatch
// means the chain invariant was violated.
func ReplayBalance(account Account, entries []LedgerEntry) Money {
	balance := account.OpeningBalance
	for _, e := range entries {
		balance = balance.Add(e.SignedAmount())
	}
	return balance
}
