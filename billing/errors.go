/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with errors.Is and the helpers at the bottom.

ERROR CATEGORIES:
  1. Validation errors - Bad input shape/range, rejected before any write
  2. Ledger errors - Balance chain and reversal violations
  3. Billing errors - Duplicate periods, invalid status transitions
  4. Concurrency errors - Lock/version conflicts, retried internally

PROPAGATION:
  Interactive commands surface a specific error kind and never partially
  apply. Batch jobs collect per-account errors into a RunReport instead
  of aborting; see interest.go.
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a ledger append or payment carries
	// a zero or negative amount.
	ErrInvalidAmount = errors.New("invalid amount: must be positive")

	// ErrBackdatedEntry is returned when an append is dated before the
	// account's latest entry. Backdated inserts would force a balance
	// recompute cascade; corrections go through Reverse plus a new entry.
	ErrBackdatedEntry = errors.New("backdated entry: a later entry already exists")

	// ErrAlreadyReversed is returned when reversing an entry twice.
	ErrAlreadyReversed = errors.New("entry already reversed")

	// ErrDuplicatePeriod is returned when a bill already exists for the
	// (account, period). Makes bill generation safely re-runnable.
	ErrDuplicatePeriod = errors.New("bill already generated for period")

	// ErrInvalidTransition is returned for disallowed bill status moves.
	ErrInvalidTransition = errors.New("invalid bill status transition")

	// ErrConcurrentModification is returned when an optimistic check on the
	// account's latest ledger entry detects a conflict. Retryable.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrConfigIncomplete is returned when a tenant is missing required
	// rate or interest fields. Batch jobs skip-and-report; interactive
	// commands hard-fail.
	ErrConfigIncomplete = errors.New("tenant config incomplete")

	// ErrTenantNotFound is returned when a referenced tenant doesn't exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrBillNotFound is returned when a referenced bill doesn't exist.
	ErrBillNotFound = errors.New("bill not found")

	// ErrEntryNotFound is returned when a referenced ledger entry doesn't exist.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrRuleNotFound is returned when a referenced charge rule doesn't exist.
	ErrRuleNotFound = errors.New("charge rule not found")

	// ErrDuplicateRuleName enforces name uniqueness per tenant among
	// non-deleted charge rules.
	ErrDuplicateRuleName = errors.New("charge rule name already in use")

	// ErrBillLocked is returned when mutating charges on a locked bill.
	// Only payments may move a locked bill.
	ErrBillLocked = errors.New("bill is locked: charges are immutable")

	// ErrGenerationInFlight is returned when charge rules are edited while
	// a bill generation batch for the tenant is running.
	ErrGenerationInFlight = errors.New("bill generation in progress for tenant")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a bad input field before any write occurs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Message)
}

// DuplicatePeriodError reports which account already has a bill.
type DuplicatePeriodError struct {
	AccountID AccountID
	Period    Period
	BillID    BillID
}

func (e *DuplicatePeriodError) Error() string {
	return fmt.Sprintf("bill %s already exists for account %s period %s",
		e.BillID, e.AccountID, e.Period)
}

func (e *DuplicatePeriodError) Unwrap() error { return ErrDuplicatePeriod }

// TransitionError reports a rejected bill status move.
type TransitionError struct {
	BillID BillID
	From   BillStatus
	To     BillStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("bill %s: cannot transition %s -> %s", e.BillID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrBackdatedEntry) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrDuplicatePeriod) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateRuleName) ||
		errors.Is(err, ErrBillLocked) ||
		errors.Is(err, ErrGenerationInFlight)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrBillNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrRuleNotFound)
}
