package billing

// =============================================================================
// BILLABLE ACCOUNT - One payable unit within a tenant (a member/flat)
// =============================================================================

// Account is one payable unit. The engine never mutates an account; the
// opening balance and area change only through administrative correction.
type Account struct {
	ID       AccountID
	TenantID TenantID

	// Unit is a human label for the payable unit, e.g. "A-301".
	Unit string

	// Area is the billing unit size (e.g. square footage) used by
	// per-area charge rules.
	Area Money

	// OpeningBalance seeds the ledger's running balance. Signed:
	// positive means the member owed money at migration.
	OpeningBalance Money

	// OwnerName is carried for statements; not used in calculations.
	OwnerName string
}

// Validate rejects malformed accounts before they are stored.
func (a Account) Validate() error {
	if a.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Message: "is required"}
	}
	if a.Unit == "" {
		return &ValidationError{Field: "unit", Message: "is required"}
	}
	if a.Area.IsNegative() {
		return &ValidationError{Field: "area", Message: "must not be negative"}
	}
	return nil
}
