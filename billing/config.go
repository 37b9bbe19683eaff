/*
config.go - Tenant billing parameters

PURPOSE:
  Defines the per-tenant configuration that drives every calculation:
  per-area rates, fixed charges, interest rate and method, grace period,
  and the due day-of-month. Config is a read-only input to the Bill
  Generator and the Interest Accrual Engine; it is only mutated through
  administrative configuration actions.

STANDARD CHARGES:
  The per-area rates (maintenance, sinking fund, repair fund) and the
  fixed charges (water, security, electricity) are evaluated first on
  every bill, in a stable order, before the tenant's custom charge rules.
  A zero rate simply contributes no line.

INTEREST:
  SIMPLE:   interest = balance * (rate/100) * (daysOverdue/30)
  COMPOUND: n = 30 if daily compounding else 1
            t = daysOverdue/30
            interest = balance * ((1 + rate/100/n)^(n*t) - 1)
  Results are rounded half-up to 2 decimal places.

SEE ALSO:
  - generator.go: Consumes rates and tax
  - interest.go: Consumes interest method, grace days, due day
*/
package billing

import "github.com/shopspring/decimal"

// =============================================================================
// TENANT - One independently billed organization (a society/property)
// =============================================================================

type Tenant struct {
	ID     TenantID
	Name   string
	Config Config
}

// InterestMethod selects the accrual formula.
type InterestMethod string

const (
	InterestSimple   InterestMethod = "simple"
	InterestCompound InterestMethod = "compound"
)

// CompoundingFrequency applies only to compound interest.
type CompoundingFrequency string

const (
	CompoundMonthly CompoundingFrequency = "monthly"
	CompoundDaily   CompoundingFrequency = "daily"
)

// Config holds a tenant's billing parameters.
type Config struct {
	// Per-area rates (amount per billing area unit per period)
	MaintenanceRate Money
	SinkingFundRate Money
	RepairFundRate  Money

	// Fixed periodic charges
	WaterCharge       Money
	SecurityCharge    Money
	ElectricityCharge Money

	// Interest on overdue balances
	InterestRate         Money // percent, 0..100
	InterestMethod       InterestMethod
	CompoundingFrequency CompoundingFrequency

	// GraceDays is the number of days after the due date before interest
	// may begin accruing.
	GraceDays int

	// BillDueDay is the due day-of-month for generated bills (1..28).
	BillDueDay int

	// ServiceTaxRate is applied to the bill subtotal (percent).
	ServiceTaxRate Money
}

// Validate rejects out-of-range parameters before they are stored.
func (c Config) Validate() error {
	rates := map[string]Money{
		"maintenance_rate":   c.MaintenanceRate,
		"sinking_fund_rate":  c.SinkingFundRate,
		"repair_fund_rate":   c.RepairFundRate,
		"water_charge":       c.WaterCharge,
		"security_charge":    c.SecurityCharge,
		"electricity_charge": c.ElectricityCharge,
		"interest_rate":      c.InterestRate,
		"service_tax_rate":   c.ServiceTaxRate,
	}
	for field, rate := range rates {
		if rate.IsNegative() {
			return &ValidationError{Field: field, Message: "must not be negative"}
		}
	}
	if c.InterestRate.GreaterThan(decimal.NewFromInt(100)) {
		return &ValidationError{Field: "interest_rate", Message: "must not exceed 100"}
	}
	if c.GraceDays < 0 {
		return &ValidationError{Field: "grace_days", Message: "must not be negative"}
	}
	if c.BillDueDay < 1 || c.BillDueDay > 28 {
		return &ValidationError{Field: "bill_due_day", Message: "must be between 1 and 28"}
	}
	switch c.InterestMethod {
	case InterestSimple, InterestCompound, "":
	default:
		return &ValidationError{Field: "interest_method", Message: "must be simple or compound"}
	}
	switch c.CompoundingFrequency {
	case CompoundMonthly, CompoundDaily, "":
	default:
		return &ValidationError{Field: "compounding_frequency", Message: "must be monthly or daily"}
	}
	return nil
}

// CompleteForBilling reports whether bills can be generated.
func (c Config) CompleteForBilling() bool {
	return c.BillDueDay >= 1
}

// CompleteForInterest reports whether interest can be accrued. A zero
// interest rate is complete; it simply accrues nothing.
func (c Config) CompleteForInterest() bool {
	if c.BillDueDay < 1 {
		return false
	}
	if c.InterestRate.IsPositive() && c.InterestMethod == "" {
		return false
	}
	if c.InterestMethod == InterestCompound && c.CompoundingFrequency == "" {
		return false
	}
	return true
}
