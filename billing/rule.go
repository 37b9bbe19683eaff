/*
rule.go - Charge rules and their evaluation

PURPOSE:
  A ChargeRule is a named, ordered computation contributing to a bill's
  subtotal. Rules are configured per tenant and are read-only to the
  Bill Generator.

CALCULATION TYPES:
  Fixed:      a flat amount per period
  PerAreaUnit: rate multiplied by the account's billing area
  Percentage: percent of the RUNNING subtotal at the rule's position

ORDER MATTERS:
  Percentage rules apply to the subtotal accumulated so far, not the
  final subtotal. A 10% rule placed after a Fixed 100 rule yields 10;
  placed before it, it yields 0. The configured display order is
  therefore part of the tenant's pricing, preserved exactly.

MODELING:
  The calculation type is a tagged variant dispatched by a pure
  function (Evaluate). New calculation types are additions here, not
  edits scattered across the generator.
*/
package billing

import "context"

// =============================================================================
// CHARGE RULE - Named, ordered contribution to the bill subtotal
// =============================================================================

// CalcType tags the rule's calculation variant.
type CalcType string

const (
	CalcFixed       CalcType = "fixed"
	CalcPerAreaUnit CalcType = "per_area_unit"
	CalcPercentage  CalcType = "percentage"
)

type ChargeRule struct {
	ID       RuleID
	TenantID TenantID
	Name     string

	Type CalcType

	// Rate is the fixed amount, per-area rate, or percentage depending
	// on Type.
	Rate Money

	Active  bool
	Deleted bool

	// Order positions the rule in the evaluation sequence. Lower runs
	// first. Order affects Percentage results.
	Order int
}

// Validate rejects malformed rules before they are stored.
func (r ChargeRule) Validate() error {
	if r.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Message: "is required"}
	}
	if r.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	switch r.Type {
	case CalcFixed, CalcPerAreaUnit, CalcPercentage:
	default:
		return &ValidationError{Field: "type", Message: "must be fixed, per_area_unit or percentage"}
	}
	if r.Rate.IsNegative() {
		return &ValidationError{Field: "rate", Message: "must not be negative"}
	}
	return nil
}

// Evaluate computes the rule's charge for an account. Pure: the running
// subtotal is the accumulation of all lines evaluated before this rule.
func (r ChargeRule) Evaluate(area Money, runningSubtotal Money) Money {
	switch r.Type {
	case CalcFixed:
		return r.Rate
	case CalcPerAreaUnit:
		return r.Rate.Mul(area)
	case CalcPercentage:
		return Percent(runningSubtotal, r.Rate)
	default:
		return Zero
	}
}

// ActiveRules filters to billable rules, preserving the given order.
// Callers must pass rules already sorted by Order ascending.
func ActiveRules(rules []ChargeRule) []ChargeRule {
	var out []ChargeRule
	for _, r := range rules {
		if r.Active && !r.Deleted {
			out = append(out, r)
		}
	}
	return out
}

// CheckUniqueName enforces name uniqueness per tenant among non-deleted
// rules. 'existing' is the tenant's current rule set; 'exclude' skips the
// rule being edited.
func CheckUniqueName(existing []ChargeRule, name string, exclude RuleID) error {
	for _, r := range existing {
		if r.Deleted || r.ID == exclude {
			continue
		}
		if r.Name == name {
			return ErrDuplicateRuleName
		}
	}
	return nil
}

// =============================================================================
// RULE ADMIN - Configuration commands
// =============================================================================

// RuleAdmin is the configuration surface for charge rules. Mutations are
// rejected while a generation batch for the tenant is in flight, so the
// rule set a batch reads stays stable for its duration.
type RuleAdmin struct {
	store Store
	gen   *Generator
}

func NewRuleAdmin(store Store, gen *Generator) *RuleAdmin {
	return &RuleAdmin{store: store, gen: gen}
}

func (ra *RuleAdmin) guard(ctx context.Context, rule ChargeRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if ra.gen != nil && ra.gen.GenerationInFlight(rule.TenantID) {
		return ErrGenerationInFlight
	}
	existing, err := ra.store.RulesByTenant(ctx, rule.TenantID)
	if err != nil {
		return err
	}
	return CheckUniqueName(existing, rule.Name, rule.ID)
}

// CreateRule validates and stores a new rule.
func (ra *RuleAdmin) CreateRule(ctx context.Context, rule ChargeRule) (*ChargeRule, error) {
	if rule.ID == "" {
		rule.ID = NewRuleID()
	}
	if err := ra.guard(ctx, rule); err != nil {
		return nil, err
	}
	if err := ra.store.SaveRule(ctx, rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// UpdateRule validates and stores an edit to an existing rule.
func (ra *RuleAdmin) UpdateRule(ctx context.Context, rule ChargeRule) (*ChargeRule, error) {
	existing, err := ra.store.GetRule(ctx, rule.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrRuleNotFound
	}
	rule.TenantID = existing.TenantID
	if err := ra.guard(ctx, rule); err != nil {
		return nil, err
	}
	if err := ra.store.SaveRule(ctx, rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ArchiveRule soft-deletes a rule. Archived rules keep their name out of
// the uniqueness check and never appear on future bills.
func (ra *RuleAdmin) ArchiveRule(ctx context.Context, id RuleID) error {
	rule, err := ra.store.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if rule == nil {
		return ErrRuleNotFound
	}
	if ra.gen != nil && ra.gen.GenerationInFlight(rule.TenantID) {
		return ErrGenerationInFlight
	}
	rule.Deleted = true
	rule.Active = false
	return ra.store.SaveRule(ctx, *rule)
}
