/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Defines the JSON shapes exchanged with clients, separate from domain
  types. Money travels as decimal strings ("2500.00"), never floats;
  dates as YYYY-MM-DD; periods as YYYY-MM.

SEE ALSO:
  - handlers.go: Handlers that produce/consume these
*/
package api

import (
	"fmt"
	"time"

	"github.com/strata/billing-engine/billing"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateTenantRequest struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Config ConfigDTO `json:"config"`
}

type UpdateConfigRequest struct {
	Config ConfigDTO `json:"config"`
}

type CreateAccountRequest struct {
	ID             string `json:"id"`
	Unit           string `json:"unit"`
	Area           string `json:"area"`
	OpeningBalance string `json:"opening_balance"`
	OwnerName      string `json:"owner_name"`
}

type SaveRuleRequest struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Rate   string `json:"rate"`
	Order  int    `json:"order"`
	Active *bool  `json:"active,omitempty"`
}

type GenerateBillsRequest struct {
	Period     string   `json:"period"`
	AccountIDs []string `json:"account_ids,omitempty"`
}

type PaymentRequest struct {
	Amount    string `json:"amount"`
	Date      string `json:"date,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type AdjustmentRequest struct {
	Direction   string `json:"direction"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
}

type ReverseRequest struct {
	Reason string `json:"reason"`
}

type RunJobRequest struct {
	// AsOf overrides "today" for the job, mainly for testing and
	// backfill. YYYY-MM-DD.
	AsOf string `json:"as_of,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type TenantDTO struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Config ConfigDTO `json:"config"`
}

type ConfigDTO struct {
	MaintenanceRate      string `json:"maintenance_rate"`
	SinkingFundRate      string `json:"sinking_fund_rate"`
	RepairFundRate       string `json:"repair_fund_rate"`
	WaterCharge          string `json:"water_charge"`
	SecurityCharge       string `json:"security_charge"`
	ElectricityCharge    string `json:"electricity_charge"`
	InterestRate         string `json:"interest_rate"`
	InterestMethod       string `json:"interest_method"`
	CompoundingFrequency string `json:"compounding_frequency,omitempty"`
	GraceDays            int    `json:"grace_days"`
	BillDueDay           int    `json:"bill_due_day"`
	ServiceTaxRate       string `json:"service_tax_rate"`
}

type AccountDTO struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	Unit           string `json:"unit"`
	Area           string `json:"area"`
	OpeningBalance string `json:"opening_balance"`
	OwnerName      string `json:"owner_name,omitempty"`
}

type BalanceDTO struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
}

type RuleDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Rate   string `json:"rate"`
	Active bool   `json:"active"`
	Order  int    `json:"order"`
}

type EntryDTO struct {
	ID           string `json:"id"`
	AccountID    string `json:"account_id"`
	Date         string `json:"date"`
	Direction    string `json:"direction"`
	Category     string `json:"category"`
	Amount       string `json:"amount"`
	BalanceAfter string `json:"balance_after"`
	BillID       string `json:"bill_id,omitempty"`
	Reversed     bool   `json:"reversed"`
	ReversalOf   string `json:"reversal_of,omitempty"`
	Description  string `json:"description,omitempty"`
	CreatedBy    string `json:"created_by,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type ChargeLineDTO struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type BillDTO struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	Period          string          `json:"period"`
	Charges         []ChargeLineDTO `json:"charges"`
	PreviousBalance string          `json:"previous_balance"`
	Interest        string          `json:"interest"`
	Subtotal        string          `json:"subtotal"`
	Tax             string          `json:"tax"`
	Total           string          `json:"total"`
	AmountPaid      string          `json:"amount_paid"`
	BalanceDue      string          `json:"balance_due"`
	DueDate         string          `json:"due_date"`
	Status          string          `json:"status"`
	GeneratedAt     string          `json:"generated_at"`
}

type PreviewDTO struct {
	AccountID       string          `json:"account_id"`
	Unit            string          `json:"unit"`
	Charges         []ChargeLineDTO `json:"charges"`
	PreviousBalance string          `json:"previous_balance"`
	Interest        string          `json:"interest"`
	Subtotal        string          `json:"subtotal"`
	Tax             string          `json:"tax"`
	Total           string          `json:"total"`
	DueDate         string          `json:"due_date"`
}

type StatementDTO struct {
	AccountID      string     `json:"account_id"`
	From           string     `json:"from"`
	To             string     `json:"to"`
	OpeningBalance string     `json:"opening_balance"`
	ClosingBalance string     `json:"closing_balance"`
	Entries        []EntryDTO `json:"entries"`
}

type RunReportDTO struct {
	TenantID string            `json:"tenant_id"`
	Day      string            `json:"day"`
	Charged  int               `json:"charged"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	Failures map[string]string `json:"failures,omitempty"`
	Total    string            `json:"total"`
}

type RunDTO struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Period      string `json:"period,omitempty"`
	Day         string `json:"day,omitempty"`
	Status      string `json:"status"`
	Succeeded   int    `json:"succeeded"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func tenantDTO(t billing.Tenant) TenantDTO {
	return TenantDTO{
		ID:     string(t.ID),
		Name:   t.Name,
		Config: configDTO(t.Config),
	}
}

func configDTO(c billing.Config) ConfigDTO {
	return ConfigDTO{
		MaintenanceRate:      c.MaintenanceRate.String(),
		SinkingFundRate:      c.SinkingFundRate.String(),
		RepairFundRate:       c.RepairFundRate.String(),
		WaterCharge:          c.WaterCharge.String(),
		SecurityCharge:       c.SecurityCharge.String(),
		ElectricityCharge:    c.ElectricityCharge.String(),
		InterestRate:         c.InterestRate.String(),
		InterestMethod:       string(c.InterestMethod),
		CompoundingFrequency: string(c.CompoundingFrequency),
		GraceDays:            c.GraceDays,
		BillDueDay:           c.BillDueDay,
		ServiceTaxRate:       c.ServiceTaxRate.String(),
	}
}

func accountDTO(a billing.Account) AccountDTO {
	return AccountDTO{
		ID:             string(a.ID),
		TenantID:       string(a.TenantID),
		Unit:           a.Unit,
		Area:           a.Area.String(),
		OpeningBalance: a.OpeningBalance.String(),
		OwnerName:      a.OwnerName,
	}
}

func ruleDTO(r billing.ChargeRule) RuleDTO {
	return RuleDTO{
		ID:     string(r.ID),
		Name:   r.Name,
		Type:   string(r.Type),
		Rate:   r.Rate.String(),
		Active: r.Active,
		Order:  r.Order,
	}
}

func entryDTO(e billing.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:           string(e.ID),
		AccountID:    string(e.AccountID),
		Date:         e.Date.String(),
		Direction:    string(e.Direction),
		Category:     string(e.Category),
		Amount:       e.Amount.String(),
		BalanceAfter: e.BalanceAfter.String(),
		BillID:       string(e.BillID),
		Reversed:     e.Reversed,
		ReversalOf:   string(e.ReversalOf),
		Description:  e.Description,
		CreatedBy:    e.CreatedBy,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

func entryDTOs(entries []billing.LedgerEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = entryDTO(e)
	}
	return dtos
}

func chargeLineDTOs(charges []billing.ChargeLine) []ChargeLineDTO {
	dtos := make([]ChargeLineDTO, len(charges))
	for i, c := range charges {
		dtos[i] = ChargeLineDTO{Name: c.Name, Amount: c.Amount.String()}
	}
	return dtos
}

func billDTO(b billing.Bill) BillDTO {
	return BillDTO{
		ID:              string(b.ID),
		AccountID:       string(b.AccountID),
		Period:          b.Period.Key(),
		Charges:         chargeLineDTOs(b.Charges),
		PreviousBalance: b.PreviousBalance.String(),
		Interest:        b.Interest.String(),
		Subtotal:        b.Subtotal.String(),
		Tax:             b.Tax.String(),
		Total:           b.Total.String(),
		AmountPaid:      b.AmountPaid.String(),
		BalanceDue:      b.BalanceAmount().String(),
		DueDate:         b.DueDate.String(),
		Status:          string(b.Status),
		GeneratedAt:     b.GeneratedAt.Format(time.RFC3339),
	}
}

func billDTOs(bills []billing.Bill) []BillDTO {
	dtos := make([]BillDTO, len(bills))
	for i, b := range bills {
		dtos[i] = billDTO(b)
	}
	return dtos
}

func previewDTO(p billing.BillPreview) PreviewDTO {
	return PreviewDTO{
		AccountID:       string(p.AccountID),
		Unit:            p.Unit,
		Charges:         chargeLineDTOs(p.Charges),
		PreviousBalance: p.PreviousBalance.String(),
		Interest:        p.Interest.String(),
		Subtotal:        p.Subtotal.String(),
		Tax:             p.Tax.String(),
		Total:           p.Total.String(),
		DueDate:         p.DueDate.String(),
	}
}

func runReportDTO(r *billing.RunReport) RunReportDTO {
	dto := RunReportDTO{
		TenantID: string(r.TenantID),
		Day:      r.Day.String(),
		Charged:  r.Charged,
		Skipped:  r.Skipped,
		Failed:   r.Failed,
		Total:    r.Total.String(),
	}
	if len(r.Failures) > 0 {
		dto.Failures = make(map[string]string, len(r.Failures))
		for id, msg := range r.Failures {
			dto.Failures[string(id)] = msg
		}
	}
	return dto
}

func parseConfigDTO(dto ConfigDTO) (billing.Config, error) {
	var cfg billing.Config
	fields := []struct {
		name  string
		value string
		dst   *billing.Money
	}{
		{"maintenance_rate", dto.MaintenanceRate, &cfg.MaintenanceRate},
		{"sinking_fund_rate", dto.SinkingFundRate, &cfg.SinkingFundRate},
		{"repair_fund_rate", dto.RepairFundRate, &cfg.RepairFundRate},
		{"water_charge", dto.WaterCharge, &cfg.WaterCharge},
		{"security_charge", dto.SecurityCharge, &cfg.SecurityCharge},
		{"electricity_charge", dto.ElectricityCharge, &cfg.ElectricityCharge},
		{"interest_rate", dto.InterestRate, &cfg.InterestRate},
		{"service_tax_rate", dto.ServiceTaxRate, &cfg.ServiceTaxRate},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		m, err := billing.ParseMoney(f.value)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = m
	}
	cfg.InterestMethod = billing.InterestMethod(dto.InterestMethod)
	cfg.CompoundingFrequency = billing.CompoundingFrequency(dto.CompoundingFrequency)
	cfg.GraceDays = dto.GraceDays
	cfg.BillDueDay = dto.BillDueDay
	return cfg, nil
}

func runDTO(r billing.Run) RunDTO {
	dto := RunDTO{
		ID:        r.ID,
		Kind:      string(r.Kind),
		Status:    r.Status,
		Succeeded: r.Succeeded,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
		Error:     r.Error,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
	if !r.Period.IsZero() {
		dto.Period = r.Period.Key()
	}
	if !r.Day.IsZero() {
		dto.Day = r.Day.String()
	}
	if !r.CompletedAt.IsZero() {
		dto.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return dto
}
