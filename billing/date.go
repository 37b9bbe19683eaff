package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Day-granular point in time (billing is a calendar-day system)
// =============================================================================

// Date is a calendar day in UTC. Ledger ordering, grace periods, and the
// daily interest idempotence guard all operate on whole days.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

func Today() Date { return DateOf(time.Now()) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{Time: d.Time.AddDate(0, n, 0)} }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }

func (d Date) String() string { return d.normalize().Format("2006-01-02") }

// DaysBetween returns whole days from 'from' to 'to' (negative if reversed).
func DaysBetween(from, to Date) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// =============================================================================
// PERIOD - A billing month; bills are unique per (account, period)
// =============================================================================

// Period identifies a billing month. One bill exists per account per period.
type Period struct {
	Year  int
	Month time.Month
}

func NewPeriod(year int, month time.Month) Period {
	return Period{Year: year, Month: month}
}

// PeriodOf returns the billing period containing a date.
func PeriodOf(d Date) Period { return Period{Year: d.Year(), Month: d.Month()} }

// ParsePeriod parses "2006-01" into a Period.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// Key returns the canonical "2006-01" form used as the uniqueness key.
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) String() string { return p.Key() }

func (p Period) IsZero() bool { return p.Year == 0 }

// Start returns the first day of the period.
func (p Period) Start() Date { return NewDate(p.Year, p.Month, 1) }

// End returns the last day of the period.
func (p Period) End() Date { return p.Start().AddMonths(1).AddDays(-1) }

// Contains reports whether the date falls inside the period.
func (p Period) Contains(d Date) bool {
	return d.Year() == p.Year && d.Month() == p.Month
}

// DueDate returns the bill due date for this period given the tenant's
// configured due day-of-month. Due days are capped at 28 in config
// validation so every month has the day.
func (p Period) DueDate(dueDay int) Date {
	if dueDay < 1 {
		dueDay = 1
	}
	return NewDate(p.Year, p.Month, dueDay)
}

func (p Period) Next() Period {
	d := p.Start().AddMonths(1)
	return PeriodOf(d)
}

func (p Period) Previous() Period {
	d := p.Start().AddMonths(-1)
	return PeriodOf(d)
}
