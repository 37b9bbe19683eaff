package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata/billing-engine/billing"
)

func TestDate_ComparisonAndArithmetic(t *testing.T) {
	jan10 := date(2026, time.January, 10)
	jan25 := date(2026, time.January, 25)

	assert.True(t, jan10.Before(jan25))
	assert.True(t, jan25.After(jan10))
	assert.True(t, jan10.Equal(date(2026, time.January, 10)))
	assert.True(t, jan10.BeforeOrEqual(jan10))

	assert.Equal(t, jan25, jan10.AddDays(15))
	assert.Equal(t, date(2026, time.February, 10), jan10.AddMonths(1))
	assert.Equal(t, "2026-01-10", jan10.String())
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 15, billing.DaysBetween(date(2026, time.January, 10), date(2026, time.January, 25)))
	assert.Equal(t, 0, billing.DaysBetween(date(2026, time.January, 10), date(2026, time.January, 10)))
	assert.Equal(t, -5, billing.DaysBetween(date(2026, time.January, 10), date(2026, time.January, 5)))

	// Crosses the February boundary.
	assert.Equal(t, 30, billing.DaysBetween(date(2026, time.January, 25), date(2026, time.February, 24)))
}

func TestPeriod_KeyAndParse(t *testing.T) {
	p := billing.NewPeriod(2026, time.January)
	assert.Equal(t, "2026-01", p.Key())

	parsed, err := billing.ParsePeriod("2026-01")
	require.NoError(t, err)
	assert.Equal(t, p, parsed)

	_, err = billing.ParsePeriod("January 2026")
	assert.Error(t, err)
}

func TestPeriod_Boundaries(t *testing.T) {
	feb := billing.NewPeriod(2026, time.February)
	assert.Equal(t, date(2026, time.February, 1), feb.Start())
	assert.Equal(t, date(2026, time.February, 28), feb.End())
	assert.Equal(t, date(2026, time.February, 10), feb.DueDate(10))
	assert.True(t, feb.Contains(date(2026, time.February, 15)))
	assert.False(t, feb.Contains(date(2026, time.March, 1)))

	assert.Equal(t, billing.NewPeriod(2026, time.March), feb.Next())
	assert.Equal(t, billing.NewPeriod(2026, time.January), feb.Previous())

	// December wraps the year.
	dec := billing.NewPeriod(2025, time.December)
	assert.Equal(t, billing.NewPeriod(2026, time.January), dec.Next())
}
