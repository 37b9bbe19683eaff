package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/strata/billing-engine/billing"
	memstore "github.com/strata/billing-engine/billing/store"
)

func TestScheduler_RunNow_RecordsRuns(t *testing.T) {
	// Each tick records one interest run and one sweep run per tenant,
	// even when there is nothing to charge.

	st := memstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.SaveTenant(ctx, billing.Tenant{
		ID:   "soc-1",
		Name: "Sunrise Heights",
		Config: billing.Config{
			MaintenanceRate: billing.MustMoney("2"),
			InterestRate:    billing.MustMoney("12"),
			InterestMethod:  billing.InterestSimple,
			GraceDays:       15,
			BillDueDay:      10,
		},
	}))

	h := NewHandler(st, zap.NewNop())
	sched := NewScheduler(st, h, time.Hour, zap.NewNop())
	sched.RunNow()

	interest, err := st.RunsByTenant(ctx, "soc-1", billing.RunInterestAccrual)
	require.NoError(t, err)
	assert.Len(t, interest, 1)

	sweeps, err := st.RunsByTenant(ctx, "soc-1", billing.RunOverdueSweep)
	require.NoError(t, err)
	assert.Len(t, sweeps, 1)
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	st := memstore.NewMemory()
	h := NewHandler(st, zap.NewNop())
	sched := NewScheduler(st, h, time.Hour, zap.NewNop())

	sched.Start()
	sched.Start() // second start is a no-op
	sched.Stop()
	sched.Stop() // second stop is a no-op
}
