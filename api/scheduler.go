/*
scheduler.go - Automated daily billing jobs

PURPOSE:
  Periodically runs the two daily batch jobs for every tenant:
  - interest accrual on overdue balances
  - overdue sweep (marks fully unpaid bills past due as Overdue)

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Both jobs are idempotent per (account, day), so waking up more
    often than daily is safe; re-runs skip already-charged accounts
  - A tenant whose config is incomplete is skipped and reported, never
    fatal for the tick
  - Every execution is recorded as a Run for audit and admin listing

USAGE:
  scheduler := NewScheduler(store, handler, time.Hour, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunInterest / RunSweep endpoints (manual trigger)
  - billing/interest.go: InterestEngine
  - billing/payment.go: SweepOverdue
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/strata/billing-engine/billing"
)

// Scheduler runs the daily interest and overdue jobs in the background.
type Scheduler struct {
	Store         billing.TxStore
	Handler       *Handler
	CheckInterval time.Duration

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a scheduler ticking at the given interval.
func NewScheduler(store billing.TxStore, handler *Handler, interval time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{
		Store:         store,
		Handler:       handler,
		CheckInterval: interval,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.log.Info("scheduler started", zap.Duration("check_interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil

	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.tick()

	for {
		select {
		case <-s.ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	today := billing.Today()

	tenants, err := s.Store.ListTenants(ctx)
	if err != nil {
		s.log.Error("scheduler: failed to list tenants", zap.Error(err))
		return
	}

	for _, tenant := range tenants {
		s.runTenant(ctx, tenant, today)
	}
}

func (s *Scheduler) runTenant(ctx context.Context, tenant billing.Tenant, today billing.Date) {
	log := s.log.With(zap.String("tenant_id", string(tenant.ID)), zap.String("day", today.String()))

	if report, err := s.Handler.Interest.Run(ctx, tenant.ID, today); err != nil {
		log.Error("scheduler: interest accrual failed", zap.Error(err))
	} else if report.Charged > 0 || report.Failed > 0 {
		log.Info("scheduler: interest accrual completed",
			zap.Int("charged", report.Charged),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
			zap.String("total", report.Total.String()),
		)
	}

	if report, err := s.Handler.Payments.SweepOverdue(ctx, tenant.ID, today); err != nil {
		log.Error("scheduler: overdue sweep failed", zap.Error(err))
	} else if report.Charged > 0 {
		log.Info("scheduler: overdue sweep completed", zap.Int("marked", report.Charged))
	}
}

// RunNow triggers an immediate tick (for testing/admin).
func (s *Scheduler) RunNow() {
	s.tick()
}
