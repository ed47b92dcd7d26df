/*
scheduler.go - Background housekeeping scheduler

PURPOSE:
  Periodically drops repeat purchases that were never confirmed and checks
  the running totals against the sales ledger.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Pending sales older than PendingTTL are discarded (the session that
    held them has expired)
  - Ledger.Verify results are logged and exported as a gauge; drift is
    reported, never repaired automatically

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - PendingTTL:    Age at which a pending sale is dropped (default: session TTL)
  - Enabled:       Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewScheduler(handler, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ReportVerify endpoint (manual check)
  - sales/pending.go: PendingBook.Sweep
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/ticket-booth/sales"
)

// Scheduler handles periodic housekeeping.
type Scheduler struct {
	Ledger        *sales.Ledger
	Pending       *sales.PendingBook
	Metrics       *Metrics
	CheckInterval time.Duration
	PendingTTL    time.Duration
	Enabled       bool

	log    *zap.Logger
	now    func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a scheduler over the handler's ledger and pending book.
func NewScheduler(h *Handler, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		Ledger:        h.ledger,
		Pending:       h.pending,
		Metrics:       h.metrics,
		CheckInterval: time.Minute,
		PendingTTL:    h.tokens.TTL(),
		Enabled:       true,
		log:           log.Named("scheduler"),
		now:           time.Now,
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker.C, s.stop)

	s.log.Info("started", zap.Duration("interval", s.CheckInterval), zap.Duration("pending_ttl", s.PendingTTL))
}

// Stop stops the scheduler and waits for a running check to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.log.Info("stopped")
	}
}

func (s *Scheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunOnce(context.Background())

	for {
		select {
		case <-tick:
			s.RunOnce(context.Background())
		case <-stop:
			return
		}
	}
}

// RunOnce performs one sweep and one consistency check.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.sweepPending()
	s.verifyTotals(ctx)
}

func (s *Scheduler) sweepPending() {
	if s.Pending == nil || s.PendingTTL <= 0 {
		return
	}
	expired := s.Pending.Sweep(s.now().Add(-s.PendingTTL))
	if len(expired) == 0 {
		return
	}
	if s.Metrics != nil {
		s.Metrics.pendingExpired.Add(float64(len(expired)))
	}
	for _, p := range expired {
		s.log.Info("pending sale expired",
			zap.String("pending_id", p.ID),
			zap.String("employee_id", string(p.EmployeeID)),
			zap.Int("quantity", p.Quantity),
			zap.String("recorded_by", p.RecordedBy),
		)
	}
}

func (s *Scheduler) verifyTotals(ctx context.Context) {
	if s.Ledger == nil {
		return
	}
	drift, err := s.Ledger.Verify(ctx)
	if err != nil {
		s.log.Error("verify failed", zap.Error(err))
		return
	}
	if s.Metrics != nil {
		s.Metrics.drift.Set(float64(len(drift)))
	}
	for _, d := range drift {
		s.log.Warn("running total disagrees with ledger",
			zap.String("employee_id", string(d.EmployeeID)),
			zap.Int("stored", d.Stored),
			zap.Int("from_events", d.FromEvents),
		)
	}
}
