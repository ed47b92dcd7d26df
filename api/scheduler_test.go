package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ticket-booth/sales"
)

func scrape(t *testing.T, f *apiFixture) string {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestScheduler_SweepsExpiredPending(t *testing.T) {
	// GIVEN: one stale and one fresh pending sale
	f := newAPIFixture(t)
	now := time.Now()
	f.h.Pending().Hold("s1", sales.PendingSale{ID: "old", EmployeeID: "E1", Quantity: 1, CreatedAt: now.Add(-2 * time.Hour)})
	f.h.Pending().Hold("s1", sales.PendingSale{ID: "new", EmployeeID: "E1", Quantity: 1, CreatedAt: now})

	// WHEN: the scheduler runs once
	s := NewScheduler(f.h, nil)
	s.now = func() time.Time { return now }
	s.RunOnce(context.Background())

	// THEN: only the stale one is dropped
	assert.Equal(t, 1, f.h.Pending().Len())
	_, err := f.h.Pending().Get("s1", "new")
	assert.NoError(t, err)
	assert.Contains(t, scrape(t, f), "ticketbooth_pending_expired_total 1")
}

func TestScheduler_ReportsDrift(t *testing.T) {
	f := newAPIFixture(t)
	f.submit(t, f.seller, "E1", 2, http.StatusCreated)

	s := NewScheduler(f.h, nil)
	s.RunOnce(context.Background())
	assert.Contains(t, scrape(t, f), "ticketbooth_ledger_drift_employees 0")

	require.NoError(t, f.store.PutTotal(context.Background(), sales.RunningTotal{EmployeeID: "E2", Total: 3}))
	s.RunOnce(context.Background())
	assert.Contains(t, scrape(t, f), "ticketbooth_ledger_drift_employees 1")
}

func TestScheduler_StartStop(t *testing.T) {
	f := newAPIFixture(t)
	s := NewScheduler(f.h, nil)
	s.CheckInterval = 10 * time.Millisecond

	s.Start()
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	s.Stop()

	// Restart after stop.
	s.Start()
	s.Stop()
}

func TestScheduler_Disabled(t *testing.T) {
	f := newAPIFixture(t)
	s := NewScheduler(f.h, nil)
	s.Enabled = false
	s.Start()
	s.Stop()
}
