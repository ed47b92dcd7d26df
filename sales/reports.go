/*
reports.go - Read views over the ledger

VIEWS:
  Events         All sale events, newest first (audit log)
  Totals         All running totals, highest first (buyers)
  SellerTotals   Sum of quantity grouped by seller (leaderboard)
  Summary        Employees, buyers, sold and remaining against the cap
  Corrections    Audit history of one event
  Verify         Recompute totals from events and report drift

SellerTotals is always computed from the event stream, never maintained
incrementally, so it cannot drift.
*/
package sales

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

func (l *Ledger) Events(ctx context.Context) ([]SaleEvent, error) {
	evs, err := l.reports.ListEvents(ctx)
	return evs, persistenceError("list events", err)
}

func (l *Ledger) Totals(ctx context.Context) ([]RunningTotal, error) {
	totals, err := l.reports.ListTotals(ctx)
	return totals, persistenceError("list totals", err)
}

// TotalFor returns the employee's current running total (0 if none).
func (l *Ledger) TotalFor(ctx context.Context, id EmployeeID) (int, error) {
	t, err := l.store.GetTotal(ctx, id)
	if err != nil {
		return 0, persistenceError("get total", err)
	}
	return totalOf(t), nil
}

func (l *Ledger) SellerTotals(ctx context.Context) ([]SellerTotal, error) {
	rows, err := l.reports.SellerTotals(ctx)
	return rows, persistenceError("seller totals", err)
}

func (l *Ledger) Corrections(ctx context.Context, id EventID) ([]CorrectionRecord, error) {
	recs, err := l.reports.ListCorrections(ctx, id)
	return recs, persistenceError("list corrections", err)
}

// Summary reports sales against a global ticket cap.
func (l *Ledger) Summary(ctx context.Context, ticketCap int) (Summary, error) {
	if ticketCap <= 0 {
		ticketCap = DefaultTicketCap
	}
	employees, err := l.reports.CountEmployees(ctx)
	if err != nil {
		return Summary{}, persistenceError("count employees", err)
	}
	totals, err := l.reports.ListTotals(ctx)
	if err != nil {
		return Summary{}, persistenceError("list totals", err)
	}
	sold, err := l.reports.SumTotals(ctx)
	if err != nil {
		return Summary{}, persistenceError("sum totals", err)
	}

	buyers := 0
	for _, t := range totals {
		if t.Total > 0 {
			buyers++
		}
	}
	remaining := ticketCap - sold
	if remaining < 0 {
		remaining = 0
	}
	return Summary{
		Employees: employees,
		Buyers:    buyers,
		Sold:      sold,
		Cap:       ticketCap,
		Remaining: remaining,
		SoldRatio: decimal.NewFromInt(int64(sold)).DivRound(decimal.NewFromInt(int64(ticketCap)), 4),
	}, nil
}

// Verify recomputes every employee's total from the event stream and
// returns the employees whose stored total disagrees, sorted by id.
// An employee with no events and no stored row is not reported; with
// RetainZeroTotals a stored 0 and no events is consistent.
func (l *Ledger) Verify(ctx context.Context) ([]Drift, error) {
	evs, err := l.reports.ListEvents(ctx)
	if err != nil {
		return nil, persistenceError("list events", err)
	}
	totals, err := l.reports.ListTotals(ctx)
	if err != nil {
		return nil, persistenceError("list totals", err)
	}

	fromEvents := make(map[EmployeeID]int)
	for _, ev := range evs {
		fromEvents[ev.EmployeeID] += ev.Quantity
	}
	stored := make(map[EmployeeID]int, len(totals))
	for _, t := range totals {
		stored[t.EmployeeID] = t.Total
	}

	var drift []Drift
	for id, want := range fromEvents {
		if got := stored[id]; got != want {
			drift = append(drift, Drift{EmployeeID: id, Stored: got, FromEvents: want})
		}
	}
	for id, got := range stored {
		if _, ok := fromEvents[id]; !ok && got != 0 {
			drift = append(drift, Drift{EmployeeID: id, Stored: got, FromEvents: 0})
		}
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].EmployeeID < drift[j].EmployeeID })
	return drift, nil
}

// AggregateSellers groups events by RecordedBy, highest quantity first,
// ties broken by seller name. Stores without a native GROUP BY use it.
func AggregateSellers(evs []SaleEvent) []SellerTotal {
	bySeller := make(map[string]*SellerTotal)
	for _, ev := range evs {
		st, ok := bySeller[ev.RecordedBy]
		if !ok {
			st = &SellerTotal{RecordedBy: ev.RecordedBy}
			bySeller[ev.RecordedBy] = st
		}
		st.Quantity += ev.Quantity
		st.Sales++
	}
	out := make([]SellerTotal, 0, len(bySeller))
	for _, st := range bySeller {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].RecordedBy < out[j].RecordedBy
	})
	return out
}
