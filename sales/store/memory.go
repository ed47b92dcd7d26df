// Package store provides an in-memory sales.Backend.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/ticket-booth/sales"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	employees   map[sales.EmployeeID]sales.Employee
	events      map[sales.EventID]sales.SaleEvent
	order       []sales.EventID // append order
	totals      map[sales.EmployeeID]sales.RunningTotal
	corrections []sales.CorrectionRecord

	// FailWrite, when set, is consulted before every write with the
	// operation name; a non-nil result fails that write. Tests use it to
	// exercise rollback.
	FailWrite func(op string) error
}

func NewMemory() *Memory {
	return &Memory{
		employees: make(map[sales.EmployeeID]sales.Employee),
		events:    make(map[sales.EventID]sales.SaleEvent),
		totals:    make(map[sales.EmployeeID]sales.RunningTotal),
	}
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) SaveEmployees(_ context.Context, emps []sales.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range emps {
		m.employees[e.ID] = e
	}
	return nil
}

func (m *Memory) LookupEmployee(_ context.Context, id sales.EmployeeID) (*sales.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) CountEmployees(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.employees), nil
}

// =============================================================================
// STORE (locked entry points)
// =============================================================================

func (m *Memory) AppendEvent(_ context.Context, ev sales.SaleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEventLocked(ev)
}

func (m *Memory) GetEvent(_ context.Context, id sales.EventID) (*sales.SaleEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEventLocked(id), nil
}

func (m *Memory) UpdateEvent(_ context.Context, ev sales.SaleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateEventLocked(ev)
}

func (m *Memory) GetTotal(_ context.Context, id sales.EmployeeID) (*sales.RunningTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTotalLocked(id), nil
}

func (m *Memory) PutTotal(_ context.Context, t sales.RunningTotal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putTotalLocked(t)
}

func (m *Memory) DeleteTotal(_ context.Context, id sales.EmployeeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteTotalLocked(id)
}

func (m *Memory) AppendCorrection(_ context.Context, rec sales.CorrectionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendCorrectionLocked(rec)
}

// =============================================================================
// UNLOCKED HELPERS - caller holds m.mu
// =============================================================================

func (m *Memory) failure(op string) error {
	if m.FailWrite == nil {
		return nil
	}
	return m.FailWrite(op)
}

func (m *Memory) appendEventLocked(ev sales.SaleEvent) error {
	if err := m.failure("append_event"); err != nil {
		return err
	}
	m.events[ev.ID] = cloneEvent(ev)
	m.order = append(m.order, ev.ID)
	return nil
}

func (m *Memory) getEventLocked(id sales.EventID) *sales.SaleEvent {
	ev, ok := m.events[id]
	if !ok {
		return nil
	}
	ev = cloneEvent(ev)
	return &ev
}

func (m *Memory) updateEventLocked(ev sales.SaleEvent) error {
	if err := m.failure("update_event"); err != nil {
		return err
	}
	if _, ok := m.events[ev.ID]; !ok {
		return sales.ErrEventNotFound
	}
	m.events[ev.ID] = cloneEvent(ev)
	return nil
}

func (m *Memory) getTotalLocked(id sales.EmployeeID) *sales.RunningTotal {
	t, ok := m.totals[id]
	if !ok {
		return nil
	}
	return &t
}

func (m *Memory) putTotalLocked(t sales.RunningTotal) error {
	if err := m.failure("put_total"); err != nil {
		return err
	}
	m.totals[t.EmployeeID] = t
	return nil
}

func (m *Memory) deleteTotalLocked(id sales.EmployeeID) error {
	if err := m.failure("delete_total"); err != nil {
		return err
	}
	delete(m.totals, id)
	return nil
}

func (m *Memory) appendCorrectionLocked(rec sales.CorrectionRecord) error {
	if err := m.failure("append_correction"); err != nil {
		return err
	}
	m.corrections = append(m.corrections, rec)
	return nil
}

func cloneEvent(ev sales.SaleEvent) sales.SaleEvent {
	if ev.Correction != nil {
		c := *ev.Correction
		ev.Correction = &c
	}
	return ev
}

// =============================================================================
// REPORTS
// =============================================================================

func (m *Memory) ListEvents(_ context.Context) ([]sales.SaleEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]sales.SaleEvent, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, cloneEvent(m.events[m.order[i]]))
	}
	// Newest first; append order breaks ties between equal timestamps.
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return out, nil
}

func (m *Memory) ListTotals(_ context.Context) ([]sales.RunningTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]sales.RunningTotal, 0, len(m.totals))
	for _, t := range m.totals {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out, nil
}

func (m *Memory) SumTotals(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := 0
	for _, t := range m.totals {
		sum += t.Total
	}
	return sum, nil
}

func (m *Memory) SellerTotals(ctx context.Context) ([]sales.SellerTotal, error) {
	evs, err := m.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	return sales.AggregateSellers(evs), nil
}

func (m *Memory) ListCorrections(_ context.Context, id sales.EventID) ([]sales.CorrectionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []sales.CorrectionRecord
	for _, rec := range m.corrections {
		if rec.EventID == id {
			out = append(out, rec)
		}
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(sales.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()

	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	events      map[sales.EventID]sales.SaleEvent
	order       []sales.EventID
	totals      map[sales.EmployeeID]sales.RunningTotal
	corrections []sales.CorrectionRecord
}

func (m *Memory) snapshot() memorySnapshot {
	evs := make(map[sales.EventID]sales.SaleEvent, len(m.events))
	for k, v := range m.events {
		evs[k] = cloneEvent(v)
	}
	totals := make(map[sales.EmployeeID]sales.RunningTotal, len(m.totals))
	for k, v := range m.totals {
		totals[k] = v
	}
	return memorySnapshot{
		events:      evs,
		order:       append([]sales.EventID(nil), m.order...),
		totals:      totals,
		corrections: append([]sales.CorrectionRecord(nil), m.corrections...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.events = s.events
	m.order = s.order
	m.totals = s.totals
	m.corrections = s.corrections
}

// txView runs against the parent while WithTx holds its lock.
type txView struct {
	parent *Memory
}

func (tv *txView) AppendEvent(_ context.Context, ev sales.SaleEvent) error {
	return tv.parent.appendEventLocked(ev)
}

func (tv *txView) GetEvent(_ context.Context, id sales.EventID) (*sales.SaleEvent, error) {
	return tv.parent.getEventLocked(id), nil
}

func (tv *txView) UpdateEvent(_ context.Context, ev sales.SaleEvent) error {
	return tv.parent.updateEventLocked(ev)
}

func (tv *txView) GetTotal(_ context.Context, id sales.EmployeeID) (*sales.RunningTotal, error) {
	return tv.parent.getTotalLocked(id), nil
}

func (tv *txView) PutTotal(_ context.Context, t sales.RunningTotal) error {
	return tv.parent.putTotalLocked(t)
}

func (tv *txView) DeleteTotal(_ context.Context, id sales.EmployeeID) error {
	return tv.parent.deleteTotalLocked(id)
}

func (tv *txView) AppendCorrection(_ context.Context, rec sales.CorrectionRecord) error {
	return tv.parent.appendCorrectionLocked(rec)
}

var _ sales.Backend = (*Memory)(nil)
