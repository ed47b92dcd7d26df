/*
ledger.go - Sale and correction workflows

PURPOSE:
  The Ledger orchestrates validation, quota checks, the ledger append and
  the running-total update for every sale, and the reverse-then-reapply
  sequence for every correction.

SALE FLOW:
  Submit ──▶ validate ──▶ lookup employee ──▶ Decide
                                               │
                ┌──────────────────────────────┼────────────────────┐
                ▼                              ▼                    ▼
           Rejected                       AutoApproved         NeedsApproval
       QuotaExceededError            append + upsert total    PendingSale (no writes)
                                                                    │
                                                      Confirm(remark) / Cancel

CORRECTION FLOW:
  Correct ──▶ load event ──▶ old total -= old qty (delete if <= 0)
                         ──▶ new total += new qty (create if absent)
                         ──▶ rewrite event (Edited, CorrectionMeta)
                         ──▶ append CorrectionRecord

CONSISTENCY:
  - Writes of one operation run inside one TxStore.WithTx.
  - Read-modify-write of a running total runs under a per-employee lock.
    A correction touching two employees takes both locks, sorted.
  - Confirm re-reads the total under the lock. A repeat purchase that
    became over-quota since Submit is rejected.

CORRECTIONS AND THE QUOTA:
  Corrections do not re-apply the policy unless
  Options.EnforceQuotaOnCorrection is set.

SEE ALSO:
  - policy.go: Decide
  - pending.go: PendingBook for held repeat purchases
  - reports.go: Read views and Verify
*/
package sales

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/ticket-booth/events"
	"go.uber.org/zap"
)

// =============================================================================
// OPTIONS
// =============================================================================

type Options struct {
	// EnforceQuotaOnCorrection rejects corrections that would push the new
	// employee over MaxPerEmployee. Off by default.
	EnforceQuotaOnCorrection bool

	// RetainZeroTotals keeps a zero row when a correction empties a total,
	// instead of deleting it. Off by default.
	RetainZeroTotals bool

	Clock     func() time.Time
	NewID     func() string
	Logger    *zap.Logger
	Publisher events.Publisher
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = func() string { return uuid.NewString() }
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Publisher == nil {
		o.Publisher = events.Nop{}
	}
	return o
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	dir     Directory
	store   TxStore
	reports ReportStore
	opts    Options
	locks   *keyedLocks
	log     *zap.Logger
}

func NewLedger(backend Backend, opts Options) *Ledger {
	opts = opts.withDefaults()
	return &Ledger{
		dir:     backend,
		store:   backend,
		reports: backend,
		opts:    opts,
		locks:   newKeyedLocks(),
		log:     opts.Logger.Named("sales"),
	}
}

// SaleRequest is one seller's request to record a purchase.
type SaleRequest struct {
	EmployeeID EmployeeID
	Quantity   int
	RecordedBy string
}

// SubmitResult describes a committed sale or a sale awaiting confirmation.
// Exactly one of Event and Pending is set.
type SubmitResult struct {
	Outcome OutcomeKind
	Event   *SaleEvent
	Total   int // running total after commit
	Pending *PendingSale
}

// PendingSale is a repeat purchase held until the seller supplies a remark.
// It is a value owned by the caller's session; no store state backs it.
type PendingSale struct {
	ID           string
	EmployeeID   EmployeeID
	EmployeeName string
	Quantity     int
	Current      int
	NewTotal     int
	RecordedBy   string
	CreatedAt    time.Time
}

// Submit validates a sale and either commits it (first purchase), rejects
// it (over quota), or returns a PendingSale (repeat purchase).
func (l *Ledger) Submit(ctx context.Context, req SaleRequest) (SubmitResult, error) {
	req.EmployeeID = EmployeeID(strings.TrimSpace(string(req.EmployeeID)))
	req.RecordedBy = strings.TrimSpace(req.RecordedBy)

	if req.RecordedBy == "" {
		return SubmitResult{}, ErrMissingIdentity
	}
	if err := ValidateQuantity(req.Quantity); err != nil {
		return SubmitResult{}, err
	}
	emp, err := l.lookup(ctx, req.EmployeeID)
	if err != nil {
		return SubmitResult{}, err
	}

	unlock := l.locks.lock(employeeKey(emp.ID))
	defer unlock()

	var result SubmitResult
	err = l.store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.GetTotal(ctx, emp.ID)
		if err != nil {
			return persistenceError("get total", err)
		}
		current := totalOf(existing)

		outcome := Decide(current, req.Quantity)
		switch outcome.Kind {
		case OutcomeRejected:
			return &QuotaExceededError{EmployeeID: emp.ID, Current: current, Requested: req.Quantity, Max: MaxPerEmployee}

		case OutcomeNeedsApproval:
			result = SubmitResult{
				Outcome: outcome.Kind,
				Total:   current,
				Pending: &PendingSale{
					ID:           l.opts.NewID(),
					EmployeeID:   emp.ID,
					EmployeeName: emp.Name,
					Quantity:     req.Quantity,
					Current:      current,
					NewTotal:     outcome.NewTotal,
					RecordedBy:   req.RecordedBy,
					CreatedAt:    l.opts.Clock(),
				},
			}
			return nil

		default:
			ev, total, err := l.commitSale(ctx, tx, *emp, req.Quantity, req.RecordedBy, "", existing)
			if err != nil {
				return err
			}
			result = SubmitResult{Outcome: outcome.Kind, Event: &ev, Total: total.Total}
			return nil
		}
	})
	if err != nil {
		l.logRejection("submit", emp.ID, req.Quantity, err)
		return SubmitResult{}, err
	}

	if result.Event != nil {
		l.afterSale(ctx, *result.Event, result.Total, false)
	} else {
		l.log.Info("repeat purchase awaiting confirmation",
			zap.String("employee_id", string(emp.ID)),
			zap.Int("current", result.Pending.Current),
			zap.Int("requested", req.Quantity),
			zap.String("recorded_by", req.RecordedBy),
		)
	}
	return result, nil
}

// ValidateRemark returns ErrMissingReason for a blank remark.
func ValidateRemark(remark string) error {
	if strings.TrimSpace(remark) == "" {
		return ErrMissingReason
	}
	return nil
}

// Confirm commits a held repeat purchase with the seller's remark.
func (l *Ledger) Confirm(ctx context.Context, p PendingSale, remark string) (SubmitResult, error) {
	if err := ValidateRemark(remark); err != nil {
		return SubmitResult{}, err
	}
	if strings.TrimSpace(p.RecordedBy) == "" {
		return SubmitResult{}, ErrMissingIdentity
	}
	if err := ValidateQuantity(p.Quantity); err != nil {
		return SubmitResult{}, err
	}

	unlock := l.locks.lock(employeeKey(p.EmployeeID))
	defer unlock()

	var result SubmitResult
	err := l.store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.GetTotal(ctx, p.EmployeeID)
		if err != nil {
			return persistenceError("get total", err)
		}
		current := totalOf(existing)

		// The total may have moved since Submit.
		outcome := Decide(current, p.Quantity)
		if outcome.Kind == OutcomeRejected {
			return &QuotaExceededError{EmployeeID: p.EmployeeID, Current: current, Requested: p.Quantity, Max: MaxPerEmployee}
		}

		emp := Employee{ID: p.EmployeeID, Name: p.EmployeeName}
		ev, total, err := l.commitSale(ctx, tx, emp, p.Quantity, p.RecordedBy, strings.TrimSpace(remark), existing)
		if err != nil {
			return err
		}
		result = SubmitResult{Outcome: OutcomeNeedsApproval, Event: &ev, Total: total.Total}
		return nil
	})
	if err != nil {
		l.logRejection("confirm", p.EmployeeID, p.Quantity, err)
		return SubmitResult{}, err
	}

	l.afterSale(ctx, *result.Event, result.Total, true)
	return result, nil
}

// Cancel abandons a held repeat purchase. Nothing was written for it, so
// this only records the decision.
func (l *Ledger) Cancel(_ context.Context, p PendingSale) {
	l.log.Info("repeat purchase cancelled",
		zap.String("pending_id", p.ID),
		zap.String("employee_id", string(p.EmployeeID)),
		zap.Int("requested", p.Quantity),
		zap.String("recorded_by", p.RecordedBy),
	)
}

// commitSale appends the event and upserts the total. Caller holds the
// employee lock and runs it inside WithTx.
func (l *Ledger) commitSale(ctx context.Context, tx Store, emp Employee, qty int, recordedBy, remark string, existing *RunningTotal) (SaleEvent, RunningTotal, error) {
	now := l.opts.Clock()
	ev := SaleEvent{
		ID:           EventID(l.opts.NewID()),
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name,
		Quantity:     qty,
		RecordedBy:   recordedBy,
		Remark:       remark,
		RecordedAt:   now,
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return SaleEvent{}, RunningTotal{}, persistenceError("append event", err)
	}

	total := RunningTotal{
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name,
		Total:        totalOf(existing) + qty,
		FirstSaleAt:  now,
		UpdatedAt:    now,
	}
	if existing != nil && !existing.FirstSaleAt.IsZero() {
		total.FirstSaleAt = existing.FirstSaleAt
	}
	if err := tx.PutTotal(ctx, total); err != nil {
		return SaleEvent{}, RunningTotal{}, persistenceError("put total", err)
	}
	return ev, total, nil
}

// =============================================================================
// CORRECTIONS
// =============================================================================

// CorrectionRequest amends a committed sale.
type CorrectionRequest struct {
	EventID       EventID
	NewEmployeeID EmployeeID
	NewQuantity   int
	EditedBy      string
	Reason        string
}

// CorrectionResult reports the rewritten event and both affected totals.
type CorrectionResult struct {
	Event       SaleEvent
	Record      CorrectionRecord
	OldEmployee EmployeeID
	OldTotal    int  // after the decrement
	OldRemoved  bool // the old employee's total row was deleted
	NewTotal    int
}

// Correct reverses an event's contribution to its employee's total and
// re-applies the corrected quantity to the (possibly different) employee.
func (l *Ledger) Correct(ctx context.Context, req CorrectionRequest) (CorrectionResult, error) {
	req.NewEmployeeID = EmployeeID(strings.TrimSpace(string(req.NewEmployeeID)))
	req.EditedBy = strings.TrimSpace(req.EditedBy)
	req.Reason = strings.TrimSpace(req.Reason)

	if req.Reason == "" {
		return CorrectionResult{}, ErrMissingReason
	}
	if req.EditedBy == "" {
		return CorrectionResult{}, ErrMissingIdentity
	}
	if err := ValidateQuantity(req.NewQuantity); err != nil {
		return CorrectionResult{}, err
	}
	newEmp, err := l.lookup(ctx, req.NewEmployeeID)
	if err != nil {
		return CorrectionResult{}, err
	}

	unlockEvent := l.locks.lock(eventKey(req.EventID))
	defer unlockEvent()

	// The event's employee cannot change while we hold the event lock.
	original, err := l.store.GetEvent(ctx, req.EventID)
	if err != nil {
		return CorrectionResult{}, persistenceError("get event", err)
	}
	if original == nil {
		return CorrectionResult{}, ErrEventNotFound
	}

	unlockEmployees := l.locks.lock(employeeKey(original.EmployeeID), employeeKey(newEmp.ID))
	defer unlockEmployees()

	var result CorrectionResult
	err = l.store.WithTx(ctx, func(tx Store) error {
		ev, err := tx.GetEvent(ctx, req.EventID)
		if err != nil {
			return persistenceError("get event", err)
		}
		if ev == nil {
			return ErrEventNotFound
		}
		oldEmp, oldQty := ev.EmployeeID, ev.Quantity
		now := l.opts.Clock()

		if l.opts.EnforceQuotaOnCorrection {
			if err := l.checkCorrectionQuota(ctx, tx, *ev, newEmp.ID, req.NewQuantity); err != nil {
				return err
			}
		}

		oldTotal, removed, oldFirstSale, err := l.reverse(ctx, tx, oldEmp, oldQty, now)
		if err != nil {
			return err
		}

		// A correction on the same employee keeps the original first purchase
		// time even when reverse dropped the row.
		var since time.Time
		if oldEmp == newEmp.ID {
			since = oldFirstSale
		}
		newTotal, err := l.reapply(ctx, tx, *newEmp, req.NewQuantity, since, now)
		if err != nil {
			return err
		}
		if oldEmp == newEmp.ID {
			oldTotal, removed = newTotal, false
		}

		ev.EmployeeID = newEmp.ID
		ev.EmployeeName = newEmp.Name
		ev.Quantity = req.NewQuantity
		ev.Edited = true
		ev.Correction = &CorrectionMeta{EditedBy: req.EditedBy, Reason: req.Reason, EditedAt: now}
		if err := tx.UpdateEvent(ctx, *ev); err != nil {
			return persistenceError("update event", err)
		}

		rec := CorrectionRecord{
			ID:            l.opts.NewID(),
			EventID:       ev.ID,
			OldEmployeeID: oldEmp,
			OldQuantity:   oldQty,
			NewEmployeeID: newEmp.ID,
			NewQuantity:   req.NewQuantity,
			EditedBy:      req.EditedBy,
			Reason:        req.Reason,
			EditedAt:      now,
		}
		if err := tx.AppendCorrection(ctx, rec); err != nil {
			return persistenceError("append correction", err)
		}

		result = CorrectionResult{
			Event:       *ev,
			Record:      rec,
			OldEmployee: oldEmp,
			OldTotal:    oldTotal,
			OldRemoved:  removed,
			NewTotal:    newTotal,
		}
		return nil
	})
	if err != nil {
		l.logRejection("correct", newEmp.ID, req.NewQuantity, err)
		return CorrectionResult{}, err
	}

	l.log.Info("sale corrected",
		zap.String("event_id", string(result.Event.ID)),
		zap.String("old_employee_id", string(result.Record.OldEmployeeID)),
		zap.Int("old_quantity", result.Record.OldQuantity),
		zap.String("new_employee_id", string(result.Record.NewEmployeeID)),
		zap.Int("new_quantity", result.Record.NewQuantity),
		zap.String("edited_by", req.EditedBy),
	)
	l.publish(ctx, events.TypeSaleCorrected, string(newEmp.ID), result.Record.EditedAt, SaleCorrected{
		EventID:       string(result.Event.ID),
		OldEmployeeID: string(result.Record.OldEmployeeID),
		OldQuantity:   result.Record.OldQuantity,
		NewEmployeeID: string(result.Record.NewEmployeeID),
		NewQuantity:   result.Record.NewQuantity,
		EditedBy:      req.EditedBy,
		Reason:        req.Reason,
		OldTotal:      result.OldTotal,
		NewTotal:      result.NewTotal,
	})
	return result, nil
}

// reverse subtracts qty from an employee's total. At zero or below the row
// is deleted unless RetainZeroTotals is set, in which case it is kept at 0.
// It also returns the row's first sale time (zero when there was no row).
func (l *Ledger) reverse(ctx context.Context, tx Store, id EmployeeID, qty int, now time.Time) (int, bool, time.Time, error) {
	existing, err := tx.GetTotal(ctx, id)
	if err != nil {
		return 0, false, time.Time{}, persistenceError("get total", err)
	}
	var firstSale time.Time
	if existing != nil {
		firstSale = existing.FirstSaleAt
	}
	remaining := totalOf(existing) - qty

	if remaining <= 0 && !l.opts.RetainZeroTotals {
		if existing != nil {
			if err := tx.DeleteTotal(ctx, id); err != nil {
				return 0, false, firstSale, persistenceError("delete total", err)
			}
		}
		return 0, true, firstSale, nil
	}

	if remaining < 0 {
		remaining = 0
	}
	t := RunningTotal{EmployeeID: id, Total: remaining, FirstSaleAt: now, UpdatedAt: now}
	if existing != nil {
		t.EmployeeName = existing.EmployeeName
		t.FirstSaleAt = existing.FirstSaleAt
	}
	if err := tx.PutTotal(ctx, t); err != nil {
		return 0, false, firstSale, persistenceError("put total", err)
	}
	return remaining, false, firstSale, nil
}

// reapply adds qty to an employee's total, creating the row if absent. A
// new row starts at since, or now when since is zero.
func (l *Ledger) reapply(ctx context.Context, tx Store, emp Employee, qty int, since, now time.Time) (int, error) {
	existing, err := tx.GetTotal(ctx, emp.ID)
	if err != nil {
		return 0, persistenceError("get total", err)
	}
	t := RunningTotal{
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name,
		Total:        totalOf(existing) + qty,
		FirstSaleAt:  now,
		UpdatedAt:    now,
	}
	if !since.IsZero() {
		t.FirstSaleAt = since
	}
	if existing != nil && !existing.FirstSaleAt.IsZero() {
		t.FirstSaleAt = existing.FirstSaleAt
	}
	if err := tx.PutTotal(ctx, t); err != nil {
		return 0, persistenceError("put total", err)
	}
	return t.Total, nil
}

// checkCorrectionQuota applies the cap to the corrected employee, counting
// the event's old quantity out when it stays with the same employee.
func (l *Ledger) checkCorrectionQuota(ctx context.Context, tx Store, ev SaleEvent, newEmp EmployeeID, newQty int) error {
	existing, err := tx.GetTotal(ctx, newEmp)
	if err != nil {
		return persistenceError("get total", err)
	}
	current := totalOf(existing)
	if ev.EmployeeID == newEmp {
		current -= ev.Quantity
		if current < 0 {
			current = 0
		}
	}
	if current+newQty > MaxPerEmployee {
		return &QuotaExceededError{EmployeeID: newEmp, Current: current, Requested: newQty, Max: MaxPerEmployee}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (l *Ledger) lookup(ctx context.Context, id EmployeeID) (*Employee, error) {
	if id == "" {
		return nil, ErrEmployeeNotFound
	}
	emp, err := l.dir.LookupEmployee(ctx, id)
	if err != nil {
		return nil, persistenceError("lookup employee", err)
	}
	if emp == nil {
		return nil, ErrEmployeeNotFound
	}
	return emp, nil
}

// Employee resolves an employee through the directory.
func (l *Ledger) Employee(ctx context.Context, id EmployeeID) (*Employee, error) {
	return l.lookup(ctx, EmployeeID(strings.TrimSpace(string(id))))
}

func (l *Ledger) afterSale(ctx context.Context, ev SaleEvent, total int, repeat bool) {
	l.log.Info("sale recorded",
		zap.String("event_id", string(ev.ID)),
		zap.String("employee_id", string(ev.EmployeeID)),
		zap.Int("quantity", ev.Quantity),
		zap.Int("total", total),
		zap.Bool("repeat", repeat),
		zap.String("recorded_by", ev.RecordedBy),
	)
	l.publish(ctx, events.TypeSaleRecorded, string(ev.EmployeeID), ev.RecordedAt, SaleRecorded{
		EventID:    string(ev.ID),
		EmployeeID: string(ev.EmployeeID),
		Quantity:   ev.Quantity,
		RecordedBy: ev.RecordedBy,
		Remark:     ev.Remark,
		Total:      total,
		Repeat:     repeat,
	})
}

func (l *Ledger) publish(ctx context.Context, typ, key string, at time.Time, payload any) {
	err := l.opts.Publisher.Publish(ctx, events.Event{Type: typ, Key: key, OccurredAt: at, Payload: payload})
	if err != nil {
		l.log.Warn("publish failed", zap.String("type", typ), zap.String("key", key), zap.Error(err))
	}
}

func (l *Ledger) logRejection(op string, id EmployeeID, qty int, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("employee_id", string(id)),
		zap.Int("quantity", qty),
		zap.Error(err),
	}
	if IsClientError(err) || IsNotFound(err) {
		l.log.Info("request rejected", fields...)
		return
	}
	l.log.Error("request failed", fields...)
}

func totalOf(t *RunningTotal) int {
	if t == nil {
		return 0
	}
	return t.Total
}

// =============================================================================
// EVENT PAYLOADS
// =============================================================================

type SaleRecorded struct {
	EventID    string `json:"event_id"`
	EmployeeID string `json:"employee_id"`
	Quantity   int    `json:"quantity"`
	RecordedBy string `json:"recorded_by"`
	Remark     string `json:"remark,omitempty"`
	Total      int    `json:"total"`
	Repeat     bool   `json:"repeat"`
}

type SaleCorrected struct {
	EventID       string `json:"event_id"`
	OldEmployeeID string `json:"old_employee_id"`
	OldQuantity   int    `json:"old_quantity"`
	NewEmployeeID string `json:"new_employee_id"`
	NewQuantity   int    `json:"new_quantity"`
	EditedBy      string `json:"edited_by"`
	Reason        string `json:"reason"`
	OldTotal      int    `json:"old_total"`
	NewTotal      int    `json:"new_total"`
}
