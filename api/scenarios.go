/*
scenarios.go - Demo scenario loaders for training and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the booth with a directory
	and a few sales so new operators can try the workflow. Every sale goes
	through the ledger, so quota rules and totals behave exactly as live.

AVAILABLE SCENARIOS:

	demo-directory: Eight employees, no sales
	busy-day:       Directory + first purchases, a confirmed repeat
	                purchase and one correction
	at-quota:       Directory + one employee already holding the maximum

HOW SCENARIOS WORK:
 1. Upsert the demo directory (existing employees keep their tickets)
 2. Record sales as the admin who loaded the scenario
 3. Employees who already hold tickets are skipped

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "busy-day"}

NOTE:

	Scenarios write real sales. Only use in training environments.

SEE ALSO:
  - handlers.go: Sales handlers used by operators afterwards
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/ticket-booth/sales"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "demo-directory",
		Name:        "Demo Directory",
		Description: "Eight employees and no sales",
	},
	{
		ID:          "busy-day",
		Name:        "Busy Day",
		Description: "First purchases, a confirmed repeat purchase and a corrected sale",
	},
	{
		ID:          "at-quota",
		Name:        "At Quota",
		Description: "One employee already holds the maximum number of tickets",
	},
}

var demoEmployees = []sales.Employee{
	{ID: "1001", Name: "Ada Lovelace"},
	{ID: "1002", Name: "Grace Hopper"},
	{ID: "1003", Name: "Alan Turing"},
	{ID: "1004", Name: "Katherine Johnson"},
	{ID: "1005", Name: "Edsger Dijkstra"},
	{ID: "1006", Name: "Barbara Liskov"},
	{ID: "1007", Name: "Ken Thompson"},
	{ID: "1008", Name: "Frances Allen"},
}

// ListScenarios returns every available scenario.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.roster == nil {
		writeError(w, http.StatusNotImplemented, "Directory import is not configured", nil)
		return
	}

	ctx := r.Context()
	seller := claimsFrom(ctx).Username

	var err error
	switch req.ScenarioID {
	case "demo-directory":
		err = h.loadDemoDirectory(ctx)
	case "busy-day":
		err = h.loadBusyDayScenario(ctx, seller)
	case "at-quota":
		err = h.loadAtQuotaScenario(ctx, seller)
	default:
		writeCodedError(w, http.StatusBadRequest, "unknown_scenario", "Unknown scenario", nil)
		return
	}
	if err != nil {
		h.log.Error("scenario failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), nil)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.log.Info("scenario loaded", zap.String("scenario", req.ScenarioID), zap.String("by", seller))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadDemoDirectory(ctx context.Context) error {
	return h.roster.SaveEmployees(ctx, demoEmployees)
}

func (h *Handler) loadBusyDayScenario(ctx context.Context, seller string) error {
	if err := h.loadDemoDirectory(ctx); err != nil {
		return err
	}
	// Grace's repeat purchase marks the scenario as already loaded.
	loaded, err := h.ledger.TotalFor(ctx, "1002")
	if err != nil {
		return err
	}
	if loaded > 0 {
		return nil
	}

	// First purchases.
	var first *sales.SaleEvent
	for _, s := range []struct {
		id  sales.EmployeeID
		qty int
	}{{"1001", 2}, {"1002", 4}, {"1003", 1}, {"1005", 3}} {
		ev, err := h.firstPurchase(ctx, s.id, s.qty, seller)
		if err != nil {
			return err
		}
		if first == nil {
			first = ev
		}
	}

	// A repeat purchase confirmed with a remark.
	res, err := h.ledger.Submit(ctx, sales.SaleRequest{EmployeeID: "1002", Quantity: 2, RecordedBy: seller})
	if err != nil {
		return err
	}
	if res.Pending != nil {
		if _, err := h.ledger.Confirm(ctx, *res.Pending, "buying for a partner"); err != nil {
			return err
		}
	}
	if first == nil {
		return nil
	}

	// The first sale was keyed against the wrong employee.
	_, err = h.ledger.Correct(ctx, sales.CorrectionRequest{
		EventID:       first.ID,
		NewEmployeeID: "1004",
		NewQuantity:   first.Quantity,
		EditedBy:      seller,
		Reason:        "badge scanned for the wrong employee",
	})
	return err
}

func (h *Handler) loadAtQuotaScenario(ctx context.Context, seller string) error {
	if err := h.loadDemoDirectory(ctx); err != nil {
		return err
	}
	_, err := h.firstPurchase(ctx, "1006", sales.MaxPerEmployee, seller)
	return err
}

// firstPurchase records a sale for an employee with no tickets. It returns
// (nil, nil) when the employee already holds tickets.
func (h *Handler) firstPurchase(ctx context.Context, id sales.EmployeeID, qty int, seller string) (*sales.SaleEvent, error) {
	total, err := h.ledger.TotalFor(ctx, id)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		return nil, nil
	}
	res, err := h.ledger.Submit(ctx, sales.SaleRequest{EmployeeID: id, Quantity: qty, RecordedBy: seller})
	if err != nil {
		return nil, err
	}
	if res.Event == nil {
		return nil, errors.New("expected an auto-approved first purchase")
	}
	return res.Event, nil
}
