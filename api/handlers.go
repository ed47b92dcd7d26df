/*
handlers.go - HTTP API handlers for the ticket booth

PURPOSE:
  Exposes the sales ledger via REST API. Handles HTTP request/response,
  JSON serialization, authentication context, and delegates to the ledger.

ENDPOINTS:
  Auth:
    POST   /api/auth/login                    Issue a session token
    POST   /api/auth/logout                   End the session, drop its pending sales
    GET    /api/healthz                       Database ping

  Sales (any signed-in operator):
    GET    /api/employees/{id}                Name, current total, remaining quota
    POST   /api/sales                         Submit a sale
    POST   /api/sales/pending/{id}/confirm    Confirm a repeat purchase with a remark
    DELETE /api/sales/pending/{id}            Cancel a repeat purchase

  Admin:
    PUT    /api/sales/{id}                    Correct a committed sale
    GET    /api/sales/{id}/corrections        Correction audit trail
    GET    /api/reports/log                   Every sale, newest first
    GET    /api/reports/buyers                Running totals, highest first
    GET    /api/reports/sellers               Seller leaderboard
    GET    /api/reports/summary               Sold against the ticket cap
    GET    /api/reports/verify                Totals recomputed from the ledger
    POST   /api/admin/accounts                Add an operator account
    GET    /api/scenarios                     List demo scenarios
    POST   /api/scenarios/load                Load a demo scenario

REQUEST FLOW:
  1. Decode and validate the body (validator tags in dto.go)
  2. Read the operator from the session claims
  3. Call the ledger
  4. Serialize the response or map the error

ERROR HANDLING:
  writeDomainError maps ledger errors to status codes:
  - 400: invalid quantity, missing remark/reason, validation failure
  - 401: bad credentials or session
  - 403: admin role required
  - 404: employee, sale event or pending sale not found
  - 409: over quota (details carry the current total), account exists
  - 503: persistence unavailable

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Session and role checks
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/ticket-booth/auth"
	"github.com/warp/ticket-booth/sales"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Deps are the collaborators a Handler needs. Ledger, Accounts and Tokens
// are required.
type Deps struct {
	Ledger    *sales.Ledger
	Roster    sales.Roster
	Accounts  *auth.Accounts
	Tokens    *auth.Tokens
	Pending   *sales.PendingBook
	Metrics   *Metrics
	Logger    *zap.Logger
	TicketCap int
	Ping      func(context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	ledger    *sales.Ledger
	roster    sales.Roster
	accounts  *auth.Accounts
	tokens    *auth.Tokens
	pending   *sales.PendingBook
	metrics   *Metrics
	log       *zap.Logger
	ticketCap int
	ping      func(context.Context) error
	validate  *validator.Validate
	now       func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler from its dependencies.
func NewHandler(d Deps) *Handler {
	if d.Pending == nil {
		d.Pending = sales.NewPendingBook()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(d.Pending.Len)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.TicketCap <= 0 {
		d.TicketCap = sales.DefaultTicketCap
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		ledger:    d.Ledger,
		roster:    d.Roster,
		accounts:  d.Accounts,
		tokens:    d.Tokens,
		pending:   d.Pending,
		metrics:   d.Metrics,
		log:       d.Logger.Named("api"),
		ticketCap: d.TicketCap,
		ping:      d.Ping,
		validate:  v,
		now:       time.Now,
	}
}

// Metrics returns the handler's collectors.
func (h *Handler) Metrics() *Metrics { return h.metrics }

// Pending returns the book of repeat purchases awaiting a remark.
func (h *Handler) Pending() *sales.PendingBook { return h.pending }

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login checks the credentials and starts a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	acct, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	sess, err := h.tokens.Issue(*acct)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue session", err)
		return
	}

	h.log.Info("login", zap.String("user", acct.Username), zap.String("role", string(acct.Role)))
	writeJSON(w, http.StatusOK, sess)
}

// Logout ends the session. Repeat purchases it was holding are dropped.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	dropped := h.pending.Discard(claims.SessionID())
	h.tokens.Revoke(claims)

	h.log.Info("logout", zap.String("user", claims.Username), zap.Int("pending_dropped", dropped))
	writeJSON(w, http.StatusOK, map[string]int{"pending_dropped": dropped})
}

// Healthz pings the database.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			writeCodedError(w, http.StatusServiceUnavailable, "persistence_unavailable", "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// GetEmployee returns the employee's name and how many tickets they hold.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := sales.EmployeeID(chi.URLParam(r, "id"))

	emp, err := h.ledger.Employee(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	total, err := h.ledger.TotalFor(r.Context(), emp.ID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EmployeeDTO{
		ID:            string(emp.ID),
		Name:          emp.Name,
		Total:         total,
		Remaining:     max(sales.MaxPerEmployee-total, 0),
		FirstPurchase: total == 0,
	})
}

// =============================================================================
// SALE HANDLERS
// =============================================================================

// SubmitSale records a first purchase (201) or holds a repeat purchase for
// confirmation (202).
func (h *Handler) SubmitSale(w http.ResponseWriter, r *http.Request) {
	var req SubmitSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	qty, err := parseQuantity(req.Quantity)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	claims := claimsFrom(r.Context())
	res, err := h.ledger.Submit(r.Context(), sales.SaleRequest{
		EmployeeID: sales.EmployeeID(req.EmployeeID),
		Quantity:   qty,
		RecordedBy: claims.Username,
	})
	if err != nil {
		if errors.Is(err, sales.ErrQuotaExceeded) {
			h.metrics.sale(outcomeRejected, 0)
		}
		h.writeDomainError(w, err)
		return
	}

	if res.Pending != nil {
		h.pending.Hold(claims.SessionID(), *res.Pending)
		h.metrics.sale(outcomePending, 0)
		writeJSON(w, http.StatusAccepted, toSaleResultDTO(res, h.tokens.TTL()))
		return
	}
	h.metrics.sale(outcomeAutoApproved, res.Event.Quantity)
	writeJSON(w, http.StatusCreated, toSaleResultDTO(res, h.tokens.TTL()))
}

// ConfirmPending commits a held repeat purchase with the seller's remark.
func (h *Handler) ConfirmPending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ConfirmSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	// A blank remark leaves the pending sale in place for another try.
	if err := sales.ValidateRemark(req.Remark); err != nil {
		h.writeDomainError(w, err)
		return
	}

	session := claimsFrom(r.Context()).SessionID()
	p, err := h.takePending(session, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	res, err := h.ledger.Confirm(r.Context(), p, req.Remark)
	if err != nil {
		switch {
		case errors.Is(err, sales.ErrPersistenceUnavailable):
			h.pending.Hold(session, p)
		case errors.Is(err, sales.ErrQuotaExceeded):
			h.metrics.sale(outcomeRejected, 0)
		}
		h.writeDomainError(w, err)
		return
	}

	h.metrics.sale(outcomeConfirmed, res.Event.Quantity)
	writeJSON(w, http.StatusCreated, toSaleResultDTO(res, h.tokens.TTL()))
}

// CancelPending abandons a held repeat purchase.
func (h *Handler) CancelPending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.takePending(claimsFrom(r.Context()).SessionID(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.ledger.Cancel(r.Context(), p)
	h.metrics.sale(outcomeCancelled, 0)
	w.WriteHeader(http.StatusNoContent)
}

// takePending removes the pending sale, treating one older than the
// session lifetime as gone. The sweeper drops those too, on its own tick.
func (h *Handler) takePending(session, id string) (sales.PendingSale, error) {
	p, err := h.pending.Take(session, id)
	if err != nil {
		return sales.PendingSale{}, err
	}
	if !p.CreatedAt.IsZero() && h.now().Sub(p.CreatedAt) > h.tokens.TTL() {
		h.metrics.pendingExpired.Inc()
		return sales.PendingSale{}, sales.ErrPendingNotFound
	}
	return p, nil
}

// =============================================================================
// CORRECTION HANDLERS
// =============================================================================

// CorrectSale moves or resizes a committed sale.
func (h *Handler) CorrectSale(w http.ResponseWriter, r *http.Request) {
	eventID := sales.EventID(chi.URLParam(r, "id"))
	var req CorrectSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	qty, err := parseQuantity(req.Quantity)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	res, err := h.ledger.Correct(r.Context(), sales.CorrectionRequest{
		EventID:       eventID,
		NewEmployeeID: sales.EmployeeID(req.EmployeeID),
		NewQuantity:   qty,
		EditedBy:      claimsFrom(r.Context()).Username,
		Reason:        req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.metrics.corrections.Inc()
	writeJSON(w, http.StatusOK, CorrectionResultDTO{
		Event:         toSaleEventDTO(res.Event),
		OldEmployeeID: string(res.OldEmployee),
		OldTotal:      res.OldTotal,
		OldRemoved:    res.OldRemoved,
		NewEmployeeID: string(res.Event.EmployeeID),
		NewTotal:      res.NewTotal,
	})
}

// ListCorrections returns the audit trail of one sale, oldest first.
func (h *Handler) ListCorrections(w http.ResponseWriter, r *http.Request) {
	recs, err := h.ledger.Corrections(r.Context(), sales.EventID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCorrectionRecordDTOs(recs))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// ReportLog lists every sale, newest first.
func (h *Handler) ReportLog(w http.ResponseWriter, r *http.Request) {
	evs, err := h.ledger.Events(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleEventDTOs(evs))
}

// ReportBuyers lists running totals, highest first.
func (h *Handler) ReportBuyers(w http.ResponseWriter, r *http.Request) {
	totals, err := h.ledger.Totals(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	sold := 0
	for _, t := range totals {
		sold += t.Total
	}
	writeJSON(w, http.StatusOK, BuyersReportDTO{Buyers: toRunningTotalDTOs(totals), TotalSold: sold})
}

// ReportSellers lists how much each operator sold.
func (h *Handler) ReportSellers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.ledger.SellerTotals(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]SellerTotalDTO, len(rows))
	for i, row := range rows {
		dtos[i] = SellerTotalDTO{RecordedBy: row.RecordedBy, Quantity: row.Quantity, Sales: row.Sales}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ReportSummary reports tickets sold against the global cap.
func (h *Handler) ReportSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.ledger.Summary(r.Context(), h.ticketCap)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryDTO{
		Employees: sum.Employees,
		Buyers:    sum.Buyers,
		Sold:      sum.Sold,
		Cap:       sum.Cap,
		Remaining: sum.Remaining,
		SoldRatio: sum.SoldRatio,
	})
}

// ReportVerify recomputes totals from the ledger and lists any drift.
func (h *Handler) ReportVerify(w http.ResponseWriter, r *http.Request) {
	drift, err := h.ledger.Verify(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.metrics.drift.Set(float64(len(drift)))

	dtos := make([]DriftDTO, len(drift))
	for i, d := range drift {
		dtos[i] = DriftDTO{EmployeeID: string(d.EmployeeID), Stored: d.Stored, FromEvents: d.FromEvents}
	}
	writeJSON(w, http.StatusOK, VerifyReportDTO{Consistent: len(drift) == 0, Drift: dtos})
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// CreateAccount adds an operator account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	admin := claimsFrom(r.Context()).Username
	acct, err := h.accounts.Create(r.Context(), req.Username, req.Password, auth.Role(req.Role), admin)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.log.Info("account created", zap.String("username", acct.Username), zap.String("role", string(acct.Role)), zap.String("by", admin))
	writeJSON(w, http.StatusCreated, toAccountDTO(*acct))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the 400 itself and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeCodedError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Request validation failed",
				Code:    "validation_failed",
				Details: fields,
			})
			return false
		}
		writeCodedError(w, http.StatusBadRequest, "validation_failed", "Request validation failed", err)
		return false
	}
	return true
}

// writeDomainError maps ledger and auth errors to HTTP responses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var qe *sales.QuotaExceededError
	switch {
	case errors.As(err, &qe):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: qe.Error(),
			Code:  "quota_exceeded",
			Details: map[string]int{
				"current":   qe.Current,
				"requested": qe.Requested,
				"max":       qe.Max,
			},
		})
	case errors.Is(err, sales.ErrQuotaExceeded):
		writeCodedError(w, http.StatusConflict, "quota_exceeded", err.Error(), nil)
	case errors.Is(err, sales.ErrInvalidQuantity):
		writeCodedError(w, http.StatusBadRequest, "invalid_quantity", "Quantity must be a whole number from 1 to 10", nil)
	case errors.Is(err, sales.ErrMissingReason):
		writeCodedError(w, http.StatusBadRequest, "missing_reason", err.Error(), nil)
	case errors.Is(err, sales.ErrMissingIdentity):
		writeCodedError(w, http.StatusBadRequest, "missing_identity", err.Error(), nil)
	case errors.Is(err, sales.ErrEmployeeNotFound):
		writeCodedError(w, http.StatusNotFound, "employee_not_found", err.Error(), nil)
	case errors.Is(err, sales.ErrEventNotFound):
		writeCodedError(w, http.StatusNotFound, "event_not_found", err.Error(), nil)
	case errors.Is(err, sales.ErrPendingNotFound):
		writeCodedError(w, http.StatusNotFound, "pending_not_found", err.Error(), nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeCodedError(w, http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	case errors.Is(err, auth.ErrInvalidAccount):
		writeCodedError(w, http.StatusBadRequest, "invalid_account", err.Error(), nil)
	case errors.Is(err, auth.ErrAccountExists):
		writeCodedError(w, http.StatusConflict, "account_exists", err.Error(), nil)
	case errors.Is(err, sales.ErrPersistenceUnavailable):
		h.log.Error("persistence unavailable", zap.Error(err))
		writeCodedError(w, http.StatusServiceUnavailable, "persistence_unavailable", "Storage is unavailable, nothing was recorded", nil)
	default:
		h.log.Error("unexpected error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeCodedError(w, status, "", message, err)
}

func writeCodedError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
