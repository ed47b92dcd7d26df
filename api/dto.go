/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the sales domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Auth:        LoginRequest, auth.Session, CreateAccountRequest, AccountDTO
  Employees:   EmployeeDTO
  Sales:       SubmitSaleRequest, ConfirmSaleRequest, SaleResultDTO,
               SaleEventDTO, PendingSaleDTO
  Corrections: CorrectSaleRequest, CorrectionResultDTO, CorrectionRecordDTO
  Reports:     BuyersReportDTO, SellerTotalDTO, SummaryDTO, DriftDTO
  Scenarios:   ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Struct tags are checked with go-playground/validator before the ledger
  sees a request. Quantities arrive as raw JSON so that a non-numeric
  value is reported as an invalid quantity rather than a malformed body.
  Blank remarks and reasons are left to the ledger (MissingReason).

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/ticket-booth/auth"
	"github.com/warp/ticket-booth/sales"
)

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type CreateAccountRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Role     string `json:"role" validate:"required,oneof=admin seller"`
}

type AccountDTO struct {
	Username  string    `json:"username"`
	Role      auth.Role `json:"role"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO is what a seller sees before recording a sale.
type EmployeeDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Total         int    `json:"total"`
	Remaining     int    `json:"remaining"`
	FirstPurchase bool   `json:"first_purchase"`
}

// =============================================================================
// SALES
// =============================================================================

type SubmitSaleRequest struct {
	EmployeeID string          `json:"employee_id" validate:"max=64"`
	Quantity   json.RawMessage `json:"quantity"`
}

type ConfirmSaleRequest struct {
	Remark string `json:"remark" validate:"max=500"`
}

type SaleEventDTO struct {
	ID           string     `json:"id"`
	EmployeeID   string     `json:"employee_id"`
	EmployeeName string     `json:"employee_name"`
	Quantity     int        `json:"quantity"`
	RecordedBy   string     `json:"recorded_by"`
	Remark       string     `json:"remark,omitempty"`
	RecordedAt   time.Time  `json:"recorded_at"`
	Edited       bool       `json:"edited"`
	EditedBy     string     `json:"edited_by,omitempty"`
	EditReason   string     `json:"edit_reason,omitempty"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
}

type PendingSaleDTO struct {
	ID           string    `json:"id"`
	EmployeeID   string    `json:"employee_id"`
	EmployeeName string    `json:"employee_name"`
	Quantity     int       `json:"quantity"`
	CurrentTotal int       `json:"current_total"`
	NewTotal     int       `json:"new_total"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SaleResultDTO is returned by submit and confirm. Status is "committed"
// (Event set) or "pending" (Pending set, a remark is required to confirm).
type SaleResultDTO struct {
	Status  string          `json:"status"`
	Outcome string          `json:"outcome"`
	Total   int             `json:"total"`
	Event   *SaleEventDTO   `json:"event,omitempty"`
	Pending *PendingSaleDTO `json:"pending,omitempty"`
}

// =============================================================================
// CORRECTIONS
// =============================================================================

type CorrectSaleRequest struct {
	EmployeeID string          `json:"employee_id" validate:"max=64"`
	Quantity   json.RawMessage `json:"quantity"`
	Reason     string          `json:"reason" validate:"max=500"`
}

type CorrectionResultDTO struct {
	Event         SaleEventDTO `json:"event"`
	OldEmployeeID string       `json:"old_employee_id"`
	OldTotal      int          `json:"old_total"`
	OldRemoved    bool         `json:"old_removed"`
	NewEmployeeID string       `json:"new_employee_id"`
	NewTotal      int          `json:"new_total"`
}

type CorrectionRecordDTO struct {
	ID            string    `json:"id"`
	EventID       string    `json:"event_id"`
	OldEmployeeID string    `json:"old_employee_id"`
	OldQuantity   int       `json:"old_quantity"`
	NewEmployeeID string    `json:"new_employee_id"`
	NewQuantity   int       `json:"new_quantity"`
	EditedBy      string    `json:"edited_by"`
	Reason        string    `json:"reason"`
	EditedAt      time.Time `json:"edited_at"`
}

// =============================================================================
// REPORTS
// =============================================================================

type RunningTotalDTO struct {
	EmployeeID   string    `json:"employee_id"`
	EmployeeName string    `json:"employee_name"`
	Total        int       `json:"total"`
	FirstSaleAt  time.Time `json:"first_sale_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type BuyersReportDTO struct {
	Buyers    []RunningTotalDTO `json:"buyers"`
	TotalSold int               `json:"total_sold"`
}

type SellerTotalDTO struct {
	RecordedBy string `json:"recorded_by"`
	Quantity   int    `json:"quantity"`
	Sales      int    `json:"sales"`
}

type SummaryDTO struct {
	Employees int             `json:"employees"`
	Buyers    int             `json:"buyers"`
	Sold      int             `json:"sold"`
	Cap       int             `json:"cap"`
	Remaining int             `json:"remaining"`
	SoldRatio decimal.Decimal `json:"sold_ratio"`
}

type DriftDTO struct {
	EmployeeID string `json:"employee_id"`
	Stored     int    `json:"stored"`
	FromEvents int    `json:"from_events"`
}

type VerifyReportDTO struct {
	Consistent bool       `json:"consistent"`
	Drift      []DriftDTO `json:"drift"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

// parseQuantity accepts a JSON number or a numeric string. Anything else,
// including fractions, is an invalid quantity.
func parseQuantity(raw json.RawMessage) (int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, sales.ErrInvalidQuantity
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, sales.ErrInvalidQuantity
		}
		s = strings.TrimSpace(str)
	}
	q, err := strconv.Atoi(s)
	if err != nil {
		return 0, sales.ErrInvalidQuantity
	}
	if err := sales.ValidateQuantity(q); err != nil {
		return 0, err
	}
	return q, nil
}

func toSaleEventDTO(ev sales.SaleEvent) SaleEventDTO {
	dto := SaleEventDTO{
		ID:           string(ev.ID),
		EmployeeID:   string(ev.EmployeeID),
		EmployeeName: ev.EmployeeName,
		Quantity:     ev.Quantity,
		RecordedBy:   ev.RecordedBy,
		Remark:       ev.Remark,
		RecordedAt:   ev.RecordedAt,
		Edited:       ev.Edited,
	}
	if c := ev.Correction; c != nil {
		at := c.EditedAt
		dto.EditedBy = c.EditedBy
		dto.EditReason = c.Reason
		dto.EditedAt = &at
	}
	return dto
}

func toSaleEventDTOs(evs []sales.SaleEvent) []SaleEventDTO {
	dtos := make([]SaleEventDTO, len(evs))
	for i, ev := range evs {
		dtos[i] = toSaleEventDTO(ev)
	}
	return dtos
}

func toPendingSaleDTO(p sales.PendingSale, ttl time.Duration) *PendingSaleDTO {
	return &PendingSaleDTO{
		ID:           p.ID,
		EmployeeID:   string(p.EmployeeID),
		EmployeeName: p.EmployeeName,
		Quantity:     p.Quantity,
		CurrentTotal: p.Current,
		NewTotal:     p.NewTotal,
		CreatedAt:    p.CreatedAt,
		ExpiresAt:    p.CreatedAt.Add(ttl),
	}
}

func toSaleResultDTO(res sales.SubmitResult, ttl time.Duration) SaleResultDTO {
	dto := SaleResultDTO{Outcome: string(res.Outcome), Total: res.Total}
	if res.Event != nil {
		ev := toSaleEventDTO(*res.Event)
		dto.Status = "committed"
		dto.Event = &ev
	}
	if res.Pending != nil {
		dto.Status = "pending"
		dto.Pending = toPendingSaleDTO(*res.Pending, ttl)
	}
	return dto
}

func toCorrectionRecordDTOs(recs []sales.CorrectionRecord) []CorrectionRecordDTO {
	dtos := make([]CorrectionRecordDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = CorrectionRecordDTO{
			ID:            rec.ID,
			EventID:       string(rec.EventID),
			OldEmployeeID: string(rec.OldEmployeeID),
			OldQuantity:   rec.OldQuantity,
			NewEmployeeID: string(rec.NewEmployeeID),
			NewQuantity:   rec.NewQuantity,
			EditedBy:      rec.EditedBy,
			Reason:        rec.Reason,
			EditedAt:      rec.EditedAt,
		}
	}
	return dtos
}

func toRunningTotalDTOs(totals []sales.RunningTotal) []RunningTotalDTO {
	dtos := make([]RunningTotalDTO, len(totals))
	for i, t := range totals {
		dtos[i] = RunningTotalDTO{
			EmployeeID:   string(t.EmployeeID),
			EmployeeName: t.EmployeeName,
			Total:        t.Total,
			FirstSaleAt:  t.FirstSaleAt,
			UpdatedAt:    t.UpdatedAt,
		}
	}
	return dtos
}

func toAccountDTO(a auth.Account) AccountDTO {
	return AccountDTO{Username: a.Username, Role: a.Role, CreatedBy: a.CreatedBy, CreatedAt: a.CreatedAt}
}
