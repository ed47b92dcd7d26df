/*
Package sales provides the ticket-sales bookkeeping core.

PURPOSE:
  Employees buy up to a fixed quota of tickets, sellers record the sales,
  and admins review aggregated reports. This package holds the rules that
  decide whether a sale may be recorded, the workflow that records it, and
  the correction workflow that amends it afterwards.

KEY CONCEPTS IN THIS FILE (types.go):
  - Employee:      Directory entry (id + display name), loaded by import
  - SaleEvent:     One recorded purchase in the sales ledger
  - RunningTotal:  Per-employee sum of quantities, used for quota checks
  - CorrectionRecord: Audit row written every time a sale is corrected

CORE INVARIANT:
  For every employee e:

    RunningTotal[e].Total == sum(Quantity) over SaleEvents attributed to e

  Every write path (Submit, Confirm, Correct) changes the ledger and the
  totals inside one store transaction, so the invariant holds after each
  committed operation. Ledger.Verify recomputes it from scratch.

SEE ALSO:
  - policy.go: Quota decision
  - ledger.go: Sale and correction workflows
  - store.go: Persistence contract
*/
package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LIMITS
// =============================================================================

const (
	// MaxPerEmployee is the most tickets a single employee may hold.
	MaxPerEmployee = 10

	// MinQuantity and MaxQuantity bound a single sale.
	MinQuantity = 1
	MaxQuantity = 10

	// DefaultTicketCap is the global number of tickets available for sale.
	DefaultTicketCap = 20000
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type EventID string

// =============================================================================
// EMPLOYEE - Directory entry
// =============================================================================

// Employee is immutable once imported. The core never creates employees.
type Employee struct {
	ID   EmployeeID
	Name string
}

// =============================================================================
// SALE EVENT - Ledger entry
// =============================================================================

// SaleEvent records one purchase. Events are never deleted; a correction
// rewrites the event in place, sets Edited and attaches Correction.
type SaleEvent struct {
	ID           EventID
	EmployeeID   EmployeeID
	EmployeeName string // snapshot at the time of the sale (or correction)
	Quantity     int
	RecordedBy   string
	Remark       string // required for repeat purchases
	RecordedAt   time.Time
	Edited       bool
	Correction   *CorrectionMeta
}

// CorrectionMeta is attached to an event by the latest correction.
type CorrectionMeta struct {
	EditedBy string
	Reason   string
	EditedAt time.Time
}

// =============================================================================
// RUNNING TOTAL
// =============================================================================

type RunningTotal struct {
	EmployeeID   EmployeeID
	EmployeeName string
	Total        int
	FirstSaleAt  time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// CORRECTION AUDIT
// =============================================================================

// CorrectionRecord is an append-only audit row. The event itself only keeps
// the latest correction metadata; the full history lives here.
type CorrectionRecord struct {
	ID            string
	EventID       EventID
	OldEmployeeID EmployeeID
	OldQuantity   int
	NewEmployeeID EmployeeID
	NewQuantity   int
	EditedBy      string
	Reason        string
	EditedAt      time.Time
}

// =============================================================================
// REPORT VIEWS
// =============================================================================

// SellerTotal is one row of the seller leaderboard.
type SellerTotal struct {
	RecordedBy string
	Quantity   int
	Sales      int
}

// Summary is the "total sold so far" view against the global cap.
type Summary struct {
	Employees int
	Buyers    int
	Sold      int
	Cap       int
	Remaining int
	SoldRatio decimal.Decimal // Sold / Cap, rounded to 4 places
}

// Drift describes a stored total that disagrees with the event stream.
type Drift struct {
	EmployeeID EmployeeID
	Stored     int
	FromEvents int
}
