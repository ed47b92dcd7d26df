/*
store.go - Persistence contract for the sales ledger

PURPOSE:
  Defines the interface between the sales workflows and the database.
  The Ledger is the only caller that mutates through these interfaces.

KEY INTERFACES:
  Directory:   Read-only employee lookup
  Roster:      Bulk directory writes (import)
  Store:       Event + running-total reads and writes
  TxStore:     Store with all-or-nothing WithTx
  ReportStore: Read views for reports

ATOMICITY:
  Every sale commits an event append and a total upsert; every correction
  commits up to two total writes, an event rewrite and an audit row. All of
  them happen within one WithTx call. If fn returns an error nothing it
  wrote is kept.

NOT FOUND:
  Single-row getters return (nil, nil) when the row does not exist.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite and PostgreSQL
  - sales/store/memory.go: In-memory for tests and demos
*/
package sales

import "context"

// Directory resolves employee ids to directory entries.
type Directory interface {
	LookupEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
}

// Roster upserts directory entries in bulk.
type Roster interface {
	SaveEmployees(ctx context.Context, emps []Employee) error
}

// Store holds the sales ledger and running totals.
type Store interface {
	AppendEvent(ctx context.Context, ev SaleEvent) error
	GetEvent(ctx context.Context, id EventID) (*SaleEvent, error)
	// UpdateEvent rewrites an existing event in place (corrections only).
	UpdateEvent(ctx context.Context, ev SaleEvent) error

	GetTotal(ctx context.Context, id EmployeeID) (*RunningTotal, error)
	PutTotal(ctx context.Context, t RunningTotal) error
	DeleteTotal(ctx context.Context, id EmployeeID) error

	AppendCorrection(ctx context.Context, rec CorrectionRecord) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// ReportStore serves the reporting views.
type ReportStore interface {
	// ListEvents returns every event, newest first.
	ListEvents(ctx context.Context) ([]SaleEvent, error)
	// ListTotals returns every running total, highest first.
	ListTotals(ctx context.Context) ([]RunningTotal, error)
	SumTotals(ctx context.Context) (int, error)
	// SellerTotals aggregates the event stream by RecordedBy, highest first.
	SellerTotals(ctx context.Context) ([]SellerTotal, error)
	ListCorrections(ctx context.Context, id EventID) ([]CorrectionRecord, error)
	CountEmployees(ctx context.Context) (int, error)
}

// Backend is everything the Ledger needs from a single database.
type Backend interface {
	Directory
	TxStore
	ReportStore
}
