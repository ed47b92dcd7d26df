/*
Package sqlstore provides a SQL-backed implementation of the sales storage
interfaces, running on SQLite (go-sqlite3) or PostgreSQL (pgx).

INTERFACES IMPLEMENTED:
  sales.Directory:   Employee lookup
  sales.TxStore:     Events, running totals and corrections, transactional
  sales.ReportStore: Read views
  auth.AccountStore: Login accounts

KEY TABLES:
  employees:        Directory of eligible buyers
  sales:            Sale events (one row per sale, rewritten on correction)
  ticket_totals:    Running total per employee
  sale_corrections: Append-only audit of every correction
  accounts:         Login accounts and roles

DIALECTS:
  Queries are written with ? placeholders and rebound to $n for PostgreSQL.
  Timestamps are stored as fixed-width UTC text so lexical order is
  chronological on both engines. Booleans are stored as INTEGER 0/1.

CONCURRENCY:
  SQLite serialises writers with sync.RWMutex, the same way for file and
  ":memory:" databases. ":memory:" is pinned to one connection, otherwise
  each connection would see its own empty database. On PostgreSQL totals
  are read FOR UPDATE inside a transaction.

USAGE:
  store, err := sqlstore.New("./data/tickets.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := sales.NewLedger(store, sales.Options{})

SEE ALSO:
  - sales/store.go: Interface definitions
  - sales/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/ticket-booth/auth"
	"github.com/warp/ticket-booth/sales"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// timeLayout is fixed width so text comparison orders instants.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type dialect struct {
	driver    string
	serial    string // auto-increment primary key column type
	forUpdate string // row lock suffix for reads inside a transaction
	numbered  bool   // $n placeholders
}

var (
	sqliteDialect   = dialect{driver: DriverSQLite, serial: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	postgresDialect = dialect{driver: DriverPostgres, serial: "BIGSERIAL PRIMARY KEY", forUpdate: " FOR UPDATE", numbered: true}
)

// rebind rewrites ? placeholders for the dialect.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store implements the sales and auth storage interfaces over database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
	mu      sync.RWMutex
	serial  bool // serialise writers (SQLite)
}

// New creates a SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open(DriverSQLite, dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return open(db, sqliteDialect, true)
}

// NewPostgres creates a PostgreSQL store from a pgx DSN.
func NewPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return open(db, postgresDialect, false)
}

// Open dispatches on driver name ("sqlite3" or "pgx"/"postgres").
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, "sqlite":
		return New(dsn)
	case DriverPostgres, "postgres", "postgresql":
		return NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func open(db *sql.DB, d dialect, serial bool) (*Store, error) {
	store := &Store{db: db, dialect: d, serial: serial}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string { return s.dialect.driver }

// migrate creates the database schema.
func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS employees (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			seq ` + s.dialect.serial + `,
			id TEXT NOT NULL UNIQUE,
			employee_id TEXT NOT NULL,
			employee_name TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			recorded_by TEXT NOT NULL,
			remark TEXT NOT NULL DEFAULT '',
			recorded_at TEXT NOT NULL,
			edited INTEGER NOT NULL DEFAULT 0,
			edited_by TEXT,
			edit_reason TEXT,
			edited_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_employee ON sales(employee_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_recorded_at ON sales(recorded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_recorded_by ON sales(recorded_by)`,
		`CREATE TABLE IF NOT EXISTS ticket_totals (
			employee_id TEXT PRIMARY KEY,
			employee_name TEXT NOT NULL,
			total INTEGER NOT NULL CHECK (total >= 0),
			first_sale_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sale_corrections (
			seq ` + s.dialect.serial + `,
			id TEXT NOT NULL UNIQUE,
			event_id TEXT NOT NULL,
			old_employee_id TEXT NOT NULL,
			old_quantity INTEGER NOT NULL,
			new_employee_id TEXT NOT NULL,
			new_quantity INTEGER NOT NULL,
			edited_by TEXT NOT NULL,
			reason TEXT NOT NULL,
			edited_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_corrections_event ON sale_corrections(event_id)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			created_by TEXT,
			created_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) rlock() func() {
	if !s.serial {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) wlock() func() {
	if !s.serial {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// =============================================================================
// DIRECTORY
// =============================================================================

// SaveEmployees upserts the batch in one transaction.
func (s *Store) SaveEmployees(ctx context.Context, emps []sales.Employee) error {
	defer s.wlock()()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := s.dialect.rebind(`
		INSERT INTO employees (id, name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name
	`)
	for _, e := range emps {
		if _, err := tx.ExecContext(ctx, query, string(e.ID), e.Name); err != nil {
			return fmt.Errorf("failed to save employee %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) LookupEmployee(ctx context.Context, id sales.EmployeeID) (*sales.Employee, error) {
	defer s.rlock()()

	var e sales.Employee
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT id, name FROM employees WHERE id = ?`), string(id)).
		Scan(&e.ID, &e.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) CountEmployees(ctx context.Context) (int, error) {
	defer s.rlock()()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM employees`).Scan(&n)
	return n, err
}

// =============================================================================
// STORE
// =============================================================================

func (s *Store) AppendEvent(ctx context.Context, ev sales.SaleEvent) error {
	defer s.wlock()()
	return s.appendEvent(ctx, s.db, ev)
}

func (s *Store) GetEvent(ctx context.Context, id sales.EventID) (*sales.SaleEvent, error) {
	defer s.rlock()()
	return s.getEvent(ctx, s.db, id)
}

func (s *Store) UpdateEvent(ctx context.Context, ev sales.SaleEvent) error {
	defer s.wlock()()
	return s.updateEvent(ctx, s.db, ev)
}

func (s *Store) GetTotal(ctx context.Context, id sales.EmployeeID) (*sales.RunningTotal, error) {
	defer s.rlock()()
	return s.getTotal(ctx, s.db, id, false)
}

func (s *Store) PutTotal(ctx context.Context, t sales.RunningTotal) error {
	defer s.wlock()()
	return s.putTotal(ctx, s.db, t)
}

func (s *Store) DeleteTotal(ctx context.Context, id sales.EmployeeID) error {
	defer s.wlock()()
	return s.deleteTotal(ctx, s.db, id)
}

func (s *Store) AppendCorrection(ctx context.Context, rec sales.CorrectionRecord) error {
	defer s.wlock()()
	return s.appendCorrection(ctx, s.db, rec)
}

const eventColumns = `id, employee_id, employee_name, quantity, recorded_by, remark, recorded_at,
	edited, edited_by, edit_reason, edited_at`

func (s *Store) appendEvent(ctx context.Context, q queryer, ev sales.SaleEvent) error {
	_, err := q.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO sales (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), eventArgs(ev)...)
	if err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}
	return nil
}

func (s *Store) updateEvent(ctx context.Context, q queryer, ev sales.SaleEvent) error {
	args := eventArgs(ev)
	res, err := q.ExecContext(ctx, s.dialect.rebind(`
		UPDATE sales SET employee_id = ?, employee_name = ?, quantity = ?, recorded_by = ?,
			remark = ?, recorded_at = ?, edited = ?, edited_by = ?, edit_reason = ?, edited_at = ?
		WHERE id = ?
	`), append(args[1:], args[0])...)
	if err != nil {
		return fmt.Errorf("failed to update sale: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sales.ErrEventNotFound
	}
	return nil
}

func eventArgs(ev sales.SaleEvent) []any {
	edited := 0
	var editedBy, reason, editedAt sql.NullString
	if ev.Edited {
		edited = 1
	}
	if c := ev.Correction; c != nil {
		editedBy = nullString(c.EditedBy)
		reason = nullString(c.Reason)
		editedAt = nullString(formatTime(c.EditedAt))
	}
	return []any{
		string(ev.ID), string(ev.EmployeeID), ev.EmployeeName, ev.Quantity, ev.RecordedBy,
		ev.Remark, formatTime(ev.RecordedAt), edited, editedBy, reason, editedAt,
	}
}

func (s *Store) getEvent(ctx context.Context, q queryer, id sales.EventID) (*sales.SaleEvent, error) {
	row := q.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+eventColumns+` FROM sales WHERE id = ?`), string(id))
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (sales.SaleEvent, error) {
	var (
		ev                           sales.SaleEvent
		recordedAt                   string
		edited                       int
		editedBy, reason, editedAtNS sql.NullString
	)
	err := row.Scan(&ev.ID, &ev.EmployeeID, &ev.EmployeeName, &ev.Quantity, &ev.RecordedBy,
		&ev.Remark, &recordedAt, &edited, &editedBy, &reason, &editedAtNS)
	if err != nil {
		return sales.SaleEvent{}, err
	}
	if ev.RecordedAt, err = parseTime(recordedAt); err != nil {
		return sales.SaleEvent{}, err
	}
	ev.Edited = edited != 0
	if editedAtNS.Valid {
		at, err := parseTime(editedAtNS.String)
		if err != nil {
			return sales.SaleEvent{}, err
		}
		ev.Correction = &sales.CorrectionMeta{EditedBy: editedBy.String, Reason: reason.String, EditedAt: at}
	}
	return ev, nil
}

// totalQuery selects one running total. locked adds the dialect's row
// lock, used for reads inside a transaction.
func (d dialect) totalQuery(locked bool) string {
	q := `
		SELECT employee_id, employee_name, total, first_sale_at, updated_at
		FROM ticket_totals WHERE employee_id = ?`
	if locked {
		q += d.forUpdate
	}
	return d.rebind(q)
}

func (s *Store) getTotal(ctx context.Context, q queryer, id sales.EmployeeID, locked bool) (*sales.RunningTotal, error) {
	var (
		t                    sales.RunningTotal
		firstSale, updatedAt string
	)
	err := q.QueryRowContext(ctx, s.dialect.totalQuery(locked), string(id)).
		Scan(&t.EmployeeID, &t.EmployeeName, &t.Total, &firstSale, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if t.FirstSaleAt, err = parseTime(firstSale); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) putTotal(ctx context.Context, q queryer, t sales.RunningTotal) error {
	_, err := q.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO ticket_totals (employee_id, employee_name, total, first_sale_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (employee_id) DO UPDATE SET
			employee_name = excluded.employee_name,
			total = excluded.total,
			first_sale_at = excluded.first_sale_at,
			updated_at = excluded.updated_at
	`), string(t.EmployeeID), t.EmployeeName, t.Total, formatTime(t.FirstSaleAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert total: %w", err)
	}
	return nil
}

func (s *Store) deleteTotal(ctx context.Context, q queryer, id sales.EmployeeID) error {
	_, err := q.ExecContext(ctx, s.dialect.rebind(`DELETE FROM ticket_totals WHERE employee_id = ?`), string(id))
	if err != nil {
		return fmt.Errorf("failed to delete total: %w", err)
	}
	return nil
}

func (s *Store) appendCorrection(ctx context.Context, q queryer, rec sales.CorrectionRecord) error {
	_, err := q.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO sale_corrections (id, event_id, old_employee_id, old_quantity,
			new_employee_id, new_quantity, edited_by, reason, edited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), rec.ID, string(rec.EventID), string(rec.OldEmployeeID), rec.OldQuantity,
		string(rec.NewEmployeeID), rec.NewQuantity, rec.EditedBy, rec.Reason, formatTime(rec.EditedAt))
	if err != nil {
		return fmt.Errorf("failed to insert correction: %w", err)
	}
	return nil
}

// =============================================================================
// REPORTS
// =============================================================================

func (s *Store) ListEvents(ctx context.Context) ([]sales.SaleEvent, error) {
	defer s.rlock()()

	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM sales ORDER BY recorded_at DESC, seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sales.SaleEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) ListTotals(ctx context.Context) ([]sales.RunningTotal, error) {
	defer s.rlock()()

	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_id, employee_name, total, first_sale_at, updated_at
		FROM ticket_totals ORDER BY total DESC, employee_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sales.RunningTotal
	for rows.Next() {
		var (
			t                    sales.RunningTotal
			firstSale, updatedAt string
		)
		if err := rows.Scan(&t.EmployeeID, &t.EmployeeName, &t.Total, &firstSale, &updatedAt); err != nil {
			return nil, err
		}
		if t.FirstSaleAt, err = parseTime(firstSale); err != nil {
			return nil, err
		}
		if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) SumTotals(ctx context.Context) (int, error) {
	defer s.rlock()()

	var sum int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total), 0) FROM ticket_totals`).Scan(&sum)
	return sum, err
}

func (s *Store) SellerTotals(ctx context.Context) ([]sales.SellerTotal, error) {
	defer s.rlock()()

	rows, err := s.db.QueryContext(ctx, `
		SELECT recorded_by, COALESCE(SUM(quantity), 0) AS qty, COUNT(*) AS n
		FROM sales GROUP BY recorded_by
		ORDER BY qty DESC, recorded_by ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sales.SellerTotal
	for rows.Next() {
		var st sales.SellerTotal
		if err := rows.Scan(&st.RecordedBy, &st.Quantity, &st.Sales); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) ListCorrections(ctx context.Context, id sales.EventID) ([]sales.CorrectionRecord, error) {
	defer s.rlock()()

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT id, event_id, old_employee_id, old_quantity, new_employee_id, new_quantity,
			edited_by, reason, edited_at
		FROM sale_corrections WHERE event_id = ? ORDER BY seq ASC
	`), string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sales.CorrectionRecord
	for rows.Next() {
		var (
			rec      sales.CorrectionRecord
			editedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.OldEmployeeID, &rec.OldQuantity,
			&rec.NewEmployeeID, &rec.NewQuantity, &rec.EditedBy, &rec.Reason, &editedAt); err != nil {
			return nil, err
		}
		if rec.EditedAt, err = parseTime(editedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store sales.Store) error) error {
	defer s.wlock()()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) AppendEvent(ctx context.Context, ev sales.SaleEvent) error {
	return ts.parent.appendEvent(ctx, ts.tx, ev)
}

func (ts *txStore) GetEvent(ctx context.Context, id sales.EventID) (*sales.SaleEvent, error) {
	return ts.parent.getEvent(ctx, ts.tx, id)
}

func (ts *txStore) UpdateEvent(ctx context.Context, ev sales.SaleEvent) error {
	return ts.parent.updateEvent(ctx, ts.tx, ev)
}

func (ts *txStore) GetTotal(ctx context.Context, id sales.EmployeeID) (*sales.RunningTotal, error) {
	return ts.parent.getTotal(ctx, ts.tx, id, true)
}

func (ts *txStore) PutTotal(ctx context.Context, t sales.RunningTotal) error {
	return ts.parent.putTotal(ctx, ts.tx, t)
}

func (ts *txStore) DeleteTotal(ctx context.Context, id sales.EmployeeID) error {
	return ts.parent.deleteTotal(ctx, ts.tx, id)
}

func (ts *txStore) AppendCorrection(ctx context.Context, rec sales.CorrectionRecord) error {
	return ts.parent.appendCorrection(ctx, ts.tx, rec)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// CreateAccount inserts a new account; auth.ErrAccountExists if taken.
func (s *Store) CreateAccount(ctx context.Context, a auth.Account) error {
	defer s.wlock()()

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO accounts (username, password_hash, role, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), a.Username, a.PasswordHash, string(a.Role), nullString(a.CreatedBy), formatTime(a.CreatedAt))
	if isUniqueConstraintError(err) {
		return auth.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, username string) (*auth.Account, error) {
	defer s.rlock()()

	var (
		a         auth.Account
		role      string
		createdBy sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT username, password_hash, role, created_by, created_at FROM accounts WHERE username = ?
	`), username).Scan(&a.Username, &a.PasswordHash, &role, &createdBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Role = auth.Role(role)
	a.CreatedBy = createdBy.String
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAccount replaces the password hash and role of an existing
// account; auth.ErrAccountNotFound if there is none.
func (s *Store) UpdateAccount(ctx context.Context, a auth.Account) error {
	defer s.wlock()()

	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		UPDATE accounts SET password_hash = ?, role = ? WHERE username = ?
	`), a.PasswordHash, string(a.Role), a.Username)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes an account. Unknown usernames are ignored.
func (s *Store) DeleteAccount(ctx context.Context, username string) error {
	defer s.wlock()()

	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM accounts WHERE username = ?`), username); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// ListAccounts returns every account ordered by username.
func (s *Store) ListAccounts(ctx context.Context) ([]auth.Account, error) {
	defer s.rlock()()

	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, created_by, created_at FROM accounts ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Account
	for rows.Next() {
		var (
			a         auth.Account
			role      string
			createdBy sql.NullString
			createdAt string
		)
		if err := rows.Scan(&a.Username, &a.PasswordHash, &role, &createdBy, &createdAt); err != nil {
			return nil, err
		}
		a.Role = auth.Role(role)
		a.CreatedBy = createdBy.String
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

var (
	_ sales.Backend     = (*Store)(nil)
	_ auth.AccountStore = (*Store)(nil)
)
