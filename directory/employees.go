/*
Package directory loads the employee directory and the admin sheet from
spreadsheet exports.

FORMATS:
  .xlsx workbooks (first sheet) read with excelize, and .csv files. The
  file extension picks the reader.

EMPLOYEES:
  Header row containing "Employee ID" and "Employee Name" (case and
  surrounding space ignored; other columns are skipped). Values are
  trimmed. Rows with a blank id or name are dropped. A repeated id keeps
  the last name seen.

ADMINS:
  Header row containing "username" and "password", see admins.go.
*/
package directory

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/warp/ticket-booth/sales"
)

const (
	ColumnID   = "Employee ID"
	ColumnName = "Employee Name"
)

var ErrMissingColumns = errors.New(`directory: header must contain "Employee ID" and "Employee Name"`)

// Parse reads employees from CSV, in file order.
func Parse(r io.Reader) ([]sales.Employee, error) {
	return ParseFormat(r, FormatCSV)
}

// ParseFormat reads employees from r in the given format.
func ParseFormat(r io.Reader, format Format) ([]sales.Employee, error) {
	rows, err := ReadRows(r, format)
	if err != nil {
		return nil, err
	}
	return ParseRows(rows)
}

// ParseRows extracts employees from sheet rows, header first.
func ParseRows(rows [][]string) ([]sales.Employee, error) {
	if len(rows) == 0 {
		return nil, ErrMissingColumns
	}
	cols, ok := columns(rows[0], ColumnID, ColumnName)
	if !ok {
		return nil, ErrMissingColumns
	}
	idCol, nameCol := cols[0], cols[1]

	index := make(map[sales.EmployeeID]int)
	var out []sales.Employee
	for _, row := range rows[1:] {
		id := sales.EmployeeID(cell(row, idCol))
		name := cell(row, nameCol)
		if id == "" || name == "" {
			continue
		}
		if i, ok := index[id]; ok {
			out[i].Name = name
			continue
		}
		index[id] = len(out)
		out = append(out, sales.Employee{ID: id, Name: name})
	}
	return out, nil
}

// Import parses CSV from r and saves every employee through roster.
func Import(ctx context.Context, r io.Reader, roster sales.Roster) (int, error) {
	emps, err := Parse(r)
	if err != nil {
		return 0, err
	}
	return save(ctx, emps, roster)
}

// ImportFile reads an .xlsx or .csv file and saves every employee.
func ImportFile(ctx context.Context, path string, roster sales.Roster) (int, error) {
	rows, err := ReadFile(path)
	if err != nil {
		return 0, err
	}
	emps, err := ParseRows(rows)
	if err != nil {
		return 0, err
	}
	return save(ctx, emps, roster)
}

func save(ctx context.Context, emps []sales.Employee, roster sales.Roster) (int, error) {
	if len(emps) == 0 {
		return 0, nil
	}
	if err := roster.SaveEmployees(ctx, emps); err != nil {
		return 0, fmt.Errorf("directory: save: %w", err)
	}
	return len(emps), nil
}
