package directory

import (
	"errors"

	"github.com/warp/ticket-booth/auth"
)

const (
	ColumnUsername = "username"
	ColumnPassword = "password"
)

var ErrMissingAdminColumns = errors.New(`directory: header must contain "username" and "password"`)

// ParseAdminRows extracts credentials from sheet rows, header first.
// Rows with a blank username or password are dropped.
func ParseAdminRows(rows [][]string) ([]auth.Credential, error) {
	if len(rows) == 0 {
		return nil, ErrMissingAdminColumns
	}
	cols, ok := columns(rows[0], ColumnUsername, ColumnPassword)
	if !ok {
		return nil, ErrMissingAdminColumns
	}

	var out []auth.Credential
	for _, row := range rows[1:] {
		c := auth.Credential{Username: cell(row, cols[0]), Password: cell(row, cols[1])}
		if c.Username == "" || c.Password == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// ReadAdminsFile reads an admin sheet (.xlsx or .csv).
func ReadAdminsFile(path string) ([]auth.Credential, error) {
	rows, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseAdminRows(rows)
}
