package directory

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/ticket-booth/auth"
	"github.com/warp/ticket-booth/sales"
	"github.com/warp/ticket-booth/sales/store"
)

// xlsxBytes renders rows as a one-sheet workbook.
func xlsxBytes(rows [][]string) ([]byte, error) {
	wb := excelize.NewFile()
	defer wb.Close()
	sheet := wb.GetSheetName(0)
	for i, row := range rows {
		vals := make([]interface{}, len(row))
		for j, v := range row {
			vals[j] = v
		}
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := wb.SetSheetRow(sheet, axis, &vals); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path     string
		expected Format
		err      error
	}{
		{path: "employees.xlsx", expected: FormatXLSX},
		{path: "EMPLOYEES.XLSX", expected: FormatXLSX},
		{path: "macro.xlsm", expected: FormatXLSX},
		{path: "dir/employees.csv", expected: FormatCSV},
		{path: "employees.xls", err: ErrUnsupportedFormat},
		{path: "employees", err: ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatOf(tt.path)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseFormat_XLSX(t *testing.T) {
	// GIVEN: a workbook with an extra column, a blank row and a repeat id
	data, err := xlsxBytes([][]string{
		{"Dept", " employee id ", "EMPLOYEE NAME"},
		{"Ops", "210679", " Rahim Uddin "},
		{"Ops", "", "No Id"},
		{"HR", "210681", "Karim"},
		{"HR", "210679", "Rahim U."},
	})
	require.NoError(t, err)

	// WHEN
	emps, err := ParseFormat(bytes.NewReader(data), FormatXLSX)
	require.NoError(t, err)

	// THEN: same rules as CSV
	assert.Equal(t, []sales.Employee{
		{ID: "210679", Name: "Rahim U."},
		{ID: "210681", Name: "Karim"},
	}, emps)
}

func TestParseFormat_XLSXReadsFirstSheet(t *testing.T) {
	wb := excelize.NewFile()
	defer wb.Close()
	first := wb.GetSheetName(0)
	require.NoError(t, wb.SetSheetRow(first, "A1", &[]interface{}{"Employee ID", "Employee Name"}))
	require.NoError(t, wb.SetSheetRow(first, "A2", &[]interface{}{"E1", "Alice"}))
	_, err := wb.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, wb.SetSheetRow("Other", "A1", &[]interface{}{"Employee ID", "Employee Name"}))
	require.NoError(t, wb.SetSheetRow("Other", "A2", &[]interface{}{"E9", "Ignored"}))
	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))

	emps, err := ParseFormat(&buf, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, []sales.Employee{{ID: "E1", Name: "Alice"}}, emps)
}

func TestParseFormat_NotAWorkbook(t *testing.T) {
	_, err := ParseFormat(bytes.NewReader([]byte("Employee ID,Employee Name\n")), FormatXLSX)
	assert.ErrorContains(t, err, "open workbook")
}

func TestImportFile_DispatchesOnExtension(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	data, err := xlsxBytes([][]string{{"Employee ID", "Employee Name"}, {"E1", "Alice"}, {"E2", "Bob"}})
	require.NoError(t, err)
	n, err := ImportFile(ctx, writeFile(t, "employees.xlsx", data), mem)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = ImportFile(ctx, writeFile(t, "more.csv", []byte("Employee ID,Employee Name\nE3,Carol\nE1,Alicia\n")), mem)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := mem.CountEmployees(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	emp, err := mem.LookupEmployee(ctx, "E1")
	require.NoError(t, err)
	require.NotNil(t, emp)
	assert.Equal(t, "Alicia", emp.Name)

	_, err = ImportFile(ctx, writeFile(t, "employees.txt", []byte("x")), mem)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseAdminRows(t *testing.T) {
	creds, err := ParseAdminRows([][]string{
		{"Username", "Password", "Note"},
		{" karim ", " pw1 "},
		{"nadia", ""},
		{"", "pw"},
		{"admin", "admin123"},
	})
	require.NoError(t, err)

	// The default admin row is kept here; Accounts.Sync skips it.
	assert.Equal(t, []auth.Credential{
		{Username: "karim", Password: "pw1"},
		{Username: "admin", Password: "admin123"},
	}, creds)

	_, err = ParseAdminRows([][]string{{"user", "pass"}})
	assert.ErrorIs(t, err, ErrMissingAdminColumns)
	_, err = ParseAdminRows(nil)
	assert.ErrorIs(t, err, ErrMissingAdminColumns)
}

func TestReadAdminsFile_XLSX(t *testing.T) {
	data, err := xlsxBytes([][]string{{"username", "password"}, {"rahim", "1234"}})
	require.NoError(t, err)

	creds, err := ReadAdminsFile(writeFile(t, "admins.xlsx", data))
	require.NoError(t, err)
	assert.Equal(t, []auth.Credential{{Username: "rahim", Password: "1234"}}, creds)
}
