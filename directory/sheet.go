package directory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is a spreadsheet file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	ErrUnsupportedFormat = errors.New("directory: unsupported file format (want .xlsx or .csv)")
	ErrEmptyWorkbook     = errors.New("directory: workbook has no sheets")
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	}
	return "", ErrUnsupportedFormat
}

// ReadRows returns every row of the sheet, header first. For workbooks
// only the first sheet is read.
func ReadRows(r io.Reader, format Format) ([][]string, error) {
	switch format {
	case FormatCSV:
		return readCSV(r)
	case FormatXLSX:
		return readXLSX(r)
	}
	return nil, ErrUnsupportedFormat
}

// ReadFile opens path and reads it in the format its extension names.
func ReadFile(path string) ([][]string, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRows(f, format)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("directory: open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("directory: read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// columns finds each wanted header, ignoring case, a byte order mark and
// surrounding space. ok is false when any is missing.
func columns(header []string, wanted ...string) (idx []int, ok bool) {
	idx = make([]int, len(wanted))
	for i := range idx {
		idx[i] = -1
	}
	for col, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		for i, w := range wanted {
			if idx[i] < 0 && strings.EqualFold(h, w) {
				idx[i] = col
			}
		}
	}
	for _, i := range idx {
		if i < 0 {
			return nil, false
		}
	}
	return idx, true
}

// cell returns the trimmed value at col, or "" for a short row.
func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
