// Package keyset turns uploaded files into the flat key lists the sync
// engine matches against.
package keyset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"quickedit/internal/apperr"
	"quickedit/internal/match"
)

// Row maps column name to cell value.
type Row map[string]string

// Table is a parsed spreadsheet: the header row plus the data rows.
type Table struct {
	Columns []string
	Rows    []Row
}

// Keys returns the normalized values of column.
func (t *Table) Keys(column string) ([]string, error) {
	column = strings.TrimSpace(column)
	if column == "" {
		return nil, apperr.Validation("no column selected")
	}
	found := false
	for _, c := range t.Columns {
		if c == column {
			found = true
			break
		}
	}
	if !found {
		return nil, apperr.Validation("column %q not found", column)
	}

	values := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		values = append(values, row[column])
	}
	return match.NormalizeKeys(values), nil
}

// FromText reads one key per line. Lines are trimmed and blanks dropped.
func FromText(r io.Reader) ([]string, error) {
	var keys []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		keys = append(keys, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.Validation("read text file: %v", err)
	}
	return match.NormalizeKeys(keys), nil
}

// Read parses a workbook or CSV file, picking the format from the file name.
func Read(filename string, r io.Reader) (*Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return ReadWorkbook(r)
	case ".csv":
		return ReadCSV(r)
	default:
		return nil, apperr.Validation("unsupported file type %q", filepath.Ext(filename))
	}
}

// ReadWorkbook parses the first sheet of an XLSX workbook.
func ReadWorkbook(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Validation("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperr.Validation("read sheet %q: %v", sheets[0], err)
	}
	return newTable(rows)
}

// ReadCSV parses a CSV file whose first record is the header.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Validation("read csv: %v", err)
		}
		records = append(records, record)
	}
	return newTable(records)
}

func newTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, apperr.Validation("file is empty")
	}

	width := 0
	for _, record := range records {
		width = max(width, len(record))
	}
	header := make([]string, width)
	copy(header, records[0])

	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name, _ = excelize.ColumnNumberToName(i + 1)
		}
		n := seen[name]
		seen[name]++
		if n > 0 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		columns[i] = name
	}

	t := &Table{Columns: columns, Rows: make([]Row, 0, len(records)-1)}
	for _, record := range records[1:] {
		row := make(Row, len(columns))
		empty := true
		for i, col := range columns {
			if i >= len(record) {
				break
			}
			v := strings.TrimSpace(record[i])
			if v != "" {
				empty = false
			}
			row[col] = v
		}
		if !empty {
			t.Rows = append(t.Rows, row)
		}
	}
	return t, nil
}
