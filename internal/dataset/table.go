// Package dataset provides the row-oriented tabular data the matching engine
// consumes and the artifact storage batch results are persisted to.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// Table is a small row-oriented table: a header plus string cells. Datasets
// are uploaded as CSV and read fully into memory by the worker process.
type Table struct {
	Columns []string
	Rows    [][]string
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column extracts one column as a slice. Errors when the column is missing.
func (t *Table) Column(name string) ([]string, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not in table", name)
	}
	col := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		col[i] = row[idx]
	}
	return col, nil
}

// ReadCSV parses a full CSV stream into a Table. The first record is the header.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv has no header row")
	}

	table := &Table{Columns: records[0]}
	for _, rec := range records[1:] {
		// pad short rows so every row has a cell per column
		for len(rec) < len(table.Columns) {
			rec = append(rec, "")
		}
		table.Rows = append(table.Rows, rec[:len(table.Columns)])
	}
	return table, nil
}

// ReadCSVFile opens and parses a CSV file.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSV writes the table as CSV.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
