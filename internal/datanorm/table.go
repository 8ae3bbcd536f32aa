// Package datanorm ingests raw customer tables: it canonicalizes column
// headers, deduplicates customers and imputes missing values, producing one
// clean domain.CustomerRecord per identifier.
package datanorm

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Table is a raw tabular dataset as read from a source. Cells are
// untrimmed strings; interpretation happens in Clean.
type Table struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (t Table) Len() int { return len(t.Rows) }

// Cell returns the cell at (row, col), or "" for short rows.
func (t Table) Cell(row, col int) string {
	r := t.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// ReadCSV reads a headed CSV stream. Rows may have fewer fields than the
// header; missing trailing cells read as empty.
func ReadCSV(r io.Reader) (Table, error) {
	reader := csv.NewReader(stripBOM(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return Table{}, &DataFormatError{Reason: "empty input"}
		}
		return Table{}, fmt.Errorf("read header: %w", err)
	}

	t := Table{Header: header}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row %d: %w", line, err)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteCSV writes the table with its header.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func stripBOM(r io.Reader) io.Reader {
	buf := make([]byte, 3)
	n, err := io.ReadFull(r, buf)
	if err != nil || n < 3 {
		return io.MultiReader(strings.NewReader(string(buf[:n])), r)
	}
	if buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF {
		return r
	}
	return io.MultiReader(strings.NewReader(string(buf[:n])), r)
}

// Dedup keeps the last row per customer identifier. Kept rows stay in their
// original relative order and rows with a blank identifier are dropped, so
// applying Dedup to its own output changes nothing. Only built-in header
// aliases are recognized; use Cleaner.Dedup for configured ones.
func Dedup(t Table) (Table, error) {
	return dedup(t, nil)
}

func dedup(t Table, aliases map[string]CanonicalColumn) (Table, error) {
	m := MapColumns(t.Header, aliases)
	idIdx, ok := m.Index[ColCustomerID]
	if !ok {
		return Table{}, &DataFormatError{Column: ColCustomerID, Reason: "identifier column not found"}
	}
	rows, _, _ := dedupRows(t, idIdx)
	return Table{Header: t.Header, Rows: rows}, nil
}

// dedupRows returns the surviving rows plus the number of rows dropped for
// a blank identifier and the number dropped as superseded duplicates.
func dedupRows(t Table, idIdx int) (kept [][]string, blank, duplicates int) {
	last := make(map[string]int, len(t.Rows))
	for i := range t.Rows {
		id := strings.TrimSpace(t.Cell(i, idIdx))
		if id == "" {
			blank++
			continue
		}
		if _, seen := last[id]; seen {
			duplicates++
		}
		last[id] = i
	}

	kept = make([][]string, 0, len(last))
	for i := range t.Rows {
		id := strings.TrimSpace(t.Cell(i, idIdx))
		if id != "" && last[id] == i {
			kept = append(kept, t.Rows[i])
		}
	}
	return kept, blank, duplicates
}
