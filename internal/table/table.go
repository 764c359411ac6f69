// Package table collects merged front/back rows and writes them as CSV.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/NHMDenmark/NHMDlabelreader/internal/correspond"
	"github.com/NHMDenmark/NHMDlabelreader/internal/region"
)

const (
	frontPrefix = "front_"
	backPrefix  = "back_"
)

// Table accumulates rows in arrival order. It is safe for concurrent use.
//
// The header is the union of all field names seen so far, so the file is
// rewritten in full on every WriteFile.
type Table struct {
	mu   sync.Mutex
	rows []correspond.Row
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

// Append adds rows to the end of the table.
func (t *Table) Append(rows ...correspond.Row) {
	t.mu.Lock()
	t.rows = append(t.rows, rows...)
	t.mu.Unlock()
}

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Rows returns a copy of the rows.
func (t *Table) Rows() []correspond.Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]correspond.Row(nil), t.rows...)
}

// Header returns the column names: "key", the sorted front fields, the
// sorted back fields and finally the four centroid columns.
func (t *Table) Header() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return names(columns(t.rows))
}

// column is a field column; back selects Row.Back over Row.Front.
type column struct {
	name  string
	field string
	back  bool
}

var centroidColumns = []string{"front_centroid_row", "front_centroid_col", "back_centroid_row", "back_centroid_col"}

func columns(rows []correspond.Row) []column {
	front, back := map[string]bool{}, map[string]bool{}
	for _, r := range rows {
		for k := range r.Front {
			front[k] = true
		}
		for k := range r.Back {
			back[k] = true
		}
	}
	cols := fieldColumns(frontPrefix, front, false)
	return append(cols, fieldColumns(backPrefix, back, true)...)
}

func fieldColumns(prefix string, set map[string]bool, back bool) []column {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cols := make([]column, len(keys))
	for i, k := range keys {
		cols[i] = column{name: prefix + k, field: k, back: back}
	}
	return cols
}

func names(cols []column) []string {
	h := make([]string, 0, len(cols)+5)
	h = append(h, "key")
	for _, c := range cols {
		h = append(h, c.name)
	}
	return append(h, centroidColumns...)
}

// Write writes the header and all rows to w. Missing fields are empty.
func (t *Table) Write(w io.Writer) error {
	t.mu.Lock()
	rows := append([]correspond.Row(nil), t.rows...)
	t.mu.Unlock()

	cols := columns(rows)
	cw := csv.NewWriter(w)
	if err := cw.Write(names(cols)); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, r := range rows {
		if err := cw.Write(record(cols, r)); err != nil {
			return fmt.Errorf("writing CSV record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func record(cols []column, r correspond.Row) []string {
	out := make([]string, 0, len(cols)+5)
	out = append(out, r.Key)
	for _, c := range cols {
		if c.back {
			out = append(out, r.Back[c.field])
		} else {
			out = append(out, r.Front[c.field])
		}
	}
	out = append(out, point(r.FrontCentroid)...)
	return append(out, point(r.BackCentroid)...)
}

func point(p *region.Point) []string {
	if p == nil {
		return []string{"", ""}
	}
	return []string{formatFloat(p.Row), formatFloat(p.Col)}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// WriteFile replaces the CSV at path with the current table. The file is
// written next to path first and renamed into place.
func (t *Table) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".labels-*.csv")
	if err != nil {
		return fmt.Errorf("opening CSV file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := t.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing CSV file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing CSV file: %w", err)
	}
	return nil
}
