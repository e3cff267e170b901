package sheets

import (
	"context"
	"slices"
	"strings"
)

// Logical table names shared by every store.
const (
	TableTenants = "tenants"
	TableRecords = "records"
)

type (
	// Row maps a column header to its cell text.
	Row map[string]string

	// Table is a header plus its rows in stored order.
	Table struct {
		Columns []string
		Rows    []Row
	}

	// TabularStore is the minimal contract of a shared tabular store:
	// read a whole table, replace a whole table.
	TabularStore interface {
		ReadAll(ctx context.Context, table string) (Table, error)
		WriteAll(ctx context.Context, table string, t Table) error
	}

	// RowAppender is implemented by stores that can append a single row
	// atomically. columns seeds the header of an empty table; headers
	// missing from an existing table are added at the end.
	RowAppender interface {
		AppendRow(ctx context.Context, table string, columns []string, row Row) error
	}
)

// Keys returns the column names of r in sorted order.
func (r Row) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Get returns the trimmed cell text for a column, or "" when absent.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// Cells returns the row values in header order.
func (t Table) Cells(r Row) []string {
	cells := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cells[i] = r[c]
	}
	return cells
}

// MergeColumns appends to have every column of want it does not contain,
// preserving the existing order.
func MergeColumns(have, want []string) []string {
	seen := make(map[string]bool, len(have))
	out := append([]string(nil), have...)
	for _, c := range have {
		seen[c] = true
	}
	for _, c := range want {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// WholeTableOnly hides any row-level append capability of s, forcing
// callers through read-modify-write of the whole table.
func WholeTableOnly(s TabularStore) TabularStore {
	return wholeTableOnly{s}
}

type wholeTableOnly struct{ s TabularStore }

func (w wholeTableOnly) ReadAll(ctx context.Context, table string) (Table, error) {
	return w.s.ReadAll(ctx, table)
}

func (w wholeTableOnly) WriteAll(ctx context.Context, table string, t Table) error {
	return w.s.WriteAll(ctx, table, t)
}

// Append adds row to table. Stores implementing RowAppender append the row
// atomically. Otherwise the whole table is read, extended and written
// back; two such appends running concurrently can lose one of the rows.
func Append(ctx context.Context, s TabularStore, table string, columns []string, row Row) error {
	if a, ok := s.(RowAppender); ok {
		return a.AppendRow(ctx, table, columns, row)
	}
	t, err := s.ReadAll(ctx, table)
	if err != nil {
		return err
	}
	t.Columns = MergeColumns(t.Columns, columns)
	t.Rows = append(t.Rows, row.Clone())
	return s.WriteAll(ctx, table, t)
}
