package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"sewa/internal/sheets"
)

// Store keeps tables in process memory. Reads return copies so callers
// never share state with the store.
type Store struct {
	mu     sync.Mutex
	tables map[string]sheets.Table
}

func New() *Store {
	return &Store{tables: make(map[string]sheets.Table)}
}

// NewFromFiles seeds the tenant table from seed_tenants.csv in base, if
// present. The first non-comment line is the header.
func NewFromFiles(base string) (*Store, error) {
	s := New()
	tbl, err := readCSV(filepath.Join(base, "seed_tenants.csv"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	s.tables[sheets.TableTenants] = tbl
	return s, nil
}

func (s *Store) ReadAll(_ context.Context, table string) (sheets.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[table].Clone(), nil
}

func (s *Store) WriteAll(_ context.Context, table string, t sheets.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = t.Clone()
	return nil
}

func (s *Store) AppendRow(_ context.Context, table string, columns []string, row sheets.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tables[table]
	t.Columns = sheets.MergeColumns(t.Columns, columns)
	t.Columns = sheets.MergeColumns(t.Columns, row.Keys())
	t.Rows = append(t.Rows, row.Clone())
	s.tables[table] = t
	return nil
}

func readCSV(path string) (sheets.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return sheets.Table{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	lines, err := r.ReadAll()
	if err != nil {
		return sheets.Table{}, err
	}

	var tbl sheets.Table
	for _, line := range lines {
		if isBlank(line) {
			continue
		}
		if tbl.Columns == nil {
			for _, c := range line {
				tbl.Columns = append(tbl.Columns, strings.TrimSpace(c))
			}
			continue
		}
		row := make(sheets.Row, len(tbl.Columns))
		for i, c := range tbl.Columns {
			if i < len(line) {
				row[c] = strings.TrimSpace(line[i])
			}
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

func isBlank(line []string) bool {
	for _, v := range line {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
