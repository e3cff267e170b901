package google

import (
	"fmt"
	"strconv"
	"strings"

	ports "sewa/internal/sheets"
)

// tableFromValues converts a values matrix (as returned by the Sheets API)
// into a Table. Row 1 is the header; fully empty rows are skipped and
// headerless columns are ignored.
func tableFromValues(values [][]interface{}) ports.Table {
	if len(values) == 0 {
		return ports.Table{}
	}
	t := ports.Table{Columns: trimTrailingEmpty(toStrings(values[0]))}
	for _, raw := range values[1:] {
		cells := toStrings(raw)
		if isEmpty(cells) {
			continue
		}
		row := make(ports.Row, len(t.Columns))
		for i, col := range t.Columns {
			if col == "" {
				continue
			}
			row[col] = safeGet(cells, i)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func valuesFromTable(t ports.Table) [][]interface{} {
	out := make([][]interface{}, 0, len(t.Rows)+1)
	out = append(out, toInterfaces(t.Columns))
	for _, r := range t.Rows {
		out = append(out, toInterfaces(t.Cells(r)))
	}
	return out
}

// padGrid extends values with empty cells until it covers every cell of
// previous.
func padGrid(values, previous [][]interface{}) [][]interface{} {
	width := 0
	for _, grid := range [][][]interface{}{values, previous} {
		for _, row := range grid {
			width = max(width, len(row))
		}
	}
	height := max(len(values), len(previous))

	out := make([][]interface{}, height)
	for i := range out {
		row := make([]interface{}, width)
		for j := range row {
			row[j] = ""
		}
		if i < len(values) {
			copy(row, values[i])
		}
		out[i] = row
	}
	return out
}

// toStrings renders API cell values. Unformatted numbers arrive as
// float64 and are printed without exponent or trailing zeros.
func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch x := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			out[i] = strings.ToUpper(strconv.FormatBool(x))
		case nil:
			out[i] = ""
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func trimTrailingEmpty(in []string) []string {
	n := len(in)
	for n > 0 && strings.TrimSpace(in[n-1]) == "" {
		n--
	}
	return in[:n]
}

func isEmpty(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// quoteSheet quotes a sheet name for use in A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
