package warehouse

import "fmt"

// ResultSet is a tabular query result. All cell values are strings, as
// returned by the Warehouse; callers interpret them against their schema.
type ResultSet struct {
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the index of the first column with the given name.
// Joins can surface the same column name from both sides; the first
// occurrence wins.
func (rs *ResultSet) ColumnIndex(name string) (int, bool) {
	for i, c := range rs.Columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// Project returns a new ResultSet with exactly the named columns, in the
// given order. Unknown columns are an error.
func (rs *ResultSet) Project(cols ...string) (*ResultSet, error) {
	idx := make([]int, len(cols))
	for i, name := range cols {
		j, ok := rs.ColumnIndex(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		idx[i] = j
	}

	out := &ResultSet{
		Columns: append([]string(nil), cols...),
		Rows:    make([][]string, len(rs.Rows)),
	}
	for r, row := range rs.Rows {
		projected := make([]string, len(idx))
		for i, j := range idx {
			if j < len(row) {
				projected[i] = row[j]
			}
		}
		out.Rows[r] = projected
	}
	return out, nil
}
