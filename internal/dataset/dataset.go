// Package dataset turns warehouse query results into training dataset
// artifacts: a headerless CSV with the target column first, plus a manifest
// recording the exact column order the file was written with.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/caldew/loom/internal/warehouse"
)

// TableRef names a feature group's offline table as reported by Describe.
type TableRef struct {
	Group string
	Table string
}

// JoinSQL composes the offline left join of two feature group tables on a
// shared column.
func JoinSQL(left, right TableRef, on string) string {
	return fmt.Sprintf(`SELECT * FROM %s LEFT JOIN %s ON %s.%s = %s.%s`,
		quoteIdent(left.Table), quoteIdent(right.Table),
		quoteIdent(left.Table), quoteIdent(on),
		quoteIdent(right.Table), quoteIdent(on))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Table is a projected dataset: the target column first, then the features.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Build projects the query result down to the training columns. The target
// column comes first, then the features in the given order. Columns absent
// from the result set error.
func Build(rs *warehouse.ResultSet, target string, features []string) (*Table, error) {
	if target == "" {
		return nil, fmt.Errorf("target column is required")
	}
	for _, f := range features {
		if f == target {
			return nil, fmt.Errorf("target %q repeated in features", target)
		}
	}

	projected, err := rs.Project(append([]string{target}, features...)...)
	if err != nil {
		return nil, err
	}
	return &Table{Columns: projected.Columns, Rows: projected.Rows}, nil
}

// WriteCSV writes the table in the training artifact format: no header row,
// no index column. A row (1,2,3) serializes to exactly "1,2,3\n".
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
