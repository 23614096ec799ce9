package database

import (
	"database/sql"

	"github.com/koustreak/arcforge/internal/errs"
)

// ScanAll reads every row of the result set as positional values, keeping the
// column order reported by the driver. Byte slices are copied to strings so
// the values remain valid after the rows are closed.
//
// The returned slice is always non-nil (empty slice on zero rows).
// ScanAll always closes rows.
func ScanAll(rows *sql.Rows) ([]string, [][]any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	result := make([][]any, 0)
	for rows.Next() {
		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
		}
		for i, v := range dest {
			if b, ok := v.([]byte); ok {
				dest[i] = string(b)
			}
		}
		result = append(result, dest)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}
	return columns, result, nil
}

// ScanMaps reads every row into a map keyed by column name. It is what raw
// statements return, where no entity shape is known.
func ScanMaps(rows *sql.Rows) ([]map[string]any, error) {
	columns, values, err := ScanAll(rows)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(values))
	for _, row := range values {
		m := make(map[string]any, len(columns))
		for i, col := range columns {
			m[col] = row[i]
		}
		out = append(out, m)
	}
	return out, nil
}
