package sqlutil

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RowScanner is the subset of *sql.Rows needed to scan rows into maps.
type RowScanner interface {
	Next() bool
	Columns() ([]string, error)
	Scan(dest ...any) error
	Err() error
}

// ScanMaps reads every remaining row into a column-keyed map.
// Byte slices are converted to strings so rows encode cleanly as JSON.
// When a column name repeats, the right-most value wins.
func ScanMaps(rows RowScanner) ([]map[string]any, error) {
	result := make([]map[string]any, 0)
	for rows.Next() {
		row := make(map[string]any)
		if err := sqlx.MapScan(rows, row); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for key, value := range row {
			if b, ok := value.([]byte); ok {
				row[key] = string(b)
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
