// Package sqlutil binds named query parameters and scans result rows.
package sqlutil

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// BindNamed rewrites :name placeholders into driver-positional ? markers and
// returns the matching argument slice. A name used twice yields two arguments.
func BindNamed(query string, params map[string]any) (string, []any, error) {
	if params == nil {
		params = map[string]any{}
	}
	bound, args, err := sqlx.Named(query, params)
	if err != nil {
		return "", nil, fmt.Errorf("bind named parameters: %w", err)
	}
	return bound, args, nil
}
