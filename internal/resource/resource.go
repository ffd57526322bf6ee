// Package resource implements the generic REST handler shared by every table
// the API exposes. A Resource declares its table, recognised fields and
// validation; the Handler turns HTTP verbs into query builder calls, checks
// the caller's scope and writes JSON responses.
package resource

import (
	"context"

	"firewatch/internal/querybuilder"
	"firewatch/internal/scope"

	"github.com/jinzhu/inflection"
)

// Unbounded marks a recognised field without a length limit.
const Unbounded = 0

// Definition is the static description of one resource.
type Definition struct {
	// Table is the backing table and the scope category.
	Table string
	// Path overrides the route segment. It defaults to the plural of Table.
	Path string
	// RecognisedFields maps accepted input fields to their maximum length.
	RecognisedFields map[string]int
	// MandatoryFields must be present and non-blank on create.
	MandatoryFields []string
	// SearchKeys are parameters consumed by the search trigger. A search key
	// that is also a recognised field stays out of the generic WHERE.
	SearchKeys []string
	// SearchExcluded fields are never searchable, not even by the trigger.
	SearchExcluded []string
	// ReadOnly rejects every write with 405.
	ReadOnly bool
}

// RoutePath returns the URL segment the resource is mounted under.
func (d Definition) RoutePath() string {
	if d.Path != "" {
		return d.Path
	}
	return inflection.Plural(d.Table)
}

// Mode tells validators which operation they are checking.
type Mode int

const (
	ModeCreate Mode = iota
	ModeUpdate
	ModeSearch
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeUpdate:
		return "update"
	case ModeSearch:
		return "search"
	default:
		return "unknown"
	}
}

// ValidationInput is what a Validator sees: the sanitised parameters, the
// target id on update, and the caller's scope.
type ValidationInput struct {
	Params map[string]string
	ID     int64
	Mode   Mode
	Scope  scope.Scope
}

// Resource is implemented by every exposed table.
type Resource interface {
	Definition() Definition
	// Validate adds field errors to errs. It must not assume any field is
	// present. A returned error means validation itself could not run.
	Validate(ctx context.Context, in ValidationInput, errs ValidationErrors) error
}

// SearchTrigger lets a resource add custom predicates before the generic
// WHERE clause is built. params holds every search parameter, including
// the declared search keys.
type SearchTrigger interface {
	SearchTriggers(ctx context.Context, params map[string]string, b *querybuilder.Builder) error
}

// SelectCustomizer adjusts every SELECT issued for the resource.
type SelectCustomizer interface {
	CustomiseSelect(b *querybuilder.Builder)
}

// WritePreparer rewrites validated values before they are written.
type WritePreparer interface {
	PrepareWrite(ctx context.Context, mode Mode, params map[string]string) error
}
