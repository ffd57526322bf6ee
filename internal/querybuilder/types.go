package querybuilder

import (
	"sort"
)

// StatementType selects the clause requirements a builder enforces.
type StatementType string

const (
	Select StatementType = "SELECT"
	Insert StatementType = "INSERT"
	Update StatementType = "UPDATE"
	Delete StatementType = "DELETE"
)

// Clause names a SQL clause as it appears in rendered output.
type Clause string

const (
	ClauseSelect   Clause = "SELECT"
	ClauseFrom     Clause = "FROM"
	ClauseLeftJoin Clause = "LEFT JOIN"
	ClauseWhere    Clause = "WHERE"
	ClauseHaving   Clause = "HAVING"
	ClauseGroupBy  Clause = "GROUP BY"
	ClauseOrderBy  Clause = "ORDER BY"
	ClauseLimit    Clause = "LIMIT"
	ClauseUpdate   Clause = "UPDATE"
	ClauseSet      Clause = "SET"
	ClauseInsert   Clause = "INSERT"
	ClauseValues   Clause = "VALUES"
	ClauseDelete   Clause = "DELETE"
)

// allClauses fixes the order integrity problems are reported in.
var allClauses = []Clause{
	ClauseSelect, ClauseUpdate, ClauseInsert, ClauseDelete,
	ClauseSet, ClauseValues, ClauseFrom, ClauseLeftJoin, ClauseWhere,
	ClauseGroupBy, ClauseHaving, ClauseOrderBy, ClauseLimit,
}

type requirement struct {
	clause    Clause
	mandatory bool
}

// clauseRequirements lists clauses per statement in rendering order.
var clauseRequirements = map[StatementType][]requirement{
	Select: {
		{ClauseSelect, true},
		{ClauseFrom, true},
		{ClauseLeftJoin, false},
		{ClauseWhere, false},
		{ClauseGroupBy, false},
		{ClauseHaving, false},
		{ClauseOrderBy, false},
		{ClauseLimit, false},
	},
	Update: {
		{ClauseUpdate, true},
		{ClauseSet, true},
		{ClauseWhere, true},
	},
	Insert: {
		{ClauseInsert, true},
		{ClauseValues, true},
	},
	Delete: {
		{ClauseDelete, true},
		{ClauseWhere, true},
	},
}

// MatchMode picks the comparison operator of a predicate.
type MatchMode string

const (
	Exact MatchMode = "EXACT"
	Like  MatchMode = "LIKE"
)

func (m MatchMode) operator() (string, bool) {
	switch m {
	case Exact:
		return "=", true
	case Like:
		return "LIKE", true
	default:
		return "", false
	}
}

// SortKind picks GROUP BY or ORDER BY.
type SortKind string

const (
	Group SortKind = "GROUP"
	Order SortKind = "ORDER"
)

// Field is one selected column, optionally aliased.
type Field struct {
	Column string
	Alias  string
}

// Col selects a column without an alias.
func Col(column string) Field { return Field{Column: column} }

// As selects a column under an alias.
func As(column, alias string) Field { return Field{Column: column, Alias: alias} }

// TableFields groups the selected columns of one table.
type TableFields struct {
	Table  string
	Fields []Field
}

// CustomFields are raw select fragments and the tables they reference.
type CustomFields struct {
	Tables    []string
	Fragments []string
}

// Predicate is a single WHERE comparison.
type Predicate struct {
	Mode   MatchMode
	Table  string
	Column string
	Value  any
}

// ExactMatch builds an equality predicate.
func ExactMatch(table, column string, value any) Predicate {
	return Predicate{Mode: Exact, Table: table, Column: column, Value: value}
}

// LikeMatch builds a LIKE predicate. The value is used as given.
func LikeMatch(table, column string, value any) Predicate {
	return Predicate{Mode: Like, Table: table, Column: column, Value: value}
}

// Predicates builds one predicate per map entry, ordered by column name.
func Predicates(mode MatchMode, table string, values map[string]any) []Predicate {
	keys := sortedKeys(values)
	preds := make([]Predicate, 0, len(keys))
	for _, key := range keys {
		preds = append(preds, Predicate{Mode: mode, Table: table, Column: key, Value: values[key]})
	}
	return preds
}

// Assignment is a column/value pair for INSERT and UPDATE.
type Assignment struct {
	Column string
	Value  any
}

// Assignments converts a map into assignments ordered by column name.
func Assignments(values map[string]any) []Assignment {
	keys := sortedKeys(values)
	out := make([]Assignment, 0, len(keys))
	for _, key := range keys {
		out = append(out, Assignment{Column: key, Value: values[key]})
	}
	return out
}

// JoinColumn is one side of a LEFT JOIN ON condition.
type JoinColumn struct {
	Table  string
	Column string
}

func (c JoinColumn) String() string {
	return c.Table + "." + c.Column
}

// Query is a rendered statement with named bind parameters.
// Parameter names are stored without the leading colon.
type Query struct {
	SQL    string
	Params map[string]any
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Conditions groups WHERE values by match mode, then table, then column.
type Conditions map[MatchMode]map[string]map[string]any

// Flatten orders the conditions EXACT before LIKE, then by table and column.
func (c Conditions) Flatten() []Predicate {
	var preds []Predicate
	for _, mode := range []MatchMode{Exact, Like} {
		tables := c[mode]
		names := make([]string, 0, len(tables))
		for table := range tables {
			names = append(names, table)
		}
		sort.Strings(names)
		for _, table := range names {
			preds = append(preds, Predicates(mode, table, tables[table])...)
		}
	}
	return preds
}
