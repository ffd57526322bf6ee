// Package querybuilder assembles parameterized SQL statements clause by clause.
//
// A Builder is initialised for one statement type, accumulates fragments
// through its clause methods and renders them with GenerateQuery. Rendering
// fails with a QueryIntegrityError when a mandatory clause is missing or a
// referenced table was never joined. Builders are not safe for concurrent
// use; handlers create one per request.
package querybuilder

import (
	"fmt"
	"strconv"
	"strings"

	"firewatch/internal/sqlutil"
)

// Builder accumulates the clauses of a single statement. The zero value
// must be initialised before any clause method is called.
type Builder struct {
	statement    StatementType
	requirements []requirement
	clauses      map[Clause]string
	joins        []string
	tables       map[string]bool
	tableOrder   []string
	params       map[string]any
	whereIndex   int
	configErr    error
}

// New returns a builder initialised for the given statement type.
func New(statement StatementType) (*Builder, error) {
	b := &Builder{}
	if err := b.Initialise(statement); err != nil {
		return nil, err
	}
	return b, nil
}

// Initialise resets all state and loads the clause requirements for statement.
func (b *Builder) Initialise(statement StatementType) error {
	b.statement = statement
	b.requirements = nil
	b.clauses = make(map[Clause]string)
	b.joins = nil
	b.tables = make(map[string]bool)
	b.tableOrder = nil
	b.params = make(map[string]any)
	b.whereIndex = 0
	b.configErr = nil

	reqs, ok := clauseRequirements[statement]
	if !ok {
		b.configErr = &ConfigurationError{Message: fmt.Sprintf("unrecognised statement type %q", statement)}
		return b.configErr
	}
	b.requirements = reqs
	return nil
}

// SelectOptions describe a SELECT in one call.
type SelectOptions struct {
	Fields []TableFields
	Custom *CustomFields
	From   string
	Where  []Predicate
}

// Select adds fields, custom fragments, the FROM table and WHERE predicates.
func (b *Builder) Select(opts SelectOptions) {
	for _, tf := range opts.Fields {
		b.SelectFields(tf.Table, tf.Fields...)
	}
	if opts.Custom != nil {
		b.SelectCustom(opts.Custom.Tables, opts.Custom.Fragments...)
	}
	if opts.From != "" {
		b.From(opts.From)
	}
	if len(opts.Where) > 0 {
		b.Where(opts.Where)
	}
}

// SelectFields appends table-qualified columns to the SELECT list.
func (b *Builder) SelectFields(table string, fields ...Field) {
	if len(fields) == 0 {
		return
	}
	b.reference(table)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		part := table + "." + f.Column
		if f.Alias != "" {
			part += " AS " + f.Alias
		}
		parts = append(parts, part)
	}
	b.appendList(ClauseSelect, strings.Join(parts, ", "))
}

// SelectCustom appends raw fragments to the SELECT list and registers the
// tables they reference.
func (b *Builder) SelectCustom(tables []string, fragments ...string) {
	for _, table := range tables {
		b.reference(table)
	}
	for _, fragment := range fragments {
		b.appendList(ClauseSelect, fragment)
	}
}

// From sets the FROM table and marks it joined.
func (b *Builder) From(table string) {
	b.clauses[ClauseFrom] = table
	b.markJoined(table)
}

// WhereOption tunes how a Where call joins its predicates.
type WhereOption func(*whereConfig)

type whereConfig struct {
	defaultSeparator string
	separators       map[int]string
}

// WithSeparator joins the predicate at index to its predecessor with sep.
func WithSeparator(index int, sep string) WhereOption {
	return func(c *whereConfig) {
		if c.separators == nil {
			c.separators = make(map[int]string)
		}
		c.separators[index] = sep
	}
}

// WithDefaultSeparator replaces AND as the joiner between predicates.
func WithDefaultSeparator(sep string) WhereOption {
	return func(c *whereConfig) {
		c.defaultSeparator = sep
	}
}

// Where appends predicates to the WHERE clause. Each predicate binds its
// value to a placeholder named <index>_<table>_<column>, with the index
// counted across the whole builder. A second call is joined to the existing
// condition with the default separator.
func (b *Builder) Where(preds []Predicate, opts ...WhereOption) {
	if len(preds) == 0 {
		return
	}
	cfg := whereConfig{defaultSeparator: "AND"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !validSeparator(cfg.defaultSeparator) {
		b.fail("unrecognised WHERE separator %q", cfg.defaultSeparator)
		return
	}
	for _, sep := range cfg.separators {
		if !validSeparator(sep) {
			b.fail("unrecognised WHERE separator %q", sep)
			return
		}
	}

	var sb strings.Builder
	for i, p := range preds {
		op, ok := p.Mode.operator()
		if !ok {
			b.fail("unrecognised match mode %q", p.Mode)
			return
		}
		if i > 0 {
			sep := cfg.defaultSeparator
			if override, ok := cfg.separators[i]; ok {
				sep = override
			}
			sb.WriteString(" " + strings.ToUpper(sep) + " ")
		}
		name := strconv.Itoa(b.whereIndex) + "_" + p.Table + "_" + p.Column
		b.whereIndex++
		b.reference(p.Table)
		b.params[name] = p.Value
		fmt.Fprintf(&sb, "%s.%s %s :%s", p.Table, p.Column, op, name)
	}

	if existing := b.clauses[ClauseWhere]; existing != "" {
		b.clauses[ClauseWhere] = existing + " " + strings.ToUpper(cfg.defaultSeparator) + " " + sb.String()
		return
	}
	b.clauses[ClauseWhere] = sb.String()
}

// WhereConditions is Where over a mode/table/column mapping.
func (b *Builder) WhereConditions(conds Conditions, opts ...WhereOption) {
	b.Where(conds.Flatten(), opts...)
}

// Insert renders INSERT INTO table (cols) VALUES (:cols) and binds each value
// under its column name.
func (b *Builder) Insert(table string, values []Assignment) {
	b.markJoined(table)
	cols := make([]string, 0, len(values))
	holders := make([]string, 0, len(values))
	for _, v := range values {
		cols = append(cols, v.Column)
		holders = append(holders, ":"+v.Column)
		b.params[v.Column] = v.Value
	}
	b.clauses[ClauseInsert] = "INTO " + table + " (" + strings.Join(cols, ", ") + ")"
	b.clauses[ClauseValues] = "(" + strings.Join(holders, ", ") + ")"
}

// Update renders UPDATE table SET col = :col followed by the WHERE predicates.
func (b *Builder) Update(table string, values []Assignment, where []Predicate, opts ...WhereOption) {
	b.markJoined(table)
	b.clauses[ClauseUpdate] = table
	if len(values) > 0 {
		sets := make([]string, 0, len(values))
		for _, v := range values {
			sets = append(sets, v.Column+" = :"+v.Column)
			b.params[v.Column] = v.Value
		}
		b.clauses[ClauseSet] = strings.Join(sets, ", ")
	}
	b.Where(where, opts...)
}

// Delete renders DELETE FROM table followed by the WHERE predicates.
func (b *Builder) Delete(table string, where []Predicate, opts ...WhereOption) {
	b.markJoined(table)
	b.clauses[ClauseDelete] = "FROM " + table
	b.Where(where, opts...)
}

// LeftJoin appends LEFT JOIN table ON left = right. Anything other than
// exactly two ON columns leaves the builder untouched.
func (b *Builder) LeftJoin(table string, on ...JoinColumn) {
	if len(on) != 2 {
		return
	}
	b.markJoined(table)
	b.reference(on[0].Table)
	b.reference(on[1].Table)
	b.joins = append(b.joins, fmt.Sprintf("%s ON %s = %s", table, on[0], on[1]))
}

// SortBy sets GROUP BY or ORDER BY to table.column.
func (b *Builder) SortBy(table, column string, kind SortKind) {
	var clause Clause
	switch kind {
	case Group:
		clause = ClauseGroupBy
	case Order:
		clause = ClauseOrderBy
	default:
		b.fail("Unrecognised SORT type.")
		return
	}
	b.reference(table)
	b.clauses[clause] = table + "." + column
}

// Limit caps the number of rows returned.
func (b *Builder) Limit(count int) {
	b.clauses[ClauseLimit] = strconv.Itoa(count)
}

// LimitOffset caps the rows returned after skipping offset rows.
func (b *Builder) LimitOffset(count, offset int) {
	b.clauses[ClauseLimit] = strconv.Itoa(offset) + ", " + strconv.Itoa(count)
}

// Inject appends a raw fragment to any clause, separated by ", " from
// what is already there.
func (b *Builder) Inject(clause Clause, fragment string) {
	if clause == ClauseLeftJoin {
		b.joins = append(b.joins, fragment)
		return
	}
	b.appendList(clause, fragment)
}

// Bind registers a named parameter used by a raw fragment.
func (b *Builder) Bind(name string, value any) {
	b.params[strings.TrimPrefix(name, ":")] = value
}

// GenerateQuery validates the accumulated clauses and renders the statement.
// Configuration errors are returned first; otherwise every integrity problem
// is reported together.
func (b *Builder) GenerateQuery() (Query, error) {
	if b.configErr != nil {
		return Query{}, b.configErr
	}
	if b.requirements == nil {
		return Query{}, &ConfigurationError{Message: "builder used before Initialise"}
	}

	var problems []string
	for _, table := range b.tableOrder {
		if !b.tables[table] {
			problems = append(problems, table+" is required but not joined to the query.")
		}
	}
	for _, req := range b.requirements {
		if req.mandatory && !b.present(req.clause) {
			problems = append(problems, string(req.clause)+" clause is required but not present in output query.")
		}
	}
	for _, clause := range allClauses {
		if b.present(clause) && !b.allowed(clause) {
			problems = append(problems, string(clause)+" clause is not valid in a "+string(b.statement)+" statement.")
		}
	}
	if len(problems) > 0 {
		return Query{}, &QueryIntegrityError{Problems: problems}
	}

	var sb strings.Builder
	for _, req := range b.requirements {
		if req.clause == ClauseLeftJoin {
			for _, join := range b.joins {
				sb.WriteString(" " + string(ClauseLeftJoin) + " " + join)
			}
			continue
		}
		if fragment := b.clauses[req.clause]; fragment != "" {
			sb.WriteString(" " + string(req.clause) + " " + fragment)
		}
	}

	params := make(map[string]any, len(b.params))
	for k, v := range b.params {
		params[k] = v
	}
	return Query{SQL: strings.TrimSpace(sb.String()), Params: params}, nil
}

// Positional rewrites the named placeholders into ? markers for database/sql.
func (q Query) Positional() (string, []any, error) {
	return sqlutil.BindNamed(q.SQL, q.Params)
}

func (b *Builder) present(clause Clause) bool {
	if clause == ClauseLeftJoin {
		return len(b.joins) > 0
	}
	return b.clauses[clause] != ""
}

func (b *Builder) allowed(clause Clause) bool {
	for _, req := range b.requirements {
		if req.clause == clause {
			return true
		}
	}
	return false
}

func (b *Builder) appendList(clause Clause, fragment string) {
	if existing := b.clauses[clause]; existing != "" {
		b.clauses[clause] = existing + ", " + fragment
		return
	}
	b.clauses[clause] = fragment
}

func (b *Builder) reference(table string) {
	if _, ok := b.tables[table]; ok {
		return
	}
	b.tables[table] = false
	b.tableOrder = append(b.tableOrder, table)
}

func (b *Builder) markJoined(table string) {
	b.reference(table)
	b.tables[table] = true
}

// fail keeps the first configuration error; later ones add nothing.
func (b *Builder) fail(format string, args ...any) {
	if b.configErr != nil {
		return
	}
	b.configErr = &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

func validSeparator(sep string) bool {
	switch strings.ToUpper(sep) {
	case "AND", "OR":
		return true
	default:
		return false
	}
}
