package resource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"

	"firewatch/internal/dbexec"
	"firewatch/internal/logging"
	"firewatch/internal/observability"
	"firewatch/internal/querybuilder"
	"firewatch/internal/scope"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// SearchesID is the pseudo id that turns a POST into a search.
const SearchesID = "searches"

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("resource not found")

type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string { return e.message }

func badRequest(message string) error {
	return &statusError{status: http.StatusBadRequest, message: message}
}

type operation func(ctx context.Context, r *http.Request, id string) (int, any, error)

// Handler serves one resource under /{path} and /{path}/{id}.
type Handler struct {
	res     Resource
	def     Definition
	exec    dbexec.QueryExecutor
	metrics *observability.APIMetrics
}

// NewHandler binds res to an executor. metrics may be nil.
func NewHandler(res Resource, exec dbexec.QueryExecutor, metrics *observability.APIMetrics) *Handler {
	return &Handler{res: res, def: res.Definition(), exec: exec, metrics: metrics}
}

// Definition returns the static description of the served resource.
func (h *Handler) Definition() Definition {
	return h.def
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	logger := logging.FromContext(ctx).WithComponent("resource").WithFields(slog.String("resource", h.def.Table))
	ctx = logging.WithLogger(ctx, logger)

	h.metrics.IncrementActiveRequests(ctx)
	defer h.metrics.DecrementActiveRequests(ctx)

	id := mux.Vars(r)["id"]
	action, op, status := h.route(r.Method, id)
	if op == nil {
		h.finish(ctx, w, start, action, status, map[string]string{"error": http.StatusText(status)})
		return
	}

	granted, _ := scope.FromContext(ctx)
	if !granted.Allows(h.def.Table, action) {
		logger.Warn("scope denies action", slog.String("action", action))
		h.finish(ctx, w, start, action, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	status, body, err := op(ctx, r.WithContext(ctx), id)
	if err != nil {
		status, body = h.failure(ctx, action, err)
	}
	h.finish(ctx, w, start, action, status, body)
}

// route picks the operation for a method and id. A nil operation means the
// request is rejected with the returned status.
func (h *Handler) route(method, id string) (string, operation, int) {
	switch method {
	case http.MethodGet:
		if id != "" {
			if _, ok := parseID(id); !ok {
				return scope.ActionGet, nil, http.StatusNotFound
			}
		}
		return scope.ActionGet, h.get, 0
	case http.MethodPost:
		switch id {
		case SearchesID:
			return scope.ActionGet, h.search, 0
		case "":
			if h.def.ReadOnly {
				return scope.ActionCreate, nil, http.StatusMethodNotAllowed
			}
			return scope.ActionCreate, h.create, 0
		default:
			return scope.ActionCreate, nil, http.StatusNotFound
		}
	case http.MethodPut, http.MethodDelete:
		action, op := scope.ActionUpdate, h.update
		if method == http.MethodDelete {
			action, op = scope.ActionDelete, h.delete
		}
		if _, ok := parseID(id); !ok {
			return action, nil, http.StatusNotFound
		}
		if h.def.ReadOnly {
			return action, nil, http.StatusMethodNotAllowed
		}
		return action, op, 0
	default:
		return "unknown", nil, http.StatusBadRequest
	}
}

func (h *Handler) failure(ctx context.Context, action string, err error) (int, any) {
	logger := logging.FromContext(ctx)

	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		h.metrics.RecordValidationFailure(ctx, h.def.Table, action, len(verrs))
		return http.StatusBadRequest, map[string]any{"errors": verrs}
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound, map[string]string{"error": "not found"}
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status, map[string]string{"error": se.message}
	}

	switch {
	case querybuilder.IsConfigurationError(err):
		logger.Error("query builder misconfigured", slog.String("action", action), slog.String("error", err.Error()))
	case querybuilder.IsIntegrityError(err):
		logger.Error("query failed integrity check", slog.String("action", action), slog.String("error", err.Error()))
	default:
		logger.Error("resource operation failed", slog.String("action", action), slog.String("error", err.Error()))
	}
	return http.StatusInternalServerError, map[string]string{"error": "internal error"}
}

func (h *Handler) finish(ctx context.Context, w http.ResponseWriter, start time.Time, action string, status int, body any) {
	h.metrics.RecordRequest(ctx, h.def.Table, action, status, time.Since(start))
	writeJSON(w, status, body)
}

func (h *Handler) get(ctx context.Context, r *http.Request, id string) (int, any, error) {
	b, err := h.newSelect()
	if err != nil {
		return 0, nil, err
	}

	if id != "" {
		rowID, _ := parseID(id)
		b.Where([]querybuilder.Predicate{querybuilder.ExactMatch(h.def.Table, "id", rowID)})
		rows, err := h.query(ctx, b)
		if err != nil {
			return 0, nil, err
		}
		if len(rows) != 1 {
			return 0, nil, ErrNotFound
		}
		return http.StatusOK, rows[0], nil
	}

	query := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}
	errs := ValidationErrors{}
	applyPagination(b, query, errs)
	if len(errs) > 0 {
		return 0, nil, errs
	}
	rows, err := h.query(ctx, b)
	if err != nil {
		return 0, nil, err
	}
	h.metrics.RecordResultsCount(ctx, h.def.Table, len(rows))
	return http.StatusOK, rows, nil
}

func (h *Handler) search(ctx context.Context, r *http.Request, _ string) (int, any, error) {
	in, err := readInput(r)
	if err != nil {
		return 0, nil, badRequest(err.Error())
	}

	errs := ValidationErrors{}
	for _, field := range h.def.SearchExcluded {
		delete(in.params, field)
	}
	clean := Sanitise(h.def, in.params, errs)
	delete(clean, "id")
	if err := h.res.Validate(ctx, ValidationInput{Params: clean, Mode: ModeSearch, Scope: callerScope(ctx)}, errs); err != nil {
		return 0, nil, err
	}
	if len(errs) > 0 {
		return 0, nil, errs
	}

	b, err := h.newSelect()
	if err != nil {
		return 0, nil, err
	}
	if trigger, ok := h.res.(SearchTrigger); ok {
		if err := trigger.SearchTriggers(ctx, maps.Clone(in.params), b); err != nil {
			return 0, nil, err
		}
	}
	for _, key := range h.def.SearchKeys {
		delete(clean, key)
	}

	mode := querybuilder.Exact
	values := make(map[string]any, len(clean))
	for field, value := range clean {
		if in.notExact {
			values[field] = "%" + value + "%"
			continue
		}
		values[field] = value
	}
	if in.notExact {
		mode = querybuilder.Like
	}
	preds := querybuilder.Predicates(mode, h.def.Table, values)
	if rowID, ok := parseID(in.params["id"]); ok {
		preds = append(preds, querybuilder.ExactMatch(h.def.Table, "id", rowID))
	}
	b.Where(preds)

	applyPagination(b, in.params, errs)
	if len(errs) > 0 {
		return 0, nil, errs
	}
	rows, err := h.query(ctx, b)
	if err != nil {
		return 0, nil, err
	}
	h.metrics.RecordResultsCount(ctx, h.def.Table, len(rows))
	return http.StatusOK, rows, nil
}

func (h *Handler) create(ctx context.Context, r *http.Request, _ string) (int, any, error) {
	in, err := readInput(r)
	if err != nil {
		return 0, nil, badRequest(err.Error())
	}

	errs := ValidationErrors{}
	clean := Sanitise(h.def, in.params, errs)
	CheckMandatory(h.def, clean, errs)
	if err := h.res.Validate(ctx, ValidationInput{Params: clean, Mode: ModeCreate, Scope: callerScope(ctx)}, errs); err != nil {
		return 0, nil, err
	}
	if len(errs) > 0 {
		return 0, nil, errs
	}
	if err := h.prepare(ctx, ModeCreate, clean); err != nil {
		return 0, nil, err
	}

	b, err := querybuilder.New(querybuilder.Insert)
	if err != nil {
		return 0, nil, err
	}
	b.Insert(h.def.Table, querybuilder.Assignments(anyMap(clean)))
	res, err := h.execute(ctx, b)
	if err != nil {
		return 0, nil, err
	}
	if affected, err := res.RowsAffected(); err != nil || affected == 0 {
		return 0, nil, fmt.Errorf("insert into %s affected no rows", h.def.Table)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, nil, fmt.Errorf("read inserted id: %w", err)
	}
	logging.FromContext(ctx).Info("row created", slog.Int64("id", newID))
	return http.StatusOK, []int64{newID}, nil
}

func (h *Handler) update(ctx context.Context, r *http.Request, id string) (int, any, error) {
	rowID, _ := parseID(id)
	in, err := readInput(r)
	if err != nil {
		return 0, nil, badRequest(err.Error())
	}

	errs := ValidationErrors{}
	clean := Sanitise(h.def, in.params, errs)
	if len(clean) == 0 {
		return 0, nil, badRequest("no recognised fields supplied")
	}
	if err := h.res.Validate(ctx, ValidationInput{Params: clean, ID: rowID, Mode: ModeUpdate, Scope: callerScope(ctx)}, errs); err != nil {
		return 0, nil, err
	}
	if len(errs) > 0 {
		return 0, nil, errs
	}
	if err := h.ensureExists(ctx, rowID); err != nil {
		return 0, nil, err
	}
	if err := h.prepare(ctx, ModeUpdate, clean); err != nil {
		return 0, nil, err
	}
	if len(clean) == 0 {
		return 0, nil, badRequest("no recognised fields supplied")
	}

	b, err := querybuilder.New(querybuilder.Update)
	if err != nil {
		return 0, nil, err
	}
	b.Update(h.def.Table, querybuilder.Assignments(anyMap(clean)),
		[]querybuilder.Predicate{querybuilder.ExactMatch(h.def.Table, "id", rowID)})
	if _, err := h.execute(ctx, b); err != nil {
		return 0, nil, err
	}
	logging.FromContext(ctx).Info("row updated", slog.Int64("id", rowID))
	return http.StatusOK, map[string]string{"status": "ok"}, nil
}

func (h *Handler) delete(ctx context.Context, _ *http.Request, id string) (int, any, error) {
	rowID, _ := parseID(id)
	if err := h.ensureExists(ctx, rowID); err != nil {
		return 0, nil, err
	}

	b, err := querybuilder.New(querybuilder.Delete)
	if err != nil {
		return 0, nil, err
	}
	b.Delete(h.def.Table, []querybuilder.Predicate{querybuilder.ExactMatch(h.def.Table, "id", rowID)})
	res, err := h.execute(ctx, b)
	if err != nil {
		return 0, nil, err
	}
	if affected, err := res.RowsAffected(); err != nil || affected == 0 {
		return 0, nil, fmt.Errorf("delete from %s affected no rows", h.def.Table)
	}
	logging.FromContext(ctx).Info("row deleted", slog.Int64("id", rowID))
	return http.StatusOK, map[string]string{"status": "ok"}, nil
}

func (h *Handler) newSelect() (*querybuilder.Builder, error) {
	b, err := querybuilder.New(querybuilder.Select)
	if err != nil {
		return nil, err
	}
	b.SelectFields(h.def.Table, querybuilder.Col("*"))
	if c, ok := h.res.(SelectCustomizer); ok {
		c.CustomiseSelect(b)
	}
	b.From(h.def.Table)
	return b, nil
}

func (h *Handler) prepare(ctx context.Context, mode Mode, params map[string]string) error {
	if p, ok := h.res.(WritePreparer); ok {
		return p.PrepareWrite(ctx, mode, params)
	}
	return nil
}

func (h *Handler) query(ctx context.Context, b *querybuilder.Builder) ([]map[string]any, error) {
	q, err := b.GenerateQuery()
	if err != nil {
		return nil, err
	}
	stmt, args, err := q.Positional()
	if err != nil {
		return nil, fmt.Errorf("bind parameters: %w", err)
	}
	logging.FromContext(ctx).Debug("executing query", slog.String("sql", stmt))
	return dbexec.QueryMaps(ctx, h.exec, stmt, args...)
}

func (h *Handler) execute(ctx context.Context, b *querybuilder.Builder) (sql.Result, error) {
	q, err := b.GenerateQuery()
	if err != nil {
		return nil, err
	}
	stmt, args, err := q.Positional()
	if err != nil {
		return nil, fmt.Errorf("bind parameters: %w", err)
	}
	logging.FromContext(ctx).Debug("executing statement", slog.String("sql", stmt))
	return h.exec.ExecContext(ctx, stmt, args...)
}

// ensureExists runs SELECT EXISTS(SELECT * FROM table WHERE id = ?).
func (h *Handler) ensureExists(ctx context.Context, id int64) error {
	stmt, args, err := sq.Select().
		Column(sq.Expr("EXISTS(SELECT * FROM "+h.def.Table+" WHERE id = ?)", id)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build existence probe: %w", err)
	}
	rows, err := h.exec.QueryContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("existence probe: %w", err)
	}
	defer rows.Close()

	var exists bool
	if rows.Next() {
		if err := rows.Scan(&exists); err != nil {
			return fmt.Errorf("scan existence probe: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("existence probe: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func applyPagination(b *querybuilder.Builder, params map[string]string, errs ValidationErrors) {
	limit, offset, ok := pagination(params, errs)
	if !ok {
		return
	}
	if offset > 0 {
		b.LimitOffset(limit, offset)
		return
	}
	b.Limit(limit)
}

func callerScope(ctx context.Context) scope.Scope {
	s, _ := scope.FromContext(ctx)
	return s
}

func anyMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
