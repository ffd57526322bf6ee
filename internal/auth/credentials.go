package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"firewatch/internal/dbexec"
	"firewatch/internal/scope"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	defaultScopeCacheSize = 128
	defaultScopeCacheTTL  = 5 * time.Minute
)

// UserDetails is returned to the client alongside a freshly issued token.
type UserDetails struct {
	ID       int64       `json:"id"`
	Forename string      `json:"forename"`
	Scope    scope.Scope `json:"scope"`
}

// CredentialStore checks user credentials and resolves group roles into a scope.
type CredentialStore struct {
	exec  dbexec.QueryExecutor
	cache *expirable.LRU[string, scope.Scope]
}

// NewCredentialStore returns a store. Role lists resolve through an LRU of
// cacheSize entries that expire after cacheTTL; zero values pick defaults.
func NewCredentialStore(exec dbexec.QueryExecutor, cacheSize int, cacheTTL time.Duration) *CredentialStore {
	if cacheSize <= 0 {
		cacheSize = defaultScopeCacheSize
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultScopeCacheTTL
	}
	return &CredentialStore{
		exec:  exec,
		cache: expirable.NewLRU[string, scope.Scope](cacheSize, nil, cacheTTL),
	}
}

type credentialRow struct {
	groupID  sql.NullInt64
	forename string
	password string
	roles    sql.NullString
	id       int64
}

// Authenticate looks the user up by email, checks the password and returns
// the user's details with the scope granted by their group.
func (s *CredentialStore) Authenticate(ctx context.Context, email, password string) (UserDetails, error) {
	query, args, err := sq.Select("user.group_id", "user.forename", "user.password", "user_group.roles", "user.id").
		From("user").
		LeftJoin("user_group ON user_group.id = user.group_id").
		Where(sq.Eq{"email": email}).
		ToSql()
	if err != nil {
		return UserDetails{}, fmt.Errorf("build credential query: %w", err)
	}

	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return UserDetails{}, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var matches []credentialRow
	for rows.Next() {
		var row credentialRow
		if err := rows.Scan(&row.groupID, &row.forename, &row.password, &row.roles, &row.id); err != nil {
			return UserDetails{}, fmt.Errorf("scan credentials: %w", err)
		}
		matches = append(matches, row)
	}
	if err := rows.Err(); err != nil {
		return UserDetails{}, fmt.Errorf("iterate credentials: %w", err)
	}
	if len(matches) != 1 {
		return UserDetails{}, ErrInvalidCredentials
	}

	row := matches[0]
	ok, err := CheckPassword(row.password, password)
	if err != nil || !ok {
		return UserDetails{}, ErrInvalidCredentials
	}

	granted, err := s.ScopeForRoles(ctx, row.roles.String)
	if err != nil {
		return UserDetails{}, err
	}
	return UserDetails{ID: row.id, Forename: row.forename, Scope: granted}, nil
}

// ScopeForRoles resolves a JSON array of group_roles ids into a scope.
// An empty or null role list grants nothing.
func (s *CredentialStore) ScopeForRoles(ctx context.Context, rolesJSON string) (scope.Scope, error) {
	rolesJSON = strings.TrimSpace(rolesJSON)
	if rolesJSON == "" || rolesJSON == "null" {
		return scope.Scope{}, nil
	}
	if cached, ok := s.cache.Get(rolesJSON); ok {
		return cached.Clone(), nil
	}

	ids, err := ParseRoleIDs(rolesJSON)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return scope.Scope{}, nil
	}

	query, args, err := sq.Select("id", "category", "action").
		From("group_roles").
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build role query: %w", err)
	}
	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query group roles: %w", err)
	}
	defer rows.Close()

	var grants []scope.Grant
	for rows.Next() {
		var (
			id    int64
			grant scope.Grant
		)
		if err := rows.Scan(&id, &grant.Category, &grant.Action); err != nil {
			return nil, fmt.Errorf("scan group role: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group roles: %w", err)
	}

	resolved := scope.FromGrants(grants)
	s.cache.Add(rolesJSON, resolved)
	return resolved.Clone(), nil
}

// ParseRoleIDs decodes a JSON array of role ids. Ids may be numbers or
// numeric strings.
func ParseRoleIDs(rolesJSON string) ([]int64, error) {
	var raw []any
	if err := json.Unmarshal([]byte(rolesJSON), &raw); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	ids := make([]int64, 0, len(raw))
	for _, value := range raw {
		var (
			id  int64
			err error
		)
		switch v := value.(type) {
		case float64:
			id = int64(v)
			if float64(id) != v {
				err = fmt.Errorf("role id %v is not an integer", v)
			}
		case string:
			id, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		default:
			err = fmt.Errorf("role id %v is not an integer", v)
		}
		if err != nil {
			return nil, fmt.Errorf("decode roles: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
