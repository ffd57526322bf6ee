// Package scope models the per-request authorization scope: a mapping from
// resource category to the actions the caller may perform on it.
package scope

import "context"

// Actions checked by the resource handlers.
const (
	ActionGet    = "get"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Scope maps category -> action -> allowed. A missing category or action
// is the same as false.
type Scope map[string]map[string]bool

// Grant is one (category, action) permission row.
type Grant struct {
	Category string
	Action   string
}

// FromGrants builds a scope from permission rows.
func FromGrants(grants []Grant) Scope {
	s := make(Scope)
	for _, g := range grants {
		s.Grant(g.Category, g.Action)
	}
	return s
}

// Grant allows action on category.
func (s Scope) Grant(category, action string) {
	actions, ok := s[category]
	if !ok {
		actions = make(map[string]bool)
		s[category] = actions
	}
	actions[action] = true
}

// Allows reports whether action on category is permitted.
func (s Scope) Allows(category, action string) bool {
	if s == nil {
		return false
	}
	return s[category][action]
}

// Clone returns a deep copy so cached scopes are never mutated by callers.
func (s Scope) Clone() Scope {
	out := make(Scope, len(s))
	for category, actions := range s {
		copied := make(map[string]bool, len(actions))
		for action, allowed := range actions {
			copied[action] = allowed
		}
		out[category] = copied
	}
	return out
}

type contextKey struct{}

// WithScope stores the caller's scope in ctx.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the scope stored by WithScope.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(contextKey{}).(Scope)
	return s, ok
}
