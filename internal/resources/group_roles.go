package resources

import (
	"context"

	"firewatch/internal/resource"
)

// GroupRoles lists the (category, action) permissions groups refer to.
// Roles are managed in the database directly.
type GroupRoles struct{}

// NewGroupRoles returns the read-only group_roles resource.
func NewGroupRoles() *GroupRoles { return &GroupRoles{} }

func (r *GroupRoles) Definition() resource.Definition {
	return resource.Definition{
		Table:            "group_roles",
		Path:             "group_roles",
		RecognisedFields: map[string]int{"category": resource.Unbounded, "action": resource.Unbounded},
		ReadOnly:         true,
	}
}

func (r *GroupRoles) Validate(context.Context, resource.ValidationInput, resource.ValidationErrors) error {
	return nil
}
