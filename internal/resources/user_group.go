package resources

import (
	"context"
	"fmt"

	"firewatch/internal/resource"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

const rolesSchema = `{
	"type": "array",
	"items": {
		"anyOf": [
			{"type": "integer", "minimum": 1},
			{"type": "string", "pattern": "^[0-9]+$"}
		]
	}
}`

var rolesSchemaLoader = gojsonschema.NewStringLoader(rolesSchema)

// UserGroup groups users under a list of group_roles ids.
type UserGroup struct {
	schema *gojsonschema.Schema
}

// NewUserGroup returns the user_group resource.
func NewUserGroup() *UserGroup {
	schema, err := gojsonschema.NewSchema(rolesSchemaLoader)
	if err != nil {
		panic(fmt.Sprintf("roles schema: %v", err))
	}
	return &UserGroup{schema: schema}
}

func (g *UserGroup) Definition() resource.Definition {
	return resource.Definition{
		Table:            "user_group",
		RecognisedFields: map[string]int{"name": 10, "roles": resource.Unbounded},
		MandatoryFields:  []string{"name", "roles"},
	}
}

func (g *UserGroup) Validate(_ context.Context, in resource.ValidationInput, errs resource.ValidationErrors) error {
	if name, ok := in.Params["name"]; ok && !isAlphanumeric(name) {
		errs.Add("name", "Name must be alphanumeric with no spaces.")
	}
	if roles, ok := in.Params["roles"]; ok && in.Mode != resource.ModeSearch {
		// The schema loader stops after the first JSON value, so trailing
		// text has to be rejected up front.
		if !json.Valid([]byte(roles)) {
			errs.Add("roles", "Roles is not in JSON format.")
			return nil
		}
		result, err := g.schema.Validate(gojsonschema.NewStringLoader(roles))
		switch {
		case err != nil:
			errs.Add("roles", "Roles is not in JSON format.")
		case !result.Valid():
			errs.Add("roles", "Roles must be a JSON array of role ids.")
		}
	}
	return nil
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}
