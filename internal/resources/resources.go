// Package resources declares the tables the API exposes and the validation
// rules each one enforces.
package resources

import (
	"strconv"
	"strings"

	"firewatch/internal/dbexec"
	"firewatch/internal/resource"
)

// Options carries settings some resources need.
type Options struct {
	// BcryptCost is used when hashing user passwords. Zero means the
	// library default.
	BcryptCost int
}

// All returns every exposed resource in routing order.
func All(exec dbexec.QueryExecutor, opts Options) []resource.Resource {
	return []resource.Resource{
		NewFire(),
		NewUser(exec, opts.BcryptCost),
		NewUserGroup(),
		NewGroupRoles(),
	}
}

func isNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
