package querybuilder

import (
	"errors"
	"strings"
)

// ConfigurationError reports a builder call that can never produce a valid
// query, such as an unknown statement type or sort kind.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "query builder configuration: " + e.Message
}

// QueryIntegrityError carries every structural problem found while rendering.
type QueryIntegrityError struct {
	Problems []string
}

func (e *QueryIntegrityError) Error() string {
	return "query integrity: " + strings.Join(e.Problems, " ")
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsIntegrityError reports whether err wraps a QueryIntegrityError.
func IsIntegrityError(err error) bool {
	var target *QueryIntegrityError
	return errors.As(err, &target)
}
