package resource

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ValidationErrors maps a field to its error message. Later messages for the
// same field replace earlier ones.
type ValidationErrors map[string]string

// Add records msg for field.
func (e ValidationErrors) Add(field, msg string) {
	e[field] = msg
}

func (e ValidationErrors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+e[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Sanitise keeps only recognised fields and flags values longer than their
// limit. Flagged values are still returned so later checks can run.
func Sanitise(def Definition, params map[string]string, errs ValidationErrors) map[string]string {
	clean := make(map[string]string, len(params))
	for field, value := range params {
		limit, ok := def.RecognisedFields[field]
		if !ok {
			continue
		}
		if limit > 0 && utf8.RuneCountInString(value) > limit {
			errs.Add(field, fmt.Sprintf("%s must be less than or equal to %d characters.", Ucfirst(field), limit))
		}
		clean[field] = value
	}
	return clean
}

// CheckMandatory flags every mandatory field that is missing or blank.
func CheckMandatory(def Definition, params map[string]string, errs ValidationErrors) {
	for _, field := range def.MandatoryFields {
		if strings.TrimSpace(params[field]) == "" {
			errs.Add(field, fmt.Sprintf("'%s' is mandatory", field))
		}
	}
}

// Ucfirst upper-cases the first letter of s.
func Ucfirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
