package resource

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitise(t *testing.T) {
	def := Definition{Table: "user_group", RecognisedFields: map[string]int{"name": 10, "roles": Unbounded}}

	tests := []struct {
		name      string
		params    map[string]string
		wantClean map[string]string
		wantErrs  ValidationErrors
	}{
		{
			name:      "drops unrecognised fields",
			params:    map[string]string{"name": "admins", "colour": "red"},
			wantClean: map[string]string{"name": "admins"},
			wantErrs:  ValidationErrors{},
		},
		{
			name:      "flags values over the limit",
			params:    map[string]string{"name": "abcdefghijk"},
			wantClean: map[string]string{"name": "abcdefghijk"},
			wantErrs:  ValidationErrors{"name": "Name must be less than or equal to 10 characters."},
		},
		{
			name:      "counts characters not bytes",
			params:    map[string]string{"name": "ééééééééé"},
			wantClean: map[string]string{"name": "ééééééééé"},
			wantErrs:  ValidationErrors{},
		},
		{
			name:      "unbounded fields accept anything",
			params:    map[string]string{"roles": strings.Repeat("1,", 500)},
			wantClean: map[string]string{"roles": strings.Repeat("1,", 500)},
			wantErrs:  ValidationErrors{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidationErrors{}
			clean := Sanitise(def, tt.params, errs)
			assert.Equal(t, tt.wantClean, clean)
			assert.Equal(t, tt.wantErrs, errs)
		})
	}
}

func TestCheckMandatory(t *testing.T) {
	def := Definition{MandatoryFields: []string{"latitude", "longitude", "confidence"}}
	errs := ValidationErrors{}
	CheckMandatory(def, map[string]string{"latitude": "51.5", "longitude": "  ", "confidence": "0"}, errs)
	assert.Equal(t, ValidationErrors{"longitude": "'longitude' is mandatory"}, errs)
}

func TestValidationErrorsError(t *testing.T) {
	errs := ValidationErrors{"b": "second", "a": "first"}
	assert.Equal(t, "validation failed: a: first; b: second", errs.Error())
}

func TestRoutePath(t *testing.T) {
	assert.Equal(t, "fires", Definition{Table: "fire"}.RoutePath())
	assert.Equal(t, "users", Definition{Table: "user"}.RoutePath())
	assert.Equal(t, "group_roles", Definition{Table: "group_roles", Path: "group_roles"}.RoutePath())
}

func TestReadInput(t *testing.T) {
	t.Run("json body normalises values", func(t *testing.T) {
		body := `{"name":"x","size":12.50,"active":true,"gone":null,"roles":[1,2],"custom_filters":{"not_exact":1}}`
		r := httptest.NewRequest(http.MethodPost, "/widgets?name=q&page=2", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")

		in, err := readInput(r)
		require.NoError(t, err)
		assert.Equal(t, "x", in.params["name"])
		assert.Equal(t, "12.50", in.params["size"])
		assert.Equal(t, "1", in.params["active"])
		assert.Equal(t, "[1,2]", in.params["roles"])
		assert.Equal(t, "2", in.params["page"])
		assert.NotContains(t, in.params, "gone")
		assert.True(t, in.notExact)
	})

	t.Run("form body", func(t *testing.T) {
		form := url.Values{"name": {"y"}, "not_exact": {"true"}}
		r := httptest.NewRequest(http.MethodPost, "/widgets", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		in, err := readInput(r)
		require.NoError(t, err)
		assert.Equal(t, "y", in.params["name"])
		assert.True(t, in.notExact)
	})

	t.Run("rejects non-object json", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/widgets", strings.NewReader(`[1,2]`))
		r.Header.Set("Content-Type", "application/json")
		_, err := readInput(r)
		assert.Error(t, err)
	})
}

func TestParseID(t *testing.T) {
	for raw, want := range map[string]bool{"1": true, "42": true, "0": false, "-1": false, "1e3": false, "abc": false, "": false} {
		_, ok := parseID(raw)
		assert.Equal(t, want, ok, raw)
	}
}
