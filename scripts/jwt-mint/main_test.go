package main

import (
	"os"
	"path/filepath"
	"testing"

	"firewatch/internal/scope"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGrants(t *testing.T) {
	grants, err := parseGrants("fire:get, scrape:get,,user:update")
	require.NoError(t, err)
	assert.Equal(t, []scope.Grant{
		{Category: "fire", Action: "get"},
		{Category: "scrape", Action: "get"},
		{Category: "user", Action: "update"},
	}, grants)

	_, err = parseGrants("fire")
	assert.Error(t, err)
}

func TestResolveSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

	got, err := resolveSecret("", path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = resolveSecret("inline", path)
	require.NoError(t, err)
	assert.Equal(t, "inline", got)

	_, err = resolveSecret("", "")
	assert.Error(t, err)
}
