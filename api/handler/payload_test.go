package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestParseDiscoveryForms(t *testing.T) {
	rows, err := parseDiscovery([]byte(`[{"{#NAME}":"a","{#PORT}":8080,"{#UP}":true}]`), "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]string{"{#NAME}": "a", "{#PORT}": "8080", "{#UP}": "true"}, rows[0].Macros)

	rows, err = parseDiscovery([]byte(`{"data":[{"macros":{"{#NAME}":"b"},"overrides":{"status":1,"tags":[{"tag":"x","value":"y"}]}}]}`), "application/json")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].Macros["{#NAME}"])
	require.NotNil(t, rows[0].Overrides.Status)
	assert.EqualValues(t, 1, *rows[0].Overrides.Status)
	assert.Len(t, rows[0].Overrides.Tags, 1)

	rows, err = parseDiscovery([]byte(`{"data":[]}`), "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseDiscoveryCharset(t *testing.T) {
	raw, err := charmap.Windows1252.NewEncoder().Bytes([]byte(`[{"{#NAME}":"café"}]`))
	require.NoError(t, err)

	rows, err := parseDiscovery(raw, "application/json; charset=windows-1252")
	require.NoError(t, err)
	assert.Equal(t, "café", rows[0].Macros["{#NAME}"])
}

func TestParseDiscoveryErrors(t *testing.T) {
	for _, body := range []string{``, `{}`, `[1]`, `[{"{#A}":{"x":1}}]`, `{"data":`} {
		_, err := parseDiscovery([]byte(body), "")
		assert.Error(t, err, body)
	}
}
