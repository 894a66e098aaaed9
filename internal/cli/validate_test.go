package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Tree(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bundles.yaml")
	writeFile(t, file, "home:\n  settings: {}\n")

	stdout, _, err := execute(t, "", "validate", file)
	require.NoError(t, err)
	assert.Contains(t, stdout, "valid tree schema")
	assert.Contains(t, stdout, "home")
	assert.Contains(t, stdout, "settings")
}

func TestValidate_GraphJSON(t *testing.T) {
	file := filepath.Join(t.TempDir(), "roots.cue")
	writeFile(t, file, `["home", "core"]`)

	stdout, _, err := execute(t, "", "--format", "json", "validate", file)
	require.NoError(t, err)

	resp := decodeResponse(t, stdout)
	assert.Equal(t, map[string]any{
		"valid": true,
		"mode":  "graph",
		"ids":   []any{"home", "core"},
	}, resp.Data)
}

func TestValidate_InvalidID(t *testing.T) {
	file := filepath.Join(t.TempDir(), "roots.json")
	writeFile(t, file, `["bad id!"]`)

	stdout, _, err := execute(t, "", "--format", "json", "validate", file)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, stdout)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidSchema, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "invalid module id")
}

func TestValidate_BadConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "roots.json")
	writeFile(t, file, `["home"]`)
	cfgFile := filepath.Join(t.TempDir(), "commoner.json")
	writeFile(t, cfgFile, `{"cache": {"backend": "redis"}}`)

	_, stderr, err := execute(t, "", "--config", cfgFile, "validate", file)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr, ErrCodeInvalidConfig)
}
