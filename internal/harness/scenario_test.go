package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "edit_rebuild.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "edit_rebuild", s.Name)
	require.Len(t, s.Builds, 3)
	assert.Contains(t, s.Builds[1].Edit["home.js"], "home, edited")
	assert.Equal(t, AssertDifferentFiles, s.Assertions[0].Type)
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: y\nbuild: []\n",
			wantErr: "field build not found",
		},
		{
			name:    "no name",
			yaml:    "description: y\nbuilds: [{roots: [a]}]\n",
			wantErr: "name is required",
		},
		{
			name:    "no description",
			yaml:    "name: x\nbuilds: [{roots: [a]}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no builds",
			yaml:    "name: x\ndescription: y\n",
			wantErr: "builds list is required",
		},
		{
			name:    "two build kinds",
			yaml:    "name: x\ndescription: y\nbuilds: [{roots: [a], source: 'x'}]\n",
			wantErr: "exactly one of roots, schema and source",
		},
		{
			name:    "bad cache",
			yaml:    "name: x\ndescription: y\ncache: redis\nbuilds: [{roots: [a]}]\n",
			wantErr: `unknown cache backend "redis"`,
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: y\nbuilds: [{roots: [a]}]\nassertions: [{type: trace_order, build: 1}]\n",
			wantErr: `unknown type "trace_order"`,
		},
		{
			name:    "build out of range",
			yaml:    "name: x\ndescription: y\nbuilds: [{roots: [a]}]\nassertions: [{type: file_count, build: 2}]\n",
			wantErr: "build 2 out of range",
		},
		{
			name:    "as out of range",
			yaml:    "name: x\ndescription: y\nbuilds: [{roots: [a]}]\nassertions: [{type: same_files, build: 1, as: 0}]\n",
			wantErr: "as 0 out of range",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
