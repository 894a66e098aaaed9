package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".yaml"), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)
			result := RunWithGolden(t, s)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	s := &Scenario{
		Name:        "wrong_expectations",
		Description: "every assertion is wrong",
		Builds: []BuildStep{
			{Schema: `{"home": {}}`},
			{Roots: []string{"home"}},
		},
		Assertions: []Assertion{
			{Type: AssertFileCount, Build: 1, Count: 3},
			{Type: AssertModuleOrder, Build: 2, IDs: []string{"home", "assert"}},
			{Type: AssertBundleEmpty, Build: 1, Path: []string{"home"}},
			{Type: AssertErrorContains, Build: 1, Text: "boom"},
			{Type: AssertLedgerStatus, Build: 2, Status: "failed"},
			{Type: AssertDifferentFiles, Build: 1, As: 1},
		},
	}

	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "Expected: 3 files")
	assert.Contains(t, result.Errors[1], "-want +got")
	assert.Contains(t, result.Errors[3], "build succeeded")
	assert.Contains(t, result.Errors[4], "Actual: succeeded")
}

func TestRun_WalkErrors(t *testing.T) {
	s := &Scenario{
		Name:        "bad_paths",
		Description: "paths that do not exist",
		Builds:      []BuildStep{{Schema: `{"home": {}}`}, {Roots: []string{"home"}}},
		Assertions: []Assertion{
			{Type: AssertBundleContains, Build: 1, Path: []string{"nope"}, Text: "x"},
			{Type: AssertBundleContains, Build: 1, Path: []string{"home", "deeper"}, Text: "x"},
			{Type: AssertBundleContains, Build: 2, Path: []string{"home"}, Text: "x"},
		},
	}

	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], `no entry "nope"`)
	assert.Contains(t, result.Errors[1], "home has no children")
	assert.Contains(t, result.Errors[2], "not a tree build")
}

func TestRun_DebugChangesFiles(t *testing.T) {
	base := Scenario{
		Name:        "debug",
		Description: "debug builds skip minification",
		Builds:      []BuildStep{{Schema: `{"broken": {}}`}},
		Assertions: []Assertion{
			{Type: AssertBundleContains, Build: 1, Path: []string{"broken"}, Text: "install("},
		},
	}
	release := base
	debug := base
	debug.Debug = true

	relResult, err := Run(t.Context(), &release)
	require.NoError(t, err)
	dbgResult, err := Run(t.Context(), &debug)
	require.NoError(t, err)
	require.True(t, relResult.Pass, relResult.Errors)
	require.True(t, dbgResult.Pass, dbgResult.Errors)

	relFile := relResult.Builds[0].Report.Tree.Get("broken").File
	dbgFile := dbgResult.Builds[0].Report.Tree.Get("broken").File
	assert.NotEqual(t, relFile, dbgFile)
	assert.NotContains(t, relResult.Builds[0].Files[relFile], `// "missing" does not exist`)
	assert.Contains(t, dbgResult.Builds[0].Files[dbgFile], `// "missing" does not exist`)
}
