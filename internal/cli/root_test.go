package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns what it wrote.
func execute(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(t.Context())
	return out.String(), errOut.String(), err
}

// decodeResponse parses a JSON envelope written to stdout.
func decodeResponse(t *testing.T, stdout string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), "stdout: %s", stdout)
	return resp
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "commoner", cmd.Use)
	assert.Contains(t, cmd.Long, "content-addressed bundles")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{{"build"}, {"scan"}, {"cache"}, {"cache", "stats"}, {"validate"}, {"test"}}

	for _, path := range commands {
		name := strings.Join(path, " ")
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %s should exist", name)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestBuildCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	buildCmd, _, err := cmd.Find([]string{"build"})
	require.NoError(t, err)

	for _, name := range []string{"schema", "watch", "stdin", "debug", "cache"} {
		assert.NotNil(t, buildCmd.Flags().Lookup(name), "flag --%s", name)
	}
	assert.Equal(t, "s", buildCmd.Flags().Lookup("schema").Shorthand)
	assert.Equal(t, "w", buildCmd.Flags().Lookup("watch").Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "", "--format", "xml", "scan", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestUnknownFlagIsCommandError(t *testing.T) {
	_, _, err := execute(t, "", "scan", "--bogus", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.False(t, Reported(err))
}

func TestWrongArgCountIsCommandError(t *testing.T) {
	_, _, err := execute(t, "", "scan")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&RootOptions{Format: "json"}, &buf)
		logger.Info("built", "id", "home")
		logger.Debug("hidden")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "built", line["msg"])
		assert.Equal(t, "home", line["id"])
		assert.NotContains(t, buf.String(), "hidden")
	})

	t.Run("text verbose", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&RootOptions{Format: "text", Verbose: true}, &buf)
		logger.Debug("resolving", "id", "home")

		assert.Contains(t, buf.String(), "resolving")
		assert.Contains(t, buf.String(), "id=home")
	})

	t.Run("text quiet", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&RootOptions{Format: "text"}, &buf)
		logger.Debug("resolving")
		assert.Empty(t, buf.String())
	})
}
