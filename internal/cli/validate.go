package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/facebookarchive/commoner/internal/engine"
	"github.com/facebookarchive/commoner/internal/schema"
)

// ValidationResult describes a schema that parsed cleanly.
type ValidationResult struct {
	Valid bool     `json:"valid"`
	Mode  string   `json:"mode"`
	IDs   []string `json:"ids"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-file>",
		Short: "Validate a bundle schema without building",
		Long: `Parse a bundle schema (CUE, JSON or YAML) and check every module id in
it, without resolving or building anything. The config file given with
--config is loaded and checked too.

Errors report the file and position of the offending entry.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, file string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	logger := newLogger(opts, cmd.ErrOrStderr())

	if _, err := loadConfig(cmd.Context(), opts, cmd.InOrStdin(), logger, f); err != nil {
		return err
	}

	sch, err := schema.Load(file)
	if err != nil {
		return f.Fail(ExitFailure, "invalid schema", err)
	}

	result := ValidationResult{Valid: true, Mode: engine.ModeTree, IDs: sch.Tree.IDs()}
	if sch.IsGraph() {
		result.Mode = engine.ModeGraph
		result.IDs = sch.Roots
	}
	f.VerboseLog("Schema %s names %d module(s)", file, len(result.IDs))

	if opts.Format == "json" {
		return f.Success(result)
	}
	return f.Success(fmt.Sprintf("%s: valid %s schema (%s)", file, result.Mode, strings.Join(result.IDs, ", ")))
}
