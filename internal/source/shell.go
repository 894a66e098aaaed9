package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/facebookarchive/commoner/internal/digest"
)

// ShellProvider resolves identifiers by running a POSIX shell script in an
// embedded interpreter. The script receives the id as $1 and prints the
// source on stdout. Empty output declines; a non-zero exit is an error.
type ShellProvider struct {
	name    string
	script  string
	prog    *syntax.File
	dir     string
	timeout time.Duration
}

// NewShellProvider parses script up front so syntax errors surface at
// configuration time. A zero timeout means no limit beyond ctx.
func NewShellProvider(name, script, dir string, timeout time.Duration) (*ShellProvider, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), name)
	if err != nil {
		return nil, fmt.Errorf("shell provider %s: parse script: %w", name, err)
	}
	return &ShellProvider{
		name:    name,
		script:  script,
		prog:    prog,
		dir:     dir,
		timeout: timeout,
	}, nil
}

func (p *ShellProvider) Name() string { return p.name }

func (p *ShellProvider) Fingerprint() string {
	return digest.Sum("commoner/shell-provider/v1", p.script)
}

// Resolve implements Provider.
func (p *ShellProvider) Resolve(ctx context.Context, id string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(os.Environ()...)),
		interp.StdIO(nil, &stdout, &stderr),
		// "--" keeps ids that start with "-" from being read as options.
		interp.Params("--", id),
	}
	if p.dir != "" {
		opts = append(opts, interp.Dir(p.dir))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return "", fmt.Errorf("shell provider %s: %w", p.name, err)
	}

	if err := runner.Run(ctx, p.prog); err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return "", fmt.Errorf("shell provider %s: exit status %d: %s",
				p.name, int(status), strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("shell provider %s: %w", p.name, err)
	}
	return stdout.String(), nil
}
