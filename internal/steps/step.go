// Package steps defines source transforms and the standard module and
// bundle pipelines.
//
// A pipeline is identified by the names and versions of its steps. Bumping a
// step's version is how a behaviour change invalidates cached artifacts.
package steps

import (
	"context"
	"fmt"

	mm "github.com/Masterminds/semver/v3"

	"github.com/facebookarchive/commoner/internal/digest"
)

// Unit is what a step is applied to: one module, or one bundle.
type Unit struct {
	// ID is the canonical module id, or the schema node id for a bundle.
	ID string
	// Root is set for bundles without a parent.
	Root bool
	// Debug disables size-reducing steps.
	Debug bool
}

// Step transforms source text.
type Step interface {
	Name() string
	// Version is a semantic version; "1" and "1.0.0" are the same version.
	Version() string
	Process(ctx context.Context, u Unit, src string) (string, error)
}

// Func adapts a function to Step.
type Func struct {
	StepName    string
	StepVersion string
	Fn          func(ctx context.Context, u Unit, src string) (string, error)
}

func (f Func) Name() string    { return f.StepName }
func (f Func) Version() string { return f.StepVersion }

// Process implements Step.
func (f Func) Process(ctx context.Context, u Unit, src string) (string, error) {
	return f.Fn(ctx, u, src)
}

// Salt hashes the identity of steps in order under domain.
func Salt(domain string, steps []Step) (string, error) {
	h := digest.New(domain)
	for _, s := range steps {
		v, err := mm.NewVersion(s.Version())
		if err != nil {
			return "", fmt.Errorf("step %s: version %q: %w", s.Name(), s.Version(), err)
		}
		h.Add(s.Name()).Add(v.String())
	}
	return h.Sum(), nil
}

// Run applies steps to src in order.
func Run(ctx context.Context, steps []Step, u Unit, src string) (string, error) {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out, err := s.Process(ctx, u, src)
		if err != nil {
			return "", fmt.Errorf("step %s on %s: %w", s.Name(), u.ID, err)
		}
		src = out
	}
	return src, nil
}
