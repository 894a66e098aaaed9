package steps

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facebookarchive/commoner/internal/digest"
)

func upper(version string) Step {
	return Func{StepName: "upper", StepVersion: version, Fn: func(ctx context.Context, u Unit, src string) (string, error) {
		return strings.ToUpper(src), nil
	}}
}

func suffix(s string) Step {
	return Func{StepName: "suffix-" + s, StepVersion: "1", Fn: func(ctx context.Context, u Unit, src string) (string, error) {
		return src + s, nil
	}}
}

func TestRun_AppliesInOrder(t *testing.T) {
	out, err := Run(context.Background(), []Step{suffix("a"), upper("1"), suffix("b")}, Unit{ID: "x"}, "src:")
	require.NoError(t, err)
	assert.Equal(t, "SRC:Ab", out)
}

func TestRun_WrapsStepErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := Func{StepName: "failing", StepVersion: "1", Fn: func(ctx context.Context, u Unit, src string) (string, error) {
		return "", boom
	}}
	_, err := Run(context.Background(), []Step{failing}, Unit{ID: "home"}, "")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step failing on home")
}

func TestSalt(t *testing.T) {
	base, err := Salt(digest.DomainSteps, []Step{upper("1"), suffix("a")})
	require.NoError(t, err)

	same, err := Salt(digest.DomainSteps, []Step{upper("1.0.0"), suffix("a")})
	require.NoError(t, err)
	assert.Equal(t, base, same, "equivalent versions hash identically")

	bumped, err := Salt(digest.DomainSteps, []Step{upper("1.1"), suffix("a")})
	require.NoError(t, err)
	assert.NotEqual(t, base, bumped)

	reordered, err := Salt(digest.DomainSteps, []Step{suffix("a"), upper("1")})
	require.NoError(t, err)
	assert.NotEqual(t, base, reordered)

	otherDomain, err := Salt(digest.DomainWriter, []Step{upper("1"), suffix("a")})
	require.NoError(t, err)
	assert.NotEqual(t, base, otherDomain)

	_, err = Salt(digest.DomainSteps, []Step{upper("not-a-version")})
	assert.Error(t, err)
}
