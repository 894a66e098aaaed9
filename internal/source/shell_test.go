package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellProvider(t *testing.T) {
	script := `
case "$1" in
  gen/*) echo "module.exports = \"$1\";" ;;
  broken) echo "nope" >&2; exit 3 ;;
esac
`
	p, err := NewShellProvider("generated", script, t.TempDir(), time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	text, err := p.Resolve(ctx, "gen/answer")
	require.NoError(t, err)
	assert.Equal(t, "module.exports = \"gen/answer\";\n", text)

	text, err = p.Resolve(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, text, "no output declines")

	_, err = p.Resolve(ctx, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "nope")
}

func TestShellProvider_ParseError(t *testing.T) {
	_, err := NewShellProvider("bad", "if then fi (", "", 0)
	assert.Error(t, err)
}

func TestShellProvider_FallsThroughInChain(t *testing.T) {
	p, err := NewShellProvider("failing", "exit 1", "", 0)
	require.NoError(t, err)

	c := NewChain(nil)
	c.Register(NewMapProvider("base", map[string]string{"a": "base"}), p)

	src, err := c.Resolve(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "base", src.Text)
}

func TestShellProvider_Fingerprint(t *testing.T) {
	a, err := NewShellProvider("s", "echo a", "", 0)
	require.NoError(t, err)
	b, err := NewShellProvider("s", "echo b", "", 0)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
