package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "home", "home"},
		{"nested", "widget/share", "widget/share"},
		{"leading dot slash", "./home", "home"},
		{"leading slash", "/widget/share", "widget/share"},
		{"double slash", "widget//share", "widget/share"},
		{"inner parent", "tests/../myassert", "myassert"},
		{"backslash", `widget\share`, "widget/share"},
		{"alias style", "WidgetShare", "WidgetShare"},
		{"scoped", "@scope/pkg", "@scope/pkg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_NFC(t *testing.T) {
	// "é" as e + combining acute accent normalizes to the precomposed form.
	decomposed := "cafe\u0301"
	got, err := Normalize(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", got)
}

func TestNormalize_Rejects(t *testing.T) {
	for _, in := range []string{"", "   ", ".", "/", "..", "../outside", "a b", "a\"b"} {
		t.Run(in, func(t *testing.T) {
			_, err := Normalize(in)
			require.Error(t, err)
			assert.True(t, HasCode(err, ErrCodeInvalidID), "got %v", err)
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("widget/share"))
	assert.False(t, Valid("./widget/share"), "valid input but not normalized")
	assert.False(t, Valid("bad id"))
}

func TestAbsolutize(t *testing.T) {
	assert.Equal(t, "myassert", Absolutize("home", "./myassert"))
	assert.Equal(t, "myassert", Absolutize("home", "./tests/../myassert"))
	assert.Equal(t, "home", Absolutize("widget/follow", "../home"))
	assert.Equal(t, "widget/share", Absolutize("widget/follow", "./share"))
	assert.Equal(t, "WidgetShare", Absolutize("widget/follow", "WidgetShare"))
	assert.Equal(t, "react/addons", Absolutize("home", "react/addons"))
}

func TestRelativize(t *testing.T) {
	assert.Equal(t, "../WidgetShare", Relativize("widget/follow", "WidgetShare"))
	assert.Equal(t, "./gallery", Relativize("widget/follow", "widget/gallery"))
	assert.Equal(t, "../myassert", Relativize("widget/follow", "myassert"))
	assert.Equal(t, "./follow", Relativize("widget/follow", "widget/follow"))
	assert.Equal(t, "./assert", Relativize("home", "assert"))
	assert.Equal(t, "./widget/share", Relativize("home", "widget/share"))
	assert.Equal(t, "../widget", Relativize("widget/follow", "widget"))
}

func TestRelativize_RoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"widget/follow", "WidgetShare"},
		{"a/b/c", "a/d/e"},
		{"home", "widget/share"},
		{"a/b/c", "x"},
	}
	for _, p := range pairs {
		rel := Relativize(p[0], p[1])
		assert.Equal(t, p[1], Absolutize(p[0], rel), "from %s via %s", p[0], rel)
	}
}
