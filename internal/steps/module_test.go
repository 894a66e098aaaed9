package steps

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	out, err := Wrap().Process(context.Background(), Unit{ID: "widget/share"}, "exports.x = 1; // tail")
	require.NoError(t, err)
	assert.Equal(t, "install(\"widget/share\",function(require,exports,module){\nexports.x = 1; // tail\n});", out)
}

func TestScanDeps(t *testing.T) {
	src := `
var assert = require("assert");
var share = require('./share');
var again = require( "assert" );
var up = require("../home");
var bad = require("../../../outside");
var dyn = require(name);
`
	assert.Equal(t, []string{"assert", "widget/share", "home"}, ScanDeps("widget/follow", src))
	assert.Empty(t, ScanDeps("home", "no requires here"))
}

func TestScanDeps_IgnoresWrapperSignature(t *testing.T) {
	out, err := Wrap().Process(context.Background(), Unit{ID: "a"}, `require("b");`)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ScanDeps("a", out))
}

func TestRelativize(t *testing.T) {
	canon := func(ctx context.Context, id string) (string, error) {
		if id == "widget/share" {
			return "WidgetShare", nil
		}
		return id, nil
	}
	src := `var s = require("./share"); var a = require('assert'); var d = require(dynamic);`

	out, err := Relativize(canon).Process(context.Background(), Unit{ID: "widget/follow"}, src)
	require.NoError(t, err)
	assert.Equal(t, `var s = require("../WidgetShare"); var a = require('../assert'); var d = require(dynamic);`, out)

	// Rewritten literals still resolve to the same ids.
	assert.Equal(t, []string{"WidgetShare", "assert"}, ScanDeps("widget/follow", out))
}

func TestRelativize_NilCanon(t *testing.T) {
	out, err := Relativize(nil).Process(context.Background(), Unit{ID: "home"}, `require("assert")`)
	require.NoError(t, err)
	assert.Equal(t, `require("./assert")`, out)
}

func TestRelativize_CanonError(t *testing.T) {
	boom := errors.New("boom")
	step := Relativize(func(ctx context.Context, id string) (string, error) { return "", boom })
	_, err := step.Process(context.Background(), Unit{ID: "home"}, `require("assert")`)
	assert.ErrorIs(t, err, boom)
}
