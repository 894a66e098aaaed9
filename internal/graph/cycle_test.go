package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facebookarchive/commoner/internal/module"
)

func mods(deps ...[2]string) []*module.Module {
	byID := map[string]*module.Module{}
	var out []*module.Module
	get := func(id string) *module.Module {
		if m, ok := byID[id]; ok {
			return m
		}
		m := &module.Module{ID: id}
		byID[id] = m
		out = append(out, m)
		return m
	}
	for _, d := range deps {
		from := get(d[0])
		if d[1] != "" {
			get(d[1])
			from.Deps = append(from.Deps, d[1])
		}
	}
	return out
}

func TestCycles_None(t *testing.T) {
	assert.Empty(t, Cycles(nil))
	assert.Empty(t, Cycles(mods([2]string{"home", "assert"}, [2]string{"assert", ""})))
}

func TestCycles_TwoModules(t *testing.T) {
	cycles := Cycles(mods([2]string{"a", "b"}, [2]string{"b", "a"}))
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "a"}, cycles[0].Path)
	assert.Equal(t, "dependency cycle: a → b → a", cycles[0].String())
}

func TestCycles_SelfLoop(t *testing.T) {
	cycles := Cycles(mods([2]string{"self", "self"}))
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"self", "self"}, cycles[0].Path)
	assert.Equal(t, "module requires itself: self", cycles[0].String())
}

func TestCycles_IgnoresEdgesOutsideSet(t *testing.T) {
	m := &module.Module{ID: "a", Deps: []string{"elsewhere"}}
	assert.Empty(t, Cycles([]*module.Module{m}))
}

func TestCycles_Deterministic(t *testing.T) {
	input := mods(
		[2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"c", "a"},
		[2]string{"x", "y"}, [2]string{"y", "x"},
	)
	first := Cycles(input)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Cycles(input))
	}
	require.Len(t, first, 2)
	assert.Equal(t, []string{"a", "b", "c", "a"}, first[0].Path)
	assert.Equal(t, []string{"x", "y", "x"}, first[1].Path)
}
