package harness

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/facebookarchive/commoner/internal/bundle"
	"github.com/facebookarchive/commoner/internal/digest"
	"github.com/facebookarchive/commoner/internal/graph"
)

// Snapshot renders a result as canonical JSON with published bundle names
// replaced by "bundle-N.js", numbered in order of first appearance.
func Snapshot(name string, r *Result) ([]byte, error) {
	names := make(map[string]string)
	alias := func(file string) string {
		if n, ok := names[file]; ok {
			return n
		}
		n := "bundle-" + strconv.Itoa(len(names)+1) + bundle.FileExt
		names[file] = n
		return n
	}

	builds := make([]any, len(r.Builds))
	for i, out := range r.Builds {
		entry := map[string]any{}
		if out.Ledger != nil {
			entry["build_id"] = out.Ledger.ID
			entry["status"] = out.Ledger.Status
		}
		if out.Err != nil {
			entry["error"] = out.Err.Error()
			builds[i] = entry
			continue
		}
		rep := out.Report
		entry["mode"] = rep.Mode
		entry["seq"] = rep.Seq
		switch {
		case rep.Tree != nil:
			entry["tree"] = treeMap(rep.Tree, alias)
		case rep.Graph != nil:
			entry["modules"] = toAny(rep.Graph.IDs())
			if len(rep.Graph.Cycles) > 0 {
				entry["cycles"] = cyclesList(rep.Graph.Cycles)
			}
		case rep.Module != nil:
			entry["module"] = map[string]any{
				"id":   rep.Module.ID,
				"deps": toAny(rep.Module.Deps),
			}
		}
		builds[i] = entry
	}

	data, err := digest.MarshalCanonical(map[string]any{
		"scenario_name": name,
		"builds":        builds,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", name, err)
	}
	return append(data, '\n'), nil
}

func treeMap(res *bundle.Result, alias func(string) string) map[string]any {
	out := make(map[string]any, len(res.IDs()))
	for _, id := range res.IDs() {
		n := res.Get(id)
		node := map[string]any{}
		if n.Empty {
			node["empty"] = true
		} else {
			node["file"] = alias(n.File)
		}
		if n.Then != nil {
			node["then"] = treeMap(n.Then, alias)
		}
		out[id] = node
	}
	return out
}

func cyclesList(cycles []graph.Cycle) []any {
	out := make([]any, len(cycles))
	for i, c := range cycles {
		out[i] = toAny(c.Path)
	}
	return out
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// RunWithGolden runs a scenario, fails t on any assertion error, and
// compares the snapshot with testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) *Result {
	t.Helper()

	result, err := Run(t.Context(), s)
	if err != nil {
		t.Fatalf("run scenario %s: %v", s.Name, err)
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	AssertGolden(t, s.Name, result)
	return result
}

// AssertGolden compares a result's snapshot with its golden file.
func AssertGolden(t *testing.T, name string, r *Result) {
	t.Helper()

	data, err := Snapshot(name, r)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
