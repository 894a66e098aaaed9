package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/facebookarchive/commoner/internal/bundle"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Build    int
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s (build %d)\n", e.Type, e.Build)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

func evaluate(r *Result, a Assertion) error {
	out := r.Builds[a.Build-1]
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Build: a.Build, Expected: expected, Actual: actual}
	}

	if a.Type == AssertErrorContains {
		if out.Err == nil {
			return fail(fmt.Sprintf("error containing %q", a.Text), "build succeeded")
		}
		if !strings.Contains(out.Err.Error(), a.Text) {
			return fail(fmt.Sprintf("error containing %q", a.Text), out.Err.Error())
		}
		return nil
	}
	if a.Type == AssertLedgerStatus {
		if out.Ledger == nil || out.Ledger.Status != a.Status {
			actual := "no ledger row"
			if out.Ledger != nil {
				actual = out.Ledger.Status
			}
			return fail(a.Status, actual)
		}
		return nil
	}
	if out.Err != nil {
		return fail("successful build", out.Err.Error())
	}

	switch a.Type {
	case AssertFileCount:
		if len(out.Files) != a.Count {
			return fail(fmt.Sprintf("%d files", a.Count), fmt.Sprintf("%d files", len(out.Files)))
		}

	case AssertModuleOrder:
		if out.Report.Graph == nil {
			return fail("graph build", out.Report.Mode+" build")
		}
		if diff := cmp.Diff(a.IDs, out.Report.Graph.IDs()); diff != "" {
			return fail(fmt.Sprint(a.IDs), fmt.Sprintf("%v (-want +got):\n%s", out.Report.Graph.IDs(), diff))
		}

	case AssertSameFiles, AssertDifferentFiles:
		other := r.Builds[a.As-1]
		if other.Err != nil {
			return fail(fmt.Sprintf("build %d to succeed", a.As), other.Err.Error())
		}
		mine := slices.Sorted(maps.Keys(out.Files))
		theirs := slices.Sorted(maps.Keys(other.Files))
		same := slices.Equal(mine, theirs)
		if a.Type == AssertSameFiles && !same {
			return fail(fmt.Sprintf("same files as build %d", a.As), cmp.Diff(theirs, mine))
		}
		if a.Type == AssertDifferentFiles && same {
			return fail(fmt.Sprintf("files different from build %d", a.As), "identical file names")
		}

	case AssertBundleContains, AssertBundleExcludes, AssertBundleEmpty:
		node, err := walk(out.Report.Tree, a.Path)
		if err != nil {
			return fail(strings.Join(a.Path, " > "), err.Error())
		}
		if a.Type == AssertBundleEmpty {
			if !node.Empty {
				return fail("empty bundle", node.File)
			}
			return nil
		}
		if node.Empty {
			return fail("non-empty bundle", "empty bundle")
		}
		text := out.Files[node.File]
		has := strings.Contains(text, a.Text)
		if a.Type == AssertBundleContains && !has {
			return fail(fmt.Sprintf("bundle containing %q", a.Text), text)
		}
		if a.Type == AssertBundleExcludes && has {
			return fail(fmt.Sprintf("bundle without %q", a.Text), text)
		}
	}
	return nil
}

// walk follows path from the top level of a result tree.
func walk(res *bundle.Result, path []string) (*bundle.Node, error) {
	if res == nil {
		return nil, fmt.Errorf("not a tree build")
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	var node *bundle.Node
	for i, id := range path {
		if res == nil {
			return nil, fmt.Errorf("%s has no children", path[i-1])
		}
		node = res.Get(id)
		if node == nil {
			return nil, fmt.Errorf("no entry %q", id)
		}
		res = node.Then
	}
	return node, nil
}
