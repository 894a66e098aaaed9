// Package schema reads build schemas.
//
// A schema is either a flat list of root ids (graph mode) or a tree of
// bundle entry points (bundle mode):
//
//	core: {
//		home: {settings: {}}
//	}
//	assert: {home: {}}
//
// CUE and JSON files are read with CUE, which keeps field order and reports
// positions in errors. YAML files are read as a node tree for the same
// reasons.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/facebookarchive/commoner/internal/module"
)

// Entry is one bundle entry point and the bundles that load after it.
type Entry struct {
	ID       string `json:"id"`
	Children Tree   `json:"children,omitempty"`
}

// Tree is an ordered list of sibling entries.
type Tree []Entry

// IDs returns the entry ids in order.
func (t Tree) IDs() []string {
	ids := make([]string, len(t))
	for i, e := range t {
		ids[i] = e.ID
	}
	return ids
}

// Schema is the parsed build description. Exactly one of Roots and Tree is
// set.
type Schema struct {
	Roots []string
	Tree  Tree
}

// FromRoots returns a graph-mode schema.
func FromRoots(ids ...string) Schema {
	return Schema{Roots: ids}
}

// IsGraph reports whether s lists roots rather than a bundle tree.
func (s Schema) IsGraph() bool {
	return s.Tree == nil
}

// LoadError is a schema problem with its source position, when known.
type LoadError struct {
	File    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s", e.Pos, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// Load reads and parses the schema file at path.
func Load(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema: %w", err)
	}
	return Parse(data, path)
}

// Parse parses data, choosing the syntax from filename's extension. Files
// ending in .yaml or .yml are YAML; everything else is CUE, which accepts
// JSON.
func Parse(data []byte, filename string) (Schema, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return parseYAML(data, filename)
	default:
		return parseCUE(data, filename)
	}
}

var noPos token.Pos

func validate(file, id string, pos token.Pos) error {
	if _, err := module.Normalize(id); err != nil {
		return &LoadError{File: file, Message: fmt.Sprintf("invalid module id %q: %v", id, err), Pos: pos}
	}
	return nil
}
