package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/facebookarchive/commoner/internal/cache"
	"github.com/facebookarchive/commoner/internal/graph"
	"github.com/facebookarchive/commoner/internal/module"
	"github.com/facebookarchive/commoner/internal/schema"
)

// Node is the outcome for one schema entry.
type Node struct {
	File  string  `json:"file,omitempty"`
	Empty bool    `json:"empty,omitempty"`
	Then  *Result `json:"then,omitempty"`
}

// Result maps entry ids to nodes, in schema order.
type Result struct {
	ids   []string
	nodes map[string]*Node
}

func newResult(ids []string) *Result {
	return &Result{ids: ids, nodes: make(map[string]*Node, len(ids))}
}

// IDs returns the entry ids in schema order.
func (r *Result) IDs() []string { return r.ids }

// Get returns the node for id, or nil.
func (r *Result) Get(id string) *Node { return r.nodes[id] }

// Files returns every published file name, depth first in schema order.
func (r *Result) Files() []string {
	var files []string
	for _, id := range r.ids {
		n := r.nodes[id]
		if n.File != "" {
			files = append(files, n.File)
		}
		if n.Then != nil {
			files = append(files, n.Then.Files()...)
		}
	}
	return files
}

// MarshalJSON writes the result as an object whose keys keep schema order.
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range r.ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.nodes[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Assembler builds bundle trees and module graphs.
type Assembler struct {
	loader graph.Loader
	writer *Writer
	logger *slog.Logger
}

// NewAssembler returns an assembler that builds modules through loader and
// publishes through writer.
func NewAssembler(loader graph.Loader, writer *Writer, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{loader: loader, writer: writer, logger: logger}
}

// Build produces one bundle per entry of tree. Each entry's bundle excludes
// modules its ancestors already provide; siblings are built concurrently.
func (a *Assembler) Build(ctx context.Context, tree schema.Tree) (*Result, error) {
	return a.build(ctx, tree, nil)
}

func (a *Assembler) build(ctx context.Context, tree schema.Tree, parent *Bundle) (*Result, error) {
	res := newResult(tree.IDs())
	nodes := make([]*Node, len(tree))

	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range tree {
		g.Go(func() error {
			n, err := a.buildNode(gctx, entry, parent)
			if err != nil {
				return err
			}
			nodes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, entry := range tree {
		res.nodes[entry.ID] = nodes[i]
	}
	return res, nil
}

func (a *Assembler) buildNode(ctx context.Context, entry schema.Entry, parent *Bundle) (*Node, error) {
	mods, err := graph.CloseIDs(ctx, a.loader, []string{entry.ID}, parent)
	if err != nil {
		return nil, err
	}
	b := New(mods, parent)

	n := &Node{}
	if b.Empty() {
		n.Empty = true
		a.logger.Debug("bundle fully inherited", "id", entry.ID)
	} else {
		if n.File, err = a.writer.Write(ctx, b); err != nil {
			return nil, err
		}
	}

	if len(entry.Children) > 0 {
		if n.Then, err = a.build(ctx, entry.Children, b); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// GraphResult is the outcome of a graph-mode build.
type GraphResult struct {
	Modules []*module.Module `json:"modules"`
	Cycles  []graph.Cycle    `json:"cycles,omitempty"`
}

// IDs returns the module ids in dependency-first order.
func (r *GraphResult) IDs() []string {
	ids := make([]string, len(r.Modules))
	for i, m := range r.Modules {
		ids[i] = m.ID
	}
	return ids
}

// BuildGraph closes over roots and publishes every module to
// <outputDir>/<id>.js. An empty outputDir builds without publishing.
func BuildGraph(ctx context.Context, l graph.Loader, c cache.Cache, roots []string, outputDir string) (*GraphResult, error) {
	mods, err := graph.CloseIDs(ctx, l, roots, nil)
	if err != nil {
		return nil, err
	}

	if outputDir != "" {
		g, gctx := errgroup.WithContext(ctx)
		for _, m := range mods {
			g.Go(func() error {
				dest := filepath.Join(outputDir, filepath.FromSlash(m.ID)+FileExt)
				if err := c.Publish(gctx, m.Hash, dest); err != nil {
					return fmt.Errorf("publish module %s: %w", m.ID, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return &GraphResult{Modules: mods, Cycles: graph.Cycles(mods)}, nil
}
