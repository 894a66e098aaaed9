// Package bundle groups modules into published artifacts.
//
// A Bundle holds the modules an entry point needs that its ancestors do not
// already provide. The Assembler walks a schema tree building one Bundle per
// node, and the Writer runs the bundle pipeline and publishes the result
// under a content-derived file name.
package bundle

import (
	"sort"
	"strings"

	"github.com/facebookarchive/commoner/internal/digest"
	"github.com/facebookarchive/commoner/internal/module"
)

// Bundle is an immutable, ordered set of modules with an optional parent.
type Bundle struct {
	Modules []*module.Module
	Parent  *Bundle
	Hash    string

	byID map[string]*module.Module
}

// New builds a bundle. mods must be dependency-first, as graph.Close
// returns them.
func New(mods []*module.Module, parent *Bundle) *Bundle {
	b := &Bundle{
		Modules: mods,
		Parent:  parent,
		byID:    make(map[string]*module.Module, len(mods)),
	}

	hashes := make([]string, 0, len(mods))
	for _, m := range mods {
		b.byID[m.ID] = m
		hashes = append(hashes, m.Hash)
	}
	sort.Strings(hashes)

	h := digest.New(digest.DomainBundle)
	if parent != nil {
		h.Add("has-parent")
	}
	for _, hash := range hashes {
		h.Add(hash)
	}
	b.Hash = h.Sum()
	return b
}

// Get finds id in b or its ancestors.
func (b *Bundle) Get(id string) *module.Module {
	for x := b; x != nil; x = x.Parent {
		if m, ok := x.byID[id]; ok {
			return m
		}
	}
	return nil
}

// Has reports whether id is available in b or an ancestor. A nil Bundle has
// nothing, so it can be passed as an empty scope.
func (b *Bundle) Has(id string) bool {
	return b.Get(id) != nil
}

// Empty reports that every module the entry needs is inherited.
func (b *Bundle) Empty() bool { return len(b.Modules) == 0 }

// Root reports that b has no parent.
func (b *Bundle) Root() bool { return b.Parent == nil }

// Entry returns the id of the last module, which is the entry point.
func (b *Bundle) Entry() string {
	if b.Empty() {
		return ""
	}
	return b.Modules[len(b.Modules)-1].ID
}

// IDs returns the member ids in order.
func (b *Bundle) IDs() []string {
	ids := make([]string, len(b.Modules))
	for i, m := range b.Modules {
		ids[i] = m.ID
	}
	return ids
}

// Source concatenates member sources in order, one per line.
func (b *Bundle) Source() string {
	parts := make([]string, len(b.Modules))
	for i, m := range b.Modules {
		parts[i] = m.Source
	}
	return strings.Join(parts, "\n")
}
