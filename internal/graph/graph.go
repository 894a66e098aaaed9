// Package graph computes the dependency-first closure of a set of modules.
package graph

import (
	"context"

	"github.com/facebookarchive/commoner/internal/module"
)

// Loader builds modules by id. builder.Builder implements it.
type Loader interface {
	ReadMany(ctx context.Context, ids []string) ([]*module.Module, error)
}

// Scope reports modules that are already satisfied and must be left out,
// typically the modules of a parent bundle.
type Scope interface {
	Has(id string) bool
}

// Close returns roots and everything they transitively depend on, with every
// module after all of its dependencies.
//
// Modules in scope are skipped along with any dependencies reachable only
// through them. A module is marked visited before its dependencies are
// explored, so cycles terminate and every participant appears once. Order is
// deterministic: roots in the given order, dependencies in source order.
func Close(ctx context.Context, l Loader, roots []*module.Module, scope Scope) ([]*module.Module, error) {
	w := &walker{
		loader:  l,
		scope:   scope,
		visited: make(map[string]bool),
	}
	for _, m := range roots {
		if err := w.visit(ctx, m); err != nil {
			return nil, err
		}
	}
	return w.out, nil
}

// CloseIDs builds ids through l and closes over the result.
func CloseIDs(ctx context.Context, l Loader, ids []string, scope Scope) ([]*module.Module, error) {
	roots, err := l.ReadMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	return Close(ctx, l, roots, scope)
}

type walker struct {
	loader  Loader
	scope   Scope
	visited map[string]bool
	out     []*module.Module
}

func (w *walker) visit(ctx context.Context, m *module.Module) error {
	if w.visited[m.ID] || (w.scope != nil && w.scope.Has(m.ID)) {
		return nil
	}
	w.visited[m.ID] = true

	if len(m.Deps) > 0 {
		// Fetch siblings together; visit them one at a time so the output
		// order does not depend on which build finishes first.
		deps, err := w.loader.ReadMany(ctx, m.Deps)
		if err != nil {
			return err
		}
		for _, dep := range deps {
			if err := w.visit(ctx, dep); err != nil {
				return err
			}
		}
	}

	w.out = append(w.out, m)
	return nil
}
