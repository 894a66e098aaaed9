package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

func parseCUE(data []byte, filename string) (Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Schema{}, cueError(filename, err)
	}

	switch v.IncompleteKind() {
	case cue.ListKind:
		roots, err := cueRoots(filename, v)
		if err != nil {
			return Schema{}, err
		}
		return Schema{Roots: roots}, nil
	case cue.StructKind:
		tree, err := cueTree(filename, v)
		if err != nil {
			return Schema{}, err
		}
		return Schema{Tree: tree}, nil
	default:
		return Schema{}, &LoadError{File: filename, Message: "schema must be a list of ids or a struct of entries", Pos: v.Pos()}
	}
}

func cueRoots(filename string, v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, cueError(filename, err)
	}
	roots := []string{}
	for iter.Next() {
		id, err := iter.Value().String()
		if err != nil {
			return nil, &LoadError{File: filename, Message: "root ids must be strings", Pos: iter.Value().Pos()}
		}
		if err := validate(filename, id, iter.Value().Pos()); err != nil {
			return nil, err
		}
		roots = append(roots, id)
	}
	return roots, nil
}

func cueTree(filename string, v cue.Value) (Tree, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, cueError(filename, err)
	}
	tree := Tree{}
	for iter.Next() {
		id := iter.Selector().Unquoted()
		child := iter.Value()
		if err := validate(filename, id, child.Pos()); err != nil {
			return nil, err
		}
		if child.IncompleteKind() != cue.StructKind {
			return nil, &LoadError{
				File:    filename,
				Message: fmt.Sprintf("entry %q must be a struct of child entries", id),
				Pos:     child.Pos(),
			}
		}
		children, err := cueTree(filename, child)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			children = nil
		}
		tree = append(tree, Entry{ID: id, Children: children})
	}
	return tree, nil
}

// cueError keeps the first error and its position.
func cueError(filename string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{File: filename, Message: err.Error()}
	}
	first := errs[0]
	var pos token.Pos
	if positions := errors.Positions(first); len(positions) > 0 {
		pos = positions[0]
	}
	return &LoadError{File: filename, Message: first.Error(), Pos: pos}
}
