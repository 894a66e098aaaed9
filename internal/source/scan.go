package source

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/facebookarchive/commoner/internal/module"
)

// ScanOptions controls ScanDirectives.
type ScanOptions struct {
	// Directive is the directive name without "@". Defaults to
	// DefaultDirective.
	Directive string
	// Patterns select files to scan, as doublestar globs. Defaults to
	// "**/*<PreferredExt>".
	Patterns []string
	// Ignore excludes matching paths.
	Ignore []string
	// PreferredExt wins a tie when two files with the same stem but
	// different extensions declare one id. Defaults to ".js".
	PreferredExt string
}

// ScanDirectives returns path → declared id for every matching file in fsys
// that carries a directive. Only the first directive in a file counts.
//
// Two files declaring the same id is a DUPLICATE_DIRECTIVE error unless they
// share a stem and exactly one of them has the preferred extension.
func ScanDirectives(ctx context.Context, fsys fs.FS, opts ScanOptions) (map[string]string, error) {
	if opts.Directive == "" {
		opts.Directive = DefaultDirective
	}
	if opts.PreferredExt == "" {
		opts.PreferredExt = ".js"
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"**/*" + opts.PreferredExt}
	}
	re := DirectivePattern(opts.Directive)

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range opts.Patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("scan directives: pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] && !ignored(m, opts.Ignore) {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)

	pathToID := make(map[string]string)
	idToPath := make(map[string]string)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("scan directives: %w", err)
		}
		m := re.FindSubmatch(data)
		if m == nil {
			continue
		}
		id, err := module.Normalize(string(m[1]))
		if err != nil {
			return nil, fmt.Errorf("scan directives: %s: %w", file, err)
		}

		if prev, dup := idToPath[id]; dup {
			winner, ok := preferred(prev, file, opts.PreferredExt)
			if !ok {
				return nil, module.NewDuplicateDirectiveError(id, prev, file)
			}
			loser := prev
			if winner == prev {
				loser = file
			}
			delete(pathToID, loser)
			idToPath[id] = winner
			pathToID[winner] = id
			continue
		}
		idToPath[id] = file
		pathToID[file] = id
	}
	return pathToID, nil
}

// preferred picks between two files declaring the same id.
func preferred(a, b, ext string) (string, bool) {
	stemA := strings.TrimSuffix(a, path.Ext(a))
	stemB := strings.TrimSuffix(b, path.Ext(b))
	if stemA != stemB {
		return "", false
	}
	switch {
	case path.Ext(a) == ext && path.Ext(b) != ext:
		return a, true
	case path.Ext(b) == ext && path.Ext(a) != ext:
		return b, true
	}
	return "", false
}

func ignored(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// Invert turns path → id into id → path.
func Invert(pathToID map[string]string) map[string]string {
	out := make(map[string]string, len(pathToID))
	for p, id := range pathToID {
		out[id] = p
	}
	return out
}
