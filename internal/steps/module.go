package steps

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/facebookarchive/commoner/internal/module"
)

// requireCall matches require("literal") with either quote style.
var requireCall = regexp.MustCompile(`\brequire\s*\(\s*(?:"([^"\\\n]+)"|'([^'\\\n]+)')\s*\)`)

// Wrap returns the cjs-wrap step, which registers the module body with the
// runtime installer under its canonical id.
func Wrap() Step {
	return Func{
		StepName:    "cjs-wrap",
		StepVersion: "1.0.0",
		Fn: func(ctx context.Context, u Unit, src string) (string, error) {
			id, err := json.Marshal(u.ID)
			if err != nil {
				return "", err
			}
			var b strings.Builder
			b.Grow(len(src) + len(id) + 48)
			b.WriteString("install(")
			b.Write(id)
			b.WriteString(",function(require,exports,module){\n")
			b.WriteString(src)
			b.WriteString("\n});")
			return b.String(), nil
		},
	}
}

// CanonicalFunc maps an absolute id to its canonical id.
type CanonicalFunc func(ctx context.Context, id string) (string, error)

// Relativize returns a step that rewrites every require literal to the
// canonical id of its target, written relative to the requiring module.
// Literals that are not valid ids are left alone. A nil canon keeps ids as
// written.
func Relativize(canon CanonicalFunc) Step {
	return Func{
		StepName:    "relativize",
		StepVersion: "1.0.0",
		Fn: func(ctx context.Context, u Unit, src string) (string, error) {
			matches := requireCall.FindAllStringSubmatchIndex(src, -1)
			if len(matches) == 0 {
				return src, nil
			}

			var b strings.Builder
			last := 0
			for _, m := range matches {
				start, end := m[2], m[3]
				if start < 0 {
					start, end = m[4], m[5]
				}
				abs, err := module.Normalize(module.Absolutize(u.ID, src[start:end]))
				if err != nil {
					continue
				}
				if canon != nil {
					if abs, err = canon(ctx, abs); err != nil {
						return "", err
					}
				}
				b.WriteString(src[last:start])
				b.WriteString(module.Relativize(u.ID, abs))
				last = end
			}
			b.WriteString(src[last:])
			return b.String(), nil
		},
	}
}

// ScanDeps returns the ids required by src, absolutized against id and
// normalized, in source order without repeats. Literals that do not form a
// valid id are skipped.
func ScanDeps(id, src string) []string {
	var deps []string
	seen := make(map[string]bool)
	for _, m := range requireCall.FindAllStringSubmatch(src, -1) {
		lit := m[1]
		if lit == "" {
			lit = m[2]
		}
		dep, err := module.Normalize(module.Absolutize(id, lit))
		if err != nil || seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}
	return deps
}
