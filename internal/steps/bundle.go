package steps

import (
	"context"
	"strings"
)

// Minify returns a step that drops comment-only lines, blank lines and
// trailing whitespace. Lines inside a template literal or a backslash-continued
// string are kept verbatim. Regular expression literals are not recognized, so
// a quote inside one is read as opening a string until the end of its line.
// It leaves debug builds untouched.
func Minify() Step {
	return Func{
		StepName:    "minify",
		StepVersion: "1.1.0",
		Fn: func(ctx context.Context, u Unit, src string) (string, error) {
			if u.Debug {
				return src, nil
			}
			return stripComments(src), nil
		},
	}
}

// stripComments removes comments that start a line. Comments after code on
// the same line are kept.
func stripComments(src string) string {
	var (
		out      []string
		cur      strings.Builder
		quote    byte // delimiter of the open string or template literal
		leading  bool // inside a removed comment
		trailing bool // inside a kept block comment
	)
	flush := func(verbatim bool) {
		line := cur.String()
		cur.Reset()
		if !verbatim {
			line = strings.TrimRight(line, " \t\r")
			if strings.TrimSpace(line) == "" {
				return
			}
		}
		out = append(out, line)
	}
	at := func(i int, s string) bool { return strings.HasPrefix(src[i:], s) }

	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch {
		case leading:
			if at(i, "*/") {
				leading = false
				i++
				cur.Reset()
				for i+1 < len(src) && (src[i+1] == ' ' || src[i+1] == '\t') {
					i++
				}
			} else if ch == '\n' {
				flush(false)
			}

		case trailing:
			if at(i, "*/") {
				trailing = false
				cur.WriteString("*/")
				i++
			} else if ch == '\n' {
				flush(false)
			} else {
				cur.WriteByte(ch)
			}

		case quote != 0:
			switch {
			case ch == '\\' && i+1 < len(src):
				cur.WriteByte(ch)
				i++
				if src[i] == '\n' {
					flush(true)
				} else {
					cur.WriteByte(src[i])
				}
			case ch == '\n':
				if quote == '`' {
					flush(true)
				} else {
					quote = 0
					flush(false)
				}
			default:
				if ch == quote {
					quote = 0
				}
				cur.WriteByte(ch)
			}

		case ch == '\n':
			flush(false)

		case at(i, "//"):
			if strings.TrimSpace(cur.String()) == "" {
				for i+1 < len(src) && src[i+1] != '\n' {
					i++
				}
				continue
			}
			for ; i < len(src) && src[i] != '\n'; i++ {
				cur.WriteByte(src[i])
			}
			i--

		case at(i, "/*"):
			if strings.TrimSpace(cur.String()) == "" {
				leading = true
			} else {
				trailing = true
				cur.WriteString("/*")
			}
			i++

		default:
			if ch == '"' || ch == '\'' || ch == '`' {
				quote = ch
			}
			cur.WriteByte(ch)
		}
	}
	flush(quote != 0)
	return strings.Join(out, "\n")
}

// PrependLoader returns a step that puts the module installer runtime in
// front of root bundles. Child bundles rely on the copy their root loaded.
func PrependLoader() Step {
	return Func{
		StepName:    "prepend-loader",
		StepVersion: "1.0.0",
		Fn: func(ctx context.Context, u Unit, src string) (string, error) {
			if !u.Root {
				return src, nil
			}
			return Loader + "\n" + src, nil
		},
	}
}

// Loader is the runtime that defines install and require for bundles built
// with Wrap.
const Loader = `(function (global) {
  var defs = {}, cache = {};
  function resolve(from, id) {
    if (id.charAt(0) !== ".") return id;
    var parts = from.split("/");
    parts.pop();
    id.split("/").forEach(function (p) {
      if (p === "..") parts.pop();
      else if (p !== ".") parts.push(p);
    });
    return parts.join("/");
  }
  function load(id) {
    if (cache.hasOwnProperty(id)) return cache[id].exports;
    if (!defs.hasOwnProperty(id)) throw new Error("module " + id + " not installed");
    var module = cache[id] = { id: id, exports: {} };
    defs[id].call(global, function (dep) { return load(resolve(id, dep)); }, module.exports, module);
    return module.exports;
  }
  global.install = function (id, fn) { defs[id] = fn; };
  global.require = load;
})(this);`

// ModulePipeline is the default module step list.
func ModulePipeline(canon CanonicalFunc) []Step {
	return []Step{Relativize(canon), Wrap()}
}

// BundlePipeline is the default bundle step list.
func BundlePipeline() []Step {
	return []Step{Minify(), PrependLoader()}
}
