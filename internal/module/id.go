package module

import (
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// validID matches identifiers made of letters, digits and the separators
// module paths commonly use.
var validID = regexp.MustCompile(`^[\p{L}\p{N}\-_/.@$+~]+$`)

// Normalize returns the canonical spelling of a module identifier.
//
// The identifier is NFC normalized, backslashes become slashes, and the path
// is cleaned so that "./a//b" and "a/b" name the same module. Identifiers that
// are empty, escape the source root, or contain characters outside the
// allowed set are rejected with an INVALID_ID error.
func Normalize(id string) (string, error) {
	s := norm.NFC.String(strings.TrimSpace(id))
	s = strings.ReplaceAll(s, `\`, "/")
	if s == "" {
		return "", NewInvalidIDError(id, "empty identifier")
	}

	s = strings.TrimPrefix(path.Clean(s), "/")
	if s == "" || s == "." {
		return "", NewInvalidIDError(id, "identifier names the source root")
	}
	if s == ".." || strings.HasPrefix(s, "../") {
		return "", NewInvalidIDError(id, "identifier escapes the source root")
	}
	if !validID.MatchString(s) {
		return "", NewInvalidIDError(id, "identifier contains unsupported characters")
	}
	return s, nil
}

// Valid reports whether id is already in normalized form.
func Valid(id string) bool {
	n, err := Normalize(id)
	return err == nil && n == id
}

// IsRelative reports whether dep is written relative to the requiring module.
func IsRelative(dep string) bool {
	return dep == "." || dep == ".." ||
		strings.HasPrefix(dep, "./") || strings.HasPrefix(dep, "../")
}

// Absolutize resolves dep against the directory of the module from.
// Non-relative identifiers are returned unchanged.
//
//	Absolutize("widget/follow", "../home") // "home"
//	Absolutize("home", "./assert")        // "assert"
func Absolutize(from, dep string) string {
	if !IsRelative(dep) {
		return dep
	}
	return path.Join(path.Dir(from), dep)
}

// Relativize returns the identifier of to written relative to the directory
// of from. The result always starts with "./" or "../".
//
//	Relativize("widget/follow", "WidgetShare") // "../WidgetShare"
//	Relativize("widget/follow", "widget/gallery") // "./gallery"
func Relativize(from, to string) string {
	fromDir := splitPath(path.Dir(from))
	target := splitPath(to)

	common := 0
	for common < len(fromDir) && common < len(target)-1 && fromDir[common] == target[common] {
		common++
	}

	var parts []string
	for range fromDir[common:] {
		parts = append(parts, "..")
	}
	parts = append(parts, target[common:]...)

	rel := strings.Join(parts, "/")
	if !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel
}

func splitPath(p string) []string {
	if p == "." || p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
