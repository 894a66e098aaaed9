// Package testutil provides fixtures shared by package tests.
package testutil

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"testing/fstest"

	"gopkg.in/yaml.v3"

	"github.com/facebookarchive/commoner/internal/source"
)

//go:embed testdata/source.yaml
var sourceYAML []byte

// SourceTree returns the fixture files keyed by slash-separated path.
func SourceTree() map[string]string {
	files := map[string]string{}
	if err := yaml.Unmarshal(sourceYAML, &files); err != nil {
		panic("testutil: bad fixture tree: " + err.Error())
	}
	return files
}

// SourceIDs returns the module id of every fixture file, sorted.
func SourceIDs() []string {
	var ids []string
	for path := range SourceTree() {
		ids = append(ids, strings.TrimSuffix(path, ".js"))
	}
	sort.Strings(ids)
	return ids
}

// FS returns the fixture tree as an in-memory file system.
func FS() fstest.MapFS {
	fsys := fstest.MapFS{}
	for path, data := range SourceTree() {
		fsys[path] = &fstest.MapFile{Data: []byte(data), Mode: 0o644}
	}
	return fsys
}

// WriteSourceTree writes the fixture tree under dir.
func WriteSourceTree(t testing.TB, dir string) {
	t.Helper()
	for path, data := range SourceTree() {
		full := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(data), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
}

// NewChain returns a chain over the fixture tree with directory and alias
// providers, the way a real build over a source directory is configured.
func NewChain(t testing.TB, logger *slog.Logger, opts ...source.ChainOption) *source.Chain {
	t.Helper()
	return NewChainFS(t, FS(), logger, opts...)
}

// NewChainFS is NewChain over an arbitrary tree.
func NewChainFS(t testing.TB, fsys fstest.MapFS, logger *slog.Logger, opts ...source.ChainOption) *source.Chain {
	t.Helper()
	files := source.FSReader{FS: fsys}
	aliases, err := source.ScanDirectives(t.Context(), fsys, source.ScanOptions{})
	if err != nil {
		t.Fatalf("scan directives: %v", err)
	}
	c := source.NewChain(logger, opts...)
	c.Register(source.NewDirProvider(files, ".js"), source.NewAliasProvider(files, aliases))
	return c
}

// DiscardLogger drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
