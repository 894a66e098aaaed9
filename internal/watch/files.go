package watch

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Files reads source files relative to a root directory and remembers what
// it read. Changed reports whether a file differs from the remembered
// bytes, so editor saves that rewrite identical content do not trigger a
// rebuild.
type Files struct {
	root string

	mu    sync.Mutex
	cache map[string][]byte
}

// NewFiles returns a Files rooted at dir.
func NewFiles(dir string) *Files {
	return &Files{root: dir, cache: make(map[string][]byte)}
}

// Root returns the directory paths are relative to.
func (f *Files) Root() string { return f.root }

// ReadFile returns the contents of rel, reading the disk only on first use.
func (f *Files) ReadFile(rel string) ([]byte, error) {
	f.mu.Lock()
	data, ok := f.cache[rel]
	f.mu.Unlock()
	if ok {
		return data, nil
	}

	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if prior, ok := f.cache[rel]; ok {
		return prior, nil
	}
	f.cache[rel] = data
	return data, nil
}

// Changed rereads rel and reports whether it differs from the cached copy.
// A file never read before counts as changed; so does a file that has
// disappeared since it was read.
func (f *Files) Changed(rel string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))

	f.mu.Lock()
	defer f.mu.Unlock()
	prior, known := f.cache[rel]

	if errors.Is(err, fs.ErrNotExist) {
		delete(f.cache, rel)
		return known, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rel, err)
	}
	if known && bytes.Equal(prior, data) {
		return false, nil
	}
	f.cache[rel] = data
	return true, nil
}

// Forget drops rel from the cache.
func (f *Files) Forget(rel string) {
	f.mu.Lock()
	delete(f.cache, rel)
	f.mu.Unlock()
}
